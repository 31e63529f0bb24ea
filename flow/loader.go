package flow

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/metrico/tierflow/config"
	"github.com/metrico/tierflow/filedb"
	"github.com/metrico/tierflow/store"
)

// Loader joins tiers of the indexed files through their TCMs. It holds no
// per-call state and may be shared between goroutines.
type Loader struct {
	conf    *config.LoaderConfig
	db      *filedb.FileDB
	store   store.Reader
	dataDir string
	workers int
	logger  *slog.Logger
}

type Option func(*Loader)

// WithWorkers bounds the number of files processed at once.
func WithWorkers(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.workers = n
		}
	}
}

func WithDataDir(dir string) Option {
	return func(l *Loader) {
		l.dataDir = dir
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

func NewLoader(conf *config.LoaderConfig, db *filedb.FileDB, st store.Reader, opts ...Option) (*Loader, error) {
	l := &Loader{
		conf:    conf,
		db:      db,
		store:   st,
		dataDir: conf.DataDir,
		workers: 1,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	tiers := map[string]bool{}
	for _, tier := range db.Tiers() {
		tiers[tier] = true
	}
	for _, level := range conf.Levels {
		for _, tier := range level.Tiers {
			if !tiers[tier] {
				return nil, fmt.Errorf("%w: level %s uses tier %s unknown to the file index",
					ErrConfiguration, level.Name, tier)
			}
		}
	}
	return l, nil
}

func (l *Loader) Config() *config.LoaderConfig {
	return l.conf
}

func (l *Loader) FileDB() *filedb.FileDB {
	return l.db
}

func (l *Loader) level(name string) (*config.LevelConfig, error) {
	level, ok := l.conf.Level(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown level %s", ErrConfiguration, name)
	}
	return level, nil
}

// SelectFiles returns the ids of the indexed files matching the expression,
// e.g. `type == 'phy' and run == 3`.
func (l *Loader) SelectFiles(query string) ([]int64, error) {
	ids, err := l.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("%w: file query: %v", ErrConfiguration, err)
	}
	return ids, nil
}

// Datastreams restricts every level whose table template is keyed by word to
// the given ids. Otherwise word is looked up as an attribute of the channel
// map, and the template values of the matching channels are selected.
func (l *Loader) Datastreams(q Query, ids []string, word string) (Query, error) {
	found := false
	for _, level := range l.conf.Levels {
		if l.db.TableKeyword(level.Tiers[0]) != word {
			continue
		}
		found = true
		var err error
		if q, err = q.WithTables(level.Name, ids...); err != nil {
			return q, err
		}
	}
	if found {
		return q, nil
	}

	wanted := map[string]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	known := false
	var channels []map[string]any
	for _, name := range slices.Sorted(maps.Keys(l.conf.ChannelMap)) {
		attrs := l.conf.ChannelMap[name]
		v, ok := attrs[word]
		if !ok {
			continue
		}
		known = true
		if wanted[fmt.Sprint(v)] {
			channels = append(channels, attrs)
		}
	}
	if !known {
		return q, fmt.Errorf("%w: no table keyword or channel attribute named %s", ErrUnsupportedOperation, word)
	}
	for _, level := range l.conf.Levels {
		tier := level.Tiers[0]
		keyword := l.db.TableKeyword(tier)
		if keyword == "" {
			continue
		}
		var tables []string
		for _, attrs := range channels {
			if v, ok := attrs[keyword]; ok {
				tables = append(tables, l.db.NormalizeTable(tier, fmt.Sprint(v)))
			}
		}
		if len(tables) == 0 {
			continue
		}
		var err error
		if q, err = q.WithTables(level.Name, tables...); err != nil {
			return q, err
		}
	}
	return q, nil
}

func (l *Loader) record(id int64) (*filedb.FileRecord, error) {
	rec, err := l.db.Record(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return rec, nil
}

func (l *Loader) tierPath(tier string, rec *filedb.FileRecord) string {
	return l.db.Path(l.dataDir, tier, rec)
}

// tablesOfInterest is the explicit selection for the level if any, otherwise
// the tables of the level's first tier in the file.
func (l *Loader) tablesOfInterest(q Query, level *config.LevelConfig, rec *filedb.FileRecord) []string {
	tier := level.Tiers[0]
	if ids, ok := q.tablesOf(level.Name); ok {
		res := make([]string, 0, len(ids))
		for _, id := range ids {
			res = append(res, l.db.NormalizeTable(tier, id))
		}
		return res
	}
	return rec.Tier(tier).Tables
}
