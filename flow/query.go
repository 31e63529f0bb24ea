package flow

import (
	"fmt"
	"maps"
	"slices"

	"github.com/metrico/tierflow/utils"
)

const (
	FormatStructuredTable = "structured-table"
	FormatFlatFrame       = "flat-frame"
)

// Query is the immutable selection a generate or load call works on. The
// With* builders return modified copies and never touch the receiver.
type Query struct {
	Files      []int64             `json:"files"`
	Tables     map[string][]string `json:"tables,omitempty"`
	Cuts       map[string]string   `json:"cuts,omitempty"`
	MergeFiles bool                `json:"merge_files"`
	Format     string              `json:"format"`
	Columns    []string            `json:"columns"`

	levels map[string]bool
}

// NewQuery starts a query from the loader configuration: its cuts and output
// section are taken over as defaults.
func (l *Loader) NewQuery() Query {
	q := Query{Format: FormatStructuredTable, levels: map[string]bool{}}
	for _, name := range l.conf.LevelNames() {
		q.levels[name] = true
	}
	if len(l.conf.Cuts) > 0 {
		q.Cuts = maps.Clone(l.conf.Cuts)
	}
	if out := l.conf.Output; out != nil {
		if out.Format != "" {
			q.Format = out.Format
		}
		q.MergeFiles = out.MergeFiles
		q.Columns = slices.Clone(out.Columns)
	}
	return q
}

func (q Query) clone() Query {
	res := q
	res.Files = slices.Clone(q.Files)
	res.Columns = slices.Clone(q.Columns)
	res.Cuts = maps.Clone(q.Cuts)
	if q.Tables != nil {
		res.Tables = make(map[string][]string, len(q.Tables))
		for level, ids := range q.Tables {
			res.Tables[level] = slices.Clone(ids)
		}
	}
	return res
}

func (q Query) checkLevel(level string) error {
	if q.levels != nil && !q.levels[level] {
		return fmt.Errorf("%w: unknown level %s", ErrConfiguration, level)
	}
	return nil
}

// WithFiles adds files to the selection, keeping their order.
func (q Query) WithFiles(ids ...int64) Query {
	res := q.clone()
	res.Files = append(res.Files, ids...)
	return res
}

// WithTables adds table ids of interest for a level.
func (q Query) WithTables(level string, ids ...string) (Query, error) {
	if err := q.checkLevel(level); err != nil {
		return q, err
	}
	res := q.clone()
	if res.Tables == nil {
		res.Tables = map[string][]string{}
	}
	res.Tables[level] = append(res.Tables[level], ids...)
	return res, nil
}

// WithCuts adds cuts per level. A level that already has a cut gets both,
// conjoined.
func (q Query) WithCuts(cuts map[string]string) (Query, error) {
	for level := range cuts {
		if err := q.checkLevel(level); err != nil {
			return q, err
		}
	}
	res := q.clone()
	if res.Cuts == nil {
		res.Cuts = map[string]string{}
	}
	for _, level := range slices.Sorted(maps.Keys(cuts)) {
		res.Cuts[level] = utils.Conjoin(res.Cuts[level], cuts[level])
	}
	return res, nil
}

// WithCutList would apply flat cuts by guessing their level from the columns.
func (q Query) WithCutList(cuts []string) (Query, error) {
	return q, fmt.Errorf("%w: cuts must be given per level", ErrUnsupportedOperation)
}

func (q Query) WithOutput(format string, mergeFiles bool, columns []string) Query {
	res := q.clone()
	if format != "" {
		res.Format = format
	}
	res.MergeFiles = mergeFiles
	if columns != nil {
		res.Columns = slices.Clone(columns)
	}
	return res
}

func (q Query) tablesOf(level string) ([]string, bool) {
	ids, ok := q.Tables[level]
	return ids, ok && len(ids) > 0
}
