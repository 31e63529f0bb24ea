package filedb

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-faster/city"
	"github.com/metrico/tierflow/config"
)

// TierEntry is the per-tier part of a file record. Tables and ColIdx are
// parallel: ColIdx[i] points into the column registry for Tables[i].
type TierEntry struct {
	File   string   `json:"file"`
	Tables []string `json:"tables"`
	ColIdx []int    `json:"col_idx"`
}

// FileRecord describes one acquisition cycle. Its ID is its index in the
// FileDB.
type FileRecord struct {
	ID     int64                 `json:"id"`
	Fields map[string]string     `json:"fields"`
	Tiers  map[string]*TierEntry `json:"tiers"`
	// Status has bit i set when the file of tier i exists.
	Status uint32 `json:"file_status"`
}

func (r *FileRecord) Tier(tier string) *TierEntry {
	if e, ok := r.Tiers[tier]; ok {
		return e
	}
	return &TierEntry{}
}

// FileDB is the tiered file index. It is built once and read concurrently
// afterwards.
type FileDB struct {
	Config  *config.FileDBConfig
	Records []*FileRecord
	// Columns is the column registry. Indices never change once assigned.
	Columns [][]string

	colSigs    map[uint64][]int
	fileTpls   map[string]*Template
	tableTpls  map[string]*TableTemplate
	tierBitIdx map[string]int
}

func New(conf *config.FileDBConfig) (*FileDB, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	db := &FileDB{
		Config:     conf,
		colSigs:    map[uint64][]int{},
		fileTpls:   map[string]*Template{},
		tableTpls:  map[string]*TableTemplate{},
		tierBitIdx: map[string]int{},
	}
	for i, tier := range conf.Tiers {
		tpl, err := NewTemplate(conf.FileFormat[tier])
		if err != nil {
			return nil, fmt.Errorf("%w: file_format of %s: %v", config.ErrConfiguration, tier, err)
		}
		db.fileTpls[tier] = tpl
		tableFmt, ok := conf.TableFormat[tier]
		if !ok {
			tableFmt = tier
		}
		ttpl, err := NewTableTemplate(tableFmt)
		if err != nil {
			return nil, fmt.Errorf("%w: table_format of %s: %v", config.ErrConfiguration, tier, err)
		}
		db.tableTpls[tier] = ttpl
		db.tierBitIdx[tier] = i
	}
	return db, nil
}

// Restore rebuilds a FileDB from persisted records and registry.
func Restore(conf *config.FileDBConfig, records []*FileRecord, columns [][]string) (*FileDB, error) {
	db, err := New(conf)
	if err != nil {
		return nil, err
	}
	for _, cols := range columns {
		db.registerColumns(cols)
	}
	for i, rec := range records {
		if rec.ID != int64(i) {
			return nil, fmt.Errorf("record %d has id %d", i, rec.ID)
		}
		for tier, e := range rec.Tiers {
			if len(e.Tables) != len(e.ColIdx) {
				return nil, fmt.Errorf("record %d tier %s: %d tables but %d column sets",
					i, tier, len(e.Tables), len(e.ColIdx))
			}
		}
	}
	db.Records = records
	return db, nil
}

func (db *FileDB) Tiers() []string {
	return db.Config.Tiers
}

func columnsSignature(cols []string) uint64 {
	sorted := slices.Clone(cols)
	slices.Sort(sorted)
	return city.Hash64([]byte(strings.Join(sorted, "\x00")))
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := slices.Clone(a), slices.Clone(b)
	slices.Sort(sa)
	slices.Sort(sb)
	return slices.Equal(sa, sb)
}

func (db *FileDB) registerColumns(cols []string) int {
	idx := len(db.Columns)
	db.Columns = append(db.Columns, cols)
	sig := columnsSignature(cols)
	db.colSigs[sig] = append(db.colSigs[sig], idx)
	return idx
}

// AddColumns returns the registry index of the column set, registering it when
// no identical set exists yet.
func (db *FileDB) AddColumns(cols []string) int {
	for _, idx := range db.colSigs[columnsSignature(cols)] {
		if sameSet(db.Columns[idx], cols) {
			return idx
		}
	}
	return db.registerColumns(slices.Clone(cols))
}

// AddFile indexes a new acquisition cycle from its key fields and derives the
// file name of every tier.
func (db *FileDB) AddFile(fields map[string]string) (*FileRecord, error) {
	rec := &FileRecord{
		ID:     int64(len(db.Records)),
		Fields: fields,
		Tiers:  map[string]*TierEntry{},
	}
	for _, tier := range db.Config.Tiers {
		name, err := db.fileTpls[tier].Fill(fields)
		if err != nil {
			return nil, fmt.Errorf("tier %s: %w", tier, err)
		}
		rec.Tiers[tier] = &TierEntry{File: name, Tables: []string{}, ColIdx: []int{}}
	}
	db.Records = append(db.Records, rec)
	return rec, nil
}

func (db *FileDB) Record(id int64) (*FileRecord, error) {
	if id < 0 || id >= int64(len(db.Records)) {
		return nil, fmt.Errorf("file %d is not indexed", id)
	}
	return db.Records[id], nil
}

// Path is the location of the tier's file for the given record below dataDir.
// An empty dataDir uses the configured one.
func (db *FileDB) Path(dataDir, tier string, rec *FileRecord) string {
	if dataDir == "" {
		dataDir = db.Config.DataDir
	}
	return filepath.Join(dataDir, db.Config.TierDirs[tier], rec.Tier(tier).File)
}

func (db *FileDB) tableTemplate(tier string) *TableTemplate {
	if tpl, ok := db.tableTpls[tier]; ok {
		return tpl
	}
	tpl, _ := NewTableTemplate(tier)
	return tpl
}

func (db *FileDB) TableName(tier, id string) (string, error) {
	return db.tableTemplate(tier).Name(id)
}

func (db *FileDB) TableID(tier, tablePath string) (string, bool) {
	return db.tableTemplate(tier).ID(tablePath)
}

func (db *FileDB) NormalizeTable(tier, id string) string {
	return db.tableTemplate(tier).Normalize(id)
}

// TableKeyword is the placeholder of the tier's table template.
func (db *FileDB) TableKeyword(tier string) string {
	return db.tableTemplate(tier).Keyword()
}

// TableColumns returns the column set of the given table in the tier, nil when
// the table is not in the file.
func (db *FileDB) TableColumns(rec *FileRecord, tier, id string) []string {
	e := rec.Tier(tier)
	for i, tb := range e.Tables {
		if tb == id {
			return db.Columns[e.ColIdx[i]]
		}
	}
	return nil
}

func (db *FileDB) TierExists(rec *FileRecord, tier string) bool {
	bit, ok := db.tierBitIdx[tier]
	return ok && rec.Status&(1<<bit) != 0
}
