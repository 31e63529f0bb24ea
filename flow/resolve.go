package flow

import (
	"github.com/metrico/tierflow/filedb"
)

// FileResolution tells, for one file, which tables to open per tier and
// which tier each requested column comes from.
type FileResolution struct {
	Tables  map[string][]string `json:"tables"`
	Columns map[string]string   `json:"columns"`
}

// HasTable reports whether table id of the tier holds any requested column.
func (r *FileResolution) HasTable(tier, id string) bool {
	for _, tb := range r.Tables[tier] {
		if tb == id {
			return true
		}
	}
	return false
}

// Resolution is the result of Resolve. Files is set in per-file mode, Merged
// in merged mode.
type Resolution struct {
	Files  map[int64]*FileResolution `json:"files,omitempty"`
	Merged map[string][]string       `json:"merged,omitempty"`
}

// tiers lists every tier of every level once, in level order.
func (l *Loader) tiers() []string {
	var res []string
	seen := map[string]bool{}
	for _, level := range l.conf.Levels {
		for _, tier := range level.Tiers {
			if !seen[tier] {
				seen[tier] = true
				res = append(res, tier)
			}
		}
	}
	return res
}

// Resolve finds the tables holding the requested columns. Missing columns and
// unknown files are left out of the result.
func (l *Loader) Resolve(columns []string, files []int64, merged bool) *Resolution {
	if merged {
		return &Resolution{Merged: l.resolveMerged(columns, files)}
	}
	res := &Resolution{Files: make(map[int64]*FileResolution, len(files))}
	for _, id := range files {
		rec, err := l.db.Record(id)
		if err != nil {
			continue
		}
		res.Files[id] = l.resolveFile(columns, rec, l.tiers(), "")
	}
	return res
}

// resolveFile resolves columns for one file over tiers: a column comes from the
// first tier holding it and a table is listed when it holds a requested
// column. A non-empty table limits the lookup to that table id.
func (l *Loader) resolveFile(columns []string, rec *filedb.FileRecord, tiers []string, table string) *FileResolution {
	wanted := make(map[string]bool, len(columns))
	for _, c := range columns {
		wanted[c] = true
	}
	res := &FileResolution{Tables: map[string][]string{}, Columns: map[string]string{}}
	for _, tier := range tiers {
		e := rec.Tier(tier)
		tables := []string{}
		for i, tb := range e.Tables {
			if table != "" && tb != table {
				continue
			}
			hit := false
			for _, col := range l.db.Columns[e.ColIdx[i]] {
				if !wanted[col] {
					continue
				}
				hit = true
				if _, ok := res.Columns[col]; !ok {
					res.Columns[col] = tier
				}
			}
			if hit {
				tables = append(tables, tb)
			}
		}
		res.Tables[tier] = tables
	}
	return res
}

func (l *Loader) resolveMerged(columns []string, files []int64) map[string][]string {
	res := map[string][]string{}
	seen := map[string]map[string]bool{}
	for _, tier := range l.tiers() {
		res[tier] = []string{}
		seen[tier] = map[string]bool{}
	}
	for _, id := range files {
		rec, err := l.db.Record(id)
		if err != nil {
			continue
		}
		for tier, tables := range l.resolveFile(columns, rec, l.tiers(), "").Tables {
			for _, tb := range tables {
				if !seen[tier][tb] {
					seen[tier][tb] = true
					res[tier] = append(res[tier], tb)
				}
			}
		}
	}
	return res
}
