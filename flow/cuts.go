package flow

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/metrico/tierflow/config"
	"github.com/metrico/tierflow/data_types"
	"github.com/metrico/tierflow/filedb"
	"github.com/metrico/tierflow/model"
	"github.com/metrico/tierflow/utils"
	"github.com/tidwall/btree"
)

// levelCut is the compiled cut of one level. pred is nil when the level has
// no cut.
type levelCut struct {
	level *config.LevelConfig
	pred  *utils.Predicate
	// carry lists the cut columns that are also output columns.
	carry []string
}

func (c *levelCut) active() bool {
	return c.pred != nil
}

func (c *levelCut) columns() []string {
	if c.pred == nil {
		return nil
	}
	return c.pred.Columns
}

func (l *Loader) compileCut(q Query, level *config.LevelConfig, saveOutput bool, index ...string) (*levelCut, error) {
	res := &levelCut{level: level}
	text := q.Cuts[level.Name]
	if strings.TrimSpace(text) == "" {
		return res, nil
	}
	pred, err := utils.CompilePredicate(text)
	if err != nil {
		return nil, fmt.Errorf("%w: cut on level %s: %v", ErrConfiguration, level.Name, err)
	}
	res.pred = pred
	if saveOutput {
		for _, col := range pred.Columns {
			if slices.Contains(q.Columns, col) && !slices.Contains(index, col) {
				res.carry = append(res.carry, col)
			}
		}
	}
	return res, nil
}

// readLevelTable reads fields of table tb at the given rows from the tiers of
// the level, joined into one table. Each field comes from the tier picked by
// resolveFile over the level tiers. It returns nil when no tier holds any
// field.
func (l *Loader) readLevelTable(ctx context.Context, rec *filedb.FileRecord, level *config.LevelConfig,
	tb string, rows []int64, fields []string) (*model.Table, error) {
	var out *model.Table
	res := l.resolveFile(fields, rec, level.Tiers, tb)
	for _, tier := range level.Tiers {
		if !res.HasTable(tier, tb) {
			continue
		}
		var mask []string
		for _, f := range fields {
			if res.Columns[f] == tier && !slices.Contains(mask, f) {
				mask = append(mask, f)
			}
		}
		if len(mask) == 0 {
			continue
		}
		path := l.tierPath(tier, rec)
		if !l.store.Exists(path) {
			l.logger.Warn("tier file is missing", "file", rec.ID, "tier", tier, "path", path)
			continue
		}
		name, err := l.db.TableName(tier, tb)
		if err != nil {
			return nil, err
		}
		tbl, err := l.store.Read(ctx, name, path, rows, mask)
		if err != nil {
			return nil, fmt.Errorf("file %d: read %s from %s: %w", rec.ID, name, tier, storeError(err))
		}
		if out == nil {
			out = tbl
			continue
		}
		if err := out.Join(tbl); err != nil {
			return nil, fmt.Errorf("file %d: join %s: %w", rec.ID, name, err)
		}
	}
	return out, nil
}

func (c *levelCut) missingColumns(rec *filedb.FileRecord, tb string) error {
	return fmt.Errorf("%w: no tier of level %s holds the cut columns %v for table %s of file %d",
		ErrConfiguration, c.level.Name, c.columns(), tb, rec.ID)
}

// eval runs the cut over every row of tbl. A row with a null in any
// referenced column fails the cut.
func (c *levelCut) eval(tbl *model.Table) ([]bool, error) {
	cols := make(map[string]data_types.IColumn, len(c.pred.Columns))
	for _, name := range c.pred.Columns {
		col, ok := tbl.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: cut on level %s uses unknown column %s", ErrConfiguration, c.level.Name, name)
		}
		cols[name] = col
	}
	var row int64
	env := c.pred.Env(func(name string) any {
		return cols[name].GetVal(row)
	})
	mask := make([]bool, tbl.NumRows())
	for row = 0; row < tbl.NumRows(); row++ {
		valid := true
		for _, col := range cols {
			if !col.IsValid(row) {
				valid = false
				break
			}
		}
		if !valid {
			continue
		}
		ok, err := c.pred.Run(env)
		if err != nil {
			return nil, fmt.Errorf("%w: cut on level %s: %v", ErrConfiguration, c.level.Name, err)
		}
		mask[row] = ok
	}
	return mask, nil
}

func int64Less(a, b int64) bool {
	return a < b
}

// uniqueRows returns the sorted distinct values of idx.
func uniqueRows(idx []int64) []int64 {
	set := btree.NewBTreeG(int64Less)
	for _, i := range idx {
		set.Set(i)
	}
	res := make([]int64, 0, set.Len())
	it := set.Iter()
	for it.Next() {
		res = append(res, it.Item())
	}
	return res
}

// applyCut filters the list rows of one level. Rows of tables outside the
// tables of interest are dropped first. Then every table is read at the
// referenced rows and list rows whose (table, idx) fails the cut are dropped.
func (l *Loader) applyCut(ctx context.Context, q Query, rec *filedb.FileRecord, cut *levelCut, entries *EntryList) error {
	if !cut.active() {
		return nil
	}
	level := cut.level
	tables := l.tablesOfInterest(q, level, rec)
	wanted := make(map[string]bool, len(tables))
	for _, tb := range tables {
		wanted[tb] = true
	}
	tbCol, _ := entries.side(level.Name)
	var pos []int64
	for i, tb := range tbCol {
		if wanted[tb] {
			pos = append(pos, int64(i))
		}
	}
	if err := entries.keep(pos); err != nil {
		return err
	}

	keep := make([]bool, entries.Len())
	tbCol, idxCol := entries.side(level.Name)
	for _, tb := range tables {
		var tbPos, tbIdx []int64
		for i, t := range tbCol {
			if t == tb {
				tbPos = append(tbPos, int64(i))
				tbIdx = append(tbIdx, idxCol[i])
			}
		}
		if len(tbPos) == 0 {
			continue
		}
		rows := uniqueRows(tbIdx)
		tbl, err := l.readLevelTable(ctx, rec, level, tb, rows, cut.columns())
		if err != nil {
			return err
		}
		if tbl == nil {
			return cut.missingColumns(rec, tb)
		}
		mask, err := cut.eval(tbl)
		if err != nil {
			return err
		}
		survivors := btree.NewBTreeG(int64Less)
		for k, ok := range mask {
			if ok {
				survivors.Set(rows[k])
			}
		}
		var keptPos, keptRow []int64
		for k, p := range tbPos {
			if _, ok := survivors.Get(tbIdx[k]); ok {
				keep[p] = true
				keptPos = append(keptPos, p)
				keptRow = append(keptRow, int64(rowIndex(rows, tbIdx[k])))
			}
		}
		for _, name := range cut.carry {
			col, ok := tbl.Get(name)
			if !ok || len(keptPos) == 0 {
				continue
			}
			values, err := col.Take(keptRow)
			if err != nil {
				return err
			}
			if err := entries.setExtra(name, keptPos, values); err != nil {
				return err
			}
		}
	}
	pos = pos[:0]
	for i, ok := range keep {
		if ok {
			pos = append(pos, int64(i))
		}
	}
	return entries.keep(pos)
}

// rowIndex finds v in the sorted slice rows.
func rowIndex(rows []int64, v int64) int {
	i, _ := slices.BinarySearch(rows, v)
	return i
}
