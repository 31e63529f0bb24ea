package flow

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/metrico/tierflow/config"
	"github.com/metrico/tierflow/data_types"
	"github.com/metrico/tierflow/filedb"
)

// tcmPlan holds everything a TCM-mode generation needs for every file.
type tcmPlan struct {
	tcm      *config.LevelConfig
	parent   *config.LevelConfig
	child    *config.LevelConfig
	tableID  string
	cuts     []*levelCut
	carrying bool
}

func (l *Loader) newTCMPlan(q Query, opts GenerateOptions) (*tcmPlan, error) {
	tcm, err := l.level(opts.TCMLevel)
	if err != nil {
		return nil, err
	}
	if !tcm.IsTCM() {
		return nil, fmt.Errorf("%w: level %s is not a TCM level", ErrConfiguration, tcm.Name)
	}
	if tcm.TCMCols == nil {
		return nil, fmt.Errorf("%w: TCM level %s has no tcm_cols", ErrConfiguration, tcm.Name)
	}
	plan := &tcmPlan{tcm: tcm, tableID: opts.TCMTable}
	if plan.parent, err = l.level(tcm.Parent); err != nil {
		return nil, err
	}
	if plan.child, err = l.level(tcm.Child); err != nil {
		return nil, err
	}
	index := []string{
		plan.parent.Name + "_table", plan.parent.Name + "_idx",
		plan.child.Name + "_table", plan.child.Name + "_idx",
	}
	for _, level := range []*config.LevelConfig{plan.parent, plan.child} {
		cut, err := l.compileCut(q, level, opts.SaveOutputColumns, index...)
		if err != nil {
			return nil, err
		}
		plan.cuts = append(plan.cuts, cut)
		plan.carrying = plan.carrying || len(cut.carry) > 0
	}
	// higher priority first, so the child cut runs before the parent cut
	slices.SortStableFunc(plan.cuts, func(a, b *levelCut) int {
		return cmp.Compare(b.level.Priority, a.level.Priority)
	})
	return plan, nil
}

// pickTCMTable returns the TCM table to use in the file.
func (l *Loader) pickTCMTable(plan *tcmPlan, rec *filedb.FileRecord) (string, error) {
	tier := plan.tcm.Tiers[0]
	tables := rec.Tier(tier).Tables
	if plan.tableID != "" {
		id := l.db.NormalizeTable(tier, plan.tableID)
		if !slices.Contains(tables, id) {
			return "", fmt.Errorf("%w: table %s does not exist in %s of file %d",
				ErrAmbiguity, plan.tableID, plan.tcm.Name, rec.ID)
		}
		return id, nil
	}
	switch len(tables) {
	case 0:
		return "", fmt.Errorf("%w: file %d has no table in %s", ErrAmbiguity, rec.ID, plan.tcm.Name)
	case 1:
		return tables[0], nil
	}
	return "", fmt.Errorf("%w: file %d has %d TCM tables in %s, one must be chosen",
		ErrAmbiguity, rec.ID, len(tables), plan.tcm.Name)
}

// readTCM reads the coincidence map of a file and expands it into an entry
// list with one row per child hit.
func (l *Loader) readTCM(ctx context.Context, plan *tcmPlan, rec *filedb.FileRecord) (*EntryList, error) {
	tier := plan.tcm.Tiers[0]
	path := l.tierPath(tier, rec)
	if !l.store.Exists(path) {
		return nil, fmt.Errorf("%w: TCM file of %s for file %d at %s", ErrFileNotFound, plan.tcm.Name, rec.ID, path)
	}
	id, err := l.pickTCMTable(plan, rec)
	if err != nil {
		return nil, err
	}
	name, err := l.db.TableName(tier, id)
	if err != nil {
		return nil, err
	}
	cols := plan.tcm.TCMCols
	tbl, err := l.store.Read(ctx, name, path, nil, []string{cols.ParentTb, cols.ParentIdx, cols.ChildIdx})
	if err != nil {
		return nil, fmt.Errorf("file %d: read TCM %s: %w", rec.ID, name, storeError(err))
	}
	parentTb, ok := tbl.Get(cols.ParentTb)
	if !ok {
		return nil, fmt.Errorf("%w: TCM %s has no column %s", ErrConfiguration, name, cols.ParentTb)
	}
	parentIdx, ok := tbl.Get(cols.ParentIdx)
	if !ok {
		return nil, fmt.Errorf("%w: TCM %s has no column %s", ErrConfiguration, name, cols.ParentIdx)
	}

	var childIdx []int64
	if vec, ok := parentTb.(data_types.IVector); ok {
		if childIdx, err = data_types.ExplodeCumulativeLength(vec.CumulativeLength()); err != nil {
			return nil, fmt.Errorf("TCM %s: %w", name, err)
		}
		parentTb = vec.FlatColumn()
		if vec, ok := parentIdx.(data_types.IVector); ok {
			parentIdx = vec.FlatColumn()
		}
	} else {
		// already exploded: one row per hit with an explicit event column
		col, ok := tbl.Get(cols.ChildIdx)
		if !ok {
			return nil, fmt.Errorf("%w: TCM %s has neither vector columns nor %s", ErrConfiguration, name, cols.ChildIdx)
		}
		if childIdx, err = columnInt64s(col); err != nil {
			return nil, fmt.Errorf("TCM %s column %s: %w", name, cols.ChildIdx, err)
		}
	}
	if parentTb.GetLength() != int64(len(childIdx)) || parentIdx.GetLength() != int64(len(childIdx)) {
		return nil, fmt.Errorf("%w: TCM %s columns have different lengths", ErrConfiguration, name)
	}

	entries := newEntryList(rec.ID, plan.parent.Name, plan.child.Name)
	entries.ChildIdx = childIdx
	if entries.ParentIdx, err = columnInt64s(parentIdx); err != nil {
		return nil, fmt.Errorf("TCM %s column %s: %w", name, cols.ParentIdx, err)
	}
	parentTier := plan.parent.Tiers[0]
	entries.ParentTable = make([]string, len(childIdx))
	for i := range entries.ParentTable {
		entries.ParentTable[i] = l.db.NormalizeTable(parentTier, fmt.Sprint(parentTb.GetVal(int64(i))))
	}
	childTb := l.db.NormalizeTable(plan.child.Tiers[0], id)
	entries.ChildTable = data_types.FastFillArray(make([]string, len(childIdx)), childTb)
	return entries, nil
}
