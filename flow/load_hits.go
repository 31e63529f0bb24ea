package flow

import (
	"context"
	"fmt"
	"slices"

	"github.com/metrico/tierflow/data_types"
	"github.com/metrico/tierflow/filedb"
	"github.com/metrico/tierflow/model"
)

// groupByTable returns the distinct tables of col in order of first
// appearance with the list positions of each.
func groupByTable(col []string) ([]string, map[string][]int64) {
	var order []string
	pos := map[string][]int64{}
	for i, tb := range col {
		if _, ok := pos[tb]; !ok {
			order = append(order, tb)
		}
		pos[tb] = append(pos[tb], int64(i))
	}
	return order, pos
}

// hitAssembler collects the columns of one file's output table.
type hitAssembler struct {
	l       *Loader
	file    int64
	out     *model.Table
	n       int64
	skipped map[string]bool
}

func (a *hitAssembler) skip(name string, msg string, args ...any) {
	if a.skipped[name] {
		return
	}
	a.skipped[name] = true
	a.out.Remove(name)
	a.l.logger.Warn(msg, append([]any{"file", a.file, "column", name}, args...)...)
}

// scatter writes per-hit values of a column at the given list positions.
func (a *hitAssembler) scatter(name string, col data_types.IColumn, pos []int64) {
	if a.skipped[name] {
		return
	}
	dst, ok := a.out.Get(name)
	if !ok {
		dst = col.MakeEmpty(a.n)
		if err := a.out.Set(name, dst); err != nil {
			a.skip(name, "cannot add column", "error", err)
			return
		}
	}
	if err := dst.Scatter(pos, col); err != nil {
		a.skip(name, "column differs between tables", "error", err)
	}
}

// loadHits builds the hit-oriented table of one entry list: the list's own
// columns followed by the requested output columns.
func (l *Loader) loadHits(ctx context.Context, q Query, e *EntryList) (*model.Table, error) {
	rec, err := l.record(e.File)
	if err != nil {
		return nil, err
	}
	base, err := e.ToTable()
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, col := range q.Columns {
		if !base.Has(col) && !slices.Contains(missing, col) {
			missing = append(missing, col)
		}
	}
	a := &hitAssembler{l: l, file: e.File, out: model.NewTable(), n: e.Len(), skipped: map[string]bool{}}
	if len(missing) > 0 {
		if err := l.loadParentLevel(ctx, a, rec, e, missing); err != nil {
			return nil, err
		}
		if e.TCM() {
			// columns found on the parent level are not read again
			var rest []string
			for _, col := range missing {
				if !a.out.Has(col) && !a.skipped[col] {
					rest = append(rest, col)
				}
			}
			if err := l.loadChildLevel(ctx, a, rec, e, rest); err != nil {
				return nil, err
			}
		}
		for _, col := range missing {
			if !a.out.Has(col) && !a.skipped[col] {
				l.logger.Warn("output column not found", "file", e.File, "column", col)
			}
		}
	}
	for _, col := range q.Columns {
		if c, ok := a.out.Get(col); ok && !base.Has(col) {
			if err := base.Set(col, c); err != nil {
				return nil, err
			}
		}
	}
	return base, nil
}

func (l *Loader) loadParentLevel(ctx context.Context, a *hitAssembler, rec *filedb.FileRecord,
	e *EntryList, fields []string) error {
	level, err := l.level(e.Parent)
	if err != nil {
		return err
	}
	tables, positions := groupByTable(e.ParentTable)
	for _, tb := range tables {
		pos := positions[tb]
		part, err := l.readLevelTable(ctx, rec, level, tb, gather(e.ParentIdx, pos), fields)
		if err != nil {
			return err
		}
		if part == nil {
			continue
		}
		for _, name := range part.Names() {
			col, _ := part.Get(name)
			switch col.Kind() {
			case data_types.KindScalar, data_types.KindWaveform:
				a.scatter(name, col, pos)
			case data_types.KindRaggedWaveform:
				a.skip(name, "ragged waveforms are not supported, skipping")
			case data_types.KindVector:
				a.skip(name, "vector columns are not supported on the parent level, skipping")
			}
		}
	}
	return nil
}

// loadChildLevel reads child rows once per run of equal child index and
// spreads them over the hits of the run: scalars are broadcast and vectors
// whose length equals the run are exploded.
func (l *Loader) loadChildLevel(ctx context.Context, a *hitAssembler, rec *filedb.FileRecord,
	e *EntryList, fields []string) error {
	level, err := l.level(e.Child)
	if err != nil {
		return err
	}
	tables, positions := groupByTable(e.ChildTable)
	for _, tb := range tables {
		pos := positions[tb]
		idx := gather(e.ChildIdx, pos)
		cl := data_types.BuildCumulativeLength(idx)
		runOf, err := data_types.ExplodeCumulativeLength(cl)
		if err != nil {
			return err
		}
		runRows := make([]int64, len(cl))
		for i, end := range cl {
			runRows[i] = idx[end-1]
		}
		part, err := l.readLevelTable(ctx, rec, level, tb, runRows, fields)
		if err != nil {
			return err
		}
		if part == nil {
			continue
		}
		for _, name := range part.Names() {
			col, _ := part.Get(name)
			switch col.Kind() {
			case data_types.KindScalar, data_types.KindWaveform:
				hits, err := col.Take(runOf)
				if err != nil {
					return err
				}
				a.scatter(name, hits, pos)
			case data_types.KindVector:
				hits, err := explodeRuns(col.(data_types.IVector), cl)
				if err != nil {
					a.skip(name, "cannot explode event vector onto hits", "error", err)
					continue
				}
				a.scatter(name, hits, pos)
			case data_types.KindRaggedWaveform:
				a.skip(name, "ragged waveforms are not supported, skipping")
			}
		}
	}
	return nil
}

// explodeRuns flattens a vector column read once per run into one scalar per
// hit. Row j must have exactly as many elements as run j has hits.
func explodeRuns(vec data_types.IVector, runs []int64) (data_types.IColumn, error) {
	vcl := vec.CumulativeLength()
	if len(runs) == 0 {
		return vec.FlatColumn().Take(nil)
	}
	if len(vcl) != len(runs) {
		return nil, fmt.Errorf("%d vectors for %d runs", len(vcl), len(runs))
	}
	flatIdx := make([]int64, 0, runs[len(runs)-1])
	var prevV, prevR int64
	for j := range runs {
		if vcl[j]-prevV != runs[j]-prevR {
			return nil, fmt.Errorf("vector %d has %d elements for %d hits", j, vcl[j]-prevV, runs[j]-prevR)
		}
		if !vec.IsValid(int64(j)) {
			return nil, fmt.Errorf("vector %d is null", j)
		}
		for k := prevV; k < vcl[j]; k++ {
			flatIdx = append(flatIdx, k)
		}
		prevV, prevR = vcl[j], runs[j]
	}
	return vec.FlatColumn().Take(flatIdx)
}
