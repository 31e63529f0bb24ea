package flow

import (
	"fmt"
	"math"
	"slices"

	"github.com/metrico/tierflow/data_types"
	"github.com/metrico/tierflow/model"
)

const (
	AggVector = "vector"
	AggFirst  = "first"
	AggSum    = "sum"
	AggMean   = "mean"
	AggMin    = "min"
	AggMax    = "max"
	AggCount  = "count"
)

var AggFuncs = []string{AggVector, AggFirst, AggSum, AggMean, AggMin, AggMax, AggCount}

func parseAggFunc(name string) (string, error) {
	if name == "" {
		return AggVector, nil
	}
	if !slices.Contains(AggFuncs, name) {
		return "", fmt.Errorf("%w: aggregation %q, expected one of %v", ErrNotImplementedInput, name, AggFuncs)
	}
	return name, nil
}

type eventKey struct {
	table string
	idx   int64
}

// aggregateEvents folds the hit table of a TCM entry list into one row per
// event, in order of first appearance. The parent index columns are always
// kept as per-event vectors.
func (l *Loader) aggregateEvents(e *EntryList, hits *model.Table, aggName string) (*model.Table, error) {
	if !e.TCM() {
		return nil, fmt.Errorf("%w: event orientation needs an entry list built with a TCM level", ErrConfiguration)
	}
	agg, err := parseAggFunc(aggName)
	if err != nil {
		return nil, err
	}
	events := map[eventKey]int{}
	var keys []eventKey
	var groups [][]int64
	for i := range e.ChildIdx {
		k := eventKey{e.ChildTable[i], e.ChildIdx[i]}
		g, ok := events[k]
		if !ok {
			g = len(groups)
			events[k] = g
			keys = append(keys, k)
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], int64(i))
	}

	res := model.NewTable()
	tables := make([]string, len(keys))
	idx := make([]int64, len(keys))
	nHits := make([]int64, len(keys))
	for g, k := range keys {
		tables[g], idx[g], nHits[g] = k.table, k.idx, int64(len(groups[g]))
	}
	for _, c := range []struct {
		name string
		col  data_types.IColumn
	}{
		{e.ChildTableCol(), data_types.NewColumn(tables)},
		{e.ChildIdxCol(), data_types.NewColumn(idx)},
		{"n_hits", data_types.NewColumn(nHits)},
	} {
		if err := res.Set(c.name, c.col); err != nil {
			return nil, err
		}
	}

	for _, name := range hits.Names() {
		if res.Has(name) {
			continue
		}
		col, _ := hits.Get(name)
		fn := agg
		if name == e.ParentTableCol() || name == e.ParentIdxCol() {
			fn = AggVector
		}
		out, err := aggregateColumn(col, groups, fn)
		if err != nil {
			l.logger.Warn("cannot aggregate column, skipping", "file", e.File, "column", name, "error", err)
			continue
		}
		if err := res.Set(name, out); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func aggregateColumn(col data_types.IColumn, groups [][]int64, fn string) (data_types.IColumn, error) {
	if col.Kind() != data_types.KindScalar {
		return nil, fmt.Errorf("%s columns cannot be aggregated", col.Kind())
	}
	switch fn {
	case AggVector:
		order := make([]int64, 0, col.GetLength())
		cl := make([]int64, len(groups))
		for g, rows := range groups {
			order = append(order, rows...)
			cl[g] = int64(len(order))
		}
		flat, err := col.Take(order)
		if err != nil {
			return nil, err
		}
		return data_types.NewVectorFromFlat(cl, flat)
	case AggFirst:
		first := make([]int64, len(groups))
		for g, rows := range groups {
			first[g] = rows[0]
		}
		return col.Take(first)
	case AggCount:
		counts := make([]int64, len(groups))
		for g, rows := range groups {
			for _, r := range rows {
				if col.IsValid(r) {
					counts[g]++
				}
			}
		}
		return data_types.NewColumn(counts), nil
	}

	values := make([]float64, len(groups))
	valids := make([]bool, len(groups))
	for g, rows := range groups {
		var acc float64
		n := 0
		for _, r := range rows {
			if !col.IsValid(r) {
				continue
			}
			v, ok := data_types.AsFloat64(col.GetVal(r))
			if !ok {
				return nil, fmt.Errorf("%s is not numeric", col.GetTypeName())
			}
			switch {
			case n == 0:
				acc = v
			case fn == AggMin:
				acc = math.Min(acc, v)
			case fn == AggMax:
				acc = math.Max(acc, v)
			default:
				acc += v
			}
			n++
		}
		if n == 0 {
			continue
		}
		if fn == AggMean {
			acc /= float64(n)
		}
		values[g], valids[g] = acc, true
	}
	return data_types.NewColumnWithValids(values, valids)
}
