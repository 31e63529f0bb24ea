package flow

import (
	"context"
	"fmt"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/metrico/tierflow/data_types"
	"github.com/metrico/tierflow/model"
	"github.com/metrico/tierflow/store"
)

const (
	OrientationHit = "hit"
	OrientationEvt = "evt"
)

type LoadOptions struct {
	// Orientation is "hit" (default) or "evt".
	Orientation string       `json:"orientation"`
	TCMLevel    string       `json:"tcm_level"`
	TCMTable    string       `json:"tcm_table"`
	InMemory    bool         `json:"in_memory"`
	Output      store.Writer `json:"-"`
	OutputFile  string       `json:"output_file"`
	// AggFunc aggregates hit columns into event columns, see AggFuncs.
	AggFunc string `json:"agg_func"`
}

// Output is the loaded table of one file. Record is only set for the
// flat-frame format and must be released by the caller.
type Output struct {
	File   int64
	Format string
	Table  *model.Table
	Record arrow.Record
}

func (o *Output) Release() {
	if o.Record != nil {
		o.Record.Release()
		o.Record = nil
	}
}

// HitsPath is where the loaded table of a file is persisted.
func HitsPath(file int64) string {
	return fmt.Sprintf("file%d", file)
}

// Load materializes the output columns of q for every entry list. Nil entries
// are generated first, carrying the cut columns that are also output columns.
func (l *Loader) Load(ctx context.Context, q Query, entries []*EntryList, opts LoadOptions) ([]*Output, error) {
	if len(q.Columns) == 0 {
		return nil, fmt.Errorf("%w: output columns must be set before loading", ErrConfiguration)
	}
	if err := checkDestination(opts.InMemory, opts.Output, opts.OutputFile); err != nil {
		return nil, err
	}
	orientation := opts.Orientation
	if orientation == "" {
		orientation = OrientationHit
	}
	switch orientation {
	case OrientationHit:
	case OrientationEvt:
		if opts.TCMLevel == "" {
			tcms := l.conf.TCMLevels()
			if len(tcms) != 1 {
				return nil, fmt.Errorf("%w: %d TCM levels, one must be chosen for event orientation",
					ErrConfiguration, len(tcms))
			}
			opts.TCMLevel = tcms[0]
		}
		if _, err := parseAggFunc(opts.AggFunc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: orientation %q", ErrNotImplementedInput, orientation)
	}
	if q.MergeFiles {
		return nil, fmt.Errorf("%w: loading merged files", ErrUnsupportedOperation)
	}
	if entries == nil {
		var err error
		entries, err = l.GenerateEntries(ctx, q, GenerateOptions{
			TCMLevel:          opts.TCMLevel,
			TCMTable:          opts.TCMTable,
			SaveOutputColumns: true,
			InMemory:          true,
		})
		if err != nil {
			return nil, err
		}
	}

	outs, err := forEach(ctx, l.workers, entries, func(ctx context.Context, e *EntryList) (*Output, error) {
		tbl, err := l.loadHits(ctx, q, e)
		if err != nil {
			return nil, err
		}
		if orientation == OrientationEvt {
			if tbl, err = l.aggregateEvents(e, tbl, opts.AggFunc); err != nil {
				return nil, err
			}
		}
		out, err := l.convert(e.File, tbl, q.Format)
		if err != nil {
			return nil, err
		}
		if opts.Output != nil {
			if err := opts.Output.Write(ctx, out.Table, HitsPath(e.File), opts.OutputFile, store.Overwrite); err != nil {
				out.Release()
				return nil, fmt.Errorf("file %d: write output: %w", e.File, storeError(err))
			}
		}
		if !opts.InMemory {
			out.Release()
			return nil, nil
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	if !opts.InMemory {
		return nil, nil
	}
	return outs, nil
}

// convert turns the assembled table into the requested format. An unknown
// format falls back to the structured table.
func (l *Loader) convert(file int64, tbl *model.Table, format string) (*Output, error) {
	switch format {
	case FormatStructuredTable, "":
		return &Output{File: file, Format: FormatStructuredTable, Table: tbl}, nil
	case FormatFlatFrame:
		flat, err := flatten(tbl)
		if err != nil {
			return nil, err
		}
		rec, err := flat.ToRecord(memory.DefaultAllocator)
		if err != nil {
			return nil, err
		}
		return &Output{File: file, Format: FormatFlatFrame, Table: flat, Record: rec}, nil
	}
	l.logger.Warn("unknown output format, returning a structured table", "format", format)
	return &Output{File: file, Format: FormatStructuredTable, Table: tbl}, nil
}

// flatten splits waveform columns into {col}_t0, {col}_dt and {col}_values.
func flatten(tbl *model.Table) (*model.Table, error) {
	res := model.NewTable()
	for _, name := range tbl.Names() {
		col, _ := tbl.Get(name)
		w, ok := col.(*data_types.WaveformColumn)
		if !ok {
			if err := res.Set(name, col); err != nil {
				return nil, err
			}
			continue
		}
		valids := make([]bool, w.GetLength())
		rows := make([][]float32, w.GetLength())
		for i := range valids {
			valids[i] = w.IsValid(int64(i))
			rows[i] = w.Samples(int64(i))
		}
		t0, err := data_types.NewColumnWithValids(w.T0(), valids)
		if err != nil {
			return nil, err
		}
		dt, err := data_types.NewColumnWithValids(w.Dt(), valids)
		if err != nil {
			return nil, err
		}
		for _, part := range []struct {
			suffix string
			col    data_types.IColumn
		}{{"_t0", t0}, {"_dt", dt}, {"_values", data_types.NewVectorFromRows(rows)}} {
			if err := res.Set(name+part.suffix, part.col); err != nil {
				return nil, err
			}
		}
	}
	return res, nil
}
