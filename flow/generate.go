package flow

import (
	"context"
	"fmt"

	"github.com/metrico/tierflow/config"
	"github.com/metrico/tierflow/filedb"
	"github.com/metrico/tierflow/model"
	"github.com/metrico/tierflow/store"
)

type GenerateOptions struct {
	// TCMLevel joins the parent and child levels of this TCM level. Empty
	// generates single-level entries of the lowest level.
	TCMLevel string `json:"tcm_level"`
	// TCMTable picks the TCM table when a file holds several.
	TCMTable string `json:"tcm_table"`
	// SaveOutputColumns carries cut columns that are also output columns.
	SaveOutputColumns bool         `json:"save_output_columns"`
	InMemory          bool         `json:"in_memory"`
	Output            store.Writer `json:"-"`
	OutputFile        string       `json:"output_file"`
}

func checkDestination(inMemory bool, out store.Writer, outFile string) error {
	if out != nil && outFile == "" {
		return fmt.Errorf("%w: output destination has no file", ErrConfiguration)
	}
	if !inMemory && (out == nil || outFile == "") {
		return fmt.Errorf("%w: not in memory and no output destination given", ErrConfiguration)
	}
	return nil
}

// EntriesPath is where the entry list of a file is persisted.
func EntriesPath(file int64) string {
	return fmt.Sprintf("entries/%d", file)
}

// GenerateEntries applies the cuts of q and returns one entry list per
// selected file, in selection order. With InMemory unset the lists are only
// persisted and nil is returned.
func (l *Loader) GenerateEntries(ctx context.Context, q Query, opts GenerateOptions) ([]*EntryList, error) {
	if len(q.Files) == 0 {
		return nil, fmt.Errorf("%w: no files selected", ErrConfiguration)
	}
	if err := checkDestination(opts.InMemory, opts.Output, opts.OutputFile); err != nil {
		return nil, err
	}

	var gen func(ctx context.Context, rec *filedb.FileRecord) (*EntryList, error)
	if opts.TCMLevel == "" {
		level := l.conf.LowestLevel()
		cut, err := l.compileCut(q, level, opts.SaveOutputColumns, level.Name+"_table", level.Name+"_idx")
		if err != nil {
			return nil, err
		}
		gen = func(ctx context.Context, rec *filedb.FileRecord) (*EntryList, error) {
			return l.generateHitEntries(ctx, q, cut, rec)
		}
	} else {
		plan, err := l.newTCMPlan(q, opts)
		if err != nil {
			return nil, err
		}
		gen = func(ctx context.Context, rec *filedb.FileRecord) (*EntryList, error) {
			return l.generateTCMEntries(ctx, q, plan, rec)
		}
	}

	lists, err := forEach(ctx, l.workers, q.Files, func(ctx context.Context, file int64) (*EntryList, error) {
		rec, err := l.record(file)
		if err != nil {
			return nil, err
		}
		entries, err := gen(ctx, rec)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("entry list generated", "file", file, "rows", entries.Len())
		if opts.Output != nil {
			tbl, err := entries.ToTable()
			if err != nil {
				return nil, err
			}
			if err := opts.Output.Write(ctx, tbl, EntriesPath(file), opts.OutputFile, store.Overwrite); err != nil {
				return nil, fmt.Errorf("file %d: write entries: %w", file, storeError(err))
			}
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	if !opts.InMemory {
		return nil, nil
	}
	return lists, nil
}

func (l *Loader) generateTCMEntries(ctx context.Context, q Query, plan *tcmPlan, rec *filedb.FileRecord) (*EntryList, error) {
	entries, err := l.readTCM(ctx, plan, rec)
	if err != nil {
		return nil, err
	}
	for _, cut := range plan.cuts {
		if err := l.applyCut(ctx, q, rec, cut, entries); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// generateHitEntries lists the rows of the lowest level. Without a cut the
// rows are counted, not read.
func (l *Loader) generateHitEntries(ctx context.Context, q Query, cut *levelCut, rec *filedb.FileRecord) (*EntryList, error) {
	level := cut.level
	entries := newEntryList(rec.ID, level.Name, "")
	tables := l.tablesOfInterest(q, level, rec)
	if !cut.active() {
		return entries, l.countRows(ctx, level, rec, tables, entries)
	}

	type piece struct {
		start int64
		carry *model.Table
	}
	var pieces []piece
	for _, tb := range tables {
		tbl, err := l.readLevelTable(ctx, rec, level, tb, nil, cut.columns())
		if err != nil {
			return nil, err
		}
		if tbl == nil {
			return nil, cut.missingColumns(rec, tb)
		}
		mask, err := cut.eval(tbl)
		if err != nil {
			return nil, err
		}
		start := entries.Len()
		var rows []int64
		for i, ok := range mask {
			if ok {
				rows = append(rows, int64(i))
				entries.ParentTable = append(entries.ParentTable, tb)
				entries.ParentIdx = append(entries.ParentIdx, int64(i))
			}
		}
		if len(cut.carry) > 0 && len(rows) > 0 {
			carry, err := tbl.Select(cut.carry).Take(rows)
			if err != nil {
				return nil, err
			}
			pieces = append(pieces, piece{start: start, carry: carry})
		}
	}
	for _, p := range pieces {
		pos := make([]int64, p.carry.NumRows())
		for i := range pos {
			pos[i] = p.start + int64(i)
		}
		for _, name := range p.carry.Names() {
			col, _ := p.carry.Get(name)
			if err := entries.setExtra(name, pos, col); err != nil {
				return nil, err
			}
		}
	}
	return entries, nil
}

func (l *Loader) countRows(ctx context.Context, level *config.LevelConfig, rec *filedb.FileRecord,
	tables []string, entries *EntryList) error {
	tier := level.Tiers[0]
	path := l.tierPath(tier, rec)
	if !l.store.Exists(path) {
		l.logger.Warn("tier file is missing", "file", rec.ID, "tier", tier, "path", path)
		return nil
	}
	for _, tb := range tables {
		name, err := l.db.TableName(tier, tb)
		if err != nil {
			return err
		}
		n, err := l.store.RowCount(ctx, name, path)
		if err != nil {
			return fmt.Errorf("file %d: row count of %s: %w", rec.ID, name, storeError(err))
		}
		for i := int64(0); i < n; i++ {
			entries.ParentTable = append(entries.ParentTable, tb)
			entries.ParentIdx = append(entries.ParentIdx, i)
		}
	}
	return nil
}
