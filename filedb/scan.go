package filedb

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/metrico/tierflow/store"
)

// ScanFiles walks the directory of the first tier and indexes every entry
// whose path below it matches the tier's file_format.
func (db *FileDB) ScanFiles(dataDir string) error {
	if dataDir == "" {
		dataDir = db.Config.DataDir
	}
	tier := db.Config.Tiers[0]
	root := filepath.Join(dataDir, db.Config.TierDirs[tier])
	tpl := db.fileTpls[tier]
	var found []map[string]string
	err := filepath.WalkDir(root, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if name == root {
			return nil
		}
		rel, err := filepath.Rel(root, name)
		if err != nil {
			return err
		}
		fields, ok := tpl.Parse(filepath.ToSlash(rel))
		if !ok {
			return nil
		}
		found = append(found, fields)
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", root, err)
	}
	for _, fields := range found {
		if _, err := db.AddFile(fields); err != nil {
			return err
		}
	}
	slog.Info("file scan done", "tier", tier, "files", len(found))
	return nil
}

// ScanTables fills the table inventory and column sets of every tier file that
// exists in the store.
func (db *FileDB) ScanTables(ctx context.Context, st store.Reader, dataDir string) error {
	for _, rec := range db.Records {
		for i, tier := range db.Config.Tiers {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := db.Path(dataDir, tier, rec)
			if !st.Exists(path) {
				continue
			}
			rec.Status |= 1 << i
			tables, err := st.Tables(ctx, path)
			if err != nil {
				return fmt.Errorf("file %d tier %s: %w", rec.ID, tier, err)
			}
			allowed := db.allowedTables(tier)
			e := rec.Tier(tier)
			e.Tables, e.ColIdx = e.Tables[:0], e.ColIdx[:0]
			for _, tablePath := range tables {
				id, ok := db.TableID(tier, tablePath)
				if !ok || (allowed != nil && !allowed[id]) {
					continue
				}
				cols, err := st.Columns(ctx, tablePath, path)
				if err != nil {
					return fmt.Errorf("file %d table %s: %w", rec.ID, tablePath, err)
				}
				e.Tables = append(e.Tables, id)
				e.ColIdx = append(e.ColIdx, db.AddColumns(cols))
			}
			rec.Tiers[tier] = e
		}
	}
	return nil
}

func (db *FileDB) allowedTables(tier string) map[string]bool {
	tables, ok := db.Config.Tables[tier]
	if !ok || len(tables) == 0 {
		return nil
	}
	res := make(map[string]bool, len(tables))
	for _, tb := range tables {
		res[db.NormalizeTable(tier, tb)] = true
	}
	return res
}
