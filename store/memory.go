package store

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"github.com/metrico/tierflow/model"
)

var _ Store = &MemStore{}

// MemStore keeps tables in memory, keyed by file and table path.
type MemStore struct {
	lock  sync.RWMutex
	files map[string]map[string]*model.Table
}

func NewMemStore() *MemStore {
	return &MemStore{files: map[string]map[string]*model.Table{}}
}

// Put stores obj as is, replacing any previous table at the same path.
func (m *MemStore) Put(file, tablePath string, obj *model.Table) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.files[file] == nil {
		m.files[file] = map[string]*model.Table{}
	}
	m.files[file][tablePath] = obj
}

func (m *MemStore) get(tablePath, file string) (*model.Table, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	tables, ok := m.files[file]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", file, fs.ErrNotExist)
	}
	tbl, ok := tables[tablePath]
	if !ok {
		return nil, fmt.Errorf("table %s in %s: %w", tablePath, file, fs.ErrNotExist)
	}
	return tbl, nil
}

func (m *MemStore) Read(ctx context.Context, tablePath, file string, rows []int64, fields []string) (*model.Table, error) {
	tbl, err := m.get(tablePath, file)
	if err != nil {
		return nil, err
	}
	if fields != nil {
		tbl = tbl.Select(fields)
	}
	if rows == nil {
		rows = allRows(tbl.NumRows())
	}
	return tbl.Take(rows)
}

func (m *MemStore) RowCount(ctx context.Context, tablePath, file string) (int64, error) {
	tbl, err := m.get(tablePath, file)
	if err != nil {
		return 0, err
	}
	return tbl.NumRows(), nil
}

func (m *MemStore) Exists(file string) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	_, ok := m.files[file]
	return ok
}

func (m *MemStore) Tables(ctx context.Context, file string) ([]string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	tables, ok := m.files[file]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", file, fs.ErrNotExist)
	}
	res := make([]string, 0, len(tables))
	for name := range tables {
		res = append(res, name)
	}
	sort.Strings(res)
	return res, nil
}

func (m *MemStore) Columns(ctx context.Context, tablePath, file string) ([]string, error) {
	tbl, err := m.get(tablePath, file)
	if err != nil {
		return nil, err
	}
	return tbl.Names(), nil
}

func (m *MemStore) Write(ctx context.Context, obj *model.Table, path, file string, mode WriteMode) error {
	if mode == Append {
		if prev, err := m.get(path, file); err == nil {
			copied, err := obj.Take(allRows(obj.NumRows()))
			if err != nil {
				return err
			}
			merged, err := prev.Take(allRows(prev.NumRows()))
			if err != nil {
				return err
			}
			if err := merged.Append(copied); err != nil {
				return err
			}
			obj = merged
		}
	}
	m.Put(file, path, obj)
	return nil
}

func allRows(n int64) []int64 {
	res := make([]int64, n)
	for i := range res {
		res[i] = int64(i)
	}
	return res
}
