package flow

import (
	"fmt"

	"github.com/metrico/tierflow/data_types"
	"github.com/metrico/tierflow/model"
)

// EntryList correlates the rows of one file that survived the cuts. In TCM
// mode each row pairs a parent row with a child row. Without a TCM only the
// parent side is set and Child is empty.
type EntryList struct {
	File        int64
	Parent      string
	Child       string
	ParentTable []string
	ParentIdx   []int64
	ChildTable  []string
	ChildIdx    []int64
	// Extra holds output columns captured while the cuts were evaluated.
	Extra *model.Table
}

func newEntryList(file int64, parent, child string) *EntryList {
	return &EntryList{File: file, Parent: parent, Child: child, Extra: model.NewTable()}
}

func (e *EntryList) TCM() bool {
	return e.Child != ""
}

func (e *EntryList) Len() int64 {
	return int64(len(e.ParentIdx))
}

func (e *EntryList) ParentTableCol() string { return e.Parent + "_table" }
func (e *EntryList) ParentIdxCol() string   { return e.Parent + "_idx" }
func (e *EntryList) ChildTableCol() string  { return e.Child + "_table" }
func (e *EntryList) ChildIdxCol() string    { return e.Child + "_idx" }

// side returns the table and row columns of a level of the list.
func (e *EntryList) side(level string) ([]string, []int64) {
	if e.TCM() && level == e.Child {
		return e.ChildTable, e.ChildIdx
	}
	return e.ParentTable, e.ParentIdx
}

// keep reduces the list to the given positions, in that order.
func (e *EntryList) keep(pos []int64) error {
	if int64(len(pos)) == e.Len() {
		return nil
	}
	e.ParentTable = gather(e.ParentTable, pos)
	e.ParentIdx = gather(e.ParentIdx, pos)
	if e.TCM() {
		e.ChildTable = gather(e.ChildTable, pos)
		e.ChildIdx = gather(e.ChildIdx, pos)
	}
	if e.Extra.NumCols() > 0 {
		extra, err := e.Extra.Take(pos)
		if err != nil {
			return err
		}
		e.Extra = extra
	}
	return nil
}

// setExtra writes values into column name at the given list positions,
// allocating the column on first use.
func (e *EntryList) setExtra(name string, pos []int64, values data_types.IColumn) error {
	col, ok := e.Extra.Get(name)
	if !ok {
		col = values.MakeEmpty(e.Len())
	}
	if err := col.Scatter(pos, values); err != nil {
		return fmt.Errorf("column %s: %w", name, err)
	}
	if ok {
		return nil
	}
	return e.Extra.Set(name, col)
}

// ToTable flattens the list into a table, index columns first.
func (e *EntryList) ToTable() (*model.Table, error) {
	res := model.NewTable()
	names := []string{e.ParentTableCol(), e.ParentIdxCol()}
	cols := []data_types.IColumn{data_types.NewColumn(e.ParentTable), data_types.NewColumn(e.ParentIdx)}
	if e.TCM() {
		names = append(names, e.ChildTableCol(), e.ChildIdxCol())
		cols = append(cols, data_types.NewColumn(e.ChildTable), data_types.NewColumn(e.ChildIdx))
	}
	for i, name := range names {
		if err := res.Set(name, cols[i]); err != nil {
			return nil, err
		}
	}
	for _, name := range e.Extra.Names() {
		col, _ := e.Extra.Get(name)
		if err := res.Set(name, col); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// EntryListFromTable reads back a list written with ToTable. An empty child
// reads a no-TCM list.
func EntryListFromTable(file int64, tbl *model.Table, parent, child string) (*EntryList, error) {
	e := newEntryList(file, parent, child)
	var err error
	if e.ParentTable, err = stringsOf(tbl, e.ParentTableCol()); err != nil {
		return nil, err
	}
	if e.ParentIdx, err = int64sOf(tbl, e.ParentIdxCol()); err != nil {
		return nil, err
	}
	index := map[string]bool{e.ParentTableCol(): true, e.ParentIdxCol(): true}
	if e.TCM() {
		if e.ChildTable, err = stringsOf(tbl, e.ChildTableCol()); err != nil {
			return nil, err
		}
		if e.ChildIdx, err = int64sOf(tbl, e.ChildIdxCol()); err != nil {
			return nil, err
		}
		index[e.ChildTableCol()] = true
		index[e.ChildIdxCol()] = true
	}
	for _, name := range tbl.Names() {
		if index[name] {
			continue
		}
		col, _ := tbl.Get(name)
		if err := e.Extra.Set(name, col); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func stringsOf(tbl *model.Table, name string) ([]string, error) {
	col, ok := tbl.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: entry list has no column %s", ErrConfiguration, name)
	}
	if c, ok := col.(*data_types.Column[string]); ok {
		return c.Data(), nil
	}
	res := make([]string, col.GetLength())
	for i := range res {
		res[i] = fmt.Sprint(col.GetVal(int64(i)))
	}
	return res, nil
}

func int64sOf(tbl *model.Table, name string) ([]int64, error) {
	col, ok := tbl.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: entry list has no column %s", ErrConfiguration, name)
	}
	return columnInt64s(col)
}

func columnInt64s(col data_types.IColumn) ([]int64, error) {
	if c, ok := col.(*data_types.Column[int64]); ok {
		return c.Data(), nil
	}
	if col.Kind() != data_types.KindScalar {
		return nil, fmt.Errorf("expected an integer column, got %s", col.Kind())
	}
	res := make([]int64, col.GetLength())
	for i := range res {
		v, ok := data_types.AsInt64(col.GetVal(int64(i)))
		if !ok {
			return nil, fmt.Errorf("row %d is not an integer", i)
		}
		res[i] = v
	}
	return res, nil
}

func gather[T any](data []T, pos []int64) []T {
	res := make([]T, len(pos))
	for i, p := range pos {
		res[i] = data[p]
	}
	return res
}
