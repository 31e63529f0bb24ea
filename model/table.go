package model

import (
	"fmt"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/metrico/tierflow/data_types"
)

// Table is an ordered set of equally long named columns.
type Table struct {
	names []string
	cols  map[string]data_types.IColumn
	rows  int64
}

func NewTable() *Table {
	return &Table{cols: map[string]data_types.IColumn{}}
}

// Set adds or replaces a column. All columns of a table must have the same length.
func (t *Table) Set(name string, col data_types.IColumn) error {
	if _, ok := t.cols[name]; !ok {
		if len(t.names) > 0 && col.GetLength() != t.rows {
			return fmt.Errorf("column %s has %d rows, table has %d", name, col.GetLength(), t.rows)
		}
		t.names = append(t.names, name)
	} else if len(t.names) > 1 && col.GetLength() != t.rows {
		return fmt.Errorf("column %s has %d rows, table has %d", name, col.GetLength(), t.rows)
	}
	t.cols[name] = col
	t.rows = col.GetLength()
	return nil
}

func (t *Table) Get(name string) (data_types.IColumn, bool) {
	col, ok := t.cols[name]
	return col, ok
}

func (t *Table) Has(name string) bool {
	_, ok := t.cols[name]
	return ok
}

func (t *Table) Names() []string {
	return append([]string(nil), t.names...)
}

func (t *Table) NumRows() int64 {
	return t.rows
}

func (t *Table) NumCols() int {
	return len(t.names)
}

func (t *Table) Remove(name string) {
	if _, ok := t.cols[name]; !ok {
		return
	}
	delete(t.cols, name)
	for i, n := range t.names {
		if n == name {
			t.names = append(t.names[:i:i], t.names[i+1:]...)
			break
		}
	}
	if len(t.names) == 0 {
		t.rows = 0
	}
}

func (t *Table) Rename(from, to string) error {
	col, ok := t.cols[from]
	if !ok {
		return fmt.Errorf("column %s not found", from)
	}
	if _, ok := t.cols[to]; ok && from != to {
		return fmt.Errorf("column %s already exists", to)
	}
	delete(t.cols, from)
	t.cols[to] = col
	for i, n := range t.names {
		if n == from {
			t.names[i] = to
		}
	}
	return nil
}

// Take gathers the same rows from every column.
func (t *Table) Take(idx []int64) (*Table, error) {
	res := NewTable()
	for _, name := range t.names {
		col, err := t.cols[name].Take(idx)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		if err := res.Set(name, col); err != nil {
			return nil, err
		}
	}
	if len(t.names) == 0 {
		res.rows = int64(len(idx))
	}
	return res, nil
}

// Select returns a view holding only the named columns that exist.
func (t *Table) Select(names []string) *Table {
	res := NewTable()
	for _, name := range names {
		if col, ok := t.cols[name]; ok && !res.Has(name) {
			res.names = append(res.names, name)
			res.cols[name] = col
			res.rows = col.GetLength()
		}
	}
	return res
}

// Join adds the columns of other that t does not have yet.
func (t *Table) Join(other *Table) error {
	for _, name := range other.names {
		if t.Has(name) {
			continue
		}
		if err := t.Set(name, other.cols[name]); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) Schema() *arrow.Schema {
	fields := make([]arrow.Field, len(t.names))
	for i, name := range t.names {
		fields[i] = arrow.Field{Name: name, Type: t.cols[name].ArrowDataType(), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func (t *Table) ToRecord(mem memory.Allocator) (arrow.Record, error) {
	rb := array.NewRecordBuilder(mem, t.Schema())
	defer rb.Release()
	for i, name := range t.names {
		if err := t.cols[name].WriteToBatch(rb.Field(i)); err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
	}
	return rb.NewRecord(), nil
}

func FromRecord(rec arrow.Record) (*Table, error) {
	res := NewTable()
	for i, f := range rec.Schema().Fields() {
		col, err := data_types.FromArrow(rec.Column(i))
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", f.Name, err)
		}
		if err := res.Set(f.Name, col); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Append adds the rows of other. Both tables must have the same columns.
func (t *Table) Append(other *Table) error {
	if len(t.names) == 0 {
		for _, name := range other.names {
			t.names = append(t.names, name)
			t.cols[name] = other.cols[name]
		}
		t.rows = other.rows
		return nil
	}
	if len(other.names) != len(t.names) {
		return fmt.Errorf("cannot append table with %d columns to table with %d", len(other.names), len(t.names))
	}
	for _, name := range t.names {
		col, ok := other.cols[name]
		if !ok {
			return fmt.Errorf("column %s missing in appended table", name)
		}
		if err := t.cols[name].Append(col); err != nil {
			return fmt.Errorf("column %s: %w", name, err)
		}
	}
	t.rows += other.rows
	return nil
}
