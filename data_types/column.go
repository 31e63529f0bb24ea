package data_types

import (
	"fmt"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"golang.org/x/exp/constraints"
)

// Scalar lists the element types a Column can hold.
type Scalar interface {
	constraints.Ordered | ~bool
}

var _ IColumn = &Column[int64]{}

// Column is a scalar-per-row column with a validity mask.
type Column[T Scalar] struct {
	data   []T
	valids []bool
}

func NewColumn[T Scalar](data []T) *Column[T] {
	valids := make([]bool, len(data))
	FastFillArray(valids, true)
	return &Column[T]{data: data, valids: valids}
}

func NewColumnWithValids[T Scalar](data []T, valids []bool) (*Column[T], error) {
	if len(valids) != len(data) {
		return nil, fmt.Errorf("valids length %d does not match data length %d", len(valids), len(data))
	}
	return &Column[T]{data: data, valids: valids}, nil
}

func (c *Column[T]) Data() []T {
	return c.data
}

func (c *Column[T]) Valids() []bool {
	return c.valids
}

func (c *Column[T]) Kind() Kind {
	return KindScalar
}

func (c *Column[T]) GetTypeName() string {
	var zero T
	return typeNameOf(zero)
}

func (c *Column[T]) GetLength() int64 {
	return int64(len(c.data))
}

func (c *Column[T]) GetVal(i int64) any {
	if !c.valids[i] {
		return nil
	}
	return c.data[i]
}

func (c *Column[T]) IsValid(i int64) bool {
	return c.valids[i]
}

func (c *Column[T]) Take(idx []int64) (IColumn, error) {
	if err := checkRange(idx, c.GetLength()); err != nil {
		return nil, err
	}
	res := &Column[T]{
		data:   make([]T, len(idx)),
		valids: make([]bool, len(idx)),
	}
	for k, i := range idx {
		res.data[k] = c.data[i]
		res.valids[k] = c.valids[i]
	}
	return res, nil
}

func (c *Column[T]) MakeEmpty(size int64) IColumn {
	return &Column[T]{
		data:   make([]T, size),
		valids: make([]bool, size),
	}
}

func (c *Column[T]) Scatter(pos []int64, src IColumn) error {
	_src, ok := src.(*Column[T])
	if !ok {
		return fmt.Errorf("cannot scatter %s into %s", src.GetTypeName(), c.GetTypeName())
	}
	if int64(len(pos)) != _src.GetLength() {
		return fmt.Errorf("scatter positions %d do not match source length %d", len(pos), _src.GetLength())
	}
	if err := checkRange(pos, c.GetLength()); err != nil {
		return err
	}
	for k, p := range pos {
		c.data[p] = _src.data[k]
		c.valids[p] = _src.valids[k]
	}
	return nil
}

func (c *Column[T]) Append(other IColumn) error {
	_other, ok := other.(*Column[T])
	if !ok {
		return fmt.Errorf("cannot append %s to %s", other.GetTypeName(), c.GetTypeName())
	}
	c.data = append(c.data, _other.data...)
	c.valids = append(c.valids, _other.valids...)
	return nil
}

func (c *Column[T]) AppendNulls(size int64) {
	c.data = append(c.data, make([]T, size)...)
	c.valids = append(c.valids, make([]bool, size)...)
}

func (c *Column[T]) ArrowDataType() arrow.DataType {
	var zero T
	return arrowTypeOf(zero)
}

func (c *Column[T]) WriteToBatch(batch array.Builder) error {
	return appendValues(batch, c.data, c.valids)
}
