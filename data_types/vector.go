package data_types

import (
	"fmt"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
)

var _ IVector = &VectorColumn[int64]{}

// IVector is the element-type independent view of a VectorColumn.
type IVector interface {
	IColumn
	CumulativeLength() []int64
	FlatColumn() IColumn
}

// VectorColumn is a ragged vector-of-vectors stored as cumulative lengths over
// one flattened scalar column.
type VectorColumn[T Scalar] struct {
	cl     []int64
	flat   *Column[T]
	valids []bool
}

func NewVectorColumn[T Scalar](cl []int64, flat *Column[T]) (*VectorColumn[T], error) {
	var prev int64
	for i, c := range cl {
		if c < prev {
			return nil, fmt.Errorf("cumulative length decreases at row %d", i)
		}
		prev = c
	}
	if prev != flat.GetLength() {
		return nil, fmt.Errorf("cumulative length %d does not match flattened length %d", prev, flat.GetLength())
	}
	valids := make([]bool, len(cl))
	FastFillArray(valids, true)
	return &VectorColumn[T]{cl: cl, flat: flat, valids: valids}, nil
}

func NewVectorFromRows[T Scalar](rows [][]T) *VectorColumn[T] {
	res := &VectorColumn[T]{
		cl:     make([]int64, len(rows)),
		flat:   NewColumn([]T{}),
		valids: make([]bool, len(rows)),
	}
	var total int64
	for i, row := range rows {
		total += int64(len(row))
		res.cl[i] = total
		res.flat.data = append(res.flat.data, row...)
		res.valids[i] = true
	}
	res.flat.valids = make([]bool, len(res.flat.data))
	FastFillArray(res.flat.valids, true)
	return res
}

func (v *VectorColumn[T]) CumulativeLength() []int64 {
	return v.cl
}

func (v *VectorColumn[T]) Flat() *Column[T] {
	return v.flat
}

func (v *VectorColumn[T]) FlatColumn() IColumn {
	return v.flat
}

func (v *VectorColumn[T]) start(i int64) int64 {
	if i == 0 {
		return 0
	}
	return v.cl[i-1]
}

func (v *VectorColumn[T]) Row(i int64) []T {
	return v.flat.data[v.start(i):v.cl[i]]
}

func (v *VectorColumn[T]) rows() [][]T {
	res := make([][]T, len(v.cl))
	for i := range res {
		res[i] = v.Row(int64(i))
	}
	return res
}

func (v *VectorColumn[T]) Kind() Kind {
	return KindVector
}

func (v *VectorColumn[T]) GetTypeName() string {
	return "LIST<" + v.flat.GetTypeName() + ">"
}

func (v *VectorColumn[T]) GetLength() int64 {
	return int64(len(v.cl))
}

func (v *VectorColumn[T]) GetVal(i int64) any {
	if !v.valids[i] {
		return nil
	}
	return v.Row(i)
}

func (v *VectorColumn[T]) IsValid(i int64) bool {
	return v.valids[i]
}

func (v *VectorColumn[T]) Take(idx []int64) (IColumn, error) {
	if err := checkRange(idx, v.GetLength()); err != nil {
		return nil, err
	}
	rows := make([][]T, len(idx))
	valids := make([]bool, len(idx))
	for k, i := range idx {
		rows[k] = v.Row(i)
		valids[k] = v.valids[i]
	}
	res := NewVectorFromRows(rows)
	res.valids = valids
	return res, nil
}

func (v *VectorColumn[T]) MakeEmpty(size int64) IColumn {
	return &VectorColumn[T]{
		cl:     make([]int64, size),
		flat:   NewColumn([]T{}),
		valids: make([]bool, size),
	}
}

func (v *VectorColumn[T]) Scatter(pos []int64, src IColumn) error {
	_src, ok := src.(*VectorColumn[T])
	if !ok {
		return fmt.Errorf("cannot scatter %s into %s", src.GetTypeName(), v.GetTypeName())
	}
	if int64(len(pos)) != _src.GetLength() {
		return fmt.Errorf("scatter positions %d do not match source length %d", len(pos), _src.GetLength())
	}
	if err := checkRange(pos, v.GetLength()); err != nil {
		return err
	}
	rows := v.rows()
	valids := append([]bool(nil), v.valids...)
	for k, p := range pos {
		rows[p] = _src.Row(int64(k))
		valids[p] = _src.valids[k]
	}
	*v = *NewVectorFromRows(rows)
	v.valids = valids
	return nil
}

func (v *VectorColumn[T]) Append(other IColumn) error {
	_other, ok := other.(*VectorColumn[T])
	if !ok {
		return fmt.Errorf("cannot append %s to %s", other.GetTypeName(), v.GetTypeName())
	}
	base := v.flat.GetLength()
	for _, c := range _other.cl {
		v.cl = append(v.cl, base+c)
	}
	v.valids = append(v.valids, _other.valids...)
	return v.flat.Append(_other.flat)
}

func (v *VectorColumn[T]) ArrowDataType() arrow.DataType {
	return arrow.ListOf(v.flat.ArrowDataType())
}

func (v *VectorColumn[T]) WriteToBatch(batch array.Builder) error {
	lb, ok := batch.(*array.ListBuilder)
	if !ok {
		return fmt.Errorf("builder %T does not accept %s", batch, v.GetTypeName())
	}
	for i := range v.cl {
		if !v.valids[i] {
			lb.AppendNull()
			continue
		}
		lb.Append(true)
		if err := appendValues(lb.ValueBuilder(), v.Row(int64(i)), nil); err != nil {
			return err
		}
	}
	return nil
}

func vectorFromArrow(a *array.List) (IColumn, error) {
	off := a.Offsets()
	n := a.Len()
	base, end := int64(off[0]), int64(off[n])
	sliced := array.NewSlice(a.ListValues(), base, end)
	defer sliced.Release()
	flat, err := FromArrow(sliced)
	if err != nil {
		return nil, err
	}
	cl := make([]int64, n)
	for i := 0; i < n; i++ {
		cl[i] = int64(off[i+1]) - base
	}
	return wrapVector(cl, flat, validsOf(a))
}

func newVector[T Scalar](cl []int64, flat *Column[T], valids []bool) (IColumn, error) {
	res, err := NewVectorColumn(cl, flat)
	if err != nil {
		return nil, err
	}
	res.valids = valids
	return res, nil
}

// NewVectorFromFlat builds a fully valid vector column over any scalar column.
func NewVectorFromFlat(cl []int64, flat IColumn) (IVector, error) {
	valids := make([]bool, len(cl))
	FastFillArray(valids, true)
	res, err := wrapVector(cl, flat, valids)
	if err != nil {
		return nil, err
	}
	return res.(IVector), nil
}

func wrapVector(cl []int64, flat IColumn, valids []bool) (IColumn, error) {
	switch f := flat.(type) {
	case *Column[bool]:
		return newVector(cl, f, valids)
	case *Column[int8]:
		return newVector(cl, f, valids)
	case *Column[uint8]:
		return newVector(cl, f, valids)
	case *Column[int16]:
		return newVector(cl, f, valids)
	case *Column[int32]:
		return newVector(cl, f, valids)
	case *Column[int64]:
		return newVector(cl, f, valids)
	case *Column[uint16]:
		return newVector(cl, f, valids)
	case *Column[uint32]:
		return newVector(cl, f, valids)
	case *Column[uint64]:
		return newVector(cl, f, valids)
	case *Column[float32]:
		return newVector(cl, f, valids)
	case *Column[float64]:
		return newVector(cl, f, valids)
	case *Column[string]:
		return newVector(cl, f, valids)
	}
	return nil, fmt.Errorf("%w: vector of %s", ErrUnsupportedType, flat.GetTypeName())
}

// ExplodeCumulativeLength decodes cumulative lengths into the owning row of
// every flattened element: [2,2,5] -> [0,0,2,2,2].
func ExplodeCumulativeLength(cl []int64) ([]int64, error) {
	if len(cl) == 0 {
		return []int64{}, nil
	}
	if cl[len(cl)-1] < 0 {
		return nil, fmt.Errorf("negative cumulative length")
	}
	res := make([]int64, 0, cl[len(cl)-1])
	var start int64
	for j, end := range cl {
		if end < start {
			return nil, fmt.Errorf("cumulative length decreases at row %d", j)
		}
		for i := start; i < end; i++ {
			res = append(res, int64(j))
		}
		start = end
	}
	return res, nil
}

// BuildCumulativeLength run-length encodes consecutive equal values:
// [0,0,2,2,2] -> [2,5].
func BuildCumulativeLength(values []int64) []int64 {
	var res []int64
	for i := range values {
		if i > 0 && values[i] != values[i-1] {
			res = append(res, int64(i))
		}
	}
	if len(values) > 0 {
		res = append(res, int64(len(values)))
	}
	return res
}
