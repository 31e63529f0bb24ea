package data_types

import (
	"testing"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

func TestExplodeCumulativeLength(t *testing.T) {
	res, err := ExplodeCumulativeLength([]int64{2, 2, 5})
	require.NoError(t, err)
	require.Equal(t, []int64{0, 0, 2, 2, 2}, res)

	res, err = ExplodeCumulativeLength(nil)
	require.NoError(t, err)
	require.Empty(t, res)

	_, err = ExplodeCumulativeLength([]int64{3, 1})
	require.Error(t, err)
}

func TestBuildCumulativeLength(t *testing.T) {
	require.Equal(t, []int64{2, 5}, BuildCumulativeLength([]int64{0, 0, 2, 2, 2}))
	require.Equal(t, []int64{1, 2, 3}, BuildCumulativeLength([]int64{4, 1, 4}))
	require.Empty(t, BuildCumulativeLength(nil))
}

func TestColumnTakeScatter(t *testing.T) {
	col := NewColumn([]float64{1, 2, 3})
	taken, err := col.Take([]int64{2, 2, 0})
	require.NoError(t, err)
	require.Equal(t, []float64{3, 3, 1}, taken.(*Column[float64]).Data())

	_, err = col.Take([]int64{3})
	require.Error(t, err)

	dst := col.MakeEmpty(5)
	require.False(t, dst.IsValid(0))
	require.NoError(t, dst.Scatter([]int64{4, 1}, NewColumn([]float64{7, 8})))
	require.Equal(t, float64(7), dst.GetVal(4))
	require.Equal(t, float64(8), dst.GetVal(1))
	require.Nil(t, dst.GetVal(0))

	require.Error(t, dst.Scatter([]int64{0}, NewColumn([]int64{1})))
}

func TestVectorColumn(t *testing.T) {
	vec, err := NewVectorColumn([]int64{2, 2, 5}, NewColumn([]int32{1, 2, 3, 4, 5}))
	require.NoError(t, err)
	require.Equal(t, int64(3), vec.GetLength())
	require.Equal(t, []int32{}, vec.Row(1))
	require.Equal(t, []int32{3, 4, 5}, vec.Row(2))

	taken, err := vec.Take([]int64{2, 0})
	require.NoError(t, err)
	require.Equal(t, []int64{3, 5}, taken.(*VectorColumn[int32]).CumulativeLength())

	first, err := taken.Take([]int64{0})
	require.NoError(t, err)
	dst := vec.MakeEmpty(3)
	require.NoError(t, dst.Scatter([]int64{1}, first))
	require.Equal(t, []int32{3, 4, 5}, dst.GetVal(1))
	require.Nil(t, dst.GetVal(0))

	_, err = NewVectorColumn([]int64{2, 1}, NewColumn([]int32{1, 2}))
	require.Error(t, err)
}

func TestWaveformColumn(t *testing.T) {
	wf, err := NewWaveformColumn([]float64{0, 10}, []float64{1, 2}, []float32{1, 2, 3, 4, 5, 6}, 3)
	require.NoError(t, err)
	require.Equal(t, []float32{4, 5, 6}, wf.Samples(1))

	dst := wf.MakeEmpty(3).(*WaveformColumn)
	require.NoError(t, dst.Scatter([]int64{2, 0}, wf))
	require.Equal(t, []float64{10, 0, 0}, dst.T0())
	require.Equal(t, []float32{4, 5, 6, 0, 0, 0, 1, 2, 3}, dst.Values())
	require.False(t, dst.IsValid(1))

	other, err := NewWaveformColumn([]float64{0}, []float64{1}, []float32{1, 2}, 2)
	require.NoError(t, err)
	require.Error(t, dst.Scatter([]int64{0}, other))

	_, err = NewWaveformColumn([]float64{0}, []float64{1}, []float32{1, 2}, 3)
	require.Error(t, err)
}

func roundTrip(t *testing.T, col IColumn) IColumn {
	b := array.NewBuilder(memory.DefaultAllocator, col.ArrowDataType())
	defer b.Release()
	require.NoError(t, col.WriteToBatch(b))
	arr := b.NewArray()
	defer arr.Release()
	res, err := FromArrow(arr)
	require.NoError(t, err)
	return res
}

func TestArrowRoundTrip(t *testing.T) {
	col, err := NewColumnWithValids([]string{"a", "", "c"}, []bool{true, false, true})
	require.NoError(t, err)
	res := roundTrip(t, col)
	require.Equal(t, "a", res.GetVal(0))
	require.Nil(t, res.GetVal(1))
	require.Equal(t, DATA_TYPE_NAME_STRING, res.GetTypeName())

	vec := NewVectorFromRows([][]uint16{{1, 2}, {}, {3}})
	res = roundTrip(t, vec)
	require.Equal(t, KindVector, res.Kind())
	require.Equal(t, []int64{2, 2, 3}, res.(*VectorColumn[uint16]).CumulativeLength())

	wf, err := NewWaveformColumn([]float64{1, 2}, []float64{4, 4}, []float32{1, 2, 3, 4}, 2)
	require.NoError(t, err)
	res = roundTrip(t, wf)
	require.Equal(t, KindWaveform, res.Kind())
	require.Equal(t, 2, res.(*WaveformColumn).Stride())
	require.Equal(t, []float32{3, 4}, res.GetVal(1))

	ragged, err := NewRaggedWaveformColumn([]float64{1, 2}, []float64{4, 4},
		NewVectorFromRows([][]float32{{1}, {2, 3, 4}}))
	require.NoError(t, err)
	res = roundTrip(t, ragged)
	require.Equal(t, KindRaggedWaveform, res.Kind())
	require.Equal(t, []float32{2, 3, 4}, res.GetVal(1))
}

func TestArrowSmallScalars(t *testing.T) {
	flags, err := NewColumnWithValids([]bool{true, false, true}, []bool{true, true, false})
	require.NoError(t, err)
	res := roundTrip(t, flags)
	require.Equal(t, DATA_TYPE_NAME_BOOL, res.GetTypeName())
	require.Equal(t, false, res.GetVal(1))
	require.Nil(t, res.GetVal(2))

	res = roundTrip(t, NewColumn([]int8{-3, 4}))
	require.Equal(t, []int8{-3, 4}, res.(*Column[int8]).Data())
	res = roundTrip(t, NewVectorFromRows([][]uint8{{1}, {2, 3}}))
	require.Equal(t, []uint8{2, 3}, res.GetVal(1))

	require.True(t, Supports(flags.ArrowDataType()))
	require.False(t, Supports(arrow.FixedWidthTypes.Date32))
	_, err = FromArrow(array.MakeArrayOfNull(memory.DefaultAllocator, arrow.FixedWidthTypes.Date32, 1))
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestRaggedWaveformRegular(t *testing.T) {
	even, err := NewRaggedWaveformColumn([]float64{1, 2}, []float64{4, 4},
		NewVectorFromRows([][]float32{{1, 2}, {3, 4}}))
	require.NoError(t, err)
	wf, ok := even.Regular()
	require.True(t, ok)
	require.Equal(t, 2, wf.Stride())
	require.Equal(t, []float32{1, 2, 3, 4}, wf.Values())
	require.Equal(t, []float64{1, 2}, wf.T0())

	uneven, err := NewRaggedWaveformColumn([]float64{1, 2}, []float64{4, 4},
		NewVectorFromRows([][]float32{{1}, {2, 3}}))
	require.NoError(t, err)
	_, ok = uneven.Regular()
	require.False(t, ok)
}

func TestAppend(t *testing.T) {
	a := NewVectorFromRows([][]int64{{1}, {2, 3}})
	require.NoError(t, a.Append(NewVectorFromRows([][]int64{{4, 5}})))
	require.Equal(t, []int64{1, 3, 5}, a.CumulativeLength())
	require.Equal(t, []int64{4, 5}, a.Row(2))

	c := NewColumn([]int64{1})
	c.AppendNulls(2)
	require.Equal(t, int64(3), c.GetLength())
	require.False(t, c.IsValid(2))
}
