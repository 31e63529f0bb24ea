package data_types

import (
	"fmt"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
)

var _ IColumn = &WaveformColumn{}
var _ IColumn = &RaggedWaveformColumn{}

// WaveformColumn holds one fixed-length waveform per row: a time offset, a
// sample spacing and stride samples stored row-major.
type WaveformColumn struct {
	t0     []float64
	dt     []float64
	values []float32
	stride int
	valids []bool
}

func NewWaveformColumn(t0, dt []float64, values []float32, stride int) (*WaveformColumn, error) {
	if len(t0) != len(dt) {
		return nil, fmt.Errorf("t0 length %d does not match dt length %d", len(t0), len(dt))
	}
	if stride < 0 || len(values) != len(t0)*stride {
		return nil, fmt.Errorf("waveform values length %d is not %d rows x %d samples", len(values), len(t0), stride)
	}
	valids := make([]bool, len(t0))
	FastFillArray(valids, true)
	return &WaveformColumn{t0: t0, dt: dt, values: values, stride: stride, valids: valids}, nil
}

func (w *WaveformColumn) T0() []float64 {
	return w.t0
}

func (w *WaveformColumn) Dt() []float64 {
	return w.dt
}

func (w *WaveformColumn) Values() []float32 {
	return w.values
}

func (w *WaveformColumn) Stride() int {
	return w.stride
}

func (w *WaveformColumn) Samples(i int64) []float32 {
	s := int64(w.stride)
	return w.values[i*s : (i+1)*s]
}

func (w *WaveformColumn) Kind() Kind {
	return KindWaveform
}

func (w *WaveformColumn) GetTypeName() string {
	return DATA_TYPE_NAME_WAVEFORM
}

func (w *WaveformColumn) GetLength() int64 {
	return int64(len(w.t0))
}

func (w *WaveformColumn) GetVal(i int64) any {
	if !w.valids[i] {
		return nil
	}
	return w.Samples(i)
}

func (w *WaveformColumn) IsValid(i int64) bool {
	return w.valids[i]
}

func (w *WaveformColumn) Take(idx []int64) (IColumn, error) {
	if err := checkRange(idx, w.GetLength()); err != nil {
		return nil, err
	}
	res := w.MakeEmpty(int64(len(idx))).(*WaveformColumn)
	for k, i := range idx {
		res.t0[k] = w.t0[i]
		res.dt[k] = w.dt[i]
		copy(res.Samples(int64(k)), w.Samples(i))
		res.valids[k] = w.valids[i]
	}
	return res, nil
}

func (w *WaveformColumn) MakeEmpty(size int64) IColumn {
	return &WaveformColumn{
		t0:     make([]float64, size),
		dt:     make([]float64, size),
		values: make([]float32, size*int64(w.stride)),
		stride: w.stride,
		valids: make([]bool, size),
	}
}

func (w *WaveformColumn) Scatter(pos []int64, src IColumn) error {
	_src, ok := src.(*WaveformColumn)
	if !ok {
		return fmt.Errorf("cannot scatter %s into %s", src.GetTypeName(), w.GetTypeName())
	}
	if _src.stride != w.stride {
		return fmt.Errorf("waveform length %d does not match %d", _src.stride, w.stride)
	}
	if int64(len(pos)) != _src.GetLength() {
		return fmt.Errorf("scatter positions %d do not match source length %d", len(pos), _src.GetLength())
	}
	if err := checkRange(pos, w.GetLength()); err != nil {
		return err
	}
	for k, p := range pos {
		w.t0[p] = _src.t0[k]
		w.dt[p] = _src.dt[k]
		copy(w.Samples(p), _src.Samples(int64(k)))
		w.valids[p] = _src.valids[k]
	}
	return nil
}

func (w *WaveformColumn) Append(other IColumn) error {
	_other, ok := other.(*WaveformColumn)
	if !ok {
		return fmt.Errorf("cannot append %s to %s", other.GetTypeName(), w.GetTypeName())
	}
	if w.GetLength() == 0 {
		w.stride = _other.stride
	}
	if _other.stride != w.stride {
		return fmt.Errorf("waveform length %d does not match %d", _other.stride, w.stride)
	}
	w.t0 = append(w.t0, _other.t0...)
	w.dt = append(w.dt, _other.dt...)
	w.values = append(w.values, _other.values...)
	w.valids = append(w.valids, _other.valids...)
	return nil
}

func (w *WaveformColumn) ArrowDataType() arrow.DataType {
	return arrow.StructOf(
		arrow.Field{Name: "t0", Type: arrow.PrimitiveTypes.Float64},
		arrow.Field{Name: "dt", Type: arrow.PrimitiveTypes.Float64},
		arrow.Field{Name: "values", Type: arrow.FixedSizeListOf(int32(w.stride), arrow.PrimitiveTypes.Float32)},
	)
}

// WriteToBatch writes invalid rows as zeroed waveforms so that the struct
// children stay aligned.
func (w *WaveformColumn) WriteToBatch(batch array.Builder) error {
	sb, ok := batch.(*array.StructBuilder)
	if !ok {
		return fmt.Errorf("builder %T does not accept %s", batch, w.GetTypeName())
	}
	t0b := sb.FieldBuilder(0).(*array.Float64Builder)
	dtb := sb.FieldBuilder(1).(*array.Float64Builder)
	vb := sb.FieldBuilder(2).(*array.FixedSizeListBuilder)
	samples := vb.ValueBuilder().(*array.Float32Builder)
	for i := range w.t0 {
		sb.Append(true)
		t0b.Append(w.t0[i])
		dtb.Append(w.dt[i])
		vb.Append(true)
		samples.AppendValues(w.Samples(int64(i)), nil)
	}
	return nil
}

// RaggedWaveformColumn holds waveforms of varying length. It can be stored and
// read but the loaders do not materialize it.
type RaggedWaveformColumn struct {
	t0     []float64
	dt     []float64
	values *VectorColumn[float32]
}

func NewRaggedWaveformColumn(t0, dt []float64, values *VectorColumn[float32]) (*RaggedWaveformColumn, error) {
	if len(t0) != len(dt) || int64(len(t0)) != values.GetLength() {
		return nil, fmt.Errorf("ragged waveform parts have different lengths")
	}
	return &RaggedWaveformColumn{t0: t0, dt: dt, values: values}, nil
}

// Regular returns the column as a WaveformColumn when every valid row holds the
// same number of samples. Invalid rows become zeroed waveforms.
func (r *RaggedWaveformColumn) Regular() (*WaveformColumn, bool) {
	n := r.GetLength()
	stride := -1
	for i := int64(0); i < n; i++ {
		if !r.values.IsValid(i) {
			continue
		}
		l := len(r.values.Row(i))
		if stride >= 0 && l != stride {
			return nil, false
		}
		stride = l
	}
	if stride < 0 {
		return nil, false
	}
	res := &WaveformColumn{
		t0:     append([]float64(nil), r.t0...),
		dt:     append([]float64(nil), r.dt...),
		values: make([]float32, 0, int(n)*stride),
		stride: stride,
		valids: make([]bool, n),
	}
	for i := int64(0); i < n; i++ {
		if !r.values.IsValid(i) {
			res.values = append(res.values, make([]float32, stride)...)
			continue
		}
		res.values = append(res.values, r.values.Row(i)...)
		res.valids[i] = true
	}
	return res, true
}

func (r *RaggedWaveformColumn) Kind() Kind {
	return KindRaggedWaveform
}

func (r *RaggedWaveformColumn) GetTypeName() string {
	return DATA_TYPE_NAME_RAGGED_WAVEFORM
}

func (r *RaggedWaveformColumn) GetLength() int64 {
	return int64(len(r.t0))
}

func (r *RaggedWaveformColumn) GetVal(i int64) any {
	return r.values.GetVal(i)
}

func (r *RaggedWaveformColumn) IsValid(i int64) bool {
	return r.values.IsValid(i)
}

func (r *RaggedWaveformColumn) Take(idx []int64) (IColumn, error) {
	values, err := r.values.Take(idx)
	if err != nil {
		return nil, err
	}
	res := &RaggedWaveformColumn{
		t0:     make([]float64, len(idx)),
		dt:     make([]float64, len(idx)),
		values: values.(*VectorColumn[float32]),
	}
	for k, i := range idx {
		res.t0[k] = r.t0[i]
		res.dt[k] = r.dt[i]
	}
	return res, nil
}

func (r *RaggedWaveformColumn) MakeEmpty(size int64) IColumn {
	return &RaggedWaveformColumn{
		t0:     make([]float64, size),
		dt:     make([]float64, size),
		values: r.values.MakeEmpty(size).(*VectorColumn[float32]),
	}
}

func (r *RaggedWaveformColumn) Scatter(pos []int64, src IColumn) error {
	_src, ok := src.(*RaggedWaveformColumn)
	if !ok {
		return fmt.Errorf("cannot scatter %s into %s", src.GetTypeName(), r.GetTypeName())
	}
	if err := r.values.Scatter(pos, _src.values); err != nil {
		return err
	}
	for k, p := range pos {
		r.t0[p] = _src.t0[k]
		r.dt[p] = _src.dt[k]
	}
	return nil
}

func (r *RaggedWaveformColumn) Append(other IColumn) error {
	_other, ok := other.(*RaggedWaveformColumn)
	if !ok {
		return fmt.Errorf("cannot append %s to %s", other.GetTypeName(), r.GetTypeName())
	}
	r.t0 = append(r.t0, _other.t0...)
	r.dt = append(r.dt, _other.dt...)
	return r.values.Append(_other.values)
}

func (r *RaggedWaveformColumn) ArrowDataType() arrow.DataType {
	return arrow.StructOf(
		arrow.Field{Name: "t0", Type: arrow.PrimitiveTypes.Float64},
		arrow.Field{Name: "dt", Type: arrow.PrimitiveTypes.Float64},
		arrow.Field{Name: "values", Type: arrow.ListOf(arrow.PrimitiveTypes.Float32)},
	)
}

func (r *RaggedWaveformColumn) WriteToBatch(batch array.Builder) error {
	sb, ok := batch.(*array.StructBuilder)
	if !ok {
		return fmt.Errorf("builder %T does not accept %s", batch, r.GetTypeName())
	}
	t0b := sb.FieldBuilder(0).(*array.Float64Builder)
	dtb := sb.FieldBuilder(1).(*array.Float64Builder)
	for i := range r.t0 {
		sb.Append(true)
		t0b.Append(r.t0[i])
		dtb.Append(r.dt[i])
	}
	return r.values.WriteToBatch(sb.FieldBuilder(2))
}

func float64Values(arr arrow.Array) ([]float64, error) {
	res := make([]float64, arr.Len())
	switch a := arr.(type) {
	case *array.Float64:
		copy(res, a.Float64Values())
	case *array.Float32:
		for i, v := range a.Float32Values() {
			res[i] = float64(v)
		}
	case *array.Int64:
		for i, v := range a.Int64Values() {
			res[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("%w: waveform time of %s", ErrUnsupportedType, arr.DataType())
	}
	return res, nil
}

func waveformFromArrow(a *array.Struct) (IColumn, error) {
	st := a.DataType().(*arrow.StructType)
	i0, ok0 := st.FieldIdx("t0")
	idt, okDt := st.FieldIdx("dt")
	iv, okV := st.FieldIdx("values")
	if !ok0 || !okDt || !okV {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, st)
	}
	t0, err := float64Values(a.Field(i0))
	if err != nil {
		return nil, err
	}
	dt, err := float64Values(a.Field(idt))
	if err != nil {
		return nil, err
	}
	switch vals := a.Field(iv).(type) {
	case *array.FixedSizeList:
		stride := int64(vals.DataType().(*arrow.FixedSizeListType).Len())
		off := int64(vals.Data().Offset())
		child := array.NewSlice(vals.ListValues(), off*stride, (off+int64(vals.Len()))*stride)
		defer child.Release()
		samples, err := float32Values(child)
		if err != nil {
			return nil, err
		}
		res, err := NewWaveformColumn(t0, dt, samples, int(stride))
		if err != nil {
			return nil, err
		}
		res.valids = validsOf(a)
		return res, nil
	case *array.List:
		offsets := vals.Offsets()
		n := vals.Len()
		base := int64(offsets[0])
		child := array.NewSlice(vals.ListValues(), base, int64(offsets[n]))
		defer child.Release()
		samples, err := float32Values(child)
		if err != nil {
			return nil, err
		}
		cl := make([]int64, n)
		for i := 0; i < n; i++ {
			cl[i] = int64(offsets[i+1]) - base
		}
		values, err := NewVectorColumn(cl, NewColumn(samples))
		if err != nil {
			return nil, err
		}
		return NewRaggedWaveformColumn(t0, dt, values)
	}
	return nil, fmt.Errorf("%w: waveform values of %s", ErrUnsupportedType, a.Field(iv).DataType())
}
