package data_types

import (
	"fmt"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
)

func typeNameOf(v any) string {
	switch v.(type) {
	case bool:
		return DATA_TYPE_NAME_BOOL
	case int8:
		return DATA_TYPE_NAME_INT8
	case uint8:
		return DATA_TYPE_NAME_UINT8
	case int16:
		return DATA_TYPE_NAME_INT16
	case int32:
		return DATA_TYPE_NAME_INT32
	case int64:
		return DATA_TYPE_NAME_INT64
	case uint16:
		return DATA_TYPE_NAME_UINT16
	case uint32:
		return DATA_TYPE_NAME_UINT32
	case uint64:
		return DATA_TYPE_NAME_UINT64
	case float32:
		return DATA_TYPE_NAME_FLOAT32
	case float64:
		return DATA_TYPE_NAME_FLOAT64
	case string:
		return DATA_TYPE_NAME_STRING
	}
	return DATA_TYPE_NAME_UNKNOWN
}

func arrowTypeOf(v any) arrow.DataType {
	switch v.(type) {
	case bool:
		return arrow.FixedWidthTypes.Boolean
	case int8:
		return arrow.PrimitiveTypes.Int8
	case uint8:
		return arrow.PrimitiveTypes.Uint8
	case int16:
		return arrow.PrimitiveTypes.Int16
	case int32:
		return arrow.PrimitiveTypes.Int32
	case int64:
		return arrow.PrimitiveTypes.Int64
	case uint16:
		return arrow.PrimitiveTypes.Uint16
	case uint32:
		return arrow.PrimitiveTypes.Uint32
	case uint64:
		return arrow.PrimitiveTypes.Uint64
	case float32:
		return arrow.PrimitiveTypes.Float32
	case float64:
		return arrow.PrimitiveTypes.Float64
	case string:
		return arrow.BinaryTypes.String
	}
	return nil
}

type valuesAppender[T any] interface {
	AppendValues(v []T, valid []bool)
}

func appendTo[B valuesAppender[T], T any](batch array.Builder, data []T, valids []bool) error {
	b, ok := batch.(B)
	if !ok {
		return fmt.Errorf("builder %T does not accept %T", batch, data)
	}
	b.AppendValues(data, valids)
	return nil
}

func appendValues(batch array.Builder, data any, valids []bool) error {
	switch data := data.(type) {
	case []bool:
		return appendTo[*array.BooleanBuilder](batch, data, valids)
	case []int8:
		return appendTo[*array.Int8Builder](batch, data, valids)
	case []uint8:
		return appendTo[*array.Uint8Builder](batch, data, valids)
	case []int16:
		return appendTo[*array.Int16Builder](batch, data, valids)
	case []int32:
		return appendTo[*array.Int32Builder](batch, data, valids)
	case []int64:
		return appendTo[*array.Int64Builder](batch, data, valids)
	case []uint16:
		return appendTo[*array.Uint16Builder](batch, data, valids)
	case []uint32:
		return appendTo[*array.Uint32Builder](batch, data, valids)
	case []uint64:
		return appendTo[*array.Uint64Builder](batch, data, valids)
	case []float32:
		return appendTo[*array.Float32Builder](batch, data, valids)
	case []float64:
		return appendTo[*array.Float64Builder](batch, data, valids)
	case []string:
		return appendTo[*array.StringBuilder](batch, data, valids)
	}
	return fmt.Errorf("unsupported data type: %T", data)
}

func validsOf(arr arrow.Array) []bool {
	res := make([]bool, arr.Len())
	for i := range res {
		res[i] = arr.IsValid(i)
	}
	return res
}

func fromPrimitive[T Scalar](arr arrow.Array, values []T) *Column[T] {
	data := make([]T, len(values))
	copy(data, values)
	return &Column[T]{data: data, valids: validsOf(arr)}
}

// FromArrow copies an arrow array into the matching column kind. Lists become
// vector columns and t0/dt/values structs become waveform columns.
func FromArrow(arr arrow.Array) (IColumn, error) {
	switch a := arr.(type) {
	case *array.Boolean:
		data := make([]bool, a.Len())
		for i := range data {
			data[i] = a.IsValid(i) && a.Value(i)
		}
		return &Column[bool]{data: data, valids: validsOf(a)}, nil
	case *array.Int8:
		return fromPrimitive(a, a.Int8Values()), nil
	case *array.Uint8:
		return fromPrimitive(a, a.Uint8Values()), nil
	case *array.Int16:
		return fromPrimitive(a, a.Int16Values()), nil
	case *array.Int32:
		return fromPrimitive(a, a.Int32Values()), nil
	case *array.Int64:
		return fromPrimitive(a, a.Int64Values()), nil
	case *array.Uint16:
		return fromPrimitive(a, a.Uint16Values()), nil
	case *array.Uint32:
		return fromPrimitive(a, a.Uint32Values()), nil
	case *array.Uint64:
		return fromPrimitive(a, a.Uint64Values()), nil
	case *array.Float32:
		return fromPrimitive(a, a.Float32Values()), nil
	case *array.Float64:
		return fromPrimitive(a, a.Float64Values()), nil
	case *array.String:
		data := make([]string, a.Len())
		for i := range data {
			if a.IsValid(i) {
				data[i] = a.Value(i)
			}
		}
		return &Column[string]{data: data, valids: validsOf(a)}, nil
	case *array.List:
		return vectorFromArrow(a)
	case *array.Struct:
		return waveformFromArrow(a)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, arr.DataType())
}

// Supports reports whether FromArrow can build a column from arrays of dt.
func Supports(dt arrow.DataType) bool {
	arr := array.MakeArrayOfNull(memory.DefaultAllocator, dt, 0)
	defer arr.Release()
	_, err := FromArrow(arr)
	return err == nil
}

// float32Values widens or narrows any numeric arrow array to float32 samples.
func float32Values(arr arrow.Array) ([]float32, error) {
	res := make([]float32, arr.Len())
	switch a := arr.(type) {
	case *array.Float32:
		copy(res, a.Float32Values())
	case *array.Float64:
		for i, v := range a.Float64Values() {
			res[i] = float32(v)
		}
	case *array.Int16:
		for i, v := range a.Int16Values() {
			res[i] = float32(v)
		}
	case *array.Uint16:
		for i, v := range a.Uint16Values() {
			res[i] = float32(v)
		}
	case *array.Int32:
		for i, v := range a.Int32Values() {
			res[i] = float32(v)
		}
	default:
		return nil, fmt.Errorf("%w: waveform samples of %s", ErrUnsupportedType, arr.DataType())
	}
	return res, nil
}
