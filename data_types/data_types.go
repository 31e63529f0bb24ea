package data_types

import (
	"errors"
	"fmt"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
)

// ErrUnsupportedType marks arrow data a column cannot be built from.
var ErrUnsupportedType = errors.New("unsupported arrow type")

// Kind tags the value shape held by a column. Loaders switch on it exhaustively
// instead of probing concrete types.
type Kind int

const (
	KindScalar Kind = iota
	KindWaveform
	KindRaggedWaveform
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindWaveform:
		return "waveform"
	case KindRaggedWaveform:
		return "ragged_waveform"
	case KindVector:
		return "vector"
	}
	return "unknown"
}

const DATA_TYPE_NAME_BOOL = "BOOLEAN"
const DATA_TYPE_NAME_INT8 = "INT8"
const DATA_TYPE_NAME_UINT8 = "UINT8"
const DATA_TYPE_NAME_INT16 = "INT16"
const DATA_TYPE_NAME_INT32 = "INT32"
const DATA_TYPE_NAME_INT64 = "INT64"
const DATA_TYPE_NAME_UINT16 = "UINT16"
const DATA_TYPE_NAME_UINT32 = "UINT32"
const DATA_TYPE_NAME_UINT64 = "UBIGINT"
const DATA_TYPE_NAME_FLOAT32 = "FLOAT4"
const DATA_TYPE_NAME_FLOAT64 = "FLOAT8"
const DATA_TYPE_NAME_STRING = "VARCHAR"
const DATA_TYPE_NAME_WAVEFORM = "WAVEFORM"
const DATA_TYPE_NAME_RAGGED_WAVEFORM = "RAGGED_WAVEFORM"
const DATA_TYPE_NAME_UNKNOWN = "UNKNOWN"

type IColumn interface {
	Kind() Kind
	GetTypeName() string
	GetLength() int64
	GetVal(i int64) any
	IsValid(i int64) bool
	// Take gathers the rows at idx into a new column. Indices may repeat.
	Take(idx []int64) (IColumn, error)
	// MakeEmpty returns a column of the same type with size invalid rows.
	MakeEmpty(size int64) IColumn
	// Scatter writes src[k] into row pos[k].
	Scatter(pos []int64, src IColumn) error
	Append(other IColumn) error
	ArrowDataType() arrow.DataType
	WriteToBatch(batch array.Builder) error
}

// WrapToColumn wraps a plain Go slice into a fully valid scalar column.
func WrapToColumn(data any) (IColumn, error) {
	switch data := data.(type) {
	case []bool:
		return NewColumn(data), nil
	case []int8:
		return NewColumn(data), nil
	case []uint8:
		return NewColumn(data), nil
	case []int16:
		return NewColumn(data), nil
	case []int32:
		return NewColumn(data), nil
	case []int64:
		return NewColumn(data), nil
	case []uint16:
		return NewColumn(data), nil
	case []uint32:
		return NewColumn(data), nil
	case []uint64:
		return NewColumn(data), nil
	case []float32:
		return NewColumn(data), nil
	case []float64:
		return NewColumn(data), nil
	case []string:
		return NewColumn(data), nil
	case IColumn:
		return data, nil
	}
	return nil, fmt.Errorf("unsupported data type: %T", data)
}

func checkRange(idx []int64, size int64) error {
	for _, i := range idx {
		if i < 0 || i >= size {
			return fmt.Errorf("row index %d out of range [0, %d)", i, size)
		}
	}
	return nil
}
