package store

import (
	"context"
	"errors"

	"github.com/metrico/tierflow/model"
)

var ErrUnsupported = errors.New("unsupported store operation")

type WriteMode int

const (
	Overwrite WriteMode = iota
	Append
)

func (m WriteMode) String() string {
	if m == Append {
		return "append"
	}
	return "overwrite"
}

// Reader is the read side of the columnar store. A nil rows slice reads every
// row and a nil fields slice reads every column. Rows may repeat and come back
// in the requested order.
type Reader interface {
	Read(ctx context.Context, tablePath, file string, rows []int64, fields []string) (*model.Table, error)
	RowCount(ctx context.Context, tablePath, file string) (int64, error)
	Exists(file string) bool
	Tables(ctx context.Context, file string) ([]string, error)
	Columns(ctx context.Context, tablePath, file string) ([]string, error)
}

type Writer interface {
	Write(ctx context.Context, obj *model.Table, path, file string, mode WriteMode) error
}

type Store interface {
	Reader
	Writer
}
