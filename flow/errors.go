package flow

import (
	"errors"
	"fmt"

	"github.com/metrico/tierflow/config"
	"github.com/metrico/tierflow/store"
)

var (
	ErrConfiguration        = config.ErrConfiguration
	ErrUnsupportedOperation = config.ErrUnsupported
	ErrAmbiguity            = errors.New("ambiguity error")
	ErrFileNotFound         = errors.New("file not found")
	ErrNotImplementedInput  = errors.New("input not implemented")
)

// storeError maps store failures onto the loader's error kinds.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrUnsupported) && !errors.Is(err, ErrUnsupportedOperation) {
		return fmt.Errorf("%w: %w", ErrUnsupportedOperation, err)
	}
	return err
}
