package model

import (
	"errors"
	"fmt"
)

// ErrMismatchedAsset signals that values from two different assets were
// combined. It is a programming error and is never retried.
var ErrMismatchedAsset = errors.New("mismatched asset")

// MismatchedAssetError carries the two asset identifiers.
type MismatchedAssetError struct {
	Expected string
	Got      string
}

func (e *MismatchedAssetError) Error() string {
	return fmt.Sprintf("mismatched asset: expected %q, got %q", e.Expected, e.Got)
}

func (e *MismatchedAssetError) Unwrap() error { return ErrMismatchedAsset }
