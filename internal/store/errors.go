// Package store holds errors shared by the storage adapters.
package store

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnknownAsset is returned when rows reference a symbol that is not
	// in the asset catalogue.
	ErrUnknownAsset = errors.New("unknown asset")
)
