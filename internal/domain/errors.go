package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrCatalogMissing   = errors.New("shipping catalog not supplied")
	ErrReadOnlyCatalog  = errors.New("shipping catalog is read-only")
	ErrRateNotAvailable = errors.New("shipping rate not available for this address")
)
