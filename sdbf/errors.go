package sdbf

import "errors"

var (
	// ErrSourceUnavailable is returned when a source cannot be sized or read.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrInvalidBlockSize is returned for a block size Create cannot use.
	ErrInvalidBlockSize = errors.New("invalid block size")
	// ErrMalformedDigest is returned by Parse for structurally invalid input.
	ErrMalformedDigest = errors.New("malformed digest")
)
