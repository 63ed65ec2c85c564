// Package store implements the repositories over PostgreSQL that every
// pipeline worker coordinates through. All SQL lives here; callers deal in
// pkg/models types only.
package store

import "errors"

var (
	// ErrNotFound is returned when a queried row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyMerged is returned by guarded cluster reads when the
	// cluster has been merged away since the caller last saw it.
	ErrAlreadyMerged = errors.New("cluster already merged")
)
