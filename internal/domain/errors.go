package domain

import "errors"

// Sentinel errors shared across packages.
// Use errors.Is to check: errors.Is(err, domain.ErrNotFound)
var (
	ErrNotFound         = errors.New("memoriva: not found")
	ErrInvalidGrade     = errors.New("memoriva: invalid grade")
	ErrInvalidSettings  = errors.New("memoriva: invalid deck settings")
	ErrCacheUnavailable = errors.New("memoriva: cache unavailable")
)
