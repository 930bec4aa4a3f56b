package repository

import (
	"errors"
	"fmt"

	"github.com/okian/poolscore/internal/domain/winners"
)

// Sentinel kinds for repository errors.
var (
	// ErrWinnerExists signals the uniqueness constraint on (pool, scope type,
	// scope id). It matches winners.ErrConflict.
	ErrWinnerExists   = fmt.Errorf("%w: unique pool/scope", winners.ErrConflict)
	ErrNotFound       = errors.New("record not found")
	ErrUnsupportedDSN = errors.New("unsupported database url")
)
