package winners

import (
	"errors"

	"github.com/okian/poolscore/internal/domain/model"
)

// Sentinel kinds for resolution errors. NotReady and NoParticipants are
// outcomes, not errors.
var (
	// ErrConflict is returned by a WinnerStore when another caller already
	// persisted a record for the scope.
	ErrConflict      = errors.New("winner record already exists")
	ErrUpstream      = errors.New("upstream unavailable")
	ErrUnknownPeriod = errors.New("unknown period")
	ErrInvalidScope  = model.ErrInvalidScope
)
