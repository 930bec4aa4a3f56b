package winners

import (
	"context"

	"github.com/okian/poolscore/internal/domain/model"
)

// GameReader returns the games of a set of weeks in one season.
type GameReader interface {
	GamesForWeeks(ctx context.Context, season int, weeks []model.WeekKey) ([]model.Game, error)
}

// PickReader returns a pool's picks for games in a set of weeks.
type PickReader interface {
	PicksForWeeks(ctx context.Context, poolID string, season int, weeks []model.WeekKey) ([]model.Pick, error)
}

// TieBreakReader returns the secondary guesses of a week and an optional
// administrative override of the actual value.
type TieBreakReader interface {
	TieBreakEntries(ctx context.Context, poolID string, season int, week model.WeekKey) ([]model.TieBreakEntry, error)
	TieBreakOverride(ctx context.Context, poolID string, season int, week model.WeekKey) (*int, error)
}

// WinnerStore persists winner records. InsertWinnerIfAbsent must be atomic
// per (pool, scope type, scope id) and return an error wrapping ErrConflict
// when a record already exists.
type WinnerStore interface {
	FindWinner(ctx context.Context, scope model.Scope) (*model.WinnerRecord, error)
	InsertWinnerIfAbsent(ctx context.Context, rec model.WinnerRecord) (model.WinnerRecord, error)
	DeleteWinner(ctx context.Context, scope model.Scope) (bool, error)
	ListWinners(ctx context.Context, poolID string, scopeType model.ScopeType, season int) ([]model.WinnerRecord, error)
}

// PoolSeason is a pool with picks in a season.
type PoolSeason struct {
	PoolID string
	Season int
}

// PoolLister enumerates pools that have picks.
type PoolLister interface {
	ActivePools(ctx context.Context) ([]PoolSeason, error)
}

// Store is everything the Resolver reads and writes.
type Store interface {
	GameReader
	PickReader
	TieBreakReader
	WinnerStore
	PoolLister
}

// Publisher receives newly created winner records.
type Publisher interface {
	PublishWinner(ctx context.Context, rec model.WinnerRecord) error
}
