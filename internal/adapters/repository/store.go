// Package repository implements the storage collaborators of the resolver.
package repository

import (
	"context"

	"github.com/okian/poolscore/internal/domain/model"
	"github.com/okian/poolscore/internal/domain/winners"
)

// Writer loads source data: games, picks and tie-break guesses. Every
// method upserts on the natural key.
type Writer interface {
	SaveGames(ctx context.Context, games []model.Game) error
	SavePicks(ctx context.Context, picks []model.Pick) error
	SaveTieBreakEntries(ctx context.Context, entries []model.TieBreakEntry) error
	SetTieBreakOverride(ctx context.Context, poolID string, season int, week model.WeekKey, value int) error
}

// Store is a full read/write backend.
type Store interface {
	winners.Store
	Writer
}

var (
	_ Store = (*GormStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

func weekSet(weeks []model.WeekKey) map[model.WeekKey]bool {
	out := make(map[model.WeekKey]bool, len(weeks))
	for _, w := range weeks {
		out[w] = true
	}
	return out
}
