package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/poolscore/internal/domain/model"
	"github.com/okian/poolscore/internal/domain/winners"
)

type pickKey struct {
	pool, participant, game string
}

type entryKey struct {
	pool, participant string
	season            int
	week              model.WeekKey
}

type overrideKey struct {
	pool   string
	season int
	week   model.WeekKey
}

type winnerKey struct {
	pool      string
	scopeType model.ScopeType
	scopeID   string
}

// MemoryStore is an in-process Store guarded by one RWMutex. Winner inserts
// are atomic per scope.
type MemoryStore struct {
	mu        sync.RWMutex
	games     map[string]model.Game
	picks     map[pickKey]model.Pick
	entries   map[entryKey]model.TieBreakEntry
	overrides map[overrideKey]int
	winners   map[winnerKey]model.WinnerRecord
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:     make(map[string]model.Game),
		picks:     make(map[pickKey]model.Pick),
		entries:   make(map[entryKey]model.TieBreakEntry),
		overrides: make(map[overrideKey]int),
		winners:   make(map[winnerKey]model.WinnerRecord),
	}
}

// SaveGames upserts games by id.
func (s *MemoryStore) SaveGames(_ context.Context, games []model.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range games {
		s.games[g.ID] = g
	}
	return nil
}

// SavePicks upserts picks by (pool, participant, game).
func (s *MemoryStore) SavePicks(_ context.Context, picks []model.Pick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range picks {
		s.picks[pickKey{p.PoolID, p.ParticipantID, p.GameID}] = p
	}
	return nil
}

// SaveTieBreakEntries upserts guesses by (pool, participant, season, week).
func (s *MemoryStore) SaveTieBreakEntries(_ context.Context, entries []model.TieBreakEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		k := entryKey{e.PoolID, e.ParticipantID, e.Season, model.WeekKey{SeasonType: e.SeasonType, Week: e.Week}}
		s.entries[k] = e
	}
	return nil
}

// SetTieBreakOverride sets the administrative actual value of a week.
func (s *MemoryStore) SetTieBreakOverride(_ context.Context, poolID string, season int, week model.WeekKey, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[overrideKey{poolID, season, week}] = value
	return nil
}

// GamesForWeeks returns the season's games in the given weeks, ordered by id.
func (s *MemoryStore) GamesForWeeks(_ context.Context, season int, weeks []model.WeekKey) ([]model.Game, error) {
	in := weekSet(weeks)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Game
	for _, g := range s.games {
		if g.Season == season && in[g.WeekKey()] {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PicksForWeeks returns a pool's picks for games in the given weeks.
func (s *MemoryStore) PicksForWeeks(_ context.Context, poolID string, season int, weeks []model.WeekKey) ([]model.Pick, error) {
	in := weekSet(weeks)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Pick
	for k, p := range s.picks {
		if k.pool != poolID {
			continue
		}
		g, ok := s.games[k.game]
		if ok && g.Season == season && in[g.WeekKey()] {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ParticipantID != out[j].ParticipantID {
			return out[i].ParticipantID < out[j].ParticipantID
		}
		return out[i].GameID < out[j].GameID
	})
	return out, nil
}

// TieBreakEntries returns the guesses for one week.
func (s *MemoryStore) TieBreakEntries(_ context.Context, poolID string, season int, week model.WeekKey) ([]model.TieBreakEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.TieBreakEntry
	for k, e := range s.entries {
		if k.pool == poolID && k.season == season && k.week == week {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out, nil
}

// TieBreakOverride returns the override for a week or nil.
func (s *MemoryStore) TieBreakOverride(_ context.Context, poolID string, season int, week model.WeekKey) (*int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.overrides[overrideKey{poolID, season, week}]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// FindWinner returns a copy of the scope's record or nil.
func (s *MemoryStore) FindWinner(_ context.Context, scope model.Scope) (*model.WinnerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.winners[winnerKey{scope.PoolID, scope.Type, scope.ID()}]
	if !ok {
		return nil, nil
	}
	out := cloneRecord(rec)
	return &out, nil
}

// InsertWinnerIfAbsent stores rec unless the scope already has a record.
func (s *MemoryStore) InsertWinnerIfAbsent(_ context.Context, rec model.WinnerRecord) (model.WinnerRecord, error) {
	k := winnerKey{rec.PoolID, rec.ScopeType, rec.ScopeID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.winners[k]; ok {
		return model.WinnerRecord{}, ErrWinnerExists
	}
	s.winners[k] = cloneRecord(rec)
	return cloneRecord(rec), nil
}

// DeleteWinner removes the scope's record.
func (s *MemoryStore) DeleteWinner(_ context.Context, scope model.Scope) (bool, error) {
	k := winnerKey{scope.PoolID, scope.Type, scope.ID()}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.winners[k]
	delete(s.winners, k)
	return ok, nil
}

// ListWinners returns a pool's records of one scope type and season.
func (s *MemoryStore) ListWinners(_ context.Context, poolID string, scopeType model.ScopeType, season int) ([]model.WinnerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.WinnerRecord
	for k, rec := range s.winners {
		if k.pool == poolID && k.scopeType == scopeType && rec.Season == season {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScopeID < out[j].ScopeID })
	return out, nil
}

// ActivePools lists pool/season pairs with at least one pick.
func (s *MemoryStore) ActivePools(_ context.Context) ([]winners.PoolSeason, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[winners.PoolSeason]bool)
	for k := range s.picks {
		if g, ok := s.games[k.game]; ok {
			seen[winners.PoolSeason{PoolID: k.pool, Season: g.Season}] = true
		}
	}
	out := make([]winners.PoolSeason, 0, len(seen))
	for ps := range seen {
		out = append(out, ps)
	}
	sortPoolSeasons(out)
	return out, nil
}

// WinnerCount returns the number of stored records.
func (s *MemoryStore) WinnerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.winners)
}

func sortPoolSeasons(ps []winners.PoolSeason) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].PoolID != ps[j].PoolID {
			return ps[i].PoolID < ps[j].PoolID
		}
		return ps[i].Season < ps[j].Season
	})
}

func cloneRecord(rec model.WinnerRecord) model.WinnerRecord {
	out := rec
	out.Winners = append([]string(nil), rec.Winners...)
	if rec.FlaggedParticipants != nil {
		out.FlaggedParticipants = append([]string(nil), rec.FlaggedParticipants...)
	}
	out.TieBreakerAnswer = cloneInt(rec.TieBreakerAnswer)
	out.WinnerTieBreakerGuess = cloneInt(rec.WinnerTieBreakerGuess)
	out.TieBreakerDifference = cloneInt(rec.TieBreakerDifference)
	return out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
