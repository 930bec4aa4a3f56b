// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// GameStatus is the lifecycle state of a game.
type GameStatus int

// Game lifecycle states. Final and Cancelled are terminal.
const (
	StatusScheduled GameStatus = iota
	StatusLive
	StatusFinal
	StatusCancelled
	StatusPostponed
)

var statusNames = map[GameStatus]string{
	StatusScheduled: "scheduled",
	StatusLive:      "live",
	StatusFinal:     "final",
	StatusCancelled: "cancelled",
	StatusPostponed: "postponed",
}

// String returns the canonical lowercase name of the status.
func (s GameStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// IsTerminal reports whether a game's outcome can no longer change.
func (s GameStatus) IsTerminal() bool {
	return s == StatusFinal || s == StatusCancelled
}

// ParseGameStatus maps feed status strings onto the closed status set.
// Unknown strings return StatusScheduled together with ErrUnknownStatus so
// callers never treat them as terminal.
func ParseGameStatus(raw string) (GameStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "final", "post", "completed", "complete", "final/ot":
		return StatusFinal, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	case "postponed", "delayed":
		return StatusPostponed, nil
	case "in", "live", "in_progress", "halftime":
		return StatusLive, nil
	case "", "pre", "scheduled":
		return StatusScheduled, nil
	default:
		return StatusScheduled, fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
}

// SeasonType is the segment of a season a game belongs to.
type SeasonType int

// Season segments, numbered the way the NFL schedule feed numbers them.
const (
	Preseason  SeasonType = 1
	Regular    SeasonType = 2
	Postseason SeasonType = 3
)

// String returns a short name for the segment.
func (t SeasonType) String() string {
	switch t {
	case Preseason:
		return "preseason"
	case Regular:
		return "regular"
	case Postseason:
		return "postseason"
	default:
		return fmt.Sprintf("season_type(%d)", int(t))
	}
}

// ParseSeasonType accepts either the numeric feed code or the short name.
func ParseSeasonType(raw string) (SeasonType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "pre", "preseason":
		return Preseason, nil
	case "2", "reg", "regular":
		return Regular, nil
	case "3", "post", "postseason", "playoffs":
		return Postseason, nil
	default:
		return 0, fmt.Errorf("%w: season type %q", ErrInvalidScope, raw)
	}
}

// WeekKey identifies one scoring week within a season.
type WeekKey struct {
	SeasonType SeasonType `json:"season_type"`
	Week       int        `json:"week"`
}

// Less orders weeks chronologically: preseason, regular season, postseason.
func (k WeekKey) Less(o WeekKey) bool {
	if k.SeasonType != o.SeasonType {
		return k.SeasonType < o.SeasonType
	}
	return k.Week < o.Week
}

func (k WeekKey) String() string {
	return fmt.Sprintf("%s:%d", k.SeasonType, k.Week)
}

// Game is one scheduled contest.
type Game struct {
	ID         string
	Season     int
	SeasonType SeasonType
	Week       int
	HomeTeam   string
	AwayTeam   string
	Kickoff    time.Time
	Status     GameStatus
	// Winner is empty until the game is decided.
	Winner    string
	HomeScore *int
	AwayScore *int
}

// WeekKey returns the week the game is played in.
func (g Game) WeekKey() WeekKey {
	return WeekKey{SeasonType: g.SeasonType, Week: g.Week}
}

// Decided reports whether the game is final and has a declared winner.
func (g Game) Decided() bool {
	return g.Status == StatusFinal && strings.TrimSpace(g.Winner) != ""
}

// CombinedScore returns home+away when both scores are known.
func (g Game) CombinedScore() (int, bool) {
	if g.HomeScore == nil || g.AwayScore == nil {
		return 0, false
	}
	return *g.HomeScore + *g.AwayScore, true
}
