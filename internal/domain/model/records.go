package model

import "time"

// Pick is one participant's prediction for one game within one pool.
type Pick struct {
	ParticipantID   string
	PoolID          string
	GameID          string
	PredictedWinner string
	Confidence      int
}

// TieBreakEntry is a participant's secondary numeric guess for a week, e.g.
// the combined score of the week's final game.
type TieBreakEntry struct {
	ParticipantID string
	PoolID        string
	Season        int
	SeasonType    SeasonType
	Week          int
	Guess         int
}

// ScoreRecord is the derived score of one participant for one week.
type ScoreRecord struct {
	ParticipantID string         `json:"participant_id"`
	Week          WeekKey        `json:"-"`
	TotalPoints   int            `json:"total_points"`
	CorrectPicks  int            `json:"correct_picks"`
	TotalPicks    int            `json:"total_picks"`
	PerGamePoints map[string]int `json:"per_game_points"`
	// InvalidPickSet marks confidence values that are not a permutation of 1..N.
	InvalidPickSet bool     `json:"invalid_pick_set,omitempty"`
	PickSetIssues  []string `json:"pick_set_issues,omitempty"`
}

// WinnerRecord is the resolved outcome of a scope.
type WinnerRecord struct {
	ID        string    `json:"id"`
	PoolID    string    `json:"pool_id"`
	ScopeType ScopeType `json:"scope_type"`
	ScopeID   string    `json:"scope_id"`
	Season    int       `json:"season"`
	// Winners holds more than one id only for an unresolved tie.
	Winners               []string  `json:"winners"`
	WinnerPoints          int       `json:"winner_points"`
	WinnerCorrectPicks    int       `json:"winner_correct_picks"`
	TieBreakerUsed        bool      `json:"tie_breaker_used"`
	TieBreakerQuestion    string    `json:"tie_breaker_question,omitempty"`
	TieBreakerAnswer      *int      `json:"tie_breaker_answer"`
	WinnerTieBreakerGuess *int      `json:"winner_tie_breaker_guess"`
	TieBreakerDifference  *int      `json:"tie_breaker_difference"`
	TotalParticipants     int       `json:"total_participants"`
	FlaggedParticipants   []string  `json:"flagged_participants,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// HasWinner reports whether the record names at least one winner.
func (r WinnerRecord) HasWinner() bool { return len(r.Winners) > 0 }

// Standing is one row of a resolved ranking.
type Standing struct {
	Rank               int    `json:"rank"`
	ParticipantID      string `json:"participant_id"`
	Points             int    `json:"points"`
	CorrectPicks       int    `json:"correct_picks"`
	TotalPicks         int    `json:"total_picks"`
	WeeksPlayed        int    `json:"weeks_played"`
	WeeksWon           int    `json:"weeks_won"`
	TieBreakGuess      *int   `json:"tie_break_guess"`
	TieBreakDifference *int   `json:"tie_break_difference"`
	Winner             bool   `json:"winner"`
}

// Outcome classifies a resolution attempt.
type Outcome string

// Resolution outcomes. None of them is an error.
const (
	OutcomeResolved       Outcome = "resolved"
	OutcomeExisting       Outcome = "existing"
	OutcomeNotReady       Outcome = "not_ready"
	OutcomeNoParticipants Outcome = "no_participants"
)
