package repository

import (
	"time"

	"github.com/okian/poolscore/internal/domain/model"
)

type gameRow struct {
	ID         string `gorm:"primaryKey;size:64"`
	Season     int    `gorm:"index:idx_games_week,priority:1;not null"`
	SeasonType int    `gorm:"index:idx_games_week,priority:2;not null"`
	Week       int    `gorm:"index:idx_games_week,priority:3;not null"`
	HomeTeam   string `gorm:"size:8"`
	AwayTeam   string `gorm:"size:8"`
	Kickoff    time.Time
	Status     string `gorm:"size:16;not null"`
	Winner     string `gorm:"size:8"`
	HomeScore  *int
	AwayScore  *int
}

func (gameRow) TableName() string { return "games" }

type pickRow struct {
	ID              uint   `gorm:"primaryKey"`
	PoolID          string `gorm:"uniqueIndex:idx_picks_unique,priority:1;size:64;not null"`
	ParticipantID   string `gorm:"uniqueIndex:idx_picks_unique,priority:2;size:64;not null"`
	GameID          string `gorm:"uniqueIndex:idx_picks_unique,priority:3;index;size:64;not null"`
	PredictedWinner string `gorm:"size:8"`
	Confidence      int    `gorm:"not null"`
}

func (pickRow) TableName() string { return "picks" }

type tieBreakRow struct {
	ID            uint   `gorm:"primaryKey"`
	PoolID        string `gorm:"uniqueIndex:idx_tie_breaks_unique,priority:1;size:64;not null"`
	ParticipantID string `gorm:"uniqueIndex:idx_tie_breaks_unique,priority:2;size:64;not null"`
	Season        int    `gorm:"uniqueIndex:idx_tie_breaks_unique,priority:3;not null"`
	SeasonType    int    `gorm:"uniqueIndex:idx_tie_breaks_unique,priority:4;not null"`
	Week          int    `gorm:"uniqueIndex:idx_tie_breaks_unique,priority:5;not null"`
	Guess         int    `gorm:"not null"`
}

func (tieBreakRow) TableName() string { return "tie_break_entries" }

type overrideRow struct {
	PoolID     string `gorm:"primaryKey;size:64"`
	Season     int    `gorm:"primaryKey"`
	SeasonType int    `gorm:"primaryKey"`
	Week       int    `gorm:"primaryKey"`
	Value      int    `gorm:"not null"`
}

func (overrideRow) TableName() string { return "tie_break_overrides" }

type winnerRow struct {
	ID                    string   `gorm:"primaryKey;size:36"`
	PoolID                string   `gorm:"uniqueIndex:idx_winner_scope,priority:1;size:64;not null"`
	ScopeType             string   `gorm:"uniqueIndex:idx_winner_scope,priority:2;size:16;not null"`
	ScopeID               string   `gorm:"uniqueIndex:idx_winner_scope,priority:3;size:64;not null"`
	Season                int      `gorm:"index;not null"`
	Winners               []string `gorm:"serializer:json"`
	WinnerPoints          int
	WinnerCorrectPicks    int
	TieBreakerUsed        bool
	TieBreakerQuestion    string
	TieBreakerAnswer      *int
	WinnerTieBreakerGuess *int
	TieBreakerDifference  *int
	TotalParticipants     int
	FlaggedParticipants   []string `gorm:"serializer:json"`
	CreatedAt             time.Time
}

func (winnerRow) TableName() string { return "winner_records" }

// allModels is the migration set.
func allModels() []any {
	return []any{&gameRow{}, &pickRow{}, &tieBreakRow{}, &overrideRow{}, &winnerRow{}}
}

func toGameRow(g model.Game) gameRow {
	return gameRow{
		ID: g.ID, Season: g.Season, SeasonType: int(g.SeasonType), Week: g.Week,
		HomeTeam: g.HomeTeam, AwayTeam: g.AwayTeam, Kickoff: g.Kickoff.UTC(),
		Status: g.Status.String(), Winner: g.Winner, HomeScore: g.HomeScore, AwayScore: g.AwayScore,
	}
}

func (r gameRow) toModel() model.Game {
	// unknown stored statuses stay non-terminal
	status, _ := model.ParseGameStatus(r.Status)
	return model.Game{
		ID: r.ID, Season: r.Season, SeasonType: model.SeasonType(r.SeasonType), Week: r.Week,
		HomeTeam: r.HomeTeam, AwayTeam: r.AwayTeam, Kickoff: r.Kickoff.UTC(),
		Status: status, Winner: r.Winner, HomeScore: r.HomeScore, AwayScore: r.AwayScore,
	}
}

func (r pickRow) toModel() model.Pick {
	return model.Pick{
		ParticipantID: r.ParticipantID, PoolID: r.PoolID, GameID: r.GameID,
		PredictedWinner: r.PredictedWinner, Confidence: r.Confidence,
	}
}

func (r tieBreakRow) toModel() model.TieBreakEntry {
	return model.TieBreakEntry{
		ParticipantID: r.ParticipantID, PoolID: r.PoolID, Season: r.Season,
		SeasonType: model.SeasonType(r.SeasonType), Week: r.Week, Guess: r.Guess,
	}
}

func toWinnerRow(rec model.WinnerRecord) winnerRow {
	return winnerRow{
		ID: rec.ID, PoolID: rec.PoolID, ScopeType: string(rec.ScopeType), ScopeID: rec.ScopeID,
		Season: rec.Season, Winners: rec.Winners, WinnerPoints: rec.WinnerPoints,
		WinnerCorrectPicks: rec.WinnerCorrectPicks, TieBreakerUsed: rec.TieBreakerUsed,
		TieBreakerQuestion: rec.TieBreakerQuestion, TieBreakerAnswer: rec.TieBreakerAnswer,
		WinnerTieBreakerGuess: rec.WinnerTieBreakerGuess, TieBreakerDifference: rec.TieBreakerDifference,
		TotalParticipants: rec.TotalParticipants, FlaggedParticipants: rec.FlaggedParticipants,
		CreatedAt: rec.CreatedAt.UTC(),
	}
}

func (r winnerRow) toModel() model.WinnerRecord {
	rec := model.WinnerRecord{
		ID: r.ID, PoolID: r.PoolID, ScopeType: model.ScopeType(r.ScopeType), ScopeID: r.ScopeID,
		Season: r.Season, Winners: r.Winners, WinnerPoints: r.WinnerPoints,
		WinnerCorrectPicks: r.WinnerCorrectPicks, TieBreakerUsed: r.TieBreakerUsed,
		TieBreakerQuestion: r.TieBreakerQuestion, TieBreakerAnswer: r.TieBreakerAnswer,
		WinnerTieBreakerGuess: r.WinnerTieBreakerGuess, TieBreakerDifference: r.TieBreakerDifference,
		TotalParticipants: r.TotalParticipants, FlaggedParticipants: r.FlaggedParticipants,
		CreatedAt: r.CreatedAt.UTC().Truncate(time.Microsecond),
	}
	if len(rec.FlaggedParticipants) == 0 {
		rec.FlaggedParticipants = nil
	}
	return rec
}
