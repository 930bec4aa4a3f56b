// Package config defines service configuration and how it is loaded.
package config

import (
	"runtime"

	"github.com/okian/poolscore/internal/domain/model"
	"github.com/okian/poolscore/internal/domain/winners"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DatabaseURL selects the store: sqlite:, postgres:// or mysql:// URLs,
	// or ":memory:" for a throwaway sqlite database.
	DatabaseURL string `koanf:"database_url"`

	// QueueSize bounds the in-memory resolution job queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of resolution workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize caps the pending-scope deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`
	// ScoringParallelism bounds concurrent participant scoring per week.
	ScoringParallelism int `koanf:"scoring_parallelism"`

	// ResolveCron is a robfig cron spec with a seconds field. Empty disables
	// the scheduler.
	ResolveCron string `koanf:"resolve_cron"`
	// ResolveRate and ResolveBurst limit HTTP resolution triggers per second.
	ResolveRate  float64 `koanf:"resolve_rate"`
	ResolveBurst int     `koanf:"resolve_burst"`

	EventsEnabled bool `koanf:"events_enabled"`

	TieBreakAllWeeks         bool  `koanf:"tie_break_all_weeks"`
	TieBreakWeeks            []int `koanf:"tie_break_weeks"`
	TieBreakPostseasonWeeks  []int `koanf:"tie_break_postseason_weeks"`
	TieBreakPeriods          bool  `koanf:"tie_break_periods"`
	TieBreakSeason           bool  `koanf:"tie_break_season"`
	RegularSeasonWeeks       int   `koanf:"regular_season_weeks"`
	PostseasonWeeks          int   `koanf:"postseason_weeks"`
	SeasonIncludesPostseason bool  `koanf:"season_includes_postseason"`

	Periods []model.PeriodDefinition `koanf:"periods"`
}

// New returns a Config populated with defaults.
func New() *Config {
	p := winners.DefaultPolicy()
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		DatabaseURL:              "sqlite:poolscore.db",
		QueueSize:                1024,
		WorkerCount:              runtime.NumCPU(),
		DedupeSize:               50_000,
		ScoringParallelism:       8,
		ResolveCron:              "0 */5 * * * *",
		ResolveRate:              5,
		ResolveBurst:             10,
		EventsEnabled:            true,
		TieBreakAllWeeks:         p.TieBreakAllWeeks,
		TieBreakWeeks:            p.TieBreakRegular,
		TieBreakPostseasonWeeks:  p.TieBreakPostseason,
		TieBreakPeriods:          p.TieBreakPeriods,
		TieBreakSeason:           p.TieBreakSeason,
		RegularSeasonWeeks:       p.RegularWeeks,
		PostseasonWeeks:          p.PostseasonWeeks,
		SeasonIncludesPostseason: p.IncludePostseason,
		Periods:                  p.Periods,
	}
}

// Policy converts the tie-break and season settings for the resolver.
func (c *Config) Policy() winners.Policy {
	return winners.Policy{
		TieBreakAllWeeks:   c.TieBreakAllWeeks,
		TieBreakRegular:    append([]int(nil), c.TieBreakWeeks...),
		TieBreakPostseason: append([]int(nil), c.TieBreakPostseasonWeeks...),
		TieBreakPeriods:    c.TieBreakPeriods,
		TieBreakSeason:     c.TieBreakSeason,
		Periods:            append([]model.PeriodDefinition(nil), c.Periods...),
		RegularWeeks:       c.RegularSeasonWeeks,
		PostseasonWeeks:    c.PostseasonWeeks,
		IncludePostseason:  c.SeasonIncludesPostseason,
	}
}
