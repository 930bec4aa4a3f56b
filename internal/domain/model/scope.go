package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ScopeType names the unit being resolved.
type ScopeType string

// Scope types.
const (
	ScopeWeek   ScopeType = "week"
	ScopePeriod ScopeType = "period"
	ScopeSeason ScopeType = "season"
)

// Scope is one resolvable unit, always qualified by pool.
type Scope struct {
	PoolID string
	Type   ScopeType
	Season int
	// SeasonType and Week are set for week scopes only.
	SeasonType SeasonType
	Week       int
	// Period is set for period scopes only.
	Period string
}

// WeekScope builds the scope of a single week.
func WeekScope(poolID string, season int, seasonType SeasonType, week int) Scope {
	return Scope{PoolID: poolID, Type: ScopeWeek, Season: season, SeasonType: seasonType, Week: week}
}

// PeriodScope builds the scope of a named period.
func PeriodScope(poolID string, season int, period string) Scope {
	return Scope{PoolID: poolID, Type: ScopePeriod, Season: season, Period: period}
}

// SeasonScope builds the scope of a whole season.
func SeasonScope(poolID string, season int) Scope {
	return Scope{PoolID: poolID, Type: ScopeSeason, Season: season}
}

// ID returns the scope identifier, unique within (pool, scope type).
//
//	week:   "2025:regular:4"
//	period: "2025:Q1"
//	season: "2025"
func (s Scope) ID() string {
	switch s.Type {
	case ScopeWeek:
		return fmt.Sprintf("%d:%s:%d", s.Season, s.SeasonType, s.Week)
	case ScopePeriod:
		return fmt.Sprintf("%d:%s", s.Season, s.Period)
	default:
		return strconv.Itoa(s.Season)
	}
}

// WeekKey returns the week of a week scope.
func (s Scope) WeekKey() WeekKey {
	return WeekKey{SeasonType: s.SeasonType, Week: s.Week}
}

// Key is a process-wide unique string for the scope, used for dedupe and logs.
func (s Scope) Key() string {
	return s.PoolID + "/" + string(s.Type) + "/" + s.ID()
}

func (s Scope) String() string { return s.Key() }

// Validate checks that the fields required by the scope type are present.
func (s Scope) Validate() error {
	if strings.TrimSpace(s.PoolID) == "" {
		return fmt.Errorf("%w: missing pool id", ErrInvalidScope)
	}
	if s.Season <= 0 {
		return fmt.Errorf("%w: season must be positive", ErrInvalidScope)
	}
	switch s.Type {
	case ScopeWeek:
		if s.SeasonType < Preseason || s.SeasonType > Postseason {
			return fmt.Errorf("%w: unknown season type %d", ErrInvalidScope, s.SeasonType)
		}
		if s.Week <= 0 {
			return fmt.Errorf("%w: week must be positive", ErrInvalidScope)
		}
	case ScopePeriod:
		if strings.TrimSpace(s.Period) == "" {
			return fmt.Errorf("%w: missing period name", ErrInvalidScope)
		}
	case ScopeSeason:
	default:
		return fmt.Errorf("%w: unknown scope type %q", ErrInvalidScope, s.Type)
	}
	return nil
}
