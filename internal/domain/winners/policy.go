package winners

import (
	"fmt"
	"slices"

	"github.com/okian/poolscore/internal/domain/model"
)

// Policy decides which weeks form a scope and which scopes use a tie-break.
type Policy struct {
	// TieBreakAllWeeks enables the tie-break for every week.
	TieBreakAllWeeks bool
	// TieBreakRegular lists regular-season weeks with a tie-break.
	TieBreakRegular []int
	// TieBreakPostseason lists postseason weeks with a tie-break.
	TieBreakPostseason []int
	// TieBreakPeriods and TieBreakSeason break ties with each tied
	// participant's latest guess inside the window.
	TieBreakPeriods bool
	TieBreakSeason  bool

	Periods           []model.PeriodDefinition
	RegularWeeks      int
	PostseasonWeeks   int
	IncludePostseason bool
}

// DefaultPolicy breaks ties in weeks 4, 9, 14, 18 and the championship, and
// in every period and the season.
func DefaultPolicy() Policy {
	return Policy{
		TieBreakRegular:    []int{4, 9, 14, 18},
		TieBreakPostseason: []int{4},
		TieBreakPeriods:    true,
		TieBreakSeason:     true,
		Periods:            model.DefaultPeriods(),
		RegularWeeks:       18,
		PostseasonWeeks:    4,
		IncludePostseason:  true,
	}
}

// WeekHasTieBreak reports whether guesses may decide ties in week k.
func (p Policy) WeekHasTieBreak(k model.WeekKey) bool {
	if p.TieBreakAllWeeks {
		return true
	}
	switch k.SeasonType {
	case model.Regular:
		return slices.Contains(p.TieBreakRegular, k.Week)
	case model.Postseason:
		return slices.Contains(p.TieBreakPostseason, k.Week)
	default:
		return false
	}
}

// Period looks up a period definition by name.
func (p Policy) Period(name string) (model.PeriodDefinition, error) {
	for _, def := range p.Periods {
		if def.Name == name {
			return def, nil
		}
	}
	return model.PeriodDefinition{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, name)
}

// SeasonWindow lists every week of a season in order.
func (p Policy) SeasonWindow() []model.WeekKey {
	weeks := make([]model.WeekKey, 0, p.RegularWeeks+p.PostseasonWeeks)
	for w := 1; w <= p.RegularWeeks; w++ {
		weeks = append(weeks, model.WeekKey{SeasonType: model.Regular, Week: w})
	}
	if p.IncludePostseason {
		for w := 1; w <= p.PostseasonWeeks; w++ {
			weeks = append(weeks, model.WeekKey{SeasonType: model.Postseason, Week: w})
		}
	}
	return weeks
}

// Window returns the ordered weeks covered by a scope.
func (p Policy) Window(scope model.Scope) ([]model.WeekKey, error) {
	switch scope.Type {
	case model.ScopeWeek:
		return []model.WeekKey{scope.WeekKey()}, nil
	case model.ScopePeriod:
		def, err := p.Period(scope.Period)
		if err != nil {
			return nil, err
		}
		return def.Weeks(), nil
	case model.ScopeSeason:
		return p.SeasonWindow(), nil
	default:
		return nil, fmt.Errorf("%w: scope type %q", ErrInvalidScope, scope.Type)
	}
}

// TieBreakWeeks returns the weeks whose guesses may break ties for the
// scope, latest first, and whether the scope uses a tie-break at all. A week
// scope only looks at itself; periods and the season take each participant's
// most recent guess inside the window.
func (p Policy) TieBreakWeeks(scope model.Scope, window []model.WeekKey) ([]model.WeekKey, bool) {
	if len(window) == 0 {
		return nil, false
	}
	last := window[len(window)-1]
	if scope.Type == model.ScopeWeek {
		return []model.WeekKey{last}, p.WeekHasTieBreak(last)
	}
	weeks := make([]model.WeekKey, len(window))
	for i, k := range window {
		weeks[len(window)-1-i] = k
	}
	switch scope.Type {
	case model.ScopePeriod:
		return weeks, p.TieBreakPeriods
	case model.ScopeSeason:
		return weeks, p.TieBreakSeason
	default:
		return weeks, false
	}
}

// Validate checks the period table and season length.
func (p Policy) Validate() error {
	if p.RegularWeeks <= 0 {
		return fmt.Errorf("%w: regular season needs at least one week", ErrInvalidScope)
	}
	seen := make(map[string]bool, len(p.Periods))
	for _, def := range p.Periods {
		if err := def.Validate(); err != nil {
			return err
		}
		if seen[def.Name] {
			return fmt.Errorf("%w: duplicate period %q", ErrInvalidScope, def.Name)
		}
		seen[def.Name] = true
	}
	return nil
}
