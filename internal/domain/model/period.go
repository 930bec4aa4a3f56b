package model

import "fmt"

// PeriodDefinition is a named, contiguous, inclusive range of weeks within
// one season segment.
type PeriodDefinition struct {
	Name       string     `koanf:"name" json:"name"`
	SeasonType SeasonType `koanf:"season_type" json:"season_type"`
	StartWeek  int        `koanf:"start_week" json:"start_week"`
	EndWeek    int        `koanf:"end_week" json:"end_week"`
}

// DefaultPeriods returns the four regular-season quarters plus the playoffs.
func DefaultPeriods() []PeriodDefinition {
	return []PeriodDefinition{
		{Name: "Q1", SeasonType: Regular, StartWeek: 1, EndWeek: 4},
		{Name: "Q2", SeasonType: Regular, StartWeek: 5, EndWeek: 9},
		{Name: "Q3", SeasonType: Regular, StartWeek: 10, EndWeek: 14},
		{Name: "Q4", SeasonType: Regular, StartWeek: 15, EndWeek: 18},
		{Name: "Playoffs", SeasonType: Postseason, StartWeek: 1, EndWeek: 4},
	}
}

// Validate rejects empty names, unknown season types and inverted or
// non-positive ranges.
func (p PeriodDefinition) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: period without name", ErrInvalidScope)
	}
	if p.SeasonType < Preseason || p.SeasonType > Postseason {
		return fmt.Errorf("%w: period %s has season type %d", ErrInvalidScope, p.Name, int(p.SeasonType))
	}
	if p.StartWeek <= 0 || p.EndWeek < p.StartWeek {
		return fmt.Errorf("%w: period %s has range %d-%d", ErrInvalidScope, p.Name, p.StartWeek, p.EndWeek)
	}
	return nil
}

// Contains reports whether the week falls inside the period.
func (p PeriodDefinition) Contains(k WeekKey) bool {
	return k.SeasonType == p.SeasonType && k.Week >= p.StartWeek && k.Week <= p.EndWeek
}

// Weeks lists the period's weeks in order.
func (p PeriodDefinition) Weeks() []WeekKey {
	if p.EndWeek < p.StartWeek {
		return nil
	}
	out := make([]WeekKey, 0, p.EndWeek-p.StartWeek+1)
	for w := p.StartWeek; w <= p.EndWeek; w++ {
		out = append(out, WeekKey{SeasonType: p.SeasonType, Week: w})
	}
	return out
}

// Last returns the closing week of the period.
func (p PeriodDefinition) Last() WeekKey {
	return WeekKey{SeasonType: p.SeasonType, Week: p.EndWeek}
}

// PeriodForWeek returns the first period containing k.
func PeriodForWeek(periods []PeriodDefinition, k WeekKey) (PeriodDefinition, bool) {
	for _, p := range periods {
		if p.Contains(k) {
			return p, true
		}
	}
	return PeriodDefinition{}, false
}
