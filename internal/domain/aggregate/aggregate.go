// Package aggregate rolls weekly scores up into period and season totals.
package aggregate

import (
	"math"
	"sort"

	"github.com/okian/poolscore/internal/domain/model"
)

// Totals is one participant's standing across a window of weeks.
type Totals struct {
	ParticipantID string `json:"participant_id"`
	Points        int    `json:"points"`
	CorrectPicks  int    `json:"correct_picks"`
	TotalPicks    int    `json:"total_picks"`
	// WeeksPlayed counts weeks with a score record; weeks without picks add 0
	// points and are not counted here.
	WeeksPlayed int         `json:"weeks_played"`
	WeeksWon    int         `json:"weeks_won"`
	Flagged     bool        `json:"flagged,omitempty"`
	weekly      []WeekScore
}

// WeekScore is a participant's points in one week.
type WeekScore struct {
	Week   model.WeekKey `json:"week"`
	Points int           `json:"points"`
}

// Weekly returns the participant's played weeks in window order.
func (t Totals) Weekly() []WeekScore { return t.weekly }

// Aggregate sums weekly records over window. Records for weeks outside the
// window are ignored, and a participant is counted at most once per week.
// weeklyWinners lists every winner of each week, co-winners included.
// The result is sorted by participant id.
func Aggregate(window []model.WeekKey, weekly map[model.WeekKey][]model.ScoreRecord, weeklyWinners map[model.WeekKey][]string) []Totals {
	byID := make(map[string]*Totals)
	get := func(id string) *Totals {
		t, ok := byID[id]
		if !ok {
			t = &Totals{ParticipantID: id}
			byID[id] = t
		}
		return t
	}

	seenWeek := make(map[model.WeekKey]bool, len(window))
	for _, wk := range window {
		if seenWeek[wk] {
			continue
		}
		seenWeek[wk] = true

		counted := make(map[string]bool)
		for _, rec := range weekly[wk] {
			if counted[rec.ParticipantID] {
				continue
			}
			counted[rec.ParticipantID] = true
			t := get(rec.ParticipantID)
			t.Points += rec.TotalPoints
			t.CorrectPicks += rec.CorrectPicks
			t.TotalPicks += rec.TotalPicks
			t.WeeksPlayed++
			t.Flagged = t.Flagged || rec.InvalidPickSet
			t.weekly = append(t.weekly, WeekScore{Week: wk, Points: rec.TotalPoints})
		}
		for _, id := range unique(weeklyWinners[wk]) {
			if counted[id] {
				get(id).WeeksWon++
			}
		}
	}

	out := make([]Totals, 0, len(byID))
	for _, t := range byID {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out
}

// Review is the display-only season summary of one participant.
type Review struct {
	Totals
	BestWeek  *WeekScore `json:"best_week"`
	WorstWeek *WeekScore `json:"worst_week"`
	Average   float64    `json:"average"`
	// Consistency is the population standard deviation of weekly points.
	Consistency float64 `json:"consistency"`
}

// SeasonReview aggregates the window and derives per-participant statistics.
// Results are ordered by points, then id.
func SeasonReview(window []model.WeekKey, weekly map[model.WeekKey][]model.ScoreRecord, weeklyWinners map[model.WeekKey][]string) []Review {
	totals := Aggregate(window, weekly, weeklyWinners)
	out := make([]Review, 0, len(totals))
	for _, t := range totals {
		r := Review{Totals: t}
		if n := len(t.weekly); n > 0 {
			best, worst := t.weekly[0], t.weekly[0]
			for _, w := range t.weekly[1:] {
				if w.Points > best.Points {
					best = w
				}
				if w.Points < worst.Points {
					worst = w
				}
			}
			r.BestWeek, r.WorstWeek = &best, &worst
			r.Average = float64(t.Points) / float64(n)
			var sq float64
			for _, w := range t.weekly {
				d := float64(w.Points) - r.Average
				sq += d * d
			}
			r.Consistency = math.Sqrt(sq / float64(n))
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].ParticipantID < out[j].ParticipantID
	})
	return out
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
