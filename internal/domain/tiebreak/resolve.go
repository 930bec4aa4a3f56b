package tiebreak

import (
	"fmt"
	"sort"

	"github.com/okian/poolscore/internal/domain/model"
)

// Placement is one participant's position inside a resolved group.
// Position is 1-based; participants that cannot be separated share it.
type Placement struct {
	ParticipantID string
	Position      int
	Guess         *int
	Difference    *int
}

// Result is the resolution of one tie group.
type Result struct {
	Order   []Placement
	Winners []string
	// Used is true only when guesses actually decided the order.
	Used bool
}

// Winner returns the placement of the first winner.
func (r Result) Winner() (Placement, bool) {
	if len(r.Order) == 0 {
		return Placement{}, false
	}
	return r.Order[0], true
}

// Answer is one guess and the actual value it is measured against.
type Answer struct {
	Guess  int
	Actual *int
}

// Resolve orders a tie group by absolute distance between each guess and the
// actual value. Participants without a guess come after every guesser. Equal
// best distances produce co-winners.
//
// When enabled is false, actual is nil, or nobody in the group guessed,
// every member is a co-winner and Used is false.
func Resolve(group []string, guesses map[string]int, actual *int, enabled bool) Result {
	answers := make(map[string]Answer, len(guesses))
	for id, g := range guesses {
		answers[id] = Answer{Guess: g, Actual: actual}
	}
	return ResolveAnswers(group, answers, enabled)
}

// ResolveAnswers is Resolve with a separate actual value per participant, for
// guesses taken from different weeks. A guess whose actual is unknown ranks
// with the non-guessers.
func ResolveAnswers(group []string, answers map[string]Answer, enabled bool) Result {
	members := make([]string, len(group))
	copy(members, group)
	sort.Strings(members)

	placements := make([]Placement, len(members))
	measured := 0
	for i, id := range members {
		placements[i] = Placement{ParticipantID: id}
		if a, ok := answers[id]; ok {
			guess := a.Guess
			placements[i].Guess = &guess
			if a.Actual != nil {
				d := abs(guess - *a.Actual)
				placements[i].Difference = &d
				measured++
			}
		}
	}

	if len(members) < 2 || !enabled || measured == 0 {
		for i := range placements {
			placements[i].Position = 1
		}
		return Result{Order: placements, Winners: members, Used: false}
	}

	sort.SliceStable(placements, func(i, j int) bool {
		a, b := placements[i].Difference, placements[j].Difference
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})

	for i := range placements {
		if i == 0 {
			placements[i].Position = 1
			continue
		}
		if sameDifference(placements[i-1].Difference, placements[i].Difference) {
			placements[i].Position = placements[i-1].Position
		} else {
			placements[i].Position = i + 1
		}
	}

	var winners []string
	for _, p := range placements {
		if p.Position != 1 {
			break
		}
		winners = append(winners, p.ParticipantID)
	}
	return Result{Order: placements, Winners: winners, Used: true}
}

// DesignatedGame picks the game whose combined score answers the week's
// tie-break question: the last non-cancelled game by kickoff.
func DesignatedGame(games []model.Game) (model.Game, bool) {
	var (
		best  model.Game
		found bool
	)
	for _, g := range games {
		if g.Status == model.StatusCancelled {
			continue
		}
		if !found || later(g, best) {
			best, found = g, true
		}
	}
	return best, found
}

// ActualValue is the combined final score of a finished game.
func ActualValue(g model.Game) (int, bool) {
	if g.Status != model.StatusFinal {
		return 0, false
	}
	return g.CombinedScore()
}

// Question is the display text for the tie-break prompt of a game.
func Question(g model.Game) string {
	return fmt.Sprintf("Combined final score of %s @ %s", g.AwayTeam, g.HomeTeam)
}

func later(a, b model.Game) bool {
	if !a.Kickoff.Equal(b.Kickoff) {
		return a.Kickoff.After(b.Kickoff)
	}
	return a.ID > b.ID
}

func sameDifference(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
