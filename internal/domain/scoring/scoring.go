// Package scoring turns picks and game results into per-participant weekly scores.
package scoring

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/poolscore/internal/domain/model"
	"golang.org/x/sync/errgroup"
)

const defaultParallelism = 8

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithParallelism bounds how many participants are scored concurrently.
func WithParallelism(n int) Option {
	return func(c *Calculator) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithPickSetValidation toggles the permutation check on every participant.
func WithPickSetValidation(enabled bool) Option {
	return func(c *Calculator) {
		c.validate = enabled
	}
}

// Scorer computes weekly score records for every participant with picks.
type Scorer interface {
	ScoreWeek(ctx context.Context, games []model.Game, picks []model.Pick) ([]model.ScoreRecord, error)
}

// Calculator implements Scorer.
type Calculator struct {
	parallelism int
	validate    bool
}

// NewCalculator creates a calculator with the given options.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		parallelism: defaultParallelism,
		validate:    true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxTotal is the best possible weekly total for n games: 1+2+...+n.
func MaxTotal(n int) int {
	if n <= 0 {
		return 0
	}
	return n * (n + 1) / 2
}

// ScoreParticipant scores one participant's picks against the week's games.
// A pick earns its confidence only when the game is final with a declared
// winner equal to the prediction; anything else earns 0.
func ScoreParticipant(participantID string, games map[string]model.Game, picks []model.Pick) model.ScoreRecord {
	rec := model.ScoreRecord{
		ParticipantID: participantID,
		PerGamePoints: make(map[string]int, len(picks)),
	}
	for _, p := range picks {
		rec.TotalPicks++
		awarded := 0
		if g, ok := games[p.GameID]; ok && g.Decided() && g.Winner == p.PredictedWinner && p.Confidence > 0 {
			awarded = p.Confidence
		}
		rec.PerGamePoints[p.GameID] += awarded
		rec.TotalPoints += awarded
		if awarded > 0 {
			rec.CorrectPicks++
		}
	}
	return rec
}

// ValidatePickSet checks that confidences form a contiguous run 1..k of
// 1..gameCount. It returns one message per problem found; an empty result
// means the set is acceptable. A set may stop short of gameCount, but every
// value below its highest one must be used.
func ValidatePickSet(picks []model.Pick, gameCount int) []string {
	var issues []string
	seenConf := make(map[int]int, len(picks))
	seenGame := make(map[string]bool, len(picks))
	for _, p := range picks {
		if seenGame[p.GameID] {
			issues = append(issues, fmt.Sprintf("game %s picked more than once", p.GameID))
		}
		seenGame[p.GameID] = true
		if p.Confidence < 1 || (gameCount > 0 && p.Confidence > gameCount) {
			issues = append(issues, fmt.Sprintf("confidence %d outside 1..%d", p.Confidence, gameCount))
			continue
		}
		seenConf[p.Confidence]++
	}
	dups := make([]int, 0)
	highest := 0
	for conf, n := range seenConf {
		if n > 1 {
			dups = append(dups, conf)
		}
		highest = max(highest, conf)
	}
	sort.Ints(dups)
	for _, conf := range dups {
		issues = append(issues, fmt.Sprintf("confidence %d used %d times", conf, seenConf[conf]))
	}
	for conf := 1; conf < highest; conf++ {
		if seenConf[conf] == 0 {
			issues = append(issues, fmt.Sprintf("confidence %d missing", conf))
		}
	}
	if gameCount > 0 && len(picks) > gameCount {
		issues = append(issues, fmt.Sprintf("%d picks for %d games", len(picks), gameCount))
	}
	return issues
}

// ScoreWeek scores every participant that has picks in the week. Records are
// returned sorted by participant id so the output does not depend on
// scheduling order.
func (c *Calculator) ScoreWeek(ctx context.Context, games []model.Game, picks []model.Pick) ([]model.ScoreRecord, error) {
	byGame := make(map[string]model.Game, len(games))
	var week model.WeekKey
	for i, g := range games {
		byGame[g.ID] = g
		if i == 0 {
			week = g.WeekKey()
		}
	}

	byParticipant := make(map[string][]model.Pick)
	for _, p := range picks {
		byParticipant[p.ParticipantID] = append(byParticipant[p.ParticipantID], p)
	}
	ids := make([]string, 0, len(byParticipant))
	for id := range byParticipant {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]model.ScoreRecord, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("score participant %s: %w", id, err)
			}
			rec := ScoreParticipant(id, byGame, byParticipant[id])
			rec.Week = week
			if c.validate {
				if issues := ValidatePickSet(byParticipant[id], len(games)); len(issues) > 0 {
					rec.InvalidPickSet = true
					rec.PickSetIssues = issues
				}
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
