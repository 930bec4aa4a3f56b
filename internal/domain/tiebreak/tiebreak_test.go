package tiebreak_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/okian/poolscore/internal/domain/model"
	"github.com/okian/poolscore/internal/domain/tiebreak"
	. "github.com/smartystreets/goconvey/convey"
)

func intPtr(v int) *int { return &v }

func TestDetectTies(t *testing.T) {
	Convey("Given ranked totals", t, func() {
		ranked := tiebreak.Rank([]tiebreak.Entry{
			{ParticipantID: "c", Total: 7},
			{ParticipantID: "a", Total: 10},
			{ParticipantID: "b", Total: 10},
			{ParticipantID: "d", Total: 0},
		})

		Convey("Then equal totals share a group in ranking order", func() {
			groups := tiebreak.DetectTies(ranked)
			So(len(groups), ShouldEqual, 3)
			So(groups[0].Total, ShouldEqual, 10)
			So(groups[0].Members, ShouldResemble, []string{"a", "b"})
			So(groups[0].Tied(), ShouldBeTrue)
			So(groups[1].Tied(), ShouldBeFalse)
		})

		Convey("Then unsorted input is ranked first", func() {
			groups := tiebreak.DetectTies([]tiebreak.Entry{{ParticipantID: "x", Total: 1}, {ParticipantID: "y", Total: 5}, {ParticipantID: "z", Total: 1}})
			So(groups[0].Members, ShouldResemble, []string{"y"})
			So(groups[1].Members, ShouldResemble, []string{"x", "z"})
		})

		Convey("Then everyone on zero is one group", func() {
			groups := tiebreak.DetectTies([]tiebreak.Entry{{ParticipantID: "x", Total: 0}, {ParticipantID: "y", Total: 0}})
			So(len(groups), ShouldEqual, 1)
			So(groups[0].Tied(), ShouldBeTrue)
		})

		Convey("Then no entries means no groups", func() {
			So(tiebreak.DetectTies(nil), ShouldBeEmpty)
		})
	})
}

func TestResolve(t *testing.T) {
	Convey("Given two participants tied at 10", t, func() {
		group := []string{"B", "A"}
		actual := intPtr(44)

		Convey("When A guesses 45 and B guesses 50", func() {
			res := tiebreak.Resolve(group, map[string]int{"A": 45, "B": 50}, actual, true)

			Convey("Then A wins by a difference of 1", func() {
				So(res.Used, ShouldBeTrue)
				So(res.Winners, ShouldResemble, []string{"A"})
				w, ok := res.Winner()
				So(ok, ShouldBeTrue)
				So(*w.Difference, ShouldEqual, 1)
				So(*res.Order[1].Difference, ShouldEqual, 6)
				So(res.Order[1].Position, ShouldEqual, 2)
			})
		})

		Convey("When neither submitted a guess", func() {
			res := tiebreak.Resolve(group, nil, actual, true)

			Convey("Then both are co-winners without a tie-break", func() {
				So(res.Used, ShouldBeFalse)
				So(res.Winners, ShouldResemble, []string{"A", "B"})
			})
		})

		Convey("When both miss by the same amount", func() {
			res := tiebreak.Resolve(group, map[string]int{"A": 41, "B": 47}, actual, true)

			Convey("Then the dead heat yields co-winners", func() {
				So(res.Used, ShouldBeTrue)
				So(res.Winners, ShouldResemble, []string{"A", "B"})
			})
		})

		Convey("When only B guessed, however badly", func() {
			res := tiebreak.Resolve(group, map[string]int{"B": 99}, actual, true)

			Convey("Then B ranks ahead of the non-answer", func() {
				So(res.Winners, ShouldResemble, []string{"B"})
				So(res.Order[1].ParticipantID, ShouldEqual, "A")
				So(res.Order[1].Difference, ShouldBeNil)
			})
		})

		Convey("When the scope has no tie-break", func() {
			res := tiebreak.Resolve(group, map[string]int{"A": 44}, actual, false)

			Convey("Then guesses are ignored", func() {
				So(res.Used, ShouldBeFalse)
				So(res.Winners, ShouldResemble, []string{"A", "B"})
			})
		})

		Convey("When the actual value is unknown", func() {
			res := tiebreak.Resolve(group, map[string]int{"A": 44, "B": 40}, nil, true)

			Convey("Then nobody can be separated", func() {
				So(res.Used, ShouldBeFalse)
				So(len(res.Winners), ShouldEqual, 2)
			})
		})
	})

	Convey("Given random tie groups", t, func() {
		faker := gofakeit.New(7)

		Convey("A strictly closer guess never ranks below a farther one", func() {
			for round := 0; round < 200; round++ {
				size := faker.Number(2, 8)
				group := make([]string, size)
				guesses := make(map[string]int)
				for i := range group {
					group[i] = fmt.Sprintf("p%d", i)
					if faker.Number(0, 4) > 0 {
						guesses[group[i]] = faker.Number(0, 100)
					}
				}
				actual := faker.Number(0, 100)
				res := tiebreak.Resolve(group, guesses, &actual, true)

				pos := make(map[string]tiebreak.Placement)
				for _, p := range res.Order {
					pos[p.ParticipantID] = p
				}
				for _, a := range res.Order {
					for _, b := range res.Order {
						if a.Difference != nil && b.Difference != nil && *a.Difference < *b.Difference {
							So(a.Position, ShouldBeLessThan, b.Position)
						}
						if a.Difference != nil && b.Difference == nil {
							So(a.Position, ShouldBeLessThan, b.Position)
						}
					}
				}
				So(len(pos), ShouldEqual, size)
			}
		})
	})
}

func TestResolveAnswers(t *testing.T) {
	Convey("Given guesses measured against different weeks", t, func() {
		wk3, wk4 := 40, 50
		answers := map[string]tiebreak.Answer{
			"ann": {Guess: 42, Actual: &wk3},
			"ben": {Guess: 55, Actual: &wk4},
			"cat": {Guess: 10, Actual: nil},
		}

		Convey("Then each difference uses its own actual value", func() {
			res := tiebreak.ResolveAnswers([]string{"ben", "ann", "cat"}, answers, true)
			So(res.Used, ShouldBeTrue)
			So(res.Winners, ShouldResemble, []string{"ann"})
			So(*res.Order[0].Difference, ShouldEqual, 2)
			So(*res.Order[1].Difference, ShouldEqual, 5)
			So(res.Order[2].ParticipantID, ShouldEqual, "cat")
			So(res.Order[2].Difference, ShouldBeNil)
		})

		Convey("Then guesses without a known actual leave the tie standing", func() {
			res := tiebreak.ResolveAnswers([]string{"cat", "dan"}, answers, true)
			So(res.Used, ShouldBeFalse)
			So(res.Winners, ShouldResemble, []string{"cat", "dan"})
		})
	})
}

func TestDesignatedGame(t *testing.T) {
	Convey("Given a week of games", t, func() {
		sunday := time.Date(2025, 9, 7, 17, 0, 0, 0, time.UTC)
		home, away := 27, 20
		games := []model.Game{
			{ID: "sun", Kickoff: sunday, Status: model.StatusFinal, HomeTeam: "KC", AwayTeam: "LAC"},
			{ID: "mon", Kickoff: sunday.Add(27 * time.Hour), Status: model.StatusFinal, HomeTeam: "CHI", AwayTeam: "MIN", HomeScore: &home, AwayScore: &away},
			{ID: "tue", Kickoff: sunday.Add(48 * time.Hour), Status: model.StatusCancelled},
		}

		Convey("Then the last non-cancelled game is designated", func() {
			g, ok := tiebreak.DesignatedGame(games)
			So(ok, ShouldBeTrue)
			So(g.ID, ShouldEqual, "mon")
			v, ok := tiebreak.ActualValue(g)
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 47)
			So(tiebreak.Question(g), ShouldEqual, "Combined final score of MIN @ CHI")
		})

		Convey("Then a live game has no actual value", func() {
			g := games[1]
			g.Status = model.StatusLive
			_, ok := tiebreak.ActualValue(g)
			So(ok, ShouldBeFalse)
		})

		Convey("Then an empty week has no designated game", func() {
			_, ok := tiebreak.DesignatedGame(nil)
			So(ok, ShouldBeFalse)
		})
	})
}
