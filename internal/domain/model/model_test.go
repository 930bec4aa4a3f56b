package model_test

import (
	"errors"
	"testing"

	"github.com/okian/poolscore/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestGameStatus(t *testing.T) {
	Convey("Given feed status strings", t, func() {
		Convey("Then terminal strings map onto terminal statuses", func() {
			for _, raw := range []string{"final", "post", "FINAL", " completed "} {
				s, err := model.ParseGameStatus(raw)
				So(err, ShouldBeNil)
				So(s, ShouldEqual, model.StatusFinal)
				So(s.IsTerminal(), ShouldBeTrue)
			}
			s, err := model.ParseGameStatus("canceled")
			So(err, ShouldBeNil)
			So(s.IsTerminal(), ShouldBeTrue)
		})

		Convey("Then live, scheduled and postponed are not terminal", func() {
			for _, raw := range []string{"in", "live", "pre", "scheduled", "postponed"} {
				s, err := model.ParseGameStatus(raw)
				So(err, ShouldBeNil)
				So(s.IsTerminal(), ShouldBeFalse)
			}
		})

		Convey("Then unknown strings are rejected and never terminal", func() {
			s, err := model.ParseGameStatus("suspended-ish")
			So(errors.Is(err, model.ErrUnknownStatus), ShouldBeTrue)
			So(s.IsTerminal(), ShouldBeFalse)
		})
	})
}

func TestGame(t *testing.T) {
	Convey("Given a final game", t, func() {
		home, away := 24, 21
		g := model.Game{ID: "g1", Status: model.StatusFinal, Winner: "KC", HomeScore: &home, AwayScore: &away}

		Convey("Then it is decided and has a combined score", func() {
			So(g.Decided(), ShouldBeTrue)
			total, ok := g.CombinedScore()
			So(ok, ShouldBeTrue)
			So(total, ShouldEqual, 45)
		})

		Convey("When the winner is missing it is not decided", func() {
			g.Winner = ""
			So(g.Decided(), ShouldBeFalse)
		})

		Convey("When a score is missing there is no combined score", func() {
			g.AwayScore = nil
			_, ok := g.CombinedScore()
			So(ok, ShouldBeFalse)
		})
	})
}

func TestWeekKeyOrdering(t *testing.T) {
	Convey("Weeks order by season segment first", t, func() {
		reg18 := model.WeekKey{SeasonType: model.Regular, Week: 18}
		post1 := model.WeekKey{SeasonType: model.Postseason, Week: 1}
		reg3 := model.WeekKey{SeasonType: model.Regular, Week: 3}
		So(reg18.Less(post1), ShouldBeTrue)
		So(post1.Less(reg18), ShouldBeFalse)
		So(reg3.Less(reg18), ShouldBeTrue)
		So(reg3.String(), ShouldEqual, "regular:3")
	})
}

func TestScope(t *testing.T) {
	Convey("Given scopes of each type", t, func() {
		week := model.WeekScope("pool-1", 2025, model.Regular, 4)
		period := model.PeriodScope("pool-1", 2025, "Q1")
		season := model.SeasonScope("pool-1", 2025)

		Convey("Then ids are stable and distinct", func() {
			So(week.ID(), ShouldEqual, "2025:regular:4")
			So(period.ID(), ShouldEqual, "2025:Q1")
			So(season.ID(), ShouldEqual, "2025")
			So(week.Key(), ShouldEqual, "pool-1/week/2025:regular:4")
		})

		Convey("Then valid scopes pass validation", func() {
			So(week.Validate(), ShouldBeNil)
			So(period.Validate(), ShouldBeNil)
			So(season.Validate(), ShouldBeNil)
		})

		Convey("Then incomplete scopes fail validation", func() {
			bad := []model.Scope{
				model.WeekScope("", 2025, model.Regular, 1),
				model.WeekScope("p", 2025, model.Regular, 0),
				model.WeekScope("p", 2025, model.SeasonType(9), 1),
				model.PeriodScope("p", 2025, ""),
				model.SeasonScope("p", 0),
				{PoolID: "p", Season: 2025, Type: "month"},
			}
			for _, s := range bad {
				So(errors.Is(s.Validate(), model.ErrInvalidScope), ShouldBeTrue)
			}
		})
	})
}

func TestPeriods(t *testing.T) {
	Convey("Given the default periods", t, func() {
		periods := model.DefaultPeriods()

		Convey("Then every period is valid", func() {
			for _, p := range periods {
				So(p.Validate(), ShouldBeNil)
			}
		})

		Convey("Then Q2 spans weeks 5 to 9", func() {
			q2 := periods[1]
			weeks := q2.Weeks()
			So(len(weeks), ShouldEqual, 5)
			So(weeks[0].Week, ShouldEqual, 5)
			So(q2.Last().Week, ShouldEqual, 9)
			So(q2.Contains(model.WeekKey{SeasonType: model.Postseason, Week: 5}), ShouldBeFalse)
		})

		Convey("Then weeks map to their period", func() {
			p, ok := model.PeriodForWeek(periods, model.WeekKey{SeasonType: model.Regular, Week: 14})
			So(ok, ShouldBeTrue)
			So(p.Name, ShouldEqual, "Q3")
			p, ok = model.PeriodForWeek(periods, model.WeekKey{SeasonType: model.Postseason, Week: 2})
			So(ok, ShouldBeTrue)
			So(p.Name, ShouldEqual, "Playoffs")
			_, ok = model.PeriodForWeek(periods, model.WeekKey{SeasonType: model.Preseason, Week: 1})
			So(ok, ShouldBeFalse)
		})

		Convey("Then an inverted range is invalid", func() {
			So(model.PeriodDefinition{Name: "X", SeasonType: model.Regular, StartWeek: 5, EndWeek: 2}.Validate(), ShouldNotBeNil)
		})

		Convey("Then a season type outside preseason to postseason is invalid", func() {
			for _, st := range []model.SeasonType{0, 4, -1} {
				err := model.PeriodDefinition{Name: "X", SeasonType: st, StartWeek: 1, EndWeek: 2}.Validate()
				So(errors.Is(err, model.ErrInvalidScope), ShouldBeTrue)
			}
			So(model.PeriodDefinition{Name: "X", SeasonType: model.Preseason, StartWeek: 1, EndWeek: 2}.Validate(), ShouldBeNil)
		})
	})
}
