package winners

import (
	"errors"
	"testing"

	"github.com/okian/poolscore/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPolicy(t *testing.T) {
	Convey("Given the default policy", t, func() {
		p := DefaultPolicy()
		So(p.Validate(), ShouldBeNil)

		Convey("Tie-break weeks follow the schedule", func() {
			So(p.WeekHasTieBreak(model.WeekKey{SeasonType: model.Regular, Week: 9}), ShouldBeTrue)
			So(p.WeekHasTieBreak(model.WeekKey{SeasonType: model.Regular, Week: 10}), ShouldBeFalse)
			So(p.WeekHasTieBreak(model.WeekKey{SeasonType: model.Postseason, Week: 4}), ShouldBeTrue)
			So(p.WeekHasTieBreak(model.WeekKey{SeasonType: model.Preseason, Week: 4}), ShouldBeFalse)

			p.TieBreakAllWeeks = true
			So(p.WeekHasTieBreak(model.WeekKey{SeasonType: model.Regular, Week: 10}), ShouldBeTrue)
		})

		Convey("The season spans regular and postseason weeks", func() {
			w := p.SeasonWindow()
			So(w, ShouldHaveLength, 22)
			So(w[21], ShouldResemble, model.WeekKey{SeasonType: model.Postseason, Week: 4})

			p.IncludePostseason = false
			So(p.SeasonWindow(), ShouldHaveLength, 18)
		})

		Convey("Windows resolve per scope type", func() {
			w, err := p.Window(model.PeriodScope("p", 2025, "Q2"))
			So(err, ShouldBeNil)
			So(w, ShouldHaveLength, 5)
			So(w[0].Week, ShouldEqual, 5)

			w, err = p.Window(model.WeekScope("p", 2025, model.Regular, 3))
			So(err, ShouldBeNil)
			So(w, ShouldResemble, []model.WeekKey{{SeasonType: model.Regular, Week: 3}})

			_, err = p.Window(model.PeriodScope("p", 2025, "Q5"))
			So(errors.Is(err, ErrUnknownPeriod), ShouldBeTrue)
		})

		Convey("Periods and the season search guesses from their closing week back", func() {
			scope := model.PeriodScope("p", 2025, "Q1")
			w, _ := p.Window(scope)
			weeks, ok := p.TieBreakWeeks(scope, w)
			So(ok, ShouldBeTrue)
			So(weeks, ShouldResemble, []model.WeekKey{
				{SeasonType: model.Regular, Week: 4}, {SeasonType: model.Regular, Week: 3},
				{SeasonType: model.Regular, Week: 2}, {SeasonType: model.Regular, Week: 1},
			})

			season := model.SeasonScope("p", 2025)
			weeks, ok = p.TieBreakWeeks(season, p.SeasonWindow())
			So(ok, ShouldBeTrue)
			So(weeks, ShouldHaveLength, 22)
			So(weeks[0], ShouldResemble, model.WeekKey{SeasonType: model.Postseason, Week: 4})

			p.TieBreakSeason = false
			_, ok = p.TieBreakWeeks(season, p.SeasonWindow())
			So(ok, ShouldBeFalse)
		})

		Convey("A week only uses its own guesses", func() {
			scope := model.WeekScope("p", 2025, model.Regular, 9)
			w, _ := p.Window(scope)
			weeks, ok := p.TieBreakWeeks(scope, w)
			So(ok, ShouldBeTrue)
			So(weeks, ShouldResemble, []model.WeekKey{{SeasonType: model.Regular, Week: 9}})
		})

		Convey("Duplicate periods are rejected", func() {
			p.Periods = append(p.Periods, p.Periods[0])
			So(errors.Is(p.Validate(), ErrInvalidScope), ShouldBeTrue)
		})
	})
}
