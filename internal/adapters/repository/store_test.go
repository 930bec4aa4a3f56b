package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/poolscore/internal/adapters/repository"
	"github.com/okian/poolscore/internal/domain/model"
	"github.com/okian/poolscore/internal/domain/winners"
	. "github.com/smartystreets/goconvey/convey"
)

func intPtr(v int) *int { return &v }

func reg(w int) model.WeekKey { return model.WeekKey{SeasonType: model.Regular, Week: w} }

func newGormStore(t *testing.T) *repository.GormStore {
	t.Helper()
	db, err := repository.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := repository.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := repository.NewGormStore(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(ctx context.Context, s repository.Store) {
	kick := time.Date(2025, 9, 7, 17, 0, 0, 0, time.UTC)
	So(s.SaveGames(ctx, []model.Game{
		{ID: "g1", Season: 2025, SeasonType: model.Regular, Week: 1, HomeTeam: "KC", AwayTeam: "BAL", Kickoff: kick, Status: model.StatusFinal, Winner: "KC", HomeScore: intPtr(27), AwayScore: intPtr(20)},
		{ID: "g2", Season: 2025, SeasonType: model.Regular, Week: 1, HomeTeam: "BUF", AwayTeam: "NYJ", Kickoff: kick.Add(time.Hour), Status: model.StatusLive},
		{ID: "g3", Season: 2025, SeasonType: model.Regular, Week: 2, HomeTeam: "DAL", AwayTeam: "PHI", Kickoff: kick.AddDate(0, 0, 7), Status: model.StatusScheduled},
		{ID: "p1", Season: 2025, SeasonType: model.Postseason, Week: 1, HomeTeam: "SF", AwayTeam: "GB", Kickoff: kick.AddDate(0, 4, 0), Status: model.StatusScheduled},
		{ID: "old", Season: 2024, SeasonType: model.Regular, Week: 1, HomeTeam: "KC", AwayTeam: "BAL", Status: model.StatusFinal, Winner: "KC"},
	}), ShouldBeNil)
	So(s.SavePicks(ctx, []model.Pick{
		{ParticipantID: "alice", PoolID: "pool", GameID: "g1", PredictedWinner: "KC", Confidence: 2},
		{ParticipantID: "alice", PoolID: "pool", GameID: "g2", PredictedWinner: "BUF", Confidence: 1},
		{ParticipantID: "bob", PoolID: "pool", GameID: "g1", PredictedWinner: "BAL", Confidence: 1},
		{ParticipantID: "bob", PoolID: "other", GameID: "g3", PredictedWinner: "DAL", Confidence: 1},
		{ParticipantID: "carl", PoolID: "pool", GameID: "old", PredictedWinner: "KC", Confidence: 1},
	}), ShouldBeNil)
	So(s.SaveTieBreakEntries(ctx, []model.TieBreakEntry{
		{ParticipantID: "alice", PoolID: "pool", Season: 2025, SeasonType: model.Regular, Week: 1, Guess: 40},
		{ParticipantID: "bob", PoolID: "pool", Season: 2025, SeasonType: model.Regular, Week: 1, Guess: 50},
		{ParticipantID: "bob", PoolID: "pool", Season: 2025, SeasonType: model.Regular, Week: 2, Guess: 10},
	}), ShouldBeNil)
}

func record(scope model.Scope, id string) model.WinnerRecord {
	return model.WinnerRecord{
		ID: id, PoolID: scope.PoolID, ScopeType: scope.Type, ScopeID: scope.ID(), Season: scope.Season,
		Winners: []string{"alice"}, WinnerPoints: 2, WinnerCorrectPicks: 1, TieBreakerUsed: true,
		TieBreakerQuestion: "Combined final score of BAL @ KC", TieBreakerAnswer: intPtr(47),
		WinnerTieBreakerGuess: intPtr(40), TieBreakerDifference: intPtr(7), TotalParticipants: 2,
		CreatedAt: time.Date(2025, 9, 9, 12, 0, 0, 123456000, time.UTC),
	}
}

func storeContract(t *testing.T, name string, newStore func(t *testing.T) repository.Store) {
	Convey("Given a seeded "+name, t, func() {
		ctx := context.Background()
		s := newStore(t)
		seed(ctx, s)

		Convey("Then games are filtered by season and week", func() {
			games, err := s.GamesForWeeks(ctx, 2025, []model.WeekKey{reg(1)})
			So(err, ShouldBeNil)
			So(len(games), ShouldEqual, 2)
			So(games[0].ID, ShouldEqual, "g1")
			So(games[0].Status, ShouldEqual, model.StatusFinal)
			So(*games[0].HomeScore, ShouldEqual, 27)
			So(games[1].Status, ShouldEqual, model.StatusLive)

			games, err = s.GamesForWeeks(ctx, 2025, []model.WeekKey{reg(2), {SeasonType: model.Postseason, Week: 1}})
			So(err, ShouldBeNil)
			So(len(games), ShouldEqual, 2)

			games, err = s.GamesForWeeks(ctx, 2025, nil)
			So(err, ShouldBeNil)
			So(games, ShouldBeEmpty)
		})

		Convey("Then picks are filtered by pool and window", func() {
			picks, err := s.PicksForWeeks(ctx, "pool", 2025, []model.WeekKey{reg(1), reg(2)})
			So(err, ShouldBeNil)
			So(len(picks), ShouldEqual, 3)
			So(picks[0].ParticipantID, ShouldEqual, "alice")
			So(picks[2].ParticipantID, ShouldEqual, "bob")
		})

		Convey("Then re-saving a pick updates it", func() {
			So(s.SavePicks(ctx, []model.Pick{{ParticipantID: "bob", PoolID: "pool", GameID: "g1", PredictedWinner: "KC", Confidence: 2}}), ShouldBeNil)
			picks, err := s.PicksForWeeks(ctx, "pool", 2025, []model.WeekKey{reg(1)})
			So(err, ShouldBeNil)
			So(len(picks), ShouldEqual, 3)
			So(picks[2].PredictedWinner, ShouldEqual, "KC")
			So(picks[2].Confidence, ShouldEqual, 2)
		})

		Convey("Then tie-break entries and overrides are per week", func() {
			entries, err := s.TieBreakEntries(ctx, "pool", 2025, reg(1))
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 2)
			So(entries[1].Guess, ShouldEqual, 50)

			v, err := s.TieBreakOverride(ctx, "pool", 2025, reg(1))
			So(err, ShouldBeNil)
			So(v, ShouldBeNil)
			So(s.SetTieBreakOverride(ctx, "pool", 2025, reg(1), 44), ShouldBeNil)
			So(s.SetTieBreakOverride(ctx, "pool", 2025, reg(1), 45), ShouldBeNil)
			v, err = s.TieBreakOverride(ctx, "pool", 2025, reg(1))
			So(err, ShouldBeNil)
			So(*v, ShouldEqual, 45)
		})

		Convey("Then active pools come from picks", func() {
			pools, err := s.ActivePools(ctx)
			So(err, ShouldBeNil)
			So(pools, ShouldResemble, []winners.PoolSeason{
				{PoolID: "other", Season: 2025},
				{PoolID: "pool", Season: 2024},
				{PoolID: "pool", Season: 2025},
			})
		})

		Convey("When a winner record is inserted", func() {
			scope := model.WeekScope("pool", 2025, model.Regular, 1)
			stored, err := s.InsertWinnerIfAbsent(ctx, record(scope, "id-1"))
			So(err, ShouldBeNil)

			Convey("Then it reads back identically", func() {
				found, err := s.FindWinner(ctx, scope)
				So(err, ShouldBeNil)
				So(found, ShouldNotBeNil)
				So(*found, ShouldResemble, stored)
				So(stored, ShouldResemble, record(scope, "id-1"))
			})

			Convey("Then a second insert for the scope conflicts", func() {
				_, err := s.InsertWinnerIfAbsent(ctx, record(scope, "id-2"))
				So(errors.Is(err, repository.ErrWinnerExists), ShouldBeTrue)
				So(errors.Is(err, winners.ErrConflict), ShouldBeTrue)
			})

			Convey("Then it is listed by scope type", func() {
				recs, err := s.ListWinners(ctx, "pool", model.ScopeWeek, 2025)
				So(err, ShouldBeNil)
				So(len(recs), ShouldEqual, 1)
				recs, err = s.ListWinners(ctx, "pool", model.ScopePeriod, 2025)
				So(err, ShouldBeNil)
				So(recs, ShouldBeEmpty)
			})

			Convey("Then deleting it allows a new insert", func() {
				deleted, err := s.DeleteWinner(ctx, scope)
				So(err, ShouldBeNil)
				So(deleted, ShouldBeTrue)
				deleted, err = s.DeleteWinner(ctx, scope)
				So(err, ShouldBeNil)
				So(deleted, ShouldBeFalse)
				_, err = s.InsertWinnerIfAbsent(ctx, record(scope, "id-3"))
				So(err, ShouldBeNil)
			})
		})

		Convey("When many callers insert the same scope at once", func() {
			scope := model.SeasonScope("pool", 2025)
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				ok, clash int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := s.InsertWinnerIfAbsent(ctx, record(scope, "race-"+string(rune('a'+i))))
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						ok++
					} else if errors.Is(err, winners.ErrConflict) {
						clash++
					}
				}(i)
			}
			wg.Wait()

			Convey("Then exactly one wins", func() {
				So(ok, ShouldEqual, 1)
				So(clash, ShouldEqual, 7)
			})
		})

		Convey("Then a missing record is nil without error", func() {
			rec, err := s.FindWinner(ctx, model.PeriodScope("pool", 2025, "Q1"))
			So(err, ShouldBeNil)
			So(rec, ShouldBeNil)
		})
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, "memory store", func(*testing.T) repository.Store { return repository.NewMemoryStore() })
}

func TestGormStore(t *testing.T) {
	storeContract(t, "sqlite store", func(t *testing.T) repository.Store { return newGormStore(t) })
}
