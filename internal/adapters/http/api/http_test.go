package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/poolscore/internal/adapters/mq/queue"
	"github.com/okian/poolscore/internal/adapters/repository"
	"github.com/okian/poolscore/internal/domain/dedupe"
	"github.com/okian/poolscore/internal/domain/model"
	"github.com/okian/poolscore/internal/domain/winners"
	"github.com/smartystreets/goconvey/convey"
)

type pendingQueue struct {
	dedupe.Deduper
	*queue.InMemoryQueue
}

type statsStub map[string]interface{}

func (s statsStub) GetStats() map[string]interface{} { return s }

type pingStub struct{ err error }

func (p pingStub) Ping(context.Context) error { return p.err }

func intPtr(v int) *int { return &v }

// seedWeek stores a decided two-game week 1 where alice beats bob.
func seedWeek(store *repository.MemoryStore) {
	ctx := context.Background()
	var games []model.Game
	for i := 1; i <= 2; i++ {
		games = append(games, model.Game{
			ID: fmt.Sprintf("g%d", i), Season: 2025, SeasonType: model.Regular, Week: 1,
			HomeTeam: fmt.Sprintf("H%d", i), AwayTeam: fmt.Sprintf("A%d", i),
			Kickoff: time.Date(2025, 9, 7, 13+i, 0, 0, 0, time.UTC),
			Status:  model.StatusFinal, Winner: fmt.Sprintf("H%d", i),
			HomeScore: intPtr(21), AwayScore: intPtr(17),
		})
	}
	_ = store.SaveGames(ctx, games)
	_ = store.SavePicks(ctx, []model.Pick{
		{ParticipantID: "alice", PoolID: "p1", GameID: "g1", PredictedWinner: "H1", Confidence: 1},
		{ParticipantID: "alice", PoolID: "p1", GameID: "g2", PredictedWinner: "H2", Confidence: 2},
		{ParticipantID: "bob", PoolID: "p1", GameID: "g1", PredictedWinner: "H1", Confidence: 2},
		{ParticipantID: "bob", PoolID: "p1", GameID: "g2", PredictedWinner: "A2", Confidence: 1},
	})
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](rec *httptest.ResponseRecorder) T {
	var v T
	convey.So(json.Unmarshal(rec.Body.Bytes(), &v), convey.ShouldBeNil)
	return v
}

func TestScopeRoutes(t *testing.T) {
	convey.Convey("Given an API over a seeded store", t, func() {
		store := repository.NewMemoryStore()
		seedWeek(store)
		resolver := winners.NewResolver(store)
		q := &pendingQueue{Deduper: dedupe.NewInMemoryDeduper(), InMemoryQueue: queue.NewInMemoryQueue(queue.WithCapacity(1))}
		h := NewServer(resolver, q, statsStub{"workers": 2}).Router()
		const week = "/pools/p1/weeks/2025/regular/1"

		convey.Convey("When the week is resolved", func() {
			rec := do(h, http.MethodPost, week+"/resolve", "")

			convey.Convey("Then 201 carries the record and standings", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusCreated)
				body := decode[resolveResponse](rec)
				convey.So(body.Outcome, convey.ShouldEqual, model.OutcomeResolved)
				convey.So(body.Record.Winners, convey.ShouldResemble, []string{"alice"})
				convey.So(body.Standings, convey.ShouldHaveLength, 2)
			})

			convey.Convey("Then a repeat returns the existing record with 200", func() {
				again := do(h, http.MethodPost, week+"/resolve", "")
				convey.So(again.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(decode[resolveResponse](again).Outcome, convey.ShouldEqual, model.OutcomeExisting)
			})

			convey.Convey("Then the winner can be read back", func() {
				got := do(h, http.MethodGet, week+"/winner", "")
				convey.So(got.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(decode[model.WinnerRecord](got).ScopeID, convey.ShouldEqual, "2025:regular:1")
			})

			convey.Convey("Then invalidation removes it", func() {
				del := do(h, http.MethodDelete, week+"/resolve", "")
				convey.So(del.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(decode[invalidateResponse](del).Deleted, convey.ShouldBeTrue)
				convey.So(do(h, http.MethodGet, week+"/winner", "").Code, convey.ShouldEqual, http.StatusNotFound)
			})
		})

		convey.Convey("When a week is not ready", func() {
			rec := do(h, http.MethodPost, "/pools/p1/weeks/2025/regular/2/resolve", "")

			convey.Convey("Then the outcome is reported with 200", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(decode[resolveResponse](rec).Outcome, convey.ShouldEqual, model.OutcomeNotReady)
			})
		})

		convey.Convey("When standings are requested before resolution", func() {
			rec := do(h, http.MethodGet, week+"/standings", "")

			convey.Convey("Then they are computed without storing a record", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(decode[[]model.Standing](rec)[0].ParticipantID, convey.ShouldEqual, "alice")
				convey.So(store.WinnerCount(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When path parameters are malformed", func() {
			convey.So(do(h, http.MethodPost, "/pools/p1/weeks/2025/spring/1/resolve", "").Code, convey.ShouldEqual, http.StatusBadRequest)
			convey.So(do(h, http.MethodPost, "/pools/p1/weeks/x/regular/1/resolve", "").Code, convey.ShouldEqual, http.StatusBadRequest)
			convey.So(do(h, http.MethodPost, "/pools/p1/weeks/2025/regular/0/resolve", "").Code, convey.ShouldEqual, http.StatusBadRequest)
		})

		convey.Convey("When the period is unknown", func() {
			rec := do(h, http.MethodPost, "/pools/p1/periods/2025/Q7/resolve", "")
			convey.So(rec.Code, convey.ShouldEqual, http.StatusNotFound)
		})

		convey.Convey("When the season review is requested", func() {
			rec := do(h, http.MethodGet, "/pools/p1/seasons/2025/review", "")
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(rec.Body.String(), convey.ShouldContainSubstring, `"participant_id":"alice"`)
		})

		convey.Convey("When operational endpoints are hit", func() {
			convey.So(do(h, http.MethodGet, "/healthz", "").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(do(h, http.MethodGet, "/metrics", "").Code, convey.ShouldEqual, http.StatusOK)
			stats := do(h, http.MethodGet, "/stats", "")
			convey.So(decode[map[string]any](stats)["workers"], convey.ShouldEqual, 2.0)
		})
	})
}

func TestResolveAsync(t *testing.T) {
	convey.Convey("Given a queue with room for one job", t, func() {
		q := &pendingQueue{Deduper: dedupe.NewInMemoryDeduper(), InMemoryQueue: queue.NewInMemoryQueue(queue.WithCapacity(1))}
		h := NewServer(winners.NewResolver(repository.NewMemoryStore()), q, nil).Router()
		const path = "/pools/p1/resolve-async"

		convey.Convey("Then a week is accepted once and reported duplicate after", func() {
			body := `{"scope_type":"week","season":2025,"season_type":"regular","week":3}`
			first := do(h, http.MethodPost, path, body)
			convey.So(first.Code, convey.ShouldEqual, http.StatusAccepted)
			convey.So(decode[ackResponse](first).Scope, convey.ShouldEqual, "p1/week/2025:regular:3")

			second := do(h, http.MethodPost, path, body)
			convey.So(second.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(decode[ackResponse](second).Duplicate, convey.ShouldBeTrue)
		})

		convey.Convey("Then a full queue answers 429 and releases the key", func() {
			convey.So(do(h, http.MethodPost, path, `{"scope_type":"season","season":2025}`).Code, convey.ShouldEqual, http.StatusAccepted)
			body := `{"scope_type":"period","season":2025,"period":"Q1"}`
			convey.So(do(h, http.MethodPost, path, body).Code, convey.ShouldEqual, http.StatusTooManyRequests)
			convey.So(q.SeenAndRecord(context.Background(), "p1/period/2025:Q1"), convey.ShouldBeFalse)
		})

		convey.Convey("Then malformed bodies are rejected", func() {
			convey.So(do(h, http.MethodPost, path, `{`).Code, convey.ShouldEqual, http.StatusBadRequest)
			convey.So(do(h, http.MethodPost, path, `{"scope_type":"decade","season":2025}`).Code, convey.ShouldEqual, http.StatusBadRequest)
			convey.So(do(h, http.MethodPost, path, `{"scope_type":"week","season":2025,"season_type":"regular"}`).Code, convey.ShouldEqual, http.StatusBadRequest)
		})
	})
}

type failingResolver struct{ Resolver }

func (failingResolver) Resolve(context.Context, model.Scope) (winners.Resolution, error) {
	return winners.Resolution{}, fmt.Errorf("%w: db down", winners.ErrUpstream)
}

type slowResolver struct{ Resolver }

func (slowResolver) Resolve(context.Context, model.Scope) (winners.Resolution, error) {
	return winners.Resolution{}, fmt.Errorf("%w: picks p1/2025: %w", winners.ErrUpstream, context.DeadlineExceeded)
}

func TestErrorsAndLimits(t *testing.T) {
	convey.Convey("Given a resolver whose store is down", t, func() {
		h := NewServer(failingResolver{}, nil, nil, WithPinger(pingStub{err: errors.New("no db")})).Router()

		convey.Convey("Then resolution answers 503", func() {
			rec := do(h, http.MethodPost, "/pools/p1/seasons/2025/resolve", "")
			convey.So(rec.Code, convey.ShouldEqual, http.StatusServiceUnavailable)
			convey.So(decode[errorResponse](rec).Code, convey.ShouldEqual, "upstream_unavailable")
		})

		convey.Convey("Then health reports unavailable", func() {
			convey.So(do(h, http.MethodGet, "/healthz", "").Code, convey.ShouldEqual, http.StatusServiceUnavailable)
		})
	})

	convey.Convey("Given a store call that outlives the request deadline", t, func() {
		h := NewServer(slowResolver{}, nil, nil).Router()

		convey.Convey("Then resolution answers 504 rather than 503", func() {
			rec := do(h, http.MethodPost, "/pools/p1/seasons/2025/resolve", "")
			convey.So(rec.Code, convey.ShouldEqual, http.StatusGatewayTimeout)
			convey.So(decode[errorResponse](rec).Code, convey.ShouldEqual, "timeout")
		})
	})

	convey.Convey("Given a rate limit of one trigger", t, func() {
		store := repository.NewMemoryStore()
		h := NewServer(winners.NewResolver(store), nil, nil, WithRateLimit(0.001, 1)).Router()
		const path = "/pools/p1/seasons/2025/resolve"

		convey.Convey("Then the second trigger is refused while reads pass", func() {
			convey.So(do(h, http.MethodPost, path, "").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(do(h, http.MethodPost, path, "").Code, convey.ShouldEqual, http.StatusTooManyRequests)
			convey.So(do(h, http.MethodGet, "/pools/p1/seasons/2025/standings", "").Code, convey.ShouldEqual, http.StatusOK)
		})
	})
}
