package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/poolscore/internal/adapters/mq/queue"
	"github.com/okian/poolscore/internal/domain/model"
	"github.com/okian/poolscore/pkg/logger"
)

// SourceHTTP tags jobs queued through the API.
const SourceHTTP = "http"

// asyncRequest mirrors the OpenAPI schema for POST /pools/{pool}/resolve-async.
type asyncRequest struct {
	ScopeType  model.ScopeType `json:"scope_type"`
	Season     int             `json:"season"`
	SeasonType string          `json:"season_type"`
	Week       int             `json:"week"`
	Period     string          `json:"period"`
}

func (a asyncRequest) scope(pool string) (model.Scope, error) {
	scope := model.Scope{PoolID: pool, Type: a.ScopeType, Season: a.Season, Week: a.Week, Period: a.Period}
	switch a.ScopeType {
	case model.ScopeWeek:
		st, err := model.ParseSeasonType(a.SeasonType)
		if err != nil {
			return model.Scope{}, err
		}
		scope = model.WeekScope(pool, a.Season, st, a.Week)
	case model.ScopePeriod:
		scope = model.PeriodScope(pool, a.Season, a.Period)
	case model.ScopeSeason:
		scope = model.SeasonScope(pool, a.Season)
	}
	return scope, scope.Validate()
}

type ackResponse struct {
	Status    string `json:"status"`
	Scope     string `json:"scope"`
	Duplicate bool   `json:"duplicate"`
}

// handleResolveAsync queues one scope for the worker pool.
func (s *Server) handleResolveAsync(w http.ResponseWriter, r *http.Request) {
	const op = "api.resolve_async"
	pool, err := poolParam(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var req asyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	scope, err := req.scope(pool)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	key := scope.Key()
	if s.enqueuer.SeenAndRecord(r.Context(), key) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Scope: key, Duplicate: true})
		return
	}
	if !s.enqueuer.Enqueue(r.Context(), queue.Job{Scope: scope, Source: SourceHTTP}) {
		s.enqueuer.Unrecord(r.Context(), key)
		s.logger.Warn(r.Context(), "queue full", logger.String("scope", key))
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Scope: key})
}
