package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okian/poolscore/internal/domain/model"
)

type scopeParser func(r *http.Request) (model.Scope, error)

type resolveResponse struct {
	Outcome   model.Outcome       `json:"outcome"`
	Record    *model.WinnerRecord `json:"record,omitempty"`
	Standings []model.Standing    `json:"standings,omitempty"`
}

type invalidateResponse struct {
	Deleted bool `json:"deleted"`
}

func intParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", ErrBadRequest, name, raw)
	}
	return v, nil
}

func poolParam(r *http.Request) (string, error) {
	pool := strings.TrimSpace(chi.URLParam(r, "pool"))
	if pool == "" {
		return "", fmt.Errorf("%w: missing pool", ErrBadRequest)
	}
	return pool, nil
}

func weekScope(r *http.Request) (model.Scope, error) {
	pool, err := poolParam(r)
	if err != nil {
		return model.Scope{}, err
	}
	season, err := intParam(r, "season")
	if err != nil {
		return model.Scope{}, err
	}
	st, err := model.ParseSeasonType(chi.URLParam(r, "seasonType"))
	if err != nil {
		return model.Scope{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	week, err := intParam(r, "week")
	if err != nil {
		return model.Scope{}, err
	}
	return model.WeekScope(pool, season, st, week), nil
}

func periodScope(r *http.Request) (model.Scope, error) {
	pool, err := poolParam(r)
	if err != nil {
		return model.Scope{}, err
	}
	season, err := intParam(r, "season")
	if err != nil {
		return model.Scope{}, err
	}
	return model.PeriodScope(pool, season, chi.URLParam(r, "period")), nil
}

func seasonScope(r *http.Request) (model.Scope, error) {
	pool, err := poolParam(r)
	if err != nil {
		return model.Scope{}, err
	}
	season, err := intParam(r, "season")
	if err != nil {
		return model.Scope{}, err
	}
	return model.SeasonScope(pool, season), nil
}

// handleResolve answers 201 when a record was created and 200 for every
// other outcome, including not_ready and no_participants.
func (s *Server) handleResolve(parse scopeParser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := parse(r)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		res, err := s.resolver.Resolve(r.Context(), scope)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		status := http.StatusOK
		if res.Outcome == model.OutcomeResolved {
			status = http.StatusCreated
		}
		writeJSON(w, status, resolveResponse{Outcome: res.Outcome, Record: res.Record, Standings: res.Standings})
	}
}

func (s *Server) handleInvalidate(parse scopeParser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := parse(r)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		deleted, err := s.resolver.Invalidate(r.Context(), scope)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, invalidateResponse{Deleted: deleted})
	}
}

func (s *Server) handleWinner(parse scopeParser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := parse(r)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		rec, err := s.resolver.Winner(r.Context(), scope)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		if rec == nil {
			s.writeDomainError(w, r, fmt.Errorf("%w: no winner for %s", ErrNotFound, scope))
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleStandings(parse scopeParser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := parse(r)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		standings, err := s.resolver.Standings(r.Context(), scope)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		if standings == nil {
			standings = []model.Standing{}
		}
		writeJSON(w, http.StatusOK, standings)
	}
}

// handleReview handles GET /pools/{pool}/seasons/{season}/review.
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	scope, err := seasonScope(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	reviews, err := s.resolver.Review(r.Context(), scope.PoolID, scope.Season)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}
