// Package winners resolves weekly, period and season winners of a pool.
package winners

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/okian/poolscore/internal/domain/aggregate"
	"github.com/okian/poolscore/internal/domain/model"
	"github.com/okian/poolscore/internal/domain/scoring"
	"github.com/okian/poolscore/internal/domain/tiebreak"
	"github.com/okian/poolscore/pkg/logger"
	"github.com/okian/poolscore/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/okian/poolscore/internal/domain/winners"

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithPolicy sets the window and tie-break policy.
func WithPolicy(p Policy) Option {
	return func(r *Resolver) {
		r.policy = p
	}
}

// WithScorer replaces the weekly score calculator.
func WithScorer(s scoring.Scorer) Option {
	return func(r *Resolver) {
		if s != nil {
			r.scorer = s
		}
	}
}

// WithPublisher sets the sink for newly created records.
func WithPublisher(p Publisher) Option {
	return func(r *Resolver) {
		r.publisher = p
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// WithTracer sets the tracer used for resolution spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Resolver) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithClock sets the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator sets the record id generator.
func WithIDGenerator(gen func() string) Option {
	return func(r *Resolver) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// Resolution is the result of one Resolve call.
type Resolution struct {
	Outcome model.Outcome
	// Record is nil for NotReady and NoParticipants.
	Record *model.WinnerRecord
	// Standings is filled for freshly created records only.
	Standings []model.Standing
}

// Resolver computes and persists winner records.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	store     Store
	scorer    scoring.Scorer
	policy    Policy
	publisher Publisher
	log       logger.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

// NewResolver creates a resolver over store.
func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		scorer: scoring.NewCalculator(),
		policy: DefaultPolicy(),
		log:    logger.Nop(),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the resolver's policy.
func (r *Resolver) Policy() Policy { return r.policy }

// Resolve returns the winner record of scope, creating it when every game in
// the scope is terminal and no record exists yet. Only collaborator failures
// and invalid scopes are errors.
func (r *Resolver) Resolve(ctx context.Context, scope model.Scope) (res Resolution, err error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "Resolver.Resolve", trace.WithAttributes(scopeAttrs(scope)...))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			metrics.RecordResolutionError(string(scope.Type))
		} else {
			span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
			metrics.RecordResolution(string(scope.Type), string(res.Outcome), float64(time.Since(start).Microseconds())/1000)
		}
		span.End()
	}()

	if err := scope.Validate(); err != nil {
		return Resolution{}, err
	}
	window, err := r.policy.Window(scope)
	if err != nil {
		return Resolution{}, err
	}
	log := r.log.With(logger.String("scope", scope.Key()))

	existing, err := r.store.FindWinner(ctx, scope)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: find winner %s: %w", ErrUpstream, scope, err)
	}
	if existing != nil {
		log.Debug(ctx, "existing record returned")
		return Resolution{Outcome: model.OutcomeExisting, Record: existing}, nil
	}

	snap, err := r.load(ctx, scope, window)
	if err != nil {
		return Resolution{}, err
	}
	if !snap.ready(window) {
		log.Debug(ctx, "scope not ready")
		return Resolution{Outcome: model.OutcomeNotReady}, nil
	}

	totals, err := r.totals(ctx, scope, snap)
	if err != nil {
		return Resolution{}, err
	}
	if len(totals) == 0 {
		log.Info(ctx, "scope has no participants")
		return Resolution{Outcome: model.OutcomeNoParticipants}, nil
	}

	tbWeeks, enabled := r.policy.TieBreakWeeks(scope, window)
	d, err := r.decide(ctx, scope.PoolID, scope.Season, tbWeeks, enabled, snap.gamesByWeek, totals)
	if err != nil {
		return Resolution{}, err
	}

	rec := r.buildRecord(scope, totals, d)
	standings := buildStandings(totals, d)

	stored, err := r.store.InsertWinnerIfAbsent(ctx, rec)
	if errors.Is(err, ErrConflict) {
		metrics.RecordRaceConflict()
		log.Warn(ctx, "concurrent resolution won the insert, re-reading")
		winner, ferr := r.store.FindWinner(ctx, scope)
		if ferr != nil {
			return Resolution{}, fmt.Errorf("%w: re-read winner %s: %w", ErrUpstream, scope, ferr)
		}
		if winner == nil {
			return Resolution{}, fmt.Errorf("%w: winner %s conflicted but is missing", ErrUpstream, scope)
		}
		return Resolution{Outcome: model.OutcomeExisting, Record: winner}, nil
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: insert winner %s: %w", ErrUpstream, scope, err)
	}

	r.observe(ctx, log, scope, d, stored)
	return Resolution{Outcome: model.OutcomeResolved, Record: &stored, Standings: standings}, nil
}

// Standings ranks the scope's participants from the games decided so far.
// Nothing is persisted and readiness is not required.
func (r *Resolver) Standings(ctx context.Context, scope model.Scope) ([]model.Standing, error) {
	ctx, span := r.tracer.Start(ctx, "Resolver.Standings", trace.WithAttributes(scopeAttrs(scope)...))
	defer span.End()

	if err := scope.Validate(); err != nil {
		return nil, err
	}
	window, err := r.policy.Window(scope)
	if err != nil {
		return nil, err
	}
	snap, err := r.load(ctx, scope, window)
	if err != nil {
		return nil, err
	}
	totals, err := r.totals(ctx, scope, snap)
	if err != nil || len(totals) == 0 {
		return nil, err
	}
	tbWeeks, enabled := r.policy.TieBreakWeeks(scope, window)
	d, err := r.decide(ctx, scope.PoolID, scope.Season, tbWeeks, enabled, snap.gamesByWeek, totals)
	if err != nil {
		return nil, err
	}
	return buildStandings(totals, d), nil
}

// Review returns display statistics for every participant of a season.
func (r *Resolver) Review(ctx context.Context, poolID string, season int) ([]aggregate.Review, error) {
	scope := model.SeasonScope(poolID, season)
	ctx, span := r.tracer.Start(ctx, "Resolver.Review", trace.WithAttributes(scopeAttrs(scope)...))
	defer span.End()

	if err := scope.Validate(); err != nil {
		return nil, err
	}
	window := r.policy.SeasonWindow()
	snap, err := r.load(ctx, scope, window)
	if err != nil {
		return nil, err
	}
	won, err := r.weeklyWinners(ctx, scope, snap)
	if err != nil {
		return nil, err
	}
	return aggregate.SeasonReview(window, snap.weekly, won), nil
}

// Invalidate removes the scope's record so the next Resolve recomputes it.
// It reports whether a record existed.
func (r *Resolver) Invalidate(ctx context.Context, scope model.Scope) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "Resolver.Invalidate", trace.WithAttributes(scopeAttrs(scope)...))
	defer span.End()

	if err := scope.Validate(); err != nil {
		return false, err
	}
	if scope.Type == model.ScopePeriod {
		if _, err := r.policy.Period(scope.Period); err != nil {
			return false, err
		}
	}
	deleted, err := r.store.DeleteWinner(ctx, scope)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("%w: delete winner %s: %w", ErrUpstream, scope, err)
	}
	if deleted {
		metrics.RecordInvalidation(string(scope.Type))
		r.log.Info(ctx, "winner record invalidated", logger.String("scope", scope.Key()))
	}
	return deleted, nil
}

// Winner returns the stored record of scope, or nil when it has not been
// resolved yet. It never computes anything.
func (r *Resolver) Winner(ctx context.Context, scope model.Scope) (*model.WinnerRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	rec, err := r.store.FindWinner(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("%w: find winner %s: %w", ErrUpstream, scope, err)
	}
	return rec, nil
}

// PendingScopes lists scopes of active pools that are ready to resolve and
// have no record yet.
func (r *Resolver) PendingScopes(ctx context.Context) ([]model.Scope, error) {
	ctx, span := r.tracer.Start(ctx, "Resolver.PendingScopes")
	defer span.End()

	pools, err := r.store.ActivePools(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: active pools: %w", ErrUpstream, err)
	}
	window := r.policy.SeasonWindow()
	readyBySeason := make(map[int]map[model.WeekKey]bool)

	var out []model.Scope
	for _, ps := range pools {
		ready, ok := readyBySeason[ps.Season]
		if !ok {
			games, err := r.store.GamesForWeeks(ctx, ps.Season, window)
			if err != nil {
				return nil, fmt.Errorf("%w: games for season %d: %w", ErrUpstream, ps.Season, err)
			}
			ready = readyWeeks(groupGames(games))
			readyBySeason[ps.Season] = ready
		}

		done := make(map[string]bool)
		for _, st := range []model.ScopeType{model.ScopeWeek, model.ScopePeriod, model.ScopeSeason} {
			recs, err := r.store.ListWinners(ctx, ps.PoolID, st, ps.Season)
			if err != nil {
				return nil, fmt.Errorf("%w: list winners %s: %w", ErrUpstream, ps.PoolID, err)
			}
			for _, rec := range recs {
				done[string(rec.ScopeType)+"/"+rec.ScopeID] = true
			}
		}
		add := func(s model.Scope, weeks []model.WeekKey) {
			if done[string(s.Type)+"/"+s.ID()] {
				return
			}
			for _, k := range weeks {
				if !ready[k] {
					return
				}
			}
			out = append(out, s)
		}

		for _, k := range window {
			add(model.WeekScope(ps.PoolID, ps.Season, k.SeasonType, k.Week), []model.WeekKey{k})
		}
		for _, p := range r.policy.Periods {
			add(model.PeriodScope(ps.PoolID, ps.Season, p.Name), p.Weeks())
		}
		add(model.SeasonScope(ps.PoolID, ps.Season), window)
	}
	return out, nil
}

// snapshot is everything read for one scope.
type snapshot struct {
	gamesByWeek map[model.WeekKey][]model.Game
	weekly      map[model.WeekKey][]model.ScoreRecord
}

func (s *snapshot) ready(window []model.WeekKey) bool {
	ready := readyWeeks(s.gamesByWeek)
	for _, k := range window {
		if !ready[k] {
			return false
		}
	}
	return true
}

// load fetches the window's games and picks once and scores every week.
func (r *Resolver) load(ctx context.Context, scope model.Scope, window []model.WeekKey) (*snapshot, error) {
	ctx, span := r.tracer.Start(ctx, "Resolver.load")
	defer span.End()

	games, err := r.store.GamesForWeeks(ctx, scope.Season, window)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: games for %s: %w", ErrUpstream, scope, err)
	}
	picks, err := r.store.PicksForWeeks(ctx, scope.PoolID, scope.Season, window)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: picks for %s: %w", ErrUpstream, scope, err)
	}
	span.SetAttributes(attribute.Int("games", len(games)), attribute.Int("picks", len(picks)))

	snap := &snapshot{
		gamesByWeek: groupGames(games),
		weekly:      make(map[model.WeekKey][]model.ScoreRecord, len(window)),
	}
	weekOfGame := make(map[string]model.WeekKey, len(games))
	for _, g := range games {
		weekOfGame[g.ID] = g.WeekKey()
	}
	picksByWeek := make(map[model.WeekKey][]model.Pick)
	for _, p := range picks {
		if k, ok := weekOfGame[p.GameID]; ok {
			picksByWeek[k] = append(picksByWeek[k], p)
		}
	}
	for _, k := range window {
		if len(picksByWeek[k]) == 0 {
			continue
		}
		recs, err := r.scorer.ScoreWeek(ctx, snap.gamesByWeek[k], picksByWeek[k])
		if err != nil {
			return nil, fmt.Errorf("score %s week %s: %w", scope, k, err)
		}
		snap.weekly[k] = recs
	}
	return snap, nil
}

// totals aggregates the snapshot; period and season scopes also count weeks won.
func (r *Resolver) totals(ctx context.Context, scope model.Scope, snap *snapshot) ([]aggregate.Totals, error) {
	window, err := r.policy.Window(scope)
	if err != nil {
		return nil, err
	}
	if scope.Type == model.ScopeWeek {
		return aggregate.Aggregate(window, snap.weekly, nil), nil
	}
	won, err := r.weeklyWinners(ctx, scope, snap)
	if err != nil {
		return nil, err
	}
	return aggregate.Aggregate(window, snap.weekly, won), nil
}

// weeklyWinners prefers persisted weekly records and computes the rest for
// weeks whose games are all terminal.
func (r *Resolver) weeklyWinners(ctx context.Context, scope model.Scope, snap *snapshot) (map[model.WeekKey][]string, error) {
	window, err := r.policy.Window(scope)
	if err != nil {
		return nil, err
	}
	persisted, err := r.store.ListWinners(ctx, scope.PoolID, model.ScopeWeek, scope.Season)
	if err != nil {
		return nil, fmt.Errorf("%w: weekly winners for %s: %w", ErrUpstream, scope, err)
	}
	byID := make(map[string][]string, len(persisted))
	for _, rec := range persisted {
		byID[rec.ScopeID] = rec.Winners
	}

	ready := readyWeeks(snap.gamesByWeek)
	out := make(map[model.WeekKey][]string, len(window))
	for _, k := range window {
		if ids, ok := byID[model.WeekScope(scope.PoolID, scope.Season, k.SeasonType, k.Week).ID()]; ok {
			out[k] = ids
			continue
		}
		if !ready[k] || len(snap.weekly[k]) == 0 {
			continue
		}
		weekTotals := aggregate.Aggregate([]model.WeekKey{k}, snap.weekly, nil)
		d, err := r.decide(ctx, scope.PoolID, scope.Season, []model.WeekKey{k}, r.policy.WeekHasTieBreak(k), snap.gamesByWeek, weekTotals)
		if err != nil {
			return nil, err
		}
		out[k] = d.results[0].Winners
	}
	return out, nil
}

// decision is the ranking of a scope with every tie group resolved.
type decision struct {
	groups  []tiebreak.Group
	results []tiebreak.Result
	// answerWeek is the week each tied participant's guess came from.
	answerWeek map[string]model.WeekKey
	answers    map[model.WeekKey]weekAnswer
}

// weekAnswer is the tie-break question of a week and its actual value.
type weekAnswer struct {
	question string
	actual   *int
}

// decide ranks totals and breaks ties. Guesses are searched through weeks in
// order; each tied participant uses the first week holding a guess of theirs,
// measured against that week's designated game or its override.
func (r *Resolver) decide(ctx context.Context, poolID string, season int, weeks []model.WeekKey, enabled bool, gamesByWeek map[model.WeekKey][]model.Game, totals []aggregate.Totals) (decision, error) {
	entries := make([]tiebreak.Entry, len(totals))
	for i, t := range totals {
		entries[i] = tiebreak.Entry{ParticipantID: t.ParticipantID, Total: t.Points}
	}
	d := decision{
		groups:     tiebreak.DetectTies(tiebreak.Rank(entries)),
		answerWeek: make(map[string]model.WeekKey),
		answers:    make(map[model.WeekKey]weekAnswer),
	}

	answers := make(map[string]tiebreak.Answer)
	if enabled && anyTied(d.groups) {
		pending := make(map[string]bool)
		for _, g := range d.groups {
			if g.Tied() {
				for _, id := range g.Members {
					pending[id] = true
				}
			}
		}
		for _, wk := range weeks {
			if len(pending) == 0 {
				break
			}
			tb, err := r.store.TieBreakEntries(ctx, poolID, season, wk)
			if err != nil {
				return decision{}, fmt.Errorf("%w: tie-break entries %s/%d/%s: %w", ErrUpstream, poolID, season, wk, err)
			}
			var found []model.TieBreakEntry
			for _, e := range tb {
				if pending[e.ParticipantID] {
					delete(pending, e.ParticipantID)
					found = append(found, e)
				}
			}
			if len(found) == 0 {
				continue
			}
			wa, err := r.weekAnswer(ctx, poolID, season, wk, gamesByWeek[wk])
			if err != nil {
				return decision{}, err
			}
			d.answers[wk] = wa
			for _, e := range found {
				answers[e.ParticipantID] = tiebreak.Answer{Guess: e.Guess, Actual: wa.actual}
				d.answerWeek[e.ParticipantID] = wk
			}
		}
	}

	d.results = make([]tiebreak.Result, len(d.groups))
	for i, g := range d.groups {
		d.results[i] = tiebreak.ResolveAnswers(g.Members, answers, enabled)
	}
	return d, nil
}

// weekAnswer reads the designated game of a week and any override.
func (r *Resolver) weekAnswer(ctx context.Context, poolID string, season int, wk model.WeekKey, games []model.Game) (weekAnswer, error) {
	var wa weekAnswer
	if g, ok := tiebreak.DesignatedGame(games); ok {
		wa.question = tiebreak.Question(g)
		if v, ok := tiebreak.ActualValue(g); ok {
			wa.actual = &v
		}
	}
	override, err := r.store.TieBreakOverride(ctx, poolID, season, wk)
	if err != nil {
		return weekAnswer{}, fmt.Errorf("%w: tie-break override %s/%d/%s: %w", ErrUpstream, poolID, season, wk, err)
	}
	if override != nil {
		v := *override
		wa.actual = &v
	}
	return wa, nil
}

func (r *Resolver) buildRecord(scope model.Scope, totals []aggregate.Totals, d decision) model.WinnerRecord {
	byID := indexTotals(totals)
	top := d.results[0]

	var flagged []string
	for _, t := range totals {
		if t.Flagged {
			flagged = append(flagged, t.ParticipantID)
		}
	}
	sort.Strings(flagged)

	rec := model.WinnerRecord{
		ID:                  r.newID(),
		PoolID:              scope.PoolID,
		ScopeType:           scope.Type,
		ScopeID:             scope.ID(),
		Season:              scope.Season,
		Winners:             top.Winners,
		WinnerPoints:        d.groups[0].Total,
		WinnerCorrectPicks:  byID[top.Winners[0]].CorrectPicks,
		TieBreakerUsed:      top.Used,
		TotalParticipants:   len(totals),
		FlaggedParticipants: flagged,
		CreatedAt:           r.now().UTC().Truncate(time.Microsecond),
	}
	if top.Used {
		w, _ := top.Winner()
		wa := d.answers[d.answerWeek[w.ParticipantID]]
		rec.TieBreakerQuestion = wa.question
		if wa.actual != nil {
			v := *wa.actual
			rec.TieBreakerAnswer = &v
		}
		rec.WinnerTieBreakerGuess = w.Guess
		rec.TieBreakerDifference = w.Difference
	}
	return rec
}

// buildStandings flattens the resolved groups. Members of a group that could
// not be separated share a rank; Winner marks first place.
func buildStandings(totals []aggregate.Totals, d decision) []model.Standing {
	byID := indexTotals(totals)
	out := make([]model.Standing, 0, len(totals))
	rank := 1
	for gi, g := range d.groups {
		res := d.results[gi]
		for _, p := range res.Order {
			t := byID[p.ParticipantID]
			out = append(out, model.Standing{
				Rank:               rank + p.Position - 1,
				ParticipantID:      p.ParticipantID,
				Points:             t.Points,
				CorrectPicks:       t.CorrectPicks,
				TotalPicks:         t.TotalPicks,
				WeeksPlayed:        t.WeeksPlayed,
				WeeksWon:           t.WeeksWon,
				TieBreakGuess:      p.Guess,
				TieBreakDifference: p.Difference,
				Winner:             gi == 0 && p.Position == 1,
			})
		}
		rank += len(g.Members)
	}
	return out
}

func (r *Resolver) observe(ctx context.Context, log logger.Logger, scope model.Scope, d decision, rec model.WinnerRecord) {
	scopeType := string(scope.Type)
	if d.groups[0].Tied() {
		metrics.RecordTieBreak(scopeType, rec.TieBreakerUsed)
	}
	if len(rec.Winners) > 1 {
		metrics.RecordCoWinners(scopeType)
	}
	if len(rec.FlaggedParticipants) > 0 {
		metrics.RecordFlaggedPickSets(len(rec.FlaggedParticipants))
		log.Warn(ctx, "invalid pick sets scored best-effort", logger.Strings("participants", rec.FlaggedParticipants))
	}
	log.Info(ctx, "winner resolved",
		logger.Strings("winners", rec.Winners),
		logger.Int("points", rec.WinnerPoints),
		logger.Bool("tie_breaker_used", rec.TieBreakerUsed),
		logger.Int("participants", rec.TotalParticipants))

	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishWinner(ctx, rec); err != nil {
		log.Warn(ctx, "publish winner event failed", logger.Error(err))
	}
}

func groupGames(games []model.Game) map[model.WeekKey][]model.Game {
	out := make(map[model.WeekKey][]model.Game)
	for _, g := range games {
		out[g.WeekKey()] = append(out[g.WeekKey()], g)
	}
	return out
}

// readyWeeks marks weeks that have games and no game left to play.
func readyWeeks(byWeek map[model.WeekKey][]model.Game) map[model.WeekKey]bool {
	out := make(map[model.WeekKey]bool, len(byWeek))
	for k, games := range byWeek {
		ready := len(games) > 0
		for _, g := range games {
			if !g.Status.IsTerminal() {
				ready = false
				break
			}
		}
		out[k] = ready
	}
	return out
}

func anyTied(groups []tiebreak.Group) bool {
	for _, g := range groups {
		if g.Tied() {
			return true
		}
	}
	return false
}

func indexTotals(totals []aggregate.Totals) map[string]aggregate.Totals {
	out := make(map[string]aggregate.Totals, len(totals))
	for _, t := range totals {
		out[t.ParticipantID] = t
	}
	return out
}

func scopeAttrs(scope model.Scope) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("pool_id", scope.PoolID),
		attribute.String("scope_type", string(scope.Type)),
		attribute.String("scope_id", scope.ID()),
	}
}
