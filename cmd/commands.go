package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/okian/poolscore/internal/adapters/http/api"
	"github.com/okian/poolscore/internal/adapters/http/swagger"
	service "github.com/okian/poolscore/internal/app"
	"github.com/okian/poolscore/internal/config"
	"github.com/okian/poolscore/internal/domain/model"
	"github.com/okian/poolscore/internal/seed"
	"github.com/okian/poolscore/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

var errScope = errors.New("invalid scope flags")

// newService builds a service from configuration. Background options are
// appended last so one-shot commands can switch them off.
func newService(cfg *config.Config, l logger.Logger, extra ...service.Option) *service.Service {
	opts := []service.Option{
		service.WithLogger(l),
		service.WithDatabaseURL(cfg.DatabaseURL),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithScoringParallelism(cfg.ScoringParallelism),
		service.WithResolveCron(cfg.ResolveCron),
		service.WithEvents(cfg.EventsEnabled),
		service.WithPolicy(cfg.Policy()),
	}
	return service.New(append(opts, extra...)...)
}

// oneShot starts a service without cron, events or a worker backlog.
func oneShot(ctx context.Context, env *runtimeEnv) (*service.Service, error) {
	svc := newService(env.cfg, env.log,
		service.WithResolveCron(""),
		service.WithEvents(false),
		service.WithWorkerCount(1),
	)
	if err := svc.Start(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

func stopService(ctx context.Context, svc *service.Service, l logger.Logger) {
	if err := svc.Stop(context.WithoutCancel(ctx)); err != nil {
		l.Error(ctx, "service stop failed", logger.Error(err))
	}
}

// newHTTPServer mounts the API and the docs on one chi router.
func newHTTPServer(cfg *config.Config, svc *service.Service, l logger.Logger) *http.Server {
	apiServer := api.NewServer(svc.Resolver(), svc, svc,
		api.WithRateLimit(rate.Limit(cfg.ResolveRate), cfg.ResolveBurst),
		api.WithPinger(svc),
		api.WithLogger(l),
	)
	r := apiServer.Router()
	swagger.Register(r)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func serveCommand(env *runtimeEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API, the resolution workers and the scheduler",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "override addr"},
		},
		Action: func(c *cli.Context) error {
			if v := c.String("addr"); v != "" {
				env.cfg.Addr = v
			}
			return serve(c.Context, env)
		},
	}
}

func serve(ctx context.Context, env *runtimeEnv) error {
	svc := newService(env.cfg, env.log)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer stopService(ctx, svc, env.log)

	srv := newHTTPServer(env.cfg, svc, env.log)
	errCh := make(chan error, 1)
	go func() {
		env.log.Info(ctx, "starting HTTP server", logger.String("addr", env.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	env.log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		env.log.Error(ctx, "server shutdown failed", logger.Error(err))
		return err
	}
	env.log.Info(ctx, "server stopped")
	return nil
}

func migrateCommand(env *runtimeEnv) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "create or update the database tables",
		Action: func(c *cli.Context) error {
			store, err := service.Connect(c.Context, env.cfg.DatabaseURL, env.log)
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Fprintf(c.App.Writer, "migrated %s\n", store.DB().Dialector.Name())
			return nil
		},
	}
}

func resolveCommand(env *runtimeEnv) *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "resolve one scope and print the result as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "pool", Required: true},
			&cli.IntFlag{Name: "season", Required: true},
			&cli.StringFlag{Name: "scope", Value: "week", Usage: "week, period or season"},
			&cli.StringFlag{Name: "season-type", Value: "regular"},
			&cli.IntFlag{Name: "week"},
			&cli.StringFlag{Name: "period"},
			&cli.BoolFlag{Name: "force", Usage: "delete an existing record first"},
		},
		Action: func(c *cli.Context) error {
			scope, err := scopeFromFlags(c)
			if err != nil {
				return err
			}
			svc, err := oneShot(c.Context, env)
			if err != nil {
				return err
			}
			defer stopService(c.Context, svc, env.log)

			if c.Bool("force") {
				if _, err := svc.Resolver().Invalidate(c.Context, scope); err != nil {
					return err
				}
			}
			res, err := svc.Resolver().Resolve(c.Context, scope)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"scope":     scope.Key(),
				"outcome":   res.Outcome,
				"record":    res.Record,
				"standings": res.Standings,
			})
		},
	}
}

func scopeFromFlags(c *cli.Context) (model.Scope, error) {
	pool, season := c.String("pool"), c.Int("season")
	var scope model.Scope
	switch c.String("scope") {
	case "week":
		st, err := model.ParseSeasonType(c.String("season-type"))
		if err != nil {
			return model.Scope{}, err
		}
		scope = model.WeekScope(pool, season, st, c.Int("week"))
	case "period":
		scope = model.PeriodScope(pool, season, c.String("period"))
	case "season":
		scope = model.SeasonScope(pool, season)
	default:
		return model.Scope{}, fmt.Errorf("%w: unknown scope %q", errScope, c.String("scope"))
	}
	if err := scope.Validate(); err != nil {
		return model.Scope{}, err
	}
	return scope, nil
}

func seedCommand(env *runtimeEnv) *cli.Command {
	defaults := seed.NewConfig()
	return &cli.Command{
		Name:  "seed",
		Usage: "generate a demo pool season",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "pool", Value: defaults.PoolID},
			&cli.IntFlag{Name: "season", Value: defaults.Season},
			&cli.IntFlag{Name: "weeks", Value: defaults.Weeks},
			&cli.IntFlag{Name: "games", Value: defaults.GamesPerWeek, Usage: "regular-season games per week"},
			&cli.IntFlag{Name: "participants", Value: defaults.Participants},
			&cli.BoolFlag{Name: "postseason", Value: defaults.Postseason},
			&cli.IntFlag{Name: "pending-weeks", Usage: "leave the last weeks unplayed"},
			&cli.Uint64Flag{Name: "seed", Usage: "random seed; 0 picks one"},
			&cli.BoolFlag{Name: "resolve", Usage: "resolve every ready scope after seeding"},
		},
		Action: func(c *cli.Context) error {
			opts := []seed.Option{
				seed.WithPool(c.String("pool")),
				seed.WithSeason(c.Int("season")),
				seed.WithWeeks(c.Int("weeks")),
				seed.WithGamesPerWeek(c.Int("games")),
				seed.WithParticipants(c.Int("participants")),
				seed.WithPostseason(c.Bool("postseason")),
				seed.WithPendingWeeks(c.Int("pending-weeks")),
			}
			if s := c.Uint64("seed"); s != 0 {
				opts = append(opts, seed.WithSeed(s))
			}
			gen, err := seed.NewGenerator(seed.NewConfig(opts...))
			if err != nil {
				return err
			}

			svc, err := oneShot(c.Context, env)
			if err != nil {
				return err
			}
			defer stopService(c.Context, svc, env.log)

			ds := gen.Generate()
			if err := seed.Load(c.Context, svc.Store(), ds, env.log); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "seeded pool %s season %d: %d participants, %d games\n",
				ds.Config.PoolID, ds.Config.Season, len(ds.Participants), len(ds.Games))

			if !c.Bool("resolve") {
				return nil
			}
			return resolvePending(c, svc)
		},
	}
}

// resolvePending resolves ready scopes in order until none are left.
func resolvePending(c *cli.Context, svc *service.Service) error {
	resolver := svc.Resolver()
	resolved := 0
	for {
		scopes, err := resolver.PendingScopes(c.Context)
		if err != nil {
			return err
		}
		progress := false
		for _, scope := range scopes {
			res, err := resolver.Resolve(c.Context, scope)
			if err != nil {
				return err
			}
			if res.Outcome == model.OutcomeResolved {
				resolved++
				progress = true
			}
		}
		if !progress {
			break
		}
	}
	fmt.Fprintf(c.App.Writer, "resolved %d scopes\n", resolved)
	return nil
}
