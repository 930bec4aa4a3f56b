package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/poolscore/internal/app"
	"github.com/okian/poolscore/internal/config"
	"github.com/okian/poolscore/pkg/logger"
)

func run(args ...string) (string, error) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.RunContext(context.Background(), append([]string{"poolscore"}, args...))
	return out.String(), err
}

func testConfig() *config.Config {
	cfg := config.New()
	cfg.DatabaseURL = ":memory:"
	cfg.Addr = "127.0.0.1:0"
	cfg.ResolveCron = ""
	cfg.WorkerCount = 1
	return cfg
}

func TestCommands(t *testing.T) {
	Convey("Given a sqlite database file", t, func() {
		db := "sqlite:" + filepath.Join(t.TempDir(), "pool.db")

		Convey("When it is migrated", func() {
			out, err := run("--database-url", db, "migrate")
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "migrated sqlite\n")
		})

		Convey("When a demo season is seeded and resolved", func() {
			out, err := run("--database-url", db, "seed",
				"--pool", "demo", "--season", "2025", "--weeks", "4", "--games", "5",
				"--participants", "6", "--postseason=false", "--seed", "7", "--resolve")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "seeded pool demo season 2025: 6 participants, 20 games")
			So(out, ShouldContainSubstring, "resolved 5 scopes")

			Convey("Then a resolved week reports the stored record", func() {
				out, err := run("--database-url", db, "resolve", "--pool", "demo", "--season", "2025", "--week", "1")
				So(err, ShouldBeNil)
				var body struct {
					Scope   string `json:"scope"`
					Outcome string `json:"outcome"`
					Record  struct {
						Winners           []string `json:"winners"`
						TotalParticipants int      `json:"total_participants"`
					} `json:"record"`
				}
				So(json.Unmarshal([]byte(out), &body), ShouldBeNil)
				So(body.Outcome, ShouldEqual, "existing")
				So(body.Record.TotalParticipants, ShouldEqual, 6)
				So(body.Record.Winners, ShouldNotBeEmpty)
			})

			Convey("Then forcing recomputes the record", func() {
				out, err := run("--database-url", db, "resolve", "--pool", "demo", "--season", "2025",
					"--scope", "period", "--period", "Q1", "--force")
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, `"outcome": "resolved"`)
			})

			Convey("Then the incomplete season is not ready", func() {
				out, err := run("--database-url", db, "resolve", "--pool", "demo", "--season", "2025", "--scope", "season")
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, `"outcome": "not_ready"`)
			})
		})

		Convey("When resolve gets a bad scope", func() {
			_, err := run("--database-url", db, "resolve", "--pool", "demo", "--season", "2025", "--scope", "month")
			So(errors.Is(err, errScope), ShouldBeTrue)

			_, err = run("--database-url", db, "resolve", "--season", "2025")
			So(err, ShouldNotBeNil)
		})

		Convey("When seed options are out of range", func() {
			_, err := run("--database-url", db, "seed", "--games", "20")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestHTTPServer(t *testing.T) {
	Convey("Given a started in-memory service", t, func() {
		ctx := context.Background()
		cfg := testConfig()
		svc := newService(cfg, logger.Nop())
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { So(svc.Stop(ctx), ShouldBeNil) }()

		srv := newHTTPServer(cfg, svc, logger.Nop())
		So(srv.Addr, ShouldEqual, cfg.Addr)
		So(srv.ReadHeaderTimeout, ShouldEqual, readHeaderTimeout)

		for _, path := range []string{"/healthz", "/stats", "/openapi.yaml", "/api-docs"} {
			rec := httptest.NewRecorder()
			srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			So(rec.Code, ShouldEqual, http.StatusOK)
		}
	})

	Convey("Given serve runs until its context ends", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		env := &runtimeEnv{cfg: testConfig(), log: logger.Nop()}

		So(serve(ctx, env), ShouldBeNil)
	})
}

func TestServiceOptions(t *testing.T) {
	Convey("Given one-shot commands", t, func() {
		env := &runtimeEnv{cfg: testConfig(), log: logger.Nop()}
		env.cfg.ResolveCron = "0 */5 * * * *"

		svc, err := oneShot(context.Background(), env)
		So(err, ShouldBeNil)
		defer stopService(context.Background(), svc, env.log)

		Convey("Then the scheduler and events are off", func() {
			_, err := svc.RunScheduler(context.Background())
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["events"], ShouldEqual, false)
		})
	})
}
