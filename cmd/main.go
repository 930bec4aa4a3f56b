package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/okian/poolscore/internal/config"
	"github.com/okian/poolscore/pkg/logger"
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		// the logger may not be initialized yet
		os.Stderr.WriteString("poolscore: " + err.Error() + "\n")
		os.Exit(1)
	}
}

// runtimeEnv is what Before prepares for every command.
type runtimeEnv struct {
	cfg *config.Config
	log logger.Logger
}

func newApp() *cli.App {
	env := &runtimeEnv{}
	return &cli.App{
		Name:  "poolscore",
		Usage: "score confidence pools and resolve weekly, period and season winners",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a YAML config file",
				EnvVars: []string{"POOLSCORE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "database-url",
				Usage: "override database_url",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override log_level",
			},
		},
		Before: func(c *cli.Context) error {
			return env.load(c)
		},
		After: func(*cli.Context) error {
			return logger.Sync()
		},
		Commands: []*cli.Command{
			serveCommand(env),
			migrateCommand(env),
			resolveCommand(env),
			seedCommand(env),
		},
	}
}

// load reads config (defaults -> .env -> optional file -> env), applies flag
// overrides and initializes the global logger.
func (e *runtimeEnv) load(c *cli.Context) error {
	if path := c.String("config"); path != "" {
		if err := os.Setenv("POOLSCORE_CONFIG", path); err != nil {
			return err
		}
	}
	cfg, err := config.Load(c.Context)
	if err != nil {
		return err
	}
	if v := c.String("database-url"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if err := logger.Init(
		logger.WithFormat(cfg.LogFormat),
		logger.WithLevel(cfg.LogLevel),
		logger.WithOutput(c.App.ErrWriter),
	); err != nil {
		return err
	}
	e.cfg = cfg
	e.log = logger.Get()
	return nil
}
