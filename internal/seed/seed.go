// Package seed generates a synthetic pool season for local runs and demos.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/okian/poolscore/internal/adapters/repository"
	"github.com/okian/poolscore/internal/domain/model"
	"github.com/okian/poolscore/pkg/logger"
)

// ErrInvalidConfig is returned when the generator options are out of range.
var ErrInvalidConfig = errors.New("invalid seed config")

const (
	maxGamesPerWeek = 16
	guessMin        = 20
	guessMax        = 75
	scoreMax        = 45
)

// postseasonGames is the bracket size of each playoff round.
var postseasonGames = []int{6, 4, 2, 1}

var teams = []string{
	"ARI", "ATL", "BAL", "BUF", "CAR", "CHI", "CIN", "CLE",
	"DAL", "DEN", "DET", "GB", "HOU", "IND", "JAX", "KC",
	"LAC", "LAR", "LV", "MIA", "MIN", "NE", "NO", "NYG",
	"NYJ", "PHI", "PIT", "SEA", "SF", "TB", "TEN", "WAS",
}

// Config controls the shape of the generated season.
type Config struct {
	PoolID       string
	Season       int
	Weeks        int
	GamesPerWeek int
	Participants int
	Postseason   bool
	// PendingWeeks leaves the last regular weeks scheduled so the resolver
	// has unfinished work.
	PendingWeeks int
	Seed         uint64
}

// Option configures a Config.
type Option func(*Config)

// WithPool sets the pool id.
func WithPool(id string) Option { return func(c *Config) { c.PoolID = id } }

// WithSeason sets the season year.
func WithSeason(season int) Option { return func(c *Config) { c.Season = season } }

// WithWeeks sets the number of regular-season weeks.
func WithWeeks(n int) Option { return func(c *Config) { c.Weeks = n } }

// WithGamesPerWeek sets the regular-season slate size.
func WithGamesPerWeek(n int) Option { return func(c *Config) { c.GamesPerWeek = n } }

// WithParticipants sets the number of pool members.
func WithParticipants(n int) Option { return func(c *Config) { c.Participants = n } }

// WithPostseason adds the four playoff rounds.
func WithPostseason(enabled bool) Option { return func(c *Config) { c.Postseason = enabled } }

// WithPendingWeeks leaves the last n regular weeks unplayed.
func WithPendingWeeks(n int) Option { return func(c *Config) { c.PendingWeeks = n } }

// WithSeed makes the output reproducible.
func WithSeed(s uint64) Option { return func(c *Config) { c.Seed = s } }

// NewConfig returns the defaults with opts applied.
func NewConfig(opts ...Option) Config {
	c := Config{
		PoolID:       "demo",
		Season:       time.Now().Year(),
		Weeks:        18,
		GamesPerWeek: 14,
		Participants: 12,
		Postseason:   true,
		Seed:         uint64(time.Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Validate checks the ranges the generator relies on.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.PoolID) == "":
		return fmt.Errorf("%w: pool id is required", ErrInvalidConfig)
	case c.Season <= 0:
		return fmt.Errorf("%w: season must be positive", ErrInvalidConfig)
	case c.Weeks < 1:
		return fmt.Errorf("%w: weeks must be at least 1", ErrInvalidConfig)
	case c.GamesPerWeek < 1 || c.GamesPerWeek > maxGamesPerWeek:
		return fmt.Errorf("%w: games per week must be within 1..%d", ErrInvalidConfig, maxGamesPerWeek)
	case c.Participants < 1:
		return fmt.Errorf("%w: participants must be at least 1", ErrInvalidConfig)
	case c.PendingWeeks < 0 || c.PendingWeeks > c.Weeks:
		return fmt.Errorf("%w: pending weeks must be within 0..%d", ErrInvalidConfig, c.Weeks)
	}
	return nil
}

// Dataset is everything one seed run writes.
type Dataset struct {
	Config       Config
	Participants []string
	Games        []model.Game
	Picks        []model.Pick
	Entries      []model.TieBreakEntry
}

// Generator builds datasets from a seeded faker.
type Generator struct {
	cfg   Config
	faker *gofakeit.Faker
}

// NewGenerator validates cfg and seeds the faker.
func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg, faker: gofakeit.New(cfg.Seed)}, nil
}

// Generate produces a full season. Every participant submits a complete
// permutation of confidence values each week plus a tie-break guess.
func (g *Generator) Generate() Dataset {
	ds := Dataset{Config: g.cfg, Participants: g.participants()}

	for week := 1; week <= g.cfg.Weeks; week++ {
		pending := week > g.cfg.Weeks-g.cfg.PendingWeeks
		g.addWeek(&ds, model.Regular, week, g.cfg.GamesPerWeek, pending)
	}
	if g.cfg.Postseason {
		for i, n := range postseasonGames {
			g.addWeek(&ds, model.Postseason, i+1, n, g.cfg.PendingWeeks > 0)
		}
	}
	return ds
}

func (g *Generator) participants() []string {
	out := make([]string, 0, g.cfg.Participants)
	seen := make(map[string]bool, g.cfg.Participants)
	for len(out) < g.cfg.Participants {
		id := strings.ToLower(g.faker.Username())
		if id == "" || seen[id] {
			id = fmt.Sprintf("player%d", len(out)+1)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (g *Generator) addWeek(ds *Dataset, st model.SeasonType, week, count int, pending bool) {
	games := g.slate(st, week, count, pending)
	ds.Games = append(ds.Games, games...)

	for _, participant := range ds.Participants {
		confidences := make([]int, count)
		for i := range confidences {
			confidences[i] = i + 1
		}
		g.faker.ShuffleInts(confidences)
		for i, game := range games {
			predicted := game.HomeTeam
			if g.faker.Bool() {
				predicted = game.AwayTeam
			}
			ds.Picks = append(ds.Picks, model.Pick{
				ParticipantID:   participant,
				PoolID:          g.cfg.PoolID,
				GameID:          game.ID,
				PredictedWinner: predicted,
				Confidence:      confidences[i],
			})
		}
		ds.Entries = append(ds.Entries, model.TieBreakEntry{
			ParticipantID: participant,
			PoolID:        g.cfg.PoolID,
			Season:        g.cfg.Season,
			SeasonType:    st,
			Week:          week,
			Guess:         g.faker.Number(guessMin, guessMax),
		})
	}
}

// slate pairs shuffled teams. Kickoffs run from Sunday afternoon to a single
// Monday night game, which is the week's last game.
func (g *Generator) slate(st model.SeasonType, week, count int, pending bool) []model.Game {
	pool := append([]string(nil), teams...)
	g.faker.ShuffleStrings(pool)

	sunday := g.weekStart(st, week)
	games := make([]model.Game, 0, count)
	for i := 0; i < count; i++ {
		kickoff := sunday.Add(time.Duration(i/4) * 3 * time.Hour)
		if i == count-1 && count > 1 {
			kickoff = sunday.Add(31 * time.Hour)
		}
		game := model.Game{
			ID:         fmt.Sprintf("%d-%s-%02d-%02d", g.cfg.Season, st, week, i+1),
			Season:     g.cfg.Season,
			SeasonType: st,
			Week:       week,
			HomeTeam:   pool[2*i],
			AwayTeam:   pool[2*i+1],
			Kickoff:    kickoff,
			Status:     model.StatusScheduled,
		}
		if !pending {
			g.finish(&game)
		}
		games = append(games, game)
	}
	return games
}

func (g *Generator) finish(game *model.Game) {
	home := g.faker.Number(0, scoreMax)
	away := g.faker.Number(0, scoreMax)
	if home == away {
		home += 3
	}
	game.HomeScore = &home
	game.AwayScore = &away
	game.Status = model.StatusFinal
	game.Winner = game.HomeTeam
	if away > home {
		game.Winner = game.AwayTeam
	}
}

func (g *Generator) weekStart(st model.SeasonType, week int) time.Time {
	opener := time.Date(g.cfg.Season, time.September, 7, 17, 0, 0, 0, time.UTC)
	offset := week - 1
	if st == model.Postseason {
		offset += g.cfg.Weeks + 1
	}
	return opener.AddDate(0, 0, 7*offset)
}

// Load writes ds through w.
func Load(ctx context.Context, w repository.Writer, ds Dataset, l logger.Logger) error {
	if l == nil {
		l = logger.Nop()
	}
	if err := w.SaveGames(ctx, ds.Games); err != nil {
		return fmt.Errorf("save games: %w", err)
	}
	if err := w.SavePicks(ctx, ds.Picks); err != nil {
		return fmt.Errorf("save picks: %w", err)
	}
	if err := w.SaveTieBreakEntries(ctx, ds.Entries); err != nil {
		return fmt.Errorf("save tie-break entries: %w", err)
	}
	l.Info(ctx, "seeded pool",
		logger.String("pool", ds.Config.PoolID),
		logger.Int("season", ds.Config.Season),
		logger.Int("participants", len(ds.Participants)),
		logger.Int("games", len(ds.Games)),
		logger.Int("picks", len(ds.Picks)),
	)
	return nil
}
