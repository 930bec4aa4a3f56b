package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/poolscore/internal/domain/model"
	"github.com/okian/poolscore/internal/domain/winners"
	"github.com/okian/poolscore/pkg/logger"
	"github.com/xo/dburl"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const memoryDSN = ":memory:"

// Option applies a configuration option to Open.
type Option func(*openConfig)

type openConfig struct {
	log           logger.Logger
	slowThreshold time.Duration
	maxOpenConns  int
}

// WithLogger routes SQL logging to l.
func WithLogger(l logger.Logger) Option {
	return func(c *openConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithSlowThreshold logs queries slower than d at warn level.
func WithSlowThreshold(d time.Duration) Option {
	return func(c *openConfig) {
		if d > 0 {
			c.slowThreshold = d
		}
	}
}

// WithMaxOpenConns bounds the connection pool.
func WithMaxOpenConns(n int) Option {
	return func(c *openConfig) {
		if n > 0 {
			c.maxOpenConns = n
		}
	}
}

// Dialector picks the gorm driver for a database url. Supported schemes are
// postgres, mysql and sqlite; ":memory:" opens a private in-memory sqlite db.
func Dialector(rawURL string) (gorm.Dialector, error) {
	if rawURL == memoryDSN {
		return sqlite.Open(memoryDSN), nil
	}
	u, err := dburl.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedDSN, err)
	}
	switch u.Driver {
	case "postgres":
		return postgres.Open(u.DSN), nil
	case "mysql":
		return mysql.Open(withParseTime(u.DSN)), nil
	case "sqlite3":
		dsn := u.DSN
		if dsn == "" {
			dsn = u.Path
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("%w: driver %q", ErrUnsupportedDSN, u.Driver)
	}
}

func withParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}

// Open connects to the database named by rawURL.
func Open(rawURL string, opts ...Option) (*gorm.DB, error) {
	cfg := openConfig{log: logger.Nop(), slowThreshold: 200 * time.Millisecond}
	for _, opt := range opts {
		opt(&cfg)
	}
	dialector, err := Dialector(rawURL)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         newGormLogger(cfg.log, cfg.slowThreshold),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if rawURL == memoryDSN || cfg.maxOpenConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("database handle: %w", err)
		}
		n := cfg.maxOpenConns
		if rawURL == memoryDSN {
			// every connection to :memory: is a different database
			n = 1
		}
		sqlDB.SetMaxOpenConns(n)
	}
	return db, nil
}

// Migrate creates or updates every table.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// GormStore implements Store on a relational database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open database.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB exposes the underlying handle.
func (s *GormStore) DB() *gorm.DB { return s.db }

// Ping checks the connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveGames upserts games by id.
func (s *GormStore) SaveGames(ctx context.Context, games []model.Game) error {
	if len(games) == 0 {
		return nil
	}
	rows := make([]gameRow, len(games))
	for i, g := range games {
		rows[i] = toGameRow(g)
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("save games: %w", err)
	}
	return nil
}

// SavePicks upserts picks by (pool, participant, game).
func (s *GormStore) SavePicks(ctx context.Context, picks []model.Pick) error {
	if len(picks) == 0 {
		return nil
	}
	rows := make([]pickRow, len(picks))
	for i, p := range picks {
		rows[i] = pickRow{
			PoolID: p.PoolID, ParticipantID: p.ParticipantID, GameID: p.GameID,
			PredictedWinner: p.PredictedWinner, Confidence: p.Confidence,
		}
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pool_id"}, {Name: "participant_id"}, {Name: "game_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"predicted_winner", "confidence"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("save picks: %w", err)
	}
	return nil
}

// SaveTieBreakEntries upserts guesses by (pool, participant, season, week).
func (s *GormStore) SaveTieBreakEntries(ctx context.Context, entries []model.TieBreakEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]tieBreakRow, len(entries))
	for i, e := range entries {
		rows[i] = tieBreakRow{
			PoolID: e.PoolID, ParticipantID: e.ParticipantID, Season: e.Season,
			SeasonType: int(e.SeasonType), Week: e.Week, Guess: e.Guess,
		}
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "pool_id"}, {Name: "participant_id"}, {Name: "season"}, {Name: "season_type"}, {Name: "week"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"guess"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("save tie-break entries: %w", err)
	}
	return nil
}

// SetTieBreakOverride sets the administrative actual value of a week.
func (s *GormStore) SetTieBreakOverride(ctx context.Context, poolID string, season int, week model.WeekKey, value int) error {
	row := overrideRow{PoolID: poolID, Season: season, SeasonType: int(week.SeasonType), Week: week.Week, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("set tie-break override: %w", err)
	}
	return nil
}

// weekFilter restricts a query on a table with season_type and week columns.
func weekFilter(db *gorm.DB, table string, weeks []model.WeekKey) *gorm.DB {
	if len(weeks) == 0 {
		return db.Where("1 = 0")
	}
	cond := db.Session(&gorm.Session{NewDB: true})
	for i, w := range weeks {
		expr := fmt.Sprintf("%s.season_type = ? AND %s.week = ?", table, table)
		if i == 0 {
			cond = cond.Where(expr, int(w.SeasonType), w.Week)
		} else {
			cond = cond.Or(expr, int(w.SeasonType), w.Week)
		}
	}
	return db.Where(cond)
}

// GamesForWeeks returns the season's games in the given weeks, ordered by id.
func (s *GormStore) GamesForWeeks(ctx context.Context, season int, weeks []model.WeekKey) ([]model.Game, error) {
	var rows []gameRow
	q := s.db.WithContext(ctx).Model(&gameRow{}).Where("games.season = ?", season)
	if err := weekFilter(q, "games", weeks).Order("games.id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("games for weeks: %w", err)
	}
	out := make([]model.Game, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// PicksForWeeks returns a pool's picks for games in the given weeks.
func (s *GormStore) PicksForWeeks(ctx context.Context, poolID string, season int, weeks []model.WeekKey) ([]model.Pick, error) {
	var rows []pickRow
	q := s.db.WithContext(ctx).Model(&pickRow{}).
		Joins("JOIN games ON games.id = picks.game_id").
		Where("picks.pool_id = ? AND games.season = ?", poolID, season)
	err := weekFilter(q, "games", weeks).
		Order("picks.participant_id, picks.game_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("picks for weeks: %w", err)
	}
	out := make([]model.Pick, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// TieBreakEntries returns the guesses for one week.
func (s *GormStore) TieBreakEntries(ctx context.Context, poolID string, season int, week model.WeekKey) ([]model.TieBreakEntry, error) {
	var rows []tieBreakRow
	err := s.db.WithContext(ctx).
		Where("pool_id = ? AND season = ? AND season_type = ? AND week = ?", poolID, season, int(week.SeasonType), week.Week).
		Order("participant_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("tie-break entries: %w", err)
	}
	out := make([]model.TieBreakEntry, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// TieBreakOverride returns the override for a week or nil.
func (s *GormStore) TieBreakOverride(ctx context.Context, poolID string, season int, week model.WeekKey) (*int, error) {
	var rows []overrideRow
	err := s.db.WithContext(ctx).
		Where("pool_id = ? AND season = ? AND season_type = ? AND week = ?", poolID, season, int(week.SeasonType), week.Week).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("tie-break override: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	v := rows[0].Value
	return &v, nil
}

// FindWinner returns the scope's record or nil.
func (s *GormStore) FindWinner(ctx context.Context, scope model.Scope) (*model.WinnerRecord, error) {
	var rows []winnerRow
	err := s.db.WithContext(ctx).
		Where("pool_id = ? AND scope_type = ? AND scope_id = ?", scope.PoolID, string(scope.Type), scope.ID()).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find winner: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rec := rows[0].toModel()
	return &rec, nil
}

// InsertWinnerIfAbsent inserts rec and returns it as stored. A record already
// present for the scope yields ErrWinnerExists.
func (s *GormStore) InsertWinnerIfAbsent(ctx context.Context, rec model.WinnerRecord) (model.WinnerRecord, error) {
	row := toWinnerRow(rec)
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pool_id"}, {Name: "scope_type"}, {Name: "scope_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return model.WinnerRecord{}, ErrWinnerExists
	}
	if res.Error != nil {
		return model.WinnerRecord{}, fmt.Errorf("insert winner: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.WinnerRecord{}, ErrWinnerExists
	}

	var back winnerRow
	if err := s.db.WithContext(ctx).Where("id = ?", row.ID).Take(&back).Error; err != nil {
		return model.WinnerRecord{}, fmt.Errorf("re-read winner: %w", err)
	}
	return back.toModel(), nil
}

// DeleteWinner removes the scope's record.
func (s *GormStore) DeleteWinner(ctx context.Context, scope model.Scope) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("pool_id = ? AND scope_type = ? AND scope_id = ?", scope.PoolID, string(scope.Type), scope.ID()).
		Delete(&winnerRow{})
	if res.Error != nil {
		return false, fmt.Errorf("delete winner: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListWinners returns a pool's records of one scope type and season.
func (s *GormStore) ListWinners(ctx context.Context, poolID string, scopeType model.ScopeType, season int) ([]model.WinnerRecord, error) {
	var rows []winnerRow
	err := s.db.WithContext(ctx).
		Where("pool_id = ? AND scope_type = ? AND season = ?", poolID, string(scopeType), season).
		Order("scope_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list winners: %w", err)
	}
	out := make([]model.WinnerRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// ActivePools lists pool/season pairs with at least one pick.
func (s *GormStore) ActivePools(ctx context.Context) ([]winners.PoolSeason, error) {
	var rows []struct {
		PoolID string
		Season int
	}
	err := s.db.WithContext(ctx).Model(&pickRow{}).
		Select("DISTINCT picks.pool_id AS pool_id, games.season AS season").
		Joins("JOIN games ON games.id = picks.game_id").
		Order("pool_id, season").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("active pools: %w", err)
	}
	out := make([]winners.PoolSeason, len(rows))
	for i, r := range rows {
		out[i] = winners.PoolSeason{PoolID: r.PoolID, Season: r.Season}
	}
	return out, nil
}
