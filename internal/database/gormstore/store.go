// Package gormstore implements moderation.Store on Postgres through GORM,
// for deployments backed by the hosted relational database.
package gormstore

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"tangled.org/agora.social/agora/internal/moderation"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store implements moderation.Store using GORM.
type Store struct {
	db *gorm.DB
}

// Ensure Store implements the interface at compile time.
var _ moderation.Store = (*Store)(nil)

// Options configures the connection pool
type Options struct {
	MaxOpenConns int
	// SlowQuery is the threshold above which queries are logged at warn level.
	// If zero, 200ms is used.
	SlowQuery time.Duration
}

// zerologWriter routes GORM's logger output through zerolog
type zerologWriter struct{}

func (zerologWriter) Printf(format string, args ...any) {
	log.Warn().Msgf("gorm: "+format, args...)
}

// Connect opens and validates a Postgres-backed GORM connection pool.
func Connect(ctx context.Context, databaseURL string, opts Options) (*Store, error) {
	if opts.SlowQuery == 0 {
		opts.SlowQuery = 200 * time.Millisecond
	}

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		TranslateError: true,
		Logger: logger.New(zerologWriter{}, logger.Config{
			SlowThreshold:             opts.SlowQuery,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
		sqlDB.SetMaxIdleConns(opts.MaxOpenConns / 2)
	}
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.Info().Msg("postgres: connected")
	return New(db), nil
}

// New wraps an existing GORM handle
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// RunMigrations applies embedded SQL migrations in lexical order.
// Every migration is idempotent. Migrations hold several statements each, so
// the pool must not use prepared statements.
func (s *Store) RunMigrations(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := s.db.WithContext(ctx).Exec(string(raw)).Error; err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		log.Debug().Str("migration", name).Msg("postgres: migration applied")
	}
	log.Info().Int("count", len(names)).Msg("postgres: migrations applied")
	return nil
}

// Ping checks that the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
