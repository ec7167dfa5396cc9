// Package catalog is the durable stream registry: which streams exist,
// when they were created, and each stream's persisted truncation
// low-water-mark. It backs dlogctl's stream create/list/truncate commands
// and the admin API's read-only stream listing, sitting alongside (not
// instead of) the coordinator-backed segmentmeta store each running
// writer/reader actually consults.
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dlogio/dlog/pkg/position"
)

// DatabaseType selects the catalog's storage backend.
type DatabaseType string

const (
	// DatabaseTypeSQLite is the single-node default, convenient for
	// dlogctl running against a local dlogd and for tests.
	DatabaseTypeSQLite DatabaseType = "sqlite"

	// DatabaseTypePostgres is the HA-capable backend for a multi-replica
	// dlogd deployment sharing one catalog.
	DatabaseTypePostgres DatabaseType = "postgres"
)

// SQLiteConfig is SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the database file path. ":memory:" is accepted for tests.
	Path string
}

// PostgresConfig is PostgreSQL-specific configuration.
type PostgresConfig struct {
	Host         string
	Port         int
	Database     string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// DSN returns the PostgreSQL connection string used by both the migration
// step and the GORM connection.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Config selects and tunes the catalog's backend.
type Config struct {
	Type     DatabaseType
	SQLite   SQLiteConfig
	Postgres PostgresConfig
}

// ApplyDefaults fills in missing configuration with package defaults.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeSQLite
	}
	if c.Type == DatabaseTypeSQLite && c.SQLite.Path == "" {
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, _ := os.UserHomeDir()
			configDir = filepath.Join(home, ".config")
		}
		c.SQLite.Path = filepath.Join(configDir, "dlog", "catalog.db")
	}
	if c.Type == DatabaseTypePostgres {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
		if c.Postgres.MaxOpenConns == 0 {
			c.Postgres.MaxOpenConns = 25
		}
		if c.Postgres.MaxIdleConns == 0 {
			c.Postgres.MaxIdleConns = 5
		}
	}
}

// Validate checks that required fields for the selected backend are set.
func (c *Config) Validate() error {
	switch c.Type {
	case DatabaseTypeSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("catalog: sqlite path is required")
		}
	case DatabaseTypePostgres:
		if c.Postgres.Host == "" {
			return fmt.Errorf("catalog: postgres host is required")
		}
		if c.Postgres.Database == "" {
			return fmt.Errorf("catalog: postgres database is required")
		}
		if c.Postgres.User == "" {
			return fmt.Errorf("catalog: postgres user is required")
		}
	default:
		return fmt.Errorf("catalog: unsupported database type %q", c.Type)
	}
	return nil
}

// Store is the catalog's handle: a GORM connection plus the schema
// management strategy appropriate to its backend.
type Store struct {
	db     *gorm.DB
	config *Config
}

// New opens (and, for SQLite, auto-migrates; for PostgreSQL, migrates via
// golang-migrate, see migrate.go) the catalog database described by cfg.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	var dialector gorm.Dialector
	switch cfg.Type {
	case DatabaseTypeSQLite:
		if cfg.SQLite.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
				return nil, fmt.Errorf("catalog: create database directory: %w", err)
			}
		}
		dsn := cfg.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)

	case DatabaseTypePostgres:
		if err := runMigrations(ctx, cfg.Postgres.DSN()); err != nil {
			return nil, fmt.Errorf("catalog: run migrations: %w", err)
		}
		dialector = gormpostgres.Open(cfg.Postgres.DSN())
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("catalog: connect: %w", err)
	}

	if cfg.Type == DatabaseTypePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("catalog: underlying db: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	} else {
		// SQLite has no migrations package wired (see migrate.go); the
		// single streams table is simple enough for AutoMigrate to own,
		// matching the teacher's dual-backend control-plane store.
		if err := db.AutoMigrate(allModels()...); err != nil {
			return nil, fmt.Errorf("catalog: automigrate: %w", err)
		}
	}

	return &Store{db: db, config: cfg}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Healthcheck pings the underlying database.
func (s *Store) Healthcheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// toPosition converts a Stream's stored truncation fields to a
// position.Position.
func (s *Stream) toPosition() position.Position {
	return position.Position{
		SegmentSeq: s.TruncatedSegmentSeq,
		EntryID:    s.TruncatedEntryID,
		SlotID:     s.TruncatedSlotID,
	}
}
