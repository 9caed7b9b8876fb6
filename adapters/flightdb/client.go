package flightdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Config selects and tunes the flight database connection.
type Config struct {
	Driver string // sqlite or pgx
	// DSN is a file path for sqlite and a connection string for pgx.
	DSN          string
	MaxOpenConns int
	QueryTimeout time.Duration
}

// ValidateConfig validates the Config
func ValidateConfig(config Config) error {
	switch config.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", config.Driver)
	}
	if config.Driver == DriverPostgres && config.DSN == "" {
		return errors.New("database DSN is required for postgres")
	}
	if config.MaxOpenConns < 0 {
		return fmt.Errorf("max open connections must be positive, got %d", config.MaxOpenConns)
	}
	return nil
}

// Open connects to the flight database. A sqlite file is opened read-only;
// when the file does not exist an empty in-memory database is used instead.
func Open(ctx context.Context, config Config, logger *zap.Logger) (*sql.DB, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	dsn := config.DSN
	maxOpen := config.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 4
	}
	inMemory := false

	if config.Driver == DriverSQLite {
		if dsn == "" || !fileExists(dsn) {
			logger.Warn("Flight database file not found, running with empty in-memory database",
				zap.String("path", dsn))
			dsn = ":memory:"
			// every pooled connection would get its own empty database
			maxOpen = 1
			inMemory = true
		} else {
			dsn = "file:" + dsn + "?mode=ro&_pragma=query_only(1)"
		}
	}

	db, err := sql.Open(config.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open flight database: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	if !inMemory {
		db.SetConnMaxIdleTime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping flight database: %w", err)
	}

	logger.Info("Connected to flight database",
		zap.String("driver", config.Driver),
		zap.Int("maxOpenConns", maxOpen))

	return db, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
