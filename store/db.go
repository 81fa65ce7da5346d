package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/neuralnotes/neuralnotes/logger"
)

// DBConfig controls the SQLite connection.
type DBConfig struct {
	// Path is the database file, or ":memory:" for an in-process database.
	Path string `mapstructure:"path" validate:"required"`
	// MaxRetries bounds connection attempts at startup.
	MaxRetries int `mapstructure:"max_retries"`
	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// ApplyDefaults fills zero fields with sensible values.
func (c *DBConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "neuralnotes.db"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
}

// DB wraps a GORM database handle.
type DB struct {
	gormDB *gorm.DB
	log    *logger.Logger
	closed bool
	mu     sync.Mutex
}

// OpenDB opens the SQLite database with startup retry, verifying the
// connection with a ping on each attempt.
func OpenDB(ctx context.Context, cfg DBConfig, log *logger.Logger) (*DB, error) {
	cfg.ApplyDefaults()
	log = log.WithComponent("store")

	dsn := cfg.Path
	if dsn == ":memory:" {
		// Shared cache keeps one in-memory database across pooled connections.
		dsn = "file::memory:?cache=shared"
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn = fmt.Sprintf("%s%s_busy_timeout=%d", dsn, sep, cfg.BusyTimeout.Milliseconds())

	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var db *gorm.DB
	var err error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("store: open canceled: %w", ctx.Err())
		}

		db, err = gorm.Open(sqlite.Open(dsn), gormCfg)
		if err == nil {
			sqlDB, sqlErr := db.DB()
			if sqlErr != nil {
				err = sqlErr
			} else if pingErr := sqlDB.PingContext(ctx); pingErr != nil {
				err = pingErr
			} else {
				log.Info("database opened", logger.Fields("path", cfg.Path, "attempt", attempt))
				return &DB{gormDB: db, log: log}, nil
			}
		}

		if attempt < cfg.MaxRetries {
			backoff := time.Duration(attempt) * time.Second
			log.Warn("database open failed, retrying", logger.Fields(
				"attempt", attempt,
				"error", err.Error(),
				"backoff", backoff.String(),
			))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("store: open canceled during retry: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("store: open database after %d attempts: %w", cfg.MaxRetries, err)
}

// Close closes the connection pool. Safe to call more than once.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	sqlDB, err := d.gormDB.DB()
	if err != nil {
		return err
	}
	d.closed = true
	return sqlDB.Close()
}

// PingContext verifies the connection is alive.
func (d *DB) PingContext(ctx context.Context) error {
	sqlDB, err := d.gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// WithContext returns a GORM session scoped to the context.
func (d *DB) WithContext(ctx context.Context) *gorm.DB {
	return d.gormDB.WithContext(ctx)
}

// AutoMigrate creates or updates the schema for the given models.
func (d *DB) AutoMigrate(models ...interface{}) error {
	for _, model := range models {
		if err := d.gormDB.AutoMigrate(model); err != nil {
			return fmt.Errorf("store: migrate %T: %w", model, err)
		}
	}
	return nil
}

// WithTransaction runs fn in a transaction with panic-safe rollback.
func (d *DB) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := d.gormDB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("store: begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			d.log.Error("transaction rolled back after panic", logger.Fields("panic", fmt.Sprintf("%v", r)))
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			return fmt.Errorf("store: transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}
