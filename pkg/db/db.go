// Package db holds the gorm models and database bootstrap for the
// conversational intelligence pipeline.
package db

import (
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// defaultSQLitePath returns the default sqlite database file path.
func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./localpulse.db" // fallback
	}
	return filepath.Join(home, ".localpulse", "localpulse.db")
}

// Open opens the application database for the configured driver.
// driver is "sqlite" or "postgres"; an empty sqlite DSN falls back to
// ~/.localpulse/localpulse.db.
func Open(driver, dsn string) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	switch driver {
	case "", "sqlite":
		if dsn == "" {
			dsn = defaultSQLitePath()
			if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
				return nil, errors.Wrapf(err, "create data dir %s", filepath.Dir(dsn))
			}
		}
		gdb, err := gorm.Open(sqlite.Open(dsn), gormCfg)
		if err != nil {
			return nil, errors.Wrapf(err, "open sqlite database %s", dsn)
		}
		return gdb, nil

	case "postgres":
		gdb, err := gorm.Open(postgres.Open(dsn), gormCfg)
		if err != nil {
			return nil, errors.Wrap(err, "open postgres database")
		}
		return gdb, nil

	default:
		return nil, errors.Errorf("unsupported database driver: %s", driver)
	}
}

// OpenInMemory opens an in-memory sqlite database. Used by tests.
func OpenInMemory() (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open in-memory sqlite database")
	}

	// Every pooled connection to ":memory:" would otherwise get its own
	// empty database.
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB")
	}
	sqlDB.SetMaxOpenConns(1)

	return gdb, nil
}
