// Package db opens the database, applies the schema and seeds the
// permission model.
package db

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/diewo77/go-catalog/internal/config"
)

const connectAttempts = 10

var passwordRe = regexp.MustCompile(`(password=)(\S+)`)

// Open connects with the configured driver, retrying while Postgres starts.
func Open(cfg config.DatabaseConfig, debug bool, log *zap.Logger) (*gorm.DB, error) {
	level := logger.Silent
	if debug {
		level = logger.Info
	}
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(level)}

	if cfg.Driver == "sqlite" {
		log.Info("opening sqlite database", zap.String("path", cfg.SQLitePath))
		sep := "?"
		if strings.Contains(cfg.SQLitePath, "?") {
			sep = "&"
		}
		db, err := gorm.Open(sqlite.Open(cfg.SQLitePath+sep+"_foreign_keys=1"), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return db, nil
	}

	dsn := cfg.DSN()
	log.Info("connecting to database", zap.String("dsn", passwordRe.ReplaceAllString(dsn, "${1}***")))
	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < connectAttempts; i++ {
		db, err = gorm.Open(postgres.Open(dsn), gcfg)
		if err == nil {
			break
		}
		log.Warn("database not ready, retrying", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect database after %d attempts: %w", connectAttempts, err)
	}
	if err := db.Exec("SELECT 1").Error; err != nil {
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	return db, nil
}
