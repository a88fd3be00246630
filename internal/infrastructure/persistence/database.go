package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/erp/syncengine/internal/infrastructure/config"
)

// Database owns the engine's PostgreSQL pool
type Database struct {
	DB  *gorm.DB
	sql *sql.DB
}

// Open connects with the configured pool limits and verifies the connection
// within ctx.
func Open(ctx context.Context, cfg *config.DatabaseConfig, gormLogger logger.Interface) (*Database, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	d, err := Wrap(db)
	if err != nil {
		return nil, err
	}

	d.sql.SetMaxOpenConns(cfg.MaxOpenConns)
	d.sql.SetMaxIdleConns(cfg.MaxIdleConns)
	d.sql.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	d.sql.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	if err := d.PingContext(ctx); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return d, nil
}

// Wrap adopts an already opened gorm connection
func Wrap(db *gorm.DB) (*Database, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	return &Database{DB: db, sql: sqlDB}, nil
}

func (d *Database) PingContext(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

func (d *Database) Close() error {
	return d.sql.Close()
}

// SQL returns the pool gorm runs on, used by the migrator
func (d *Database) SQL() *sql.DB {
	return d.sql
}

// StatsCollector exports the pool statistics as go_sql_* metrics labelled
// with dbName.
func (d *Database) StatsCollector(dbName string) prometheus.Collector {
	return collectors.NewDBStatsCollector(d.sql, dbName)
}
