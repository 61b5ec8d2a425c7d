// Package database opens the gorm handle shared by every module.
package database

import (
	"fmt"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/config"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/auth"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/leads"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/payments"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/refunds"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/users"
)

// Open connects using cfg.Driver. Driver errors are translated so unique
// violations surface as gorm.ErrDuplicatedKey on every backend.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		// one writer at a time
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "postgres":
		return postgres.Open(cfg.DSN), nil
	case "mysql":
		dsn, err := normalizeMySQLDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.Driver)
	}
}

// normalizeMySQLDSN forces the options gorm models rely on: parsed
// DATETIME columns in UTC.
func normalizeMySQLDSN(dsn string) (string, error) {
	c, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql DSN: %w", err)
	}
	c.ParseTime = true
	c.Loc = time.UTC
	return c.FormatDSN(), nil
}

// Models lists every table the service reads or writes.
func Models() []any {
	out := []any{
		&users.User{},
		&auth.Session{},
		&leads.SystemLead{},
		&leads.HESRequest{},
		&leads.ContractorLeadStatus{},
		&payments.PaymentRecord{},
		&payments.ProviderEvent{},
	}
	return append(out, refunds.Models()...)
}

// Migrate creates or updates the schema. Tables owned by other services
// (users, sessions, catalogs) are included so local and test databases are
// self-contained.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
