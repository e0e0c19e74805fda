package mysql

import (
	"context"
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New opens the MySQL database holding query history and, for the local backend, the index
// entries. The DSN must set parseTime so timestamps scan into time.Time.
func New(ctx context.Context, dsn string) (*gorm.DB, error) {
	parsed, err := driver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn failed: %w", err)
	}
	if !parsed.ParseTime {
		return nil, fmt.Errorf("mysql dsn for %s must set parseTime=true", parsed.Addr)
	}

	db, err := gorm.Open(mysql.New(mysql.Config{DSN: dsn, DSNConfig: parsed}), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open mysql %s failed: %w", parsed.Addr, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get mysql sql db failed: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping mysql %s failed: %w", parsed.Addr, err)
	}

	return db, nil
}
