package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/followgraph/config"
)

// InitDB 根据配置打开 postgres 或 sqlite 连接
func InitDB(cfg *config.Config) (*gorm.DB, error) {
	dc := cfg.Database

	var dialector gorm.Dialector
	switch dc.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			dc.Host, dc.Port, dc.User, dc.Password, dc.DBName, dc.SSLMode)
		dialector = postgres.Open(dsn)
	case "sqlite":
		if dir := filepath.Dir(dc.FilePath); dir != "" && dc.FilePath != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		dialector = sqlite.Open(dc.FilePath)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", dc.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(parseLogLevel(dc.LogLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if dc.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(dc.MaxIdleConns)
	}
	if dc.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(dc.MaxOpenConns)
	}
	if dc.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(dc.ConnMaxLifetime)
	}
	return db, nil
}

func parseLogLevel(s string) logger.LogLevel {
	switch strings.ToLower(s) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// ResetEnv 基准测试程序只有在该变量为 "1" 时才会清空已有数据
const ResetEnv = "BENCH_RESET"

// ResetIfRequested drops tables only when BENCH_RESET=1 and reports whether it did.
func ResetIfRequested(db *gorm.DB, tables ...string) (bool, error) {
	if os.Getenv(ResetEnv) != "1" {
		return false, nil
	}
	for _, t := range tables {
		if err := db.Migrator().DropTable(t); err != nil {
			return false, fmt.Errorf("drop %s: %w", t, err)
		}
	}
	return true, nil
}
