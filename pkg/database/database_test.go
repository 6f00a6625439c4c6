package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type benchRow struct {
	ID uint64
}

func (benchRow) TableName() string { return "bench_rows" }

func TestResetIfRequested(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&benchRow{}))

	// 未显式要求时不动已有数据
	t.Setenv(ResetEnv, "")
	dropped, err := ResetIfRequested(db, "bench_rows")
	require.NoError(t, err)
	assert.False(t, dropped)
	assert.True(t, db.Migrator().HasTable("bench_rows"))

	t.Setenv(ResetEnv, "true")
	dropped, err = ResetIfRequested(db, "bench_rows")
	require.NoError(t, err)
	assert.False(t, dropped)
	assert.True(t, db.Migrator().HasTable("bench_rows"))

	t.Setenv(ResetEnv, "1")
	dropped, err = ResetIfRequested(db, "bench_rows")
	require.NoError(t, err)
	assert.True(t, dropped)
	assert.False(t, db.Migrator().HasTable("bench_rows"))
}
