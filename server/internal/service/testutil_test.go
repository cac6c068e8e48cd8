package service

import (
	"path/filepath"
	"testing"

	"GreenLedger/server/internal/data"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

// openTestData 测试用数据层：临时目录里的 sqlite，表结构与生产一致
func openTestData(t *testing.T) *data.Data {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "greenledger_test.db")
	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        dbPath,
	}, &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := data.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return &data.Data{DB: db}
}
