package database

import (
	"testing"

	"customs_auction/internal/config"
	"customs_auction/internal/model"
)

func TestOpenAndMigrate_SQLite(t *testing.T) {
	db, err := Open(config.AppConfig{DBDriver: "sqlite", DBDSN: "file:database_test?mode=memory&cache=shared"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, m := range model.All() {
		if !db.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}
	if err := Migrate(db); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(config.AppConfig{DBDriver: "oracle"}); err == nil {
		t.Errorf("Open(oracle) error = nil")
	}
}
