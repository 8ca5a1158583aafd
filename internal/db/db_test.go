package db

import (
	"path/filepath"
	"testing"

	"github.com/dhowland/pfchat/internal/config"
	"github.com/dhowland/pfchat/internal/models"
)

func TestOpen_SQLiteCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := config.CacheConfig{
		Driver: "sqlite",
		Path:   filepath.Join(dir, "nested", "cache", "history.db"),
	}

	gdb, err := Open(cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}

	// Round-trip a row through both tables.
	chat := models.CachedChat{ID: "chat-1", Title: "Retirement planning"}
	if err := gdb.Create(&chat).Error; err != nil {
		t.Fatalf("create chat: %v", err)
	}
	msg := models.CachedMessage{ChatID: "chat-1", Sequence: 1, Role: "user", Content: "hello"}
	if err := gdb.Create(&msg).Error; err != nil {
		t.Fatalf("create message: %v", err)
	}

	var got models.CachedMessage
	if err := gdb.First(&got, "chat_id = ?", "chat-1").Error; err != nil {
		t.Fatalf("read back message: %v", err)
	}
	if got.Content != "hello" {
		t.Errorf("Content = %q, want hello", got.Content)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(config.CacheConfig{Driver: "postgres"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestAllModels_CoversCacheTables(t *testing.T) {
	if len(AllModels()) != 2 {
		t.Errorf("AllModels() has %d entries, want 2", len(AllModels()))
	}
}
