package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dhowland/pfchat/internal/config"
	"github.com/dhowland/pfchat/internal/db"
	"github.com/dhowland/pfchat/internal/stream"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := db.Open(config.CacheConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "history.db"),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gormDB
}

func TestUpsertChat(t *testing.T) {
	gormDB := setupDB(t)

	if err := UpsertChat(gormDB, "chat-1", "First title"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := UpsertChat(gormDB, "chat-1", "Renamed"); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	chats, err := Chats(gormDB)
	if err != nil {
		t.Fatalf("chats: %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("chat count = %d, want 1", len(chats))
	}
	if chats[0].Title != "Renamed" {
		t.Errorf("title = %q, want Renamed", chats[0].Title)
	}
}

func TestUpsertChat_RequiresID(t *testing.T) {
	gormDB := setupDB(t)
	if err := UpsertChat(gormDB, "", "title"); err == nil {
		t.Fatal("expected error for empty chat id")
	}
}

func TestTranscript_OrderAndMetadata(t *testing.T) {
	gormDB := setupDB(t)
	if err := UpsertChat(gormDB, "chat-1", "Portfolio review"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := RecordUserTurn(gormDB, "chat-1", "how did tech do today?"); err != nil {
		t.Fatalf("record user: %v", err)
	}
	err := RecordAssistantTurn(gormDB, stream.CompletedTurn{
		ChatID:     "chat-1",
		Content:    "Tech gained 1.8% on the day.",
		TokenCount: 31,
		ToolsUsed:  []string{"lookup_price", "sector_summary"},
		ChartRef:   "charts/tech-day.png",
	})
	if err != nil {
		t.Fatalf("record assistant: %v", err)
	}

	msgs, err := Transcript(gormDB, "chat-1", 0)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("message count = %d, want 2", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Sequence != 1 {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Sequence != 2 {
		t.Errorf("second message = %+v", msgs[1])
	}
	if msgs[1].TokenCount != 31 || msgs[1].ChartRef != "charts/tech-day.png" {
		t.Errorf("assistant metadata = %+v", msgs[1])
	}
	if msgs[1].ToolsUsed != `["lookup_price","sector_summary"]` {
		t.Errorf("tools json = %q", msgs[1].ToolsUsed)
	}
}

func TestTranscript_LimitReturnsMostRecent(t *testing.T) {
	gormDB := setupDB(t)
	for _, text := range []string{"one", "two", "three", "four"} {
		if err := RecordUserTurn(gormDB, "chat-1", text); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	msgs, err := Transcript(gormDB, "chat-1", 2)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("message count = %d, want 2", len(msgs))
	}
	if msgs[0].Content != "three" || msgs[1].Content != "four" {
		t.Errorf("messages = %q, %q; want three, four", msgs[0].Content, msgs[1].Content)
	}
}

func TestSearch(t *testing.T) {
	gormDB := setupDB(t)
	RecordUserTurn(gormDB, "chat-1", "show my bond allocation")
	RecordUserTurn(gormDB, "chat-2", "what is a bond ladder?")
	RecordUserTurn(gormDB, "chat-2", "list my equities")

	msgs, err := Search(gormDB, "bond", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("match count = %d, want 2", len(msgs))
	}

	msgs, err = Search(gormDB, "crypto", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("match count = %d, want 0", len(msgs))
	}
}

func TestDeleteChat(t *testing.T) {
	gormDB := setupDB(t)
	UpsertChat(gormDB, "chat-1", "Keep")
	UpsertChat(gormDB, "chat-2", "Drop")
	RecordUserTurn(gormDB, "chat-2", "delete me")

	if err := DeleteChat(gormDB, "chat-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	chats, _ := Chats(gormDB)
	if len(chats) != 1 || chats[0].ID != "chat-1" {
		t.Errorf("chats = %+v, want only chat-1", chats)
	}
	msgs, _ := Transcript(gormDB, "chat-2", 0)
	if len(msgs) != 0 {
		t.Errorf("orphaned messages remain: %+v", msgs)
	}
}

func TestPruneOlderThan(t *testing.T) {
	gormDB := setupDB(t)
	now := time.Now()

	UpsertChat(gormDB, "chat-old", "Stale")
	UpsertChat(gormDB, "chat-new", "Fresh")
	RecordUserTurn(gormDB, "chat-old", "ancient question")
	RecordUserTurn(gormDB, "chat-new", "recent question")

	// Age the old chat's message past the retention window.
	err := gormDB.Table("cached_messages").Where("chat_id = ?", "chat-old").
		Update("created_at", now.AddDate(0, 0, -120)).Error
	if err != nil {
		t.Fatalf("age message: %v", err)
	}

	removed, err := PruneOlderThan(gormDB, 90*24*time.Hour, now)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	chats, _ := Chats(gormDB)
	if len(chats) != 1 || chats[0].ID != "chat-new" {
		t.Errorf("chats after prune = %+v, want only chat-new", chats)
	}
	msgs, _ := Transcript(gormDB, "chat-new", 0)
	if len(msgs) != 1 {
		t.Errorf("fresh transcript = %+v", msgs)
	}
}
