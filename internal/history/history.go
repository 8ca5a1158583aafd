// Package history persists chat transcripts to the local cache database so
// past conversations survive restarts and are searchable offline.
package history

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dhowland/pfchat/internal/models"
	"github.com/dhowland/pfchat/internal/stream"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Roles stored on cached messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// UpsertChat records or refreshes a chat's identity in the cache.
func UpsertChat(db *gorm.DB, id, title string) error {
	if id == "" {
		return fmt.Errorf("history: chat id is required")
	}
	chat := models.CachedChat{ID: id, Title: title}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "updated_at"}),
	}).Create(&chat).Error
	if err != nil {
		return fmt.Errorf("history: upsert chat %s: %w", id, err)
	}
	return nil
}

// RenameChat updates a cached chat's title, typically from a chat_renamed
// event. Renaming a chat the cache has never seen creates it.
func RenameChat(db *gorm.DB, id, title string) error {
	return UpsertChat(db, id, title)
}

// RecordUserTurn appends a user message to a chat's transcript.
func RecordUserTurn(db *gorm.DB, chatID, content string) error {
	if chatID == "" {
		return fmt.Errorf("history: chat id is required")
	}
	msg := models.CachedMessage{
		ChatID:   chatID,
		Sequence: nextSequence(db, chatID),
		Role:     RoleUser,
		Content:  content,
	}
	if err := db.Create(&msg).Error; err != nil {
		return fmt.Errorf("history: record user turn: %w", err)
	}
	return nil
}

// RecordAssistantTurn appends a completed assistant reply, including the
// streaming metadata captured when the turn finished.
func RecordAssistantTurn(db *gorm.DB, turn stream.CompletedTurn) error {
	if turn.ChatID == "" {
		return fmt.Errorf("history: chat id is required")
	}
	tools := ""
	if len(turn.ToolsUsed) > 0 {
		data, err := json.Marshal(turn.ToolsUsed)
		if err != nil {
			return fmt.Errorf("history: encode tools: %w", err)
		}
		tools = string(data)
	}
	msg := models.CachedMessage{
		ChatID:     turn.ChatID,
		Sequence:   nextSequence(db, turn.ChatID),
		Role:       RoleAssistant,
		Content:    turn.Content,
		TokenCount: turn.TokenCount,
		ToolsUsed:  tools,
		ChartRef:   turn.ChartRef,
	}
	if err := db.Create(&msg).Error; err != nil {
		return fmt.Errorf("history: record assistant turn: %w", err)
	}
	return nil
}

// Transcript returns a chat's messages in conversation order. A limit of 0
// returns the full transcript; otherwise the most recent limit messages are
// returned, still oldest first.
func Transcript(db *gorm.DB, chatID string, limit int) ([]models.CachedMessage, error) {
	var msgs []models.CachedMessage
	q := db.Where("chat_id = ?", chatID)
	if limit > 0 {
		var total int64
		if err := db.Model(&models.CachedMessage{}).Where("chat_id = ?", chatID).Count(&total).Error; err != nil {
			return nil, fmt.Errorf("history: count transcript: %w", err)
		}
		if total > int64(limit) {
			q = q.Offset(int(total) - limit)
		}
	}
	if err := q.Order("sequence ASC").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("history: load transcript %s: %w", chatID, err)
	}
	return msgs, nil
}

// Chats lists cached chats, most recently updated first.
func Chats(db *gorm.DB) ([]models.CachedChat, error) {
	var chats []models.CachedChat
	if err := db.Order("updated_at DESC").Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("history: list chats: %w", err)
	}
	return chats, nil
}

// Search returns messages whose content contains the query, newest first.
func Search(db *gorm.DB, query string, limit int) ([]models.CachedMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var msgs []models.CachedMessage
	err := db.Where("content LIKE ?", "%"+query+"%").
		Order("created_at DESC").Limit(limit).Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("history: search: %w", err)
	}
	return msgs, nil
}

// DeleteChat removes a chat and its transcript from the cache.
func DeleteChat(db *gorm.DB, chatID string) error {
	if err := db.Where("chat_id = ?", chatID).Delete(&models.CachedMessage{}).Error; err != nil {
		return fmt.Errorf("history: delete messages %s: %w", chatID, err)
	}
	if err := db.Delete(&models.CachedChat{}, "id = ?", chatID).Error; err != nil {
		return fmt.Errorf("history: delete chat %s: %w", chatID, err)
	}
	return nil
}

// PruneOlderThan deletes messages created before the retention cutoff, then
// removes chats left with no messages. It returns the number of messages
// removed.
func PruneOlderThan(db *gorm.DB, retention time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-retention)
	res := db.Where("created_at < ?", cutoff).Delete(&models.CachedMessage{})
	if res.Error != nil {
		return 0, fmt.Errorf("history: prune messages: %w", res.Error)
	}
	err := db.Where("id NOT IN (?)",
		db.Model(&models.CachedMessage{}).Distinct("chat_id"),
	).Delete(&models.CachedChat{}).Error
	if err != nil {
		return 0, fmt.Errorf("history: prune empty chats: %w", err)
	}
	return res.RowsAffected, nil
}

// nextSequence returns the next position in a chat's transcript. Sequence
// assignment assumes one writer per chat, which holds for a local cache.
func nextSequence(db *gorm.DB, chatID string) int {
	var max int
	db.Model(&models.CachedMessage{}).Where("chat_id = ?", chatID).
		Select("COALESCE(MAX(sequence), 0)").Scan(&max)
	return max + 1
}
