// Package models defines the GORM models for the local history cache.
package models

import "time"

// CachedChat mirrors a chat known to the backend. Rows are upserted whenever
// the chat list is fetched or a chat_renamed event arrives.
type CachedChat struct {
	ID        string `gorm:"primaryKey;size:64"` // backend chat identifier
	Title     string `gorm:"size:256"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Messages []CachedMessage `gorm:"foreignKey:ChatID"`
}

// CachedMessage stores one turn of a chat conversation locally. Assistant
// rows carry streaming metadata captured when the turn completed.
type CachedMessage struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	ChatID     string    `gorm:"size:64;not null;index"`
	Sequence   int       `gorm:"not null"`
	Role       string    `gorm:"size:16;not null"` // "user" or "assistant"
	Content    string    `gorm:"type:text;not null"`
	TokenCount int       `gorm:"default:0"`
	ToolsUsed  string    `gorm:"type:json"` // JSON array of tool names
	ChartRef   string    `gorm:"size:256"`  // chart reference, if one was generated
	CreatedAt  time.Time `gorm:"index"`

	Chat CachedChat `gorm:"foreignKey:ChatID"`
}
