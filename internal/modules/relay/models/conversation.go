package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxConversationEntries caps the retained history per (tenant, counterparty)
// pair. Oldest entries are trimmed after every append.
const MaxConversationEntries = 50

// ConversationEntry is one message in a tenant's chat with a counterparty.
// The serial ID preserves append order even when timestamps collide.
type ConversationEntry struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID     uuid.UUID `gorm:"type:uuid;not null;index:idx_tenant_counterparty" json:"tenant_id"`
	Counterparty string    `gorm:"type:text;not null;index:idx_tenant_counterparty" json:"counterparty"`
	Role         string    `gorm:"type:text;not null" json:"role"`
	Content      string    `gorm:"type:text" json:"content"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ConversationEntry) TableName() string {
	return "relay_conversations"
}

// ConversationStats aggregates a tenant's log for the admin dashboard.
type ConversationStats struct {
	ConversationCount int64 `json:"conversation_count"`
	MessageCount      int64 `json:"message_count"`
}

// ConversationSummary is one counterparty row in the admin tenant detail view.
type ConversationSummary struct {
	Counterparty  string    `json:"counterparty"`
	MessageCount  int64     `json:"message_count"`
	LastMessageAt time.Time `json:"last_message_at"`
}
