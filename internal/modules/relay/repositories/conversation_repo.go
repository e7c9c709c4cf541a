package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/dibantu/wa-relay/internal/modules/relay/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationRepo is the bounded per-counterparty message log. Appends to the
// same (tenant, counterparty) pair serialize behind a per-key mutex so the
// retention trim never races a concurrent insert; distinct pairs proceed in
// parallel.
type ConversationRepo interface {
	Append(ctx context.Context, tenantID uuid.UUID, counterparty, role, content string) (*models.ConversationEntry, error)
	Recent(ctx context.Context, tenantID uuid.UUID, counterparty string, limit int) ([]models.ConversationEntry, error)
	Stats(ctx context.Context, tenantID uuid.UUID) (*models.ConversationStats, error)
	RecentConversations(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.ConversationSummary, error)
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type conversationRepo struct {
	db *gorm.DB

	// locks maps "tenantID|counterparty" to its append mutex. Entries live for
	// the process lifetime: evicting one while an append still holds it would
	// let a concurrent append acquire a fresh mutex for the same pair and race
	// the trim. A few dozen bytes per pair the process has ever served.
	locks sync.Map
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) keyLock(tenantID uuid.UUID, counterparty string) *sync.Mutex {
	key := tenantID.String() + "|" + counterparty
	mu, _ := r.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Append inserts one entry and trims the pair back to the retention cap inside
// a single transaction. The entry timestamp is assigned here, at append time.
func (r *conversationRepo) Append(ctx context.Context, tenantID uuid.UUID, counterparty, role, content string) (*models.ConversationEntry, error) {
	mu := r.keyLock(tenantID, counterparty)
	mu.Lock()
	defer mu.Unlock()

	entry := &models.ConversationEntry{
		TenantID:     tenantID,
		Counterparty: counterparty,
		Role:         role,
		Content:      content,
		CreatedAt:    time.Now(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		// Keep only the newest MaxConversationEntries rows for this pair.
		return tx.Exec(`
			DELETE FROM relay_conversations
			WHERE tenant_id = ? AND counterparty = ?
			AND id NOT IN (
				SELECT id FROM (
					SELECT id FROM relay_conversations
					WHERE tenant_id = ? AND counterparty = ?
					ORDER BY id DESC
					LIMIT ?
				) keep
			)
		`, tenantID, counterparty, tenantID, counterparty, models.MaxConversationEntries).Error
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// Recent returns at most limit most-recent entries in chronological order.
// An unknown counterparty yields an empty slice, not an error.
func (r *conversationRepo) Recent(ctx context.Context, tenantID uuid.UUID, counterparty string, limit int) ([]models.ConversationEntry, error) {
	var entries []models.ConversationEntry
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND counterparty = ?", tenantID, counterparty).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	// Newest-first from the query; flip to oldest-first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}

func (r *conversationRepo) Stats(ctx context.Context, tenantID uuid.UUID) (*models.ConversationStats, error) {
	var stats models.ConversationStats
	err := r.db.WithContext(ctx).
		Model(&models.ConversationEntry{}).
		Where("tenant_id = ?", tenantID).
		Select("COUNT(DISTINCT counterparty) AS conversation_count, COUNT(*) AS message_count").
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *conversationRepo) RecentConversations(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.ConversationSummary, error) {
	var summaries []models.ConversationSummary
	err := r.db.WithContext(ctx).
		Model(&models.ConversationEntry{}).
		Where("tenant_id = ?", tenantID).
		Select("counterparty, COUNT(*) AS message_count, MAX(created_at) AS last_message_at").
		Group("counterparty").
		Order("last_message_at DESC").
		Limit(limit).
		Scan(&summaries).Error
	return summaries, err
}

// DeleteIdleBefore drops every conversation whose latest entry predates the
// cutoff. Used by the retention sweeper.
func (r *conversationRepo) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		DELETE FROM relay_conversations
		WHERE (tenant_id, counterparty) IN (
			SELECT tenant_id, counterparty FROM relay_conversations
			GROUP BY tenant_id, counterparty
			HAVING MAX(created_at) < ?
		)
	`, cutoff)
	return res.RowsAffected, res.Error
}
