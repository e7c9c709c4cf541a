package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dibantu/wa-relay/internal/core/llm"
	"github.com/dibantu/wa-relay/internal/modules/relay/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrContextNotFound distinguishes "tenant has no stored context yet" from
// genuine store failures.
var ErrContextNotFound = errors.New("business context not found")

// ContextRepo stores each tenant's BusinessContext as a single JSONB document.
// Updates replace the whole document (last-write-wins), so context edits take
// effect on the next inbound message without a restart.
type ContextRepo interface {
	Load(ctx context.Context, tenantID uuid.UUID) (*llm.BusinessContext, error)
	Save(ctx context.Context, tenantID uuid.UUID, bc *llm.BusinessContext) error
	Delete(ctx context.Context, tenantID uuid.UUID) error
}

type contextRepo struct {
	db *gorm.DB
}

func NewContextRepo(db *gorm.DB) ContextRepo {
	return &contextRepo{db: db}
}

func (r *contextRepo) Load(ctx context.Context, tenantID uuid.UUID) (*llm.BusinessContext, error) {
	var record models.BusinessContextRecord
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContextNotFound
		}
		return nil, err
	}

	var bc llm.BusinessContext
	if err := json.Unmarshal(record.Content, &bc); err != nil {
		return nil, fmt.Errorf("failed to decode business context: %w", err)
	}

	return &bc, nil
}

func (r *contextRepo) Save(ctx context.Context, tenantID uuid.UUID, bc *llm.BusinessContext) error {
	content, err := json.Marshal(bc)
	if err != nil {
		return fmt.Errorf("failed to encode business context: %w", err)
	}

	var record models.BusinessContextRecord
	err = r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&record).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		record = models.BusinessContextRecord{
			TenantID: tenantID,
			Content:  content,
		}
		return r.db.WithContext(ctx).Create(&record).Error

	case err != nil:
		return err

	default:
		record.Content = content
		return r.db.WithContext(ctx).Save(&record).Error
	}
}

func (r *contextRepo) Delete(ctx context.Context, tenantID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Delete(&models.BusinessContextRecord{}).Error
}
