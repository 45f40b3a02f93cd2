package repository

import (
	"fmt"

	"gorm.io/gorm"

	"vextral/internal/model"
)

type ChatTurnRepository struct {
	db *gorm.DB
}

func NewChatTurnRepository(db *gorm.DB) *ChatTurnRepository {
	return &ChatTurnRepository{db: db}
}

func (r *ChatTurnRepository) Create(turn *model.ChatTurn) error {
	if err := r.db.Create(turn).Error; err != nil {
		return fmt.Errorf("create chat turn failed: %w", err)
	}
	return nil
}

// ListByTenant returns the most recent turns first. A nil sourceFile selects
// general-mode history (source_file IS NULL); a non-nil one selects the
// history for that document.
func (r *ChatTurnRepository) ListByTenant(tenantID string, sourceFile *string, limit int) ([]model.ChatTurn, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}

	q := r.db.Where("tenant_id = ?", tenantID)
	if sourceFile != nil {
		q = q.Where("source_file = ?", *sourceFile)
	} else {
		q = q.Where("source_file IS NULL")
	}

	var turns []model.ChatTurn
	if err := q.Order("created_at DESC").Limit(limit).Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("list chat turns failed: %w", err)
	}
	return turns, nil
}

// DeleteByTenant clears history. A nil sourceFile clears general-mode turns
// only; use DeleteAllByTenant to wipe every turn for a tenant.
func (r *ChatTurnRepository) DeleteByTenant(tenantID string, sourceFile *string) error {
	q := r.db.Where("tenant_id = ?", tenantID)
	if sourceFile != nil {
		q = q.Where("source_file = ?", *sourceFile)
	} else {
		q = q.Where("source_file IS NULL")
	}
	if err := q.Delete(&model.ChatTurn{}).Error; err != nil {
		return fmt.Errorf("delete chat turns failed: %w", err)
	}
	return nil
}

func (r *ChatTurnRepository) DeleteAllByTenant(tenantID string) error {
	if err := r.db.Where("tenant_id = ?", tenantID).Delete(&model.ChatTurn{}).Error; err != nil {
		return fmt.Errorf("delete all chat turns failed: %w", err)
	}
	return nil
}
