package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"vextral/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(doc *model.Document) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByTenantAndFilename(tenantID, filename string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("tenant_id = ? AND filename = ?", tenantID, filename).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByTenant(tenantID string) ([]model.Document, error) {
	var docs []model.Document
	if err := r.db.Where("tenant_id = ?", tenantID).Order("uploaded_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) DeleteByTenantAndFilename(tenantID, filename string) error {
	if err := r.db.Where("tenant_id = ? AND filename = ?", tenantID, filename).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}
