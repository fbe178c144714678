package repository

import (
	"context"

	"github.com/portfoliolens/sheetload/internal/domain"
	"gorm.io/gorm"
)

// TemplateRepository reads mapping templates.
type TemplateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository creates a new TemplateRepository.
func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// GetByID retrieves a template by its ID. Returns gorm.ErrRecordNotFound if missing.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*domain.MappingTemplate, error) {
	var tmpl domain.MappingTemplate
	if err := r.db.WithContext(ctx).First(&tmpl, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// Create inserts a template.
func (r *TemplateRepository) Create(ctx context.Context, tmpl *domain.MappingTemplate) error {
	return r.db.WithContext(ctx).Create(tmpl).Error
}
