package db

import (
	"context"
	"fmt"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TemplateStore tracks chat templates submitted for review.
type TemplateStore struct {
	db *gorm.DB
}

// NewTemplateStore wraps db.
func NewTemplateStore(db *gorm.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// Save upserts a submission keyed on (name, language).
func (s *TemplateStore) Save(ctx context.Context, t *models.TemplateSubmission) error {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}, {Name: "language"}},
		DoUpdates: clause.AssignmentColumns([]string{"category", "platform_id", "status", "updated_at"}),
	}).Create(t)
	if result.Error != nil {
		return fmt.Errorf("db: save template %q: %w", t.Name, result.Error)
	}
	return nil
}

// List returns all tracked submissions ordered by name.
func (s *TemplateStore) List(ctx context.Context) ([]models.TemplateSubmission, error) {
	var ts []models.TemplateSubmission
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&ts).Error; err != nil {
		return nil, fmt.Errorf("db: list templates: %w", err)
	}
	return ts, nil
}
