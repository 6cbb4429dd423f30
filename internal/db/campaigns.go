package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("db: record not found")

// CampaignStore reads and writes campaign-metadata records.
type CampaignStore struct {
	db *gorm.DB
}

// NewCampaignStore wraps db.
func NewCampaignStore(db *gorm.DB) *CampaignStore {
	return &CampaignStore{db: db}
}

// Record upserts rec keyed on (channel, campaign id).
func (s *CampaignStore) Record(ctx context.Context, rec *models.CampaignRecord) error {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "channel"}, {Name: "campaign_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"subject", "descriptor", "total", "sent", "failed", "status",
			"event_tag", "session_name", "provisional", "updated_at",
		}),
	}).Create(rec)
	if result.Error != nil {
		return fmt.Errorf("db: record campaign %s/%s: %w", rec.Channel, rec.CampaignID, result.Error)
	}
	return nil
}

// UpdateProgress mirrors remote counters onto an existing record. Unknown
// campaigns are ignored.
func (s *CampaignStore) UpdateProgress(ctx context.Context, channel, campaignID string, sent, failed int, status string) error {
	result := s.db.WithContext(ctx).Model(&models.CampaignRecord{}).
		Where("channel = ? AND campaign_id = ?", channel, campaignID).
		Updates(map[string]interface{}{"sent": sent, "failed": failed, "status": status})
	if result.Error != nil {
		return fmt.Errorf("db: update campaign %s/%s: %w", channel, campaignID, result.Error)
	}
	return nil
}

// Get returns one record.
func (s *CampaignStore) Get(ctx context.Context, channel, campaignID string) (*models.CampaignRecord, error) {
	var rec models.CampaignRecord
	err := s.db.WithContext(ctx).
		Where("channel = ? AND campaign_id = ?", channel, campaignID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: get campaign %s/%s: %w", channel, campaignID, err)
	}
	return &rec, nil
}

// List returns records for channel, newest first. An empty channel lists
// all channels; limit <= 0 means no limit.
func (s *CampaignStore) List(ctx context.Context, channel string, limit int) ([]models.CampaignRecord, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []models.CampaignRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("db: list campaigns: %w", err)
	}
	return recs, nil
}

// Since returns records created at or after t, oldest first.
func (s *CampaignStore) Since(ctx context.Context, t time.Time) ([]models.CampaignRecord, error) {
	var recs []models.CampaignRecord
	err := s.db.WithContext(ctx).
		Where("created_at >= ?", t).
		Order("created_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("db: campaigns since %s: %w", t.Format(time.RFC3339), err)
	}
	return recs, nil
}
