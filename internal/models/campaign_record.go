package models

import "time"

// CampaignRecord is the reporting-store row written for every accepted
// campaign. Chat-line campaigns rely on it to appear in the shared history
// alongside the other channels.
type CampaignRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	CampaignID  string    `gorm:"size:128;not null;uniqueIndex:idx_channel_campaign"`
	Channel     string    `gorm:"size:16;not null;uniqueIndex:idx_channel_campaign;index"` // sms, email, chatline
	Subject     string    `gorm:"size:255"`
	Descriptor  string    `gorm:"type:text"`
	Total       int       `gorm:"not null;default:0"`
	Sent        int       `gorm:"default:0"`
	Failed      int       `gorm:"default:0"`
	Status      string    `gorm:"size:32"`
	EventTag    string    `gorm:"size:128;index"`
	SessionName string    `gorm:"size:128"`
	Provisional bool      `gorm:"default:false"`
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
}

// TemplateSubmission records a chat template sent for platform review.
// The platform owns approval; Status is refreshed only when templates are
// re-listed.
type TemplateSubmission struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Name       string `gorm:"size:512;not null;uniqueIndex:idx_template_lang"`
	Language   string `gorm:"size:16;not null;uniqueIndex:idx_template_lang"`
	Category   string `gorm:"size:32;not null"`
	PlatformID string `gorm:"size:64"`
	Status     string `gorm:"size:16;default:PENDING;index"` // PENDING, APPROVED, REJECTED
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
