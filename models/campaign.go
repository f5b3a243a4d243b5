package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign statuses
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusActive    = "active"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
)

// Campaign represents a multi-step outbound email campaign
type Campaign struct {
	gorm.Model

	Name   string `gorm:"not null" json:"name"`
	Status string `gorm:"default:'draft';index" json:"status"` // draft, active, paused, completed

	// Daily send window, evaluated in the campaign's timezone
	ScheduleStart string `json:"schedule_start"` // e.g. "09:00" or "9:00 AM"
	ScheduleEnd   string `json:"schedule_end"`   // e.g. "17:00" or "5:00 PM"
	Timezone      string `json:"timezone"`       // IANA name, e.g. "America/Chicago"
	SendingDays   string `json:"sending_days"`   // comma-separated weekday abbreviations

	DailyLimit  int  `gorm:"default:0" json:"daily_limit"` // 0 = uncapped
	StopOnReply bool `gorm:"default:true" json:"stop_on_reply"`

	// Free-form settings blob, parsed into CampaignSettings on read
	SettingsJSON string `gorm:"type:text" json:"settings_json"`

	// Round-robin rotation cursor over the campaign's account pool
	LastAccountIndex int `gorm:"default:0" json:"last_account_index"`

	// Denormalized counters, updated via atomic increments
	SentCount   int `gorm:"default:0" json:"sent_count"`
	ReplyCount  int `gorm:"default:0" json:"reply_count"`
	BounceCount int `gorm:"default:0" json:"bounce_count"`

	// Relations
	Steps    []SequenceStep `gorm:"foreignKey:CampaignID" json:"steps,omitempty"`
	Accounts []EmailAccount `gorm:"many2many:campaign_accounts;" json:"accounts,omitempty"`
}

// SequenceStep is one stage of a campaign's multi-touch sequence
type SequenceStep struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`

	StepNumber int `gorm:"not null" json:"step_number"` // 1-based, strictly increasing
	DayGap     int `gorm:"default:0" json:"day_gap"`    // minimum days after the previous step

	// Fallback content when the step has no variants
	Subject string `json:"subject"`
	Body    string `gorm:"type:text" json:"body"`

	// Relations
	Variants []StepVariant `gorm:"foreignKey:StepID" json:"variants,omitempty"`
}

// StepVariant is one A/B test arm of a sequence step
type StepVariant struct {
	gorm.Model
	StepID uint `gorm:"not null;index" json:"step_id"`

	Subject string `gorm:"not null" json:"subject"`
	Body    string `gorm:"type:text" json:"body"`

	// Variant selection is uniform; weight is recorded but not consulted.
	Weight int `gorm:"default:0" json:"weight"`
}

// CampaignStat is an idempotent daily rollup, one row per (campaign, UTC day)
type CampaignStat struct {
	gorm.Model
	CampaignID uint   `gorm:"not null;uniqueIndex:idx_campaign_day" json:"campaign_id"`
	Day        string `gorm:"not null;uniqueIndex:idx_campaign_day" json:"day"` // "2006-01-02" in UTC

	Sent    int `gorm:"default:0" json:"sent"`
	Opened  int `gorm:"default:0" json:"opened"`
	Clicked int `gorm:"default:0" json:"clicked"`
	Replied int `gorm:"default:0" json:"replied"`
	Bounced int `gorm:"default:0" json:"bounced"`
}

// StatDay formats a timestamp as the UTC day key used by CampaignStat
func StatDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
