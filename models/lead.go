package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Lead lifecycle statuses
const (
	LeadStatusNew              = "new"
	LeadStatusContacted        = "contacted"
	LeadStatusReplied          = "replied"
	LeadStatusBounced          = "bounced"
	LeadStatusUnsubscribed     = "unsubscribed"
	LeadStatusSequenceComplete = "sequence_complete"
	LeadStatusWon              = "won"
	LeadStatusLost             = "lost"
)

// Lead represents a single contact enrolled in a campaign
type Lead struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`

	Email     string `gorm:"not null;index" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`

	Status string `gorm:"default:'new';index" json:"status"`
	Tag    string `gorm:"index" json:"tag"`

	// Custom fields bag, JSON object of string values
	CustomFieldsJSON string `gorm:"type:text" json:"custom_fields_json"`

	// Null until the first send schedules a follow-up
	NextSendAt *time.Time `gorm:"index" json:"next_send_at"`

	AILabel          string `json:"ai_label"`
	UnsubscribeToken string `gorm:"index" json:"unsubscribe_token"`
}

// CustomFields decodes the lead's custom-field bag. A malformed or empty
// bag yields an empty map, never an error.
func (l *Lead) CustomFields() map[string]string {
	fields := make(map[string]string)
	if l.CustomFieldsJSON == "" {
		return fields
	}
	if err := json.Unmarshal([]byte(l.CustomFieldsJSON), &fields); err != nil {
		return map[string]string{}
	}
	return fields
}

// BlocklistEntry excludes an address from all sends
type BlocklistEntry struct {
	gorm.Model
	Email  string `gorm:"not null;uniqueIndex" json:"email"`
	Reason string `json:"reason"`
}
