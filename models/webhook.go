package models

import "gorm.io/gorm"

// Webhook event names fired by the core
const (
	WebhookEventLeadReplied      = "lead.replied"
	WebhookEventCampaignFinished = "campaign.finished"
)

// WebhookEndpoint is an outbound notification target. Delivery is
// fire-and-forget; failures are logged, never retried.
type WebhookEndpoint struct {
	gorm.Model
	URL     string `gorm:"not null" json:"url"`
	Events  string `json:"events"` // comma-separated event names, empty = all
	Enabled bool   `gorm:"default:true" json:"enabled"`
}
