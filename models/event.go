package models

import "gorm.io/gorm"

// Sending event types
const (
	EventTypePending = "pending"
	EventTypeSent    = "sent"
	EventTypeReply   = "reply"
	EventTypeBounce  = "bounce"
)

// SendingEvent is an append-only log row recording a lifecycle moment for a
// lead's message. The event log is the source of truth for how many steps a
// lead has received and for reply/bounce deduplication. Rows are never
// mutated except the single pending->sent transition at send time.
type SendingEvent struct {
	gorm.Model
	Type       string `gorm:"not null;index" json:"type"` // pending, sent, reply, bounce
	LeadID     uint   `gorm:"not null;index" json:"lead_id"`
	CampaignID uint   `gorm:"not null;index" json:"campaign_id"`
	AccountID  uint   `gorm:"index" json:"account_id"`

	MessageID  string `gorm:"index" json:"message_id"`
	StepNumber int    `json:"step_number"`
	Subject    string `json:"subject"`
	Source     string `json:"source"` // batch, sync, manual
	Body       string `gorm:"type:text" json:"body"`
}

// Warmup log actions
const (
	WarmupActionSend       = "send"
	WarmupActionReceive    = "receive"
	WarmupActionPoolSend   = "pool_send"
	WarmupActionAutoReply  = "auto_reply"
	WarmupActionSpamRescue = "spam_rescue"
)

// WarmupLog is an append-only record of warmup actions keyed by a
// per-exchange warmup id, used for analytics and reply deduplication.
type WarmupLog struct {
	gorm.Model
	WarmupID  string `gorm:"not null;index" json:"warmup_id"`
	AccountID uint   `gorm:"not null;index" json:"account_id"`
	Action    string `gorm:"not null" json:"action"` // send, receive, pool_send, auto_reply, spam_rescue
	PeerEmail string `json:"peer_email"`
	MessageID string `json:"message_id"`
}
