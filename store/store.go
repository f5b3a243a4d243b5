// Package store defines the repository interfaces the core components are
// injected with, plus a GORM implementation and an in-memory one for tests.
// All counter mutations are expressed as atomic increments so overlapping
// invocations never lose updates.
package store

import (
	"time"

	"outreach/models"
)

// CampaignFilter narrows a batch run to specific campaigns.
type CampaignFilter struct {
	IDs  []uint
	Name string
}

// LeadFilter narrows candidate selection within a campaign.
type LeadFilter struct {
	Status string
	Tag    string
}

type CampaignStore interface {
	ActiveCampaigns(filter CampaignFilter) ([]models.Campaign, error)
	UpdateRotationCursor(campaignID uint, cursor int) error
	IncrementCampaignSent(campaignID uint) error
	IncrementCampaignReplies(campaignID uint) error
	IncrementCampaignBounces(campaignID uint) error
	MarkCampaignCompleted(campaignID uint) error
	CountLeads(campaignID uint) (int64, error)
	CountLeadsInStatus(campaignID uint, statuses []string) (int64, error)
}

type AccountStore interface {
	GetAccount(accountID uint) (*models.EmailAccount, error)
	WarmupAccounts() ([]models.EmailAccount, error)
	PoolAccounts() ([]models.EmailAccount, error)
	AccountsForSync(limit int) ([]models.EmailAccount, error)
	IncrementAccountSent(accountID uint) error
	IncrementWarmupSent(accountID uint) error
	IncrementWarmupReplied(accountID uint) error
	AdjustReputation(accountID uint, delta int) error
	MarkAccountError(accountID uint, detail string) error
	StampAccountSynced(accountID uint, at time.Time) error
	ResetDailyCounters() error
}

type LeadStore interface {
	CandidateLeads(campaignID uint, excludedStatuses []string, now time.Time, filter LeadFilter, limit int, prioritizeNew bool) ([]models.Lead, error)
	UpdateLeadStatus(leadID uint, status string) error
	SetNextSendAt(leadID uint, at *time.Time) error
	SetLeadLabel(leadID uint, label string) error
	LeadsByEmail(email string) ([]models.Lead, error)
}

type EventStore interface {
	CreateEvent(event *models.SendingEvent) error
	MarkEventSent(eventID uint, messageID string) error
	SentCount(leadID, campaignID uint) (int, error)
	LastSentEvent(leadID, campaignID uint) (*models.SendingEvent, error)
	HasSentEvent(leadID, campaignID uint, step int) (bool, error)
	HasBounceEvent(leadID uint) (bool, error)
	HasReplyWithMessageID(messageID string) (bool, error)
	SentEventByMessageIDs(accountID uint, messageIDs []string) (*models.SendingEvent, error)
	LastSentToAddress(accountID uint, email string) (*models.SendingEvent, error)
}

type StatStore interface {
	IncrementStat(campaignID uint, day, column string) error
	StatForDay(campaignID uint, day string) (*models.CampaignStat, error)
}

type WarmupStore interface {
	LogWarmupAction(entry *models.WarmupLog) error
	HasWarmupAction(warmupID, action string) (bool, error)
}

type BlocklistStore interface {
	IsBlocked(email string) (bool, error)
}

type WebhookStore interface {
	EnabledWebhooks(event string) ([]models.WebhookEndpoint, error)
}

// Store is the full persistence surface. WithTx runs fn against a
// transaction-bound Store; the callback either fully commits or fully
// rolls back.
type Store interface {
	CampaignStore
	AccountStore
	LeadStore
	EventStore
	StatStore
	WarmupStore
	BlocklistStore
	WebhookStore

	WithTx(fn func(tx Store) error) error
}

// Stat columns accepted by IncrementStat.
const (
	StatColumnSent    = "sent"
	StatColumnOpened  = "opened"
	StatColumnClicked = "clicked"
	StatColumnReplied = "replied"
	StatColumnBounced = "bounced"
)
