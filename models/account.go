package models

import (
	"time"

	"gorm.io/gorm"
)

// Account statuses
const (
	AccountStatusActive = "active"
	AccountStatusPaused = "paused"
	AccountStatusError  = "error"
)

// EmailAccount represents sending and receiving credentials for one mailbox
type EmailAccount struct {
	gorm.Model

	Email    string `gorm:"not null;uniqueIndex" json:"email"`
	FromName string `json:"from_name"`
	Status   string `gorm:"default:'active';index" json:"status"` // active, paused, error

	// ========= SMTP Configuration =========
	SMTPHost     string `gorm:"not null" json:"smtp_host"`
	SMTPPort     int    `gorm:"not null" json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"-"` // Encrypted in application layer

	// ========= IMAP Configuration =========
	IMAPHost       string `json:"imap_host"`
	IMAPPort       int    `json:"imap_port" gorm:"default:993"`
	IMAPUsername   string `json:"imap_username"`
	IMAPPassword   string `json:"-"` // Encrypted in application layer
	IMAPEncryption string `json:"imap_encryption" gorm:"default:'SSL'"`

	// ========= Usage Metrics =========
	DailyLimit int  `gorm:"default:50" json:"daily_limit"`
	SentToday  int  `gorm:"default:0" json:"sent_today"`
	SlowRamp   bool `gorm:"default:false" json:"slow_ramp"` // ramp non-warmup volume by account age

	// ========= Warmup Configuration =========
	WarmupEnabled      bool       `gorm:"default:false" json:"warmup_enabled"`
	PoolEnabled        bool       `gorm:"default:false" json:"pool_enabled"` // opt-in to the shared warmup pool
	WarmupCurrentDay   int        `gorm:"default:1" json:"warmup_current_day"`
	WarmupStartLimit   int        `gorm:"default:10" json:"warmup_start_limit"`
	WarmupIncrease     int        `gorm:"default:5" json:"warmup_increase"`
	WarmupDailyCap     int        `gorm:"default:40" json:"warmup_daily_cap"`
	WarmupSentToday    int        `gorm:"default:0" json:"warmup_sent_today"`
	WarmupRepliedToday int        `gorm:"default:0" json:"warmup_replied_today"`
	ReputationScore    int        `gorm:"default:50" json:"reputation_score"` // clamped to [0,100]
	WarmupLastActiveAt *time.Time `json:"warmup_last_active_at"`

	// ========= Status & Sync =========
	ErrorDetail  string     `json:"error_detail"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
}

// Domain returns the part of the account's address after '@'
func (a *EmailAccount) Domain() string {
	for i := len(a.Email) - 1; i >= 0; i-- {
		if a.Email[i] == '@' {
			return a.Email[i+1:]
		}
	}
	return ""
}

// Sanitize clears credential fields before the account leaves the core
func (a *EmailAccount) Sanitize() {
	a.SMTPPassword = ""
	a.IMAPPassword = ""
}
