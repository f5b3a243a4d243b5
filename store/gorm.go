package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"outreach/models"
)

// DB is the GORM-backed Store.
type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) *DB {
	return &DB{db: db}
}

func (d *DB) WithTx(fn func(tx Store) error) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		return fn(&DB{db: tx})
	})
}

// ----- campaigns -----

func (d *DB) ActiveCampaigns(filter CampaignFilter) ([]models.Campaign, error) {
	query := d.db.Where("status = ?", models.CampaignStatusActive).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_number ASC") }).
		Preload("Steps.Variants").
		Preload("Accounts")

	if len(filter.IDs) > 0 {
		query = query.Where("id IN ?", filter.IDs)
	}
	if filter.Name != "" {
		query = query.Where("name = ?", filter.Name)
	}

	var campaigns []models.Campaign
	if err := query.Find(&campaigns).Error; err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (d *DB) UpdateRotationCursor(campaignID uint, cursor int) error {
	return d.db.Model(&models.Campaign{}).Where("id = ?", campaignID).
		Update("last_account_index", cursor).Error
}

func (d *DB) IncrementCampaignSent(campaignID uint) error {
	return d.incrementCampaign(campaignID, "sent_count")
}

func (d *DB) IncrementCampaignReplies(campaignID uint) error {
	return d.incrementCampaign(campaignID, "reply_count")
}

func (d *DB) IncrementCampaignBounces(campaignID uint) error {
	return d.incrementCampaign(campaignID, "bounce_count")
}

func (d *DB) incrementCampaign(campaignID uint, column string) error {
	return d.db.Model(&models.Campaign{}).Where("id = ?", campaignID).
		Update(column, gorm.Expr(column+" + ?", 1)).Error
}

func (d *DB) MarkCampaignCompleted(campaignID uint) error {
	return d.db.Model(&models.Campaign{}).Where("id = ?", campaignID).
		Update("status", models.CampaignStatusCompleted).Error
}

func (d *DB) CountLeads(campaignID uint) (int64, error) {
	var count int64
	err := d.db.Model(&models.Lead{}).Where("campaign_id = ?", campaignID).Count(&count).Error
	return count, err
}

func (d *DB) CountLeadsInStatus(campaignID uint, statuses []string) (int64, error) {
	var count int64
	err := d.db.Model(&models.Lead{}).
		Where("campaign_id = ? AND status IN ?", campaignID, statuses).
		Count(&count).Error
	return count, err
}

// ----- accounts -----

func (d *DB) GetAccount(accountID uint) (*models.EmailAccount, error) {
	var account models.EmailAccount
	if err := d.db.First(&account, accountID).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (d *DB) WarmupAccounts() ([]models.EmailAccount, error) {
	var accounts []models.EmailAccount
	err := d.db.Where("warmup_enabled = ? AND status = ?", true, models.AccountStatusActive).
		Find(&accounts).Error
	return accounts, err
}

func (d *DB) PoolAccounts() ([]models.EmailAccount, error) {
	var accounts []models.EmailAccount
	err := d.db.Where("warmup_enabled = ? AND pool_enabled = ? AND status = ?",
		true, true, models.AccountStatusActive).
		Find(&accounts).Error
	return accounts, err
}

func (d *DB) AccountsForSync(limit int) ([]models.EmailAccount, error) {
	var accounts []models.EmailAccount
	err := d.db.Where("status = ? AND imap_host != ''", models.AccountStatusActive).
		Order("last_synced_at ASC NULLS FIRST").
		Limit(limit).
		Find(&accounts).Error
	return accounts, err
}

func (d *DB) IncrementAccountSent(accountID uint) error {
	return d.db.Model(&models.EmailAccount{}).Where("id = ?", accountID).
		Update("sent_today", gorm.Expr("sent_today + ?", 1)).Error
}

func (d *DB) IncrementWarmupSent(accountID uint) error {
	return d.db.Model(&models.EmailAccount{}).Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"warmup_sent_today":     gorm.Expr("warmup_sent_today + ?", 1),
			"sent_today":            gorm.Expr("sent_today + ?", 1),
			"warmup_last_active_at": time.Now(),
		}).Error
}

func (d *DB) IncrementWarmupReplied(accountID uint) error {
	return d.db.Model(&models.EmailAccount{}).Where("id = ?", accountID).
		Update("warmup_replied_today", gorm.Expr("warmup_replied_today + ?", 1)).Error
}

func (d *DB) AdjustReputation(accountID uint, delta int) error {
	return d.db.Model(&models.EmailAccount{}).Where("id = ?", accountID).
		Update("reputation_score",
			gorm.Expr("LEAST(100, GREATEST(0, reputation_score + ?))", delta)).Error
}

func (d *DB) MarkAccountError(accountID uint, detail string) error {
	return d.db.Model(&models.EmailAccount{}).Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"status":       models.AccountStatusError,
			"error_detail": detail,
		}).Error
}

func (d *DB) StampAccountSynced(accountID uint, at time.Time) error {
	return d.db.Model(&models.EmailAccount{}).Where("id = ?", accountID).
		Update("last_synced_at", at).Error
}

// ResetDailyCounters zeroes the per-day counters for all accounts and
// advances the warmup day for warmup-enabled ones. Run once per day.
func (d *DB) ResetDailyCounters() error {
	if err := d.db.Model(&models.EmailAccount{}).Where("1 = 1").
		Updates(map[string]interface{}{
			"sent_today":           0,
			"warmup_sent_today":    0,
			"warmup_replied_today": 0,
		}).Error; err != nil {
		return err
	}
	return d.db.Model(&models.EmailAccount{}).Where("warmup_enabled = ?", true).
		Update("warmup_current_day", gorm.Expr("warmup_current_day + ?", 1)).Error
}

// ----- leads -----

func (d *DB) CandidateLeads(campaignID uint, excludedStatuses []string, now time.Time, filter LeadFilter, limit int, prioritizeNew bool) ([]models.Lead, error) {
	query := d.db.Where("campaign_id = ?", campaignID).
		Where("status NOT IN ?", excludedStatuses).
		Where("next_send_at IS NULL OR next_send_at <= ?", now)

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Tag != "" {
		query = query.Where("tag = ?", filter.Tag)
	}

	if prioritizeNew {
		query = query.Order("CASE WHEN next_send_at IS NULL THEN 0 ELSE 1 END, id ASC")
	} else {
		query = query.Order("id ASC")
	}

	var leads []models.Lead
	if err := query.Limit(limit).Find(&leads).Error; err != nil {
		return nil, err
	}
	return leads, nil
}

func (d *DB) UpdateLeadStatus(leadID uint, status string) error {
	return d.db.Model(&models.Lead{}).Where("id = ?", leadID).
		Update("status", status).Error
}

func (d *DB) SetNextSendAt(leadID uint, at *time.Time) error {
	return d.db.Model(&models.Lead{}).Where("id = ?", leadID).
		Update("next_send_at", at).Error
}

func (d *DB) SetLeadLabel(leadID uint, label string) error {
	return d.db.Model(&models.Lead{}).Where("id = ?", leadID).
		Update("ai_label", label).Error
}

func (d *DB) LeadsByEmail(email string) ([]models.Lead, error) {
	var leads []models.Lead
	err := d.db.Where("email = ?", email).Find(&leads).Error
	return leads, err
}

// ----- sending events -----

func (d *DB) CreateEvent(event *models.SendingEvent) error {
	return d.db.Create(event).Error
}

// MarkEventSent performs the single allowed mutation of the event log: the
// pending->sent transition at send time.
func (d *DB) MarkEventSent(eventID uint, messageID string) error {
	return d.db.Model(&models.SendingEvent{}).
		Where("id = ? AND type = ?", eventID, models.EventTypePending).
		Updates(map[string]interface{}{
			"type":       models.EventTypeSent,
			"message_id": messageID,
		}).Error
}

func (d *DB) SentCount(leadID, campaignID uint) (int, error) {
	var count int64
	err := d.db.Model(&models.SendingEvent{}).
		Where("lead_id = ? AND campaign_id = ? AND type = ?", leadID, campaignID, models.EventTypeSent).
		Count(&count).Error
	return int(count), err
}

func (d *DB) LastSentEvent(leadID, campaignID uint) (*models.SendingEvent, error) {
	var event models.SendingEvent
	err := d.db.Where("lead_id = ? AND campaign_id = ? AND type = ?",
		leadID, campaignID, models.EventTypeSent).
		Order("created_at DESC").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (d *DB) HasSentEvent(leadID, campaignID uint, step int) (bool, error) {
	var count int64
	err := d.db.Model(&models.SendingEvent{}).
		Where("lead_id = ? AND campaign_id = ? AND step_number = ? AND type = ?",
			leadID, campaignID, step, models.EventTypeSent).
		Count(&count).Error
	return count > 0, err
}

func (d *DB) HasBounceEvent(leadID uint) (bool, error) {
	var count int64
	err := d.db.Model(&models.SendingEvent{}).
		Where("lead_id = ? AND type = ?", leadID, models.EventTypeBounce).
		Count(&count).Error
	return count > 0, err
}

func (d *DB) HasReplyWithMessageID(messageID string) (bool, error) {
	var count int64
	err := d.db.Model(&models.SendingEvent{}).
		Where("message_id = ? AND type = ?", messageID, models.EventTypeReply).
		Count(&count).Error
	return count > 0, err
}

func (d *DB) SentEventByMessageIDs(accountID uint, messageIDs []string) (*models.SendingEvent, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var event models.SendingEvent
	err := d.db.Where("account_id = ? AND message_id IN ? AND type = ?",
		accountID, messageIDs, models.EventTypeSent).
		Order("created_at DESC").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (d *DB) LastSentToAddress(accountID uint, email string) (*models.SendingEvent, error) {
	var event models.SendingEvent
	err := d.db.Model(&models.SendingEvent{}).
		Joins("JOIN leads ON leads.id = sending_events.lead_id").
		Where("sending_events.account_id = ? AND sending_events.type = ? AND leads.email = ?",
			accountID, models.EventTypeSent, email).
		Order("sending_events.created_at DESC").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ----- daily stats -----

func (d *DB) IncrementStat(campaignID uint, day, column string) error {
	stat := models.CampaignStat{CampaignID: campaignID, Day: day}
	switch column {
	case StatColumnSent:
		stat.Sent = 1
	case StatColumnOpened:
		stat.Opened = 1
	case StatColumnClicked:
		stat.Clicked = 1
	case StatColumnReplied:
		stat.Replied = 1
	case StatColumnBounced:
		stat.Bounced = 1
	default:
		return fmt.Errorf("unknown stat column %q", column)
	}

	return d.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "campaign_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			column: gorm.Expr(column + " + 1"),
		}),
	}).Create(&stat).Error
}

func (d *DB) StatForDay(campaignID uint, day string) (*models.CampaignStat, error) {
	var stat models.CampaignStat
	err := d.db.Where("campaign_id = ? AND day = ?", campaignID, day).First(&stat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stat, nil
}

// ----- warmup log -----

func (d *DB) LogWarmupAction(entry *models.WarmupLog) error {
	return d.db.Create(entry).Error
}

func (d *DB) HasWarmupAction(warmupID, action string) (bool, error) {
	var count int64
	err := d.db.Model(&models.WarmupLog{}).
		Where("warmup_id = ? AND action = ?", warmupID, action).
		Count(&count).Error
	return count > 0, err
}

// ----- blocklist -----

func (d *DB) IsBlocked(email string) (bool, error) {
	var count int64
	err := d.db.Model(&models.BlocklistEntry{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

// ----- webhooks -----

func (d *DB) EnabledWebhooks(event string) ([]models.WebhookEndpoint, error) {
	var hooks []models.WebhookEndpoint
	err := d.db.Where("enabled = ?", true).
		Where("events = '' OR events LIKE ?", "%"+event+"%").
		Find(&hooks).Error
	return hooks, err
}
