package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"outreach/models"
)

// Memory is an in-process Store used by tests and local development. It
// mirrors the GORM implementation's semantics; WithTx runs the callback
// directly since there is nothing to roll back against.
type Memory struct {
	mu sync.Mutex

	campaigns map[uint]*models.Campaign
	accounts  map[uint]*models.EmailAccount
	leads     map[uint]*models.Lead
	events    []*models.SendingEvent
	stats     map[string]*models.CampaignStat
	warmupLog []*models.WarmupLog
	blocklist map[string]bool
	webhooks  []*models.WebhookEndpoint

	nextID uint
}

func NewMemory() *Memory {
	return &Memory{
		campaigns: make(map[uint]*models.Campaign),
		accounts:  make(map[uint]*models.EmailAccount),
		leads:     make(map[uint]*models.Lead),
		stats:     make(map[string]*models.CampaignStat),
		blocklist: make(map[string]bool),
	}
}

func (m *Memory) WithTx(fn func(tx Store) error) error {
	return fn(m)
}

func (m *Memory) allocID() uint {
	m.nextID++
	return m.nextID
}

// ----- seeding helpers -----

func (m *Memory) AddCampaign(c *models.Campaign) *models.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.allocID()
	}
	m.campaigns[c.ID] = c
	return c
}

func (m *Memory) AddAccount(a *models.EmailAccount) *models.EmailAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		a.ID = m.allocID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.accounts[a.ID] = a
	return a
}

func (m *Memory) AddLead(l *models.Lead) *models.Lead {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == 0 {
		l.ID = m.allocID()
	}
	m.leads[l.ID] = l
	return l
}

func (m *Memory) AddBlocked(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocklist[strings.ToLower(email)] = true
}

func (m *Memory) AddWebhook(w *models.WebhookEndpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.ID == 0 {
		w.ID = m.allocID()
	}
	m.webhooks = append(m.webhooks, w)
}

// Campaign returns the stored campaign for assertions.
func (m *Memory) Campaign(id uint) *models.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.campaigns[id]
}

// Account returns the stored account for assertions.
func (m *Memory) Account(id uint) *models.EmailAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id]
}

// Lead returns the stored lead for assertions.
func (m *Memory) Lead(id uint) *models.Lead {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leads[id]
}

// Events returns a copy of the event log for assertions.
func (m *Memory) Events() []*models.SendingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.SendingEvent, len(m.events))
	copy(out, m.events)
	return out
}

// WarmupLogs returns a copy of the warmup log for assertions.
func (m *Memory) WarmupLogs() []*models.WarmupLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.WarmupLog, len(m.warmupLog))
	copy(out, m.warmupLog)
	return out
}

// ----- campaigns -----

func (m *Memory) ActiveCampaigns(filter CampaignFilter) ([]models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Campaign
	for _, c := range m.campaigns {
		if c.Status != models.CampaignStatusActive {
			continue
		}
		if filter.Name != "" && c.Name != filter.Name {
			continue
		}
		if len(filter.IDs) > 0 && !containsID(filter.IDs, c.ID) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (m *Memory) UpdateRotationCursor(campaignID uint, cursor int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.campaigns[campaignID]; ok {
		c.LastAccountIndex = cursor
	}
	return nil
}

func (m *Memory) IncrementCampaignSent(campaignID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.campaigns[campaignID]; ok {
		c.SentCount++
	}
	return nil
}

func (m *Memory) IncrementCampaignReplies(campaignID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.campaigns[campaignID]; ok {
		c.ReplyCount++
	}
	return nil
}

func (m *Memory) IncrementCampaignBounces(campaignID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.campaigns[campaignID]; ok {
		c.BounceCount++
	}
	return nil
}

func (m *Memory) MarkCampaignCompleted(campaignID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.campaigns[campaignID]; ok {
		c.Status = models.CampaignStatusCompleted
	}
	return nil
}

func (m *Memory) CountLeads(campaignID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, l := range m.leads {
		if l.CampaignID == campaignID {
			count++
		}
	}
	return count, nil
}

func (m *Memory) CountLeadsInStatus(campaignID uint, statuses []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, l := range m.leads {
		if l.CampaignID == campaignID && containsString(statuses, l.Status) {
			count++
		}
	}
	return count, nil
}

func containsString(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// ----- accounts -----

func (m *Memory) GetAccount(accountID uint) (*models.EmailAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %d not found", accountID)
	}
	copied := *a
	return &copied, nil
}

func (m *Memory) WarmupAccounts() ([]models.EmailAccount, error) {
	return m.filterAccounts(func(a *models.EmailAccount) bool {
		return a.WarmupEnabled && a.Status == models.AccountStatusActive
	})
}

func (m *Memory) PoolAccounts() ([]models.EmailAccount, error) {
	return m.filterAccounts(func(a *models.EmailAccount) bool {
		return a.WarmupEnabled && a.PoolEnabled && a.Status == models.AccountStatusActive
	})
}

func (m *Memory) AccountsForSync(limit int) ([]models.EmailAccount, error) {
	accounts, err := m.filterAccounts(func(a *models.EmailAccount) bool {
		return a.Status == models.AccountStatusActive && a.IMAPHost != ""
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(accounts, func(i, j int) bool {
		ti, tj := accounts[i].LastSyncedAt, accounts[j].LastSyncedAt
		if ti == nil {
			return true
		}
		if tj == nil {
			return false
		}
		return ti.Before(*tj)
	})
	if len(accounts) > limit {
		accounts = accounts[:limit]
	}
	return accounts, nil
}

func (m *Memory) filterAccounts(keep func(*models.EmailAccount) bool) ([]models.EmailAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EmailAccount
	for _, a := range m.accounts {
		if keep(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) IncrementAccountSent(accountID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[accountID]; ok {
		a.SentToday++
	}
	return nil
}

func (m *Memory) IncrementWarmupSent(accountID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[accountID]; ok {
		a.WarmupSentToday++
		a.SentToday++
		now := time.Now()
		a.WarmupLastActiveAt = &now
	}
	return nil
}

func (m *Memory) IncrementWarmupReplied(accountID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[accountID]; ok {
		a.WarmupRepliedToday++
	}
	return nil
}

func (m *Memory) AdjustReputation(accountID uint, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[accountID]; ok {
		a.ReputationScore += delta
		if a.ReputationScore > 100 {
			a.ReputationScore = 100
		}
		if a.ReputationScore < 0 {
			a.ReputationScore = 0
		}
	}
	return nil
}

func (m *Memory) MarkAccountError(accountID uint, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[accountID]; ok {
		a.Status = models.AccountStatusError
		a.ErrorDetail = detail
	}
	return nil
}

func (m *Memory) StampAccountSynced(accountID uint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[accountID]; ok {
		a.LastSyncedAt = &at
	}
	return nil
}

func (m *Memory) ResetDailyCounters() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		a.SentToday = 0
		a.WarmupSentToday = 0
		a.WarmupRepliedToday = 0
		if a.WarmupEnabled {
			a.WarmupCurrentDay++
		}
	}
	return nil
}

// ----- leads -----

func (m *Memory) CandidateLeads(campaignID uint, excludedStatuses []string, now time.Time, filter LeadFilter, limit int, prioritizeNew bool) ([]models.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Lead
	for _, l := range m.leads {
		if l.CampaignID != campaignID {
			continue
		}
		if containsString(excludedStatuses, l.Status) {
			continue
		}
		if l.NextSendAt != nil && l.NextSendAt.After(now) {
			continue
		}
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		if filter.Tag != "" && l.Tag != filter.Tag {
			continue
		}
		out = append(out, *l)
	}

	sort.Slice(out, func(i, j int) bool {
		if prioritizeNew {
			ni, nj := out[i].NextSendAt == nil, out[j].NextSendAt == nil
			if ni != nj {
				return ni
			}
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) UpdateLeadStatus(leadID uint, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.leads[leadID]; ok {
		l.Status = status
	}
	return nil
}

func (m *Memory) SetNextSendAt(leadID uint, at *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.leads[leadID]; ok {
		l.NextSendAt = at
	}
	return nil
}

func (m *Memory) SetLeadLabel(leadID uint, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.leads[leadID]; ok {
		l.AILabel = label
	}
	return nil
}

func (m *Memory) LeadsByEmail(email string) ([]models.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Lead
	for _, l := range m.leads {
		if strings.EqualFold(l.Email, email) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ----- sending events -----

func (m *Memory) CreateEvent(event *models.SendingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.ID == 0 {
		event.ID = m.allocID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	m.events = append(m.events, event)
	return nil
}

func (m *Memory) MarkEventSent(eventID uint, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == eventID && e.Type == models.EventTypePending {
			e.Type = models.EventTypeSent
			e.MessageID = messageID
		}
	}
	return nil
}

func (m *Memory) SentCount(leadID, campaignID uint) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.events {
		if e.LeadID == leadID && e.CampaignID == campaignID && e.Type == models.EventTypeSent {
			count++
		}
	}
	return count, nil
}

func (m *Memory) LastSentEvent(leadID, campaignID uint) (*models.SendingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *models.SendingEvent
	for _, e := range m.events {
		if e.LeadID == leadID && e.CampaignID == campaignID && e.Type == models.EventTypeSent {
			last = e
		}
	}
	if last == nil {
		return nil, nil
	}
	copied := *last
	return &copied, nil
}

func (m *Memory) HasSentEvent(leadID, campaignID uint, step int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.LeadID == leadID && e.CampaignID == campaignID &&
			e.StepNumber == step && e.Type == models.EventTypeSent {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) HasBounceEvent(leadID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.LeadID == leadID && e.Type == models.EventTypeBounce {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) HasReplyWithMessageID(messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.MessageID == messageID && e.Type == models.EventTypeReply {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) SentEventByMessageIDs(accountID uint, messageIDs []string) (*models.SendingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *models.SendingEvent
	for _, e := range m.events {
		if e.AccountID == accountID && e.Type == models.EventTypeSent && containsString(messageIDs, e.MessageID) {
			last = e
		}
	}
	if last == nil {
		return nil, nil
	}
	copied := *last
	return &copied, nil
}

func (m *Memory) LastSentToAddress(accountID uint, email string) (*models.SendingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *models.SendingEvent
	for _, e := range m.events {
		if e.AccountID != accountID || e.Type != models.EventTypeSent {
			continue
		}
		lead, ok := m.leads[e.LeadID]
		if !ok || !strings.EqualFold(lead.Email, email) {
			continue
		}
		last = e
	}
	if last == nil {
		return nil, nil
	}
	copied := *last
	return &copied, nil
}

// ----- daily stats -----

func (m *Memory) IncrementStat(campaignID uint, day, column string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%d|%s", campaignID, day)
	stat, ok := m.stats[key]
	if !ok {
		stat = &models.CampaignStat{CampaignID: campaignID, Day: day}
		m.stats[key] = stat
	}
	switch column {
	case StatColumnSent:
		stat.Sent++
	case StatColumnOpened:
		stat.Opened++
	case StatColumnClicked:
		stat.Clicked++
	case StatColumnReplied:
		stat.Replied++
	case StatColumnBounced:
		stat.Bounced++
	default:
		return fmt.Errorf("unknown stat column %q", column)
	}
	return nil
}

func (m *Memory) StatForDay(campaignID uint, day string) (*models.CampaignStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stat, ok := m.stats[fmt.Sprintf("%d|%s", campaignID, day)]
	if !ok {
		return nil, nil
	}
	copied := *stat
	return &copied, nil
}

// ----- warmup log -----

func (m *Memory) LogWarmupAction(entry *models.WarmupLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == 0 {
		entry.ID = m.allocID()
	}
	m.warmupLog = append(m.warmupLog, entry)
	return nil
}

func (m *Memory) HasWarmupAction(warmupID, action string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.warmupLog {
		if w.WarmupID == warmupID && w.Action == action {
			return true, nil
		}
	}
	return false, nil
}

// ----- blocklist -----

func (m *Memory) IsBlocked(email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blocklist[strings.ToLower(email)], nil
}

// ----- webhooks -----

func (m *Memory) EnabledWebhooks(event string) ([]models.WebhookEndpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WebhookEndpoint
	for _, w := range m.webhooks {
		if !w.Enabled {
			continue
		}
		if w.Events != "" && !strings.Contains(w.Events, event) {
			continue
		}
		out = append(out, *w)
	}
	return out, nil
}
