package sender

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"outreach/models"
	"outreach/store"
	"outreach/utils"
	"outreach/webhook"
)

const (
	// Candidate leads per campaign per invocation, kept small to bound
	// run latency under the external execution budget.
	defaultBatchSize = 10

	// Safety margin under a 60s platform execution limit.
	defaultBudget = 50 * time.Second

	maxThrottleMS = 15000
)

// Options tune a BatchSender; zero values fall back to defaults.
type Options struct {
	Budget          time.Duration
	BatchSize       int
	TrackingBaseURL string
}

// RunFilter narrows a run to specific campaigns or leads (targeted runs).
type RunFilter struct {
	Campaigns store.CampaignFilter
	Leads     store.LeadFilter
}

// Outcomes for one lead within a batch run.
const (
	OutcomeSent    = "sent"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// LeadResult records what happened to one lead. Per-item failures are
// aggregated here instead of aborting the loop.
type LeadResult struct {
	LeadID  uint
	Email   string
	Step    int
	Outcome string
	Reason  string
}

// CampaignReport summarizes one campaign within a batch run.
type CampaignReport struct {
	CampaignID uint
	Name       string
	SkipReason string // set when the whole campaign was skipped
	Completed  bool
	Sent       int
	Skipped    int
	Errors     int
	Results    []LeadResult
}

// BatchReport is the outcome of one invocation.
type BatchReport struct {
	StartedAt       time.Time
	Campaigns       []CampaignReport
	BudgetExhausted bool
}

func (r *BatchReport) TotalSent() int {
	total := 0
	for _, c := range r.Campaigns {
		total += c.Sent
	}
	return total
}

func (r *BatchReport) TotalErrors() int {
	total := 0
	for _, c := range r.Campaigns {
		total += c.Errors
	}
	return total
}

// BatchSender advances active campaigns one bounded batch at a time. Each
// invocation is stateless; all coordination happens through the store.
type BatchSender struct {
	store  store.Store
	mailer utils.Mailer
	hooks  *webhook.Dispatcher
	opts   Options

	// injected for tests
	now   func() time.Time
	sleep func(time.Duration)
	log   *logrus.Entry
}

func NewBatchSender(st store.Store, mailer utils.Mailer, hooks *webhook.Dispatcher, opts Options) *BatchSender {
	if opts.Budget <= 0 {
		opts.Budget = defaultBudget
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return &BatchSender{
		store:  st,
		mailer: mailer,
		hooks:  hooks,
		opts:   opts,
		now:    time.Now,
		sleep:  time.Sleep,
		log:    logrus.WithField("component", "batch_sender"),
	}
}

// Run processes every active campaign (or the filtered subset) and returns
// a report of partial progress. It never returns an error for per-item
// failures; only a store failure loading campaigns surfaces.
func (bs *BatchSender) Run(filter RunFilter) (*BatchReport, error) {
	report := &BatchReport{StartedAt: bs.now()}

	campaigns, err := bs.store.ActiveCampaigns(filter.Campaigns)
	if err != nil {
		return nil, fmt.Errorf("failed to load active campaigns: %w", err)
	}

	for i := range campaigns {
		if bs.budgetExhausted(report.StartedAt) {
			report.BudgetExhausted = true
			break
		}
		cr := bs.processCampaign(&campaigns[i], filter.Leads, report)
		report.Campaigns = append(report.Campaigns, *cr)
		if report.BudgetExhausted {
			break
		}
	}

	return report, nil
}

func (bs *BatchSender) budgetExhausted(startedAt time.Time) bool {
	return bs.now().Sub(startedAt) >= bs.opts.Budget
}

func (bs *BatchSender) processCampaign(campaign *models.Campaign, leadFilter store.LeadFilter, report *BatchReport) *CampaignReport {
	cr := &CampaignReport{CampaignID: campaign.ID, Name: campaign.Name}
	log := bs.log.WithField("campaign", campaign.ID)
	now := bs.now()

	settings := models.ParseCampaignSettings(campaign.SettingsJSON)

	if !utils.CanSendNow(campaign.ScheduleStart, campaign.ScheduleEnd, campaign.Timezone, campaign.SendingDays, now) {
		cr.SkipReason = "outside sending window"
		return cr
	}
	if len(campaign.Steps) == 0 {
		cr.SkipReason = "no sequence steps"
		return cr
	}
	if len(EligibleAccounts(campaign.Accounts, now)) == 0 {
		cr.SkipReason = "no eligible accounts"
		return cr
	}

	sentToday := 0
	if campaign.DailyLimit > 0 {
		if stat, err := bs.store.StatForDay(campaign.ID, models.StatDay(now)); err == nil && stat != nil {
			sentToday = stat.Sent
		}
		if sentToday >= campaign.DailyLimit {
			cr.SkipReason = "daily cap reached"
			return cr
		}
	}

	excluded := []string{
		models.LeadStatusUnsubscribed,
		models.LeadStatusBounced,
		models.LeadStatusSequenceComplete,
	}
	if campaign.StopOnReply {
		excluded = append(excluded, models.LeadStatusReplied)
	}

	leads, err := bs.store.CandidateLeads(campaign.ID, excluded, now, leadFilter, bs.opts.BatchSize, settings.PrioritizeNew)
	if err != nil {
		log.WithError(err).Error("failed to load candidate leads")
		cr.SkipReason = "lead query failed"
		return cr
	}

	for i := range leads {
		if bs.budgetExhausted(report.StartedAt) {
			report.BudgetExhausted = true
			break
		}
		if campaign.DailyLimit > 0 && sentToday+cr.Sent >= campaign.DailyLimit {
			break
		}

		result := bs.processLead(campaign, settings, &leads[i])
		cr.Results = append(cr.Results, result)
		switch result.Outcome {
		case OutcomeSent:
			cr.Sent++
			bs.throttle(settings)
		case OutcomeError:
			cr.Errors++
		default:
			cr.Skipped++
		}
	}

	bs.maybeComplete(campaign, cr, log)
	return cr
}

// maybeComplete marks a campaign completed once no lead remains in an
// active status, and fires the campaign.finished webhook.
func (bs *BatchSender) maybeComplete(campaign *models.Campaign, cr *CampaignReport, log *logrus.Entry) {
	total, err := bs.store.CountLeads(campaign.ID)
	if err != nil || total == 0 {
		return
	}
	active := []string{
		models.LeadStatusNew,
		models.LeadStatusContacted,
	}
	if !campaign.StopOnReply {
		// Without stop-on-reply a replied lead still owes follow-up steps.
		active = append(active, models.LeadStatusReplied)
	}
	remaining, err := bs.store.CountLeadsInStatus(campaign.ID, active)
	if err != nil || remaining > 0 {
		return
	}

	if err := bs.store.MarkCampaignCompleted(campaign.ID); err != nil {
		log.WithError(err).Error("failed to mark campaign completed")
		return
	}
	cr.Completed = true
	log.Info("campaign completed")
	if bs.hooks != nil {
		bs.hooks.Fire(models.WebhookEventCampaignFinished, map[string]interface{}{
			"campaignId": campaign.ID,
			"name":       campaign.Name,
			"sentCount":  campaign.SentCount + cr.Sent,
		})
	}
}

func (bs *BatchSender) processLead(campaign *models.Campaign, settings models.CampaignSettings, lead *models.Lead) LeadResult {
	now := bs.now()
	log := bs.log.WithFields(logrus.Fields{"campaign": campaign.ID, "lead": lead.ID})

	skip := func(step int, reason string) LeadResult {
		return LeadResult{LeadID: lead.ID, Email: lead.Email, Step: step, Outcome: OutcomeSkipped, Reason: reason}
	}

	if blocked, err := bs.store.IsBlocked(lead.Email); err == nil && blocked {
		return skip(0, "blocklisted")
	}
	if err := checkmail.ValidateFormat(lead.Email); err != nil {
		return skip(0, "invalid email format")
	}

	// Next step is derived from the event log, never from lead state.
	sentCount, err := bs.store.SentCount(lead.ID, campaign.ID)
	if err != nil {
		return LeadResult{LeadID: lead.ID, Email: lead.Email, Outcome: OutcomeError, Reason: err.Error()}
	}
	step := sentCount + 1

	if step > len(campaign.Steps) {
		if err := bs.store.UpdateLeadStatus(lead.ID, models.LeadStatusSequenceComplete); err != nil {
			log.WithError(err).Error("failed to mark lead sequence_complete")
		}
		if err := bs.store.SetNextSendAt(lead.ID, nil); err != nil {
			log.WithError(err).Error("failed to clear next send time")
		}
		return skip(step, "sequence complete")
	}

	stepDef := findStep(campaign.Steps, step)
	if stepDef == nil {
		return skip(step, "step definition missing")
	}

	var lastSent *models.SendingEvent
	if step > 1 {
		lastSent, err = bs.store.LastSentEvent(lead.ID, campaign.ID)
		if err != nil {
			return LeadResult{LeadID: lead.ID, Email: lead.Email, Step: step, Outcome: OutcomeError, Reason: err.Error()}
		}
		if lastSent != nil && now.Before(lastSent.CreatedAt.AddDate(0, 0, stepDef.DayGap)) {
			return skip(step, "day gap not elapsed")
		}
	}

	// Duplicate-send guard keyed by (lead, campaign, step).
	if exists, err := bs.store.HasSentEvent(lead.ID, campaign.ID, step); err != nil {
		return LeadResult{LeadID: lead.ID, Email: lead.Email, Step: step, Outcome: OutcomeError, Reason: err.Error()}
	} else if exists {
		return skip(step, "step already sent")
	}

	var lastAccountID uint
	if lastSent != nil {
		lastAccountID = lastSent.AccountID
	}
	selection := SelectAccount(campaign, settings, lead.Email, step, lastAccountID, now)
	if selection == nil {
		return skip(step, "no eligible account")
	}
	account := selection.Account
	if !selection.Sticky {
		if err := bs.store.UpdateRotationCursor(campaign.ID, selection.Cursor); err != nil {
			log.WithError(err).Warn("failed to persist rotation cursor")
		}
		campaign.LastAccountIndex = selection.Cursor
	}

	subject, body := pickContent(stepDef)
	if subject == "" && body == "" {
		return skip(step, "empty step content")
	}
	subject = utils.ExpandVariables(subject, lead)
	body = utils.ExpandVariables(body, lead)

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), account.Domain())

	msg := &utils.OutgoingMessage{
		To:      lead.Email,
		CC:      settings.CC,
		BCC:     settings.BCC,
		Subject: subject,
		Headers: map[string]string{"Message-Id": messageID},
	}
	if settings.TextOnly || (settings.TextOnlyFirstStep && step == 1) {
		msg.TextBody = utils.StripHTML(body)
	} else {
		html := body
		if bs.opts.TrackingBaseURL != "" {
			html = utils.InjectTracking(html, bs.opts.TrackingBaseURL, messageID, settings.TrackOpens, settings.TrackClicks)
		}
		msg.HTMLBody = html
	}
	if step > 1 && lastSent != nil && lastSent.MessageID != "" {
		msg.InReplyTo = lastSent.MessageID
		msg.References = []string{lastSent.MessageID}
	}

	// Capture intent before the network call so a crash mid-send leaves
	// an auditable pending row instead of an untracked delivery.
	pending := &models.SendingEvent{
		Type:       models.EventTypePending,
		LeadID:     lead.ID,
		CampaignID: campaign.ID,
		AccountID:  account.ID,
		StepNumber: step,
		Subject:    subject,
		Source:     "batch",
	}
	if err := bs.store.CreateEvent(pending); err != nil {
		return LeadResult{LeadID: lead.ID, Email: lead.Email, Step: step, Outcome: OutcomeError, Reason: err.Error()}
	}

	if _, err := bs.mailer.Send(account, msg); err != nil {
		log.WithError(err).Error("send failed")
		if markErr := bs.store.MarkAccountError(account.ID, err.Error()); markErr != nil {
			log.WithError(markErr).Error("failed to mark account errored")
		}
		account.Status = models.AccountStatusError
		return LeadResult{LeadID: lead.ID, Email: lead.Email, Step: step, Outcome: OutcomeError, Reason: err.Error()}
	}

	// Everything that must agree with the event log commits together.
	leadStatus := models.LeadStatusContacted
	var nextSendAt *time.Time
	if step < len(campaign.Steps) {
		if next := findStep(campaign.Steps, step+1); next != nil {
			at := now.AddDate(0, 0, next.DayGap)
			nextSendAt = &at
		}
	} else {
		leadStatus = models.LeadStatusSequenceComplete
	}

	err = bs.store.WithTx(func(tx store.Store) error {
		if err := tx.MarkEventSent(pending.ID, messageID); err != nil {
			return err
		}
		if err := tx.UpdateLeadStatus(lead.ID, leadStatus); err != nil {
			return err
		}
		if err := tx.SetNextSendAt(lead.ID, nextSendAt); err != nil {
			return err
		}
		if err := tx.IncrementCampaignSent(campaign.ID); err != nil {
			return err
		}
		if err := tx.IncrementAccountSent(account.ID); err != nil {
			return err
		}
		return tx.IncrementStat(campaign.ID, models.StatDay(now), store.StatColumnSent)
	})
	if err != nil {
		log.WithError(err).Error("failed to commit send bookkeeping")
		return LeadResult{LeadID: lead.ID, Email: lead.Email, Step: step, Outcome: OutcomeError, Reason: err.Error()}
	}

	account.SentToday++
	log.WithFields(logrus.Fields{"step": step, "account": account.Email}).Info("step sent")
	return LeadResult{LeadID: lead.ID, Email: lead.Email, Step: step, Outcome: OutcomeSent}
}

// throttle sleeps base + random jitter between sends, clamped so one
// invocation stays within its execution budget.
func (bs *BatchSender) throttle(settings models.CampaignSettings) {
	base := clampMS(settings.ThrottleBaseMS)
	jitter := clampMS(settings.ThrottleJitterMS)
	delay := time.Duration(base) * time.Millisecond
	if jitter > 0 {
		delay += time.Duration(rand.Intn(jitter)) * time.Millisecond
	}
	if delay > 0 {
		bs.sleep(delay)
	}
}

func clampMS(ms int) int {
	if ms < 0 {
		return 0
	}
	if ms > maxThrottleMS {
		return maxThrottleMS
	}
	return ms
}

func findStep(steps []models.SequenceStep, number int) *models.SequenceStep {
	for i := range steps {
		if steps[i].StepNumber == number {
			return &steps[i]
		}
	}
	return nil
}

// pickContent resolves a step's subject and body: a uniform-random variant
// when A/B arms exist, otherwise the step's own fields.
func pickContent(step *models.SequenceStep) (string, string) {
	if len(step.Variants) > 0 {
		variant := step.Variants[rand.Intn(len(step.Variants))]
		return variant.Subject, variant.Body
	}
	return step.Subject, step.Body
}
