package sender

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"outreach/models"
	"outreach/store"
	"outreach/utils"
)

type fakeMailer struct {
	sent []*utils.OutgoingMessage
	err  error
}

func (f *fakeMailer) Send(account *models.EmailAccount, msg *utils.OutgoingMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return msg.Headers["Message-Id"], nil
}

type fixture struct {
	mem      *store.Memory
	mailer   *fakeMailer
	sender   *BatchSender
	campaign *models.Campaign
	account  *models.EmailAccount
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mem := store.NewMemory()
	account := mem.AddAccount(&models.EmailAccount{
		Email:      "sender@agency.com",
		FromName:   "Agency",
		Status:     models.AccountStatusActive,
		DailyLimit: 50,
	})

	campaign := mem.AddCampaign(&models.Campaign{
		Name:        "Launch",
		Status:      models.CampaignStatusActive,
		StopOnReply: true,
		Steps: []models.SequenceStep{
			{StepNumber: 1, Subject: "Hello {{first_name}}", Body: "<p>Hi {{first_name}}</p>"},
			{StepNumber: 2, DayGap: 3, Subject: "Following up", Body: "<p>Any thoughts?</p>"},
		},
		Accounts: []models.EmailAccount{*account},
	})

	mailer := &fakeMailer{}
	f := &fixture{
		mem:      mem,
		mailer:   mailer,
		campaign: campaign,
		account:  account,
		clock:    time.Now(),
	}

	f.sender = NewBatchSender(mem, mailer, nil, Options{})
	f.sender.now = func() time.Time { return f.clock }
	f.sender.sleep = func(time.Duration) {}
	return f
}

func (f *fixture) addLead(email, firstName string) *models.Lead {
	return f.mem.AddLead(&models.Lead{
		CampaignID: f.campaign.ID,
		Email:      email,
		FirstName:  firstName,
		Status:     models.LeadStatusNew,
	})
}

func TestBatchSenderSequenceProgression(t *testing.T) {
	f := newFixture(t)
	lead := f.addLead("jordan@acme.com", "Jordan")

	// first invocation sends step 1
	report, err := f.sender.Run(RunFilter{})
	require.NoError(t, err)
	require.Len(t, report.Campaigns, 1)
	assert.Equal(t, 1, report.Campaigns[0].Sent)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "Hello Jordan", f.mailer.sent[0].Subject)
	assert.Contains(t, f.mailer.sent[0].HTMLBody, "Hi Jordan")

	stored := f.mem.Lead(lead.ID)
	assert.Equal(t, models.LeadStatusContacted, stored.Status)
	require.NotNil(t, stored.NextSendAt)
	assert.Equal(t, 1, f.mem.Campaign(f.campaign.ID).SentCount)
	assert.Equal(t, 1, f.mem.Account(f.account.ID).SentToday)

	events := f.mem.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTypeSent, events[0].Type)
	assert.Equal(t, 1, events[0].StepNumber)
	assert.NotEmpty(t, events[0].MessageID)

	stat, err := f.mem.StatForDay(f.campaign.ID, models.StatDay(f.clock))
	require.NoError(t, err)
	require.NotNil(t, stat)
	assert.Equal(t, 1, stat.Sent)

	// immediate re-run sends nothing: the follow-up is gated on next_send_at
	report, err = f.sender.Run(RunFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalSent())
	assert.Len(t, f.mailer.sent, 1)

	// four days later step 2 goes out, threaded on step 1
	f.clock = f.clock.AddDate(0, 0, 4)
	report, err = f.sender.Run(RunFilter{})
	require.NoError(t, err)
	require.Len(t, f.mailer.sent, 2)

	followUp := f.mailer.sent[1]
	assert.Equal(t, events[0].MessageID, followUp.InReplyTo)
	assert.Equal(t, []string{events[0].MessageID}, followUp.References)

	stored = f.mem.Lead(lead.ID)
	assert.Equal(t, models.LeadStatusSequenceComplete, stored.Status)
	assert.Nil(t, stored.NextSendAt)

	// with every lead terminal the campaign completes
	assert.True(t, report.Campaigns[0].Completed)
	assert.Equal(t, models.CampaignStatusCompleted, f.mem.Campaign(f.campaign.ID).Status)
}

func TestBatchSenderDuplicateStepGuard(t *testing.T) {
	f := newFixture(t)
	lead := f.addLead("jordan@acme.com", "Jordan")

	// a sent event for step 2 already exists; the derived next step collides
	require.NoError(t, f.mem.CreateEvent(&models.SendingEvent{
		Model:      gorm.Model{CreatedAt: f.clock.AddDate(0, 0, -4)},
		Type:       models.EventTypeSent,
		LeadID:     lead.ID,
		CampaignID: f.campaign.ID,
		AccountID:  f.account.ID,
		StepNumber: 2,
		MessageID:  "<dup@test>",
	}))

	report, err := f.sender.Run(RunFilter{})
	require.NoError(t, err)

	require.Len(t, report.Campaigns[0].Results, 1)
	result := report.Campaigns[0].Results[0]
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Equal(t, "step already sent", result.Reason)
	assert.Empty(t, f.mailer.sent)
}

func TestBatchSenderSkipsBlockedAndMalformed(t *testing.T) {
	f := newFixture(t)
	f.addLead("blocked@acme.com", "B")
	f.addLead("not-an-email", "M")
	f.mem.AddBlocked("blocked@acme.com")

	report, err := f.sender.Run(RunFilter{})
	require.NoError(t, err)

	cr := report.Campaigns[0]
	assert.Equal(t, 0, cr.Sent)
	assert.Equal(t, 2, cr.Skipped)
	reasons := map[string]bool{}
	for _, r := range cr.Results {
		reasons[r.Reason] = true
	}
	assert.True(t, reasons["blocklisted"])
	assert.True(t, reasons["invalid email format"])
}

func TestBatchSenderDailyCap(t *testing.T) {
	f := newFixture(t)
	f.campaign.DailyLimit = 1
	f.addLead("one@acme.com", "One")
	f.addLead("two@acme.com", "Two")

	report, err := f.sender.Run(RunFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalSent())

	// second run the same day is refused outright
	report, err = f.sender.Run(RunFilter{})
	require.NoError(t, err)
	assert.Equal(t, "daily cap reached", report.Campaigns[0].SkipReason)
	assert.Len(t, f.mailer.sent, 1)
}

func TestBatchSenderScheduleGate(t *testing.T) {
	f := newFixture(t)
	f.addLead("jordan@acme.com", "Jordan")
	f.campaign.ScheduleStart = "09:00"
	f.campaign.ScheduleEnd = "17:00"
	f.campaign.Timezone = "UTC"
	f.campaign.SendingDays = "Mon,Tue,Wed,Thu,Fri"
	// a Saturday
	f.clock = time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC)

	report, err := f.sender.Run(RunFilter{})
	require.NoError(t, err)
	assert.Equal(t, "outside sending window", report.Campaigns[0].SkipReason)
	assert.Empty(t, f.mailer.sent)
}

func TestBatchSenderStopOnReplyExcludesRepliedLeads(t *testing.T) {
	f := newFixture(t)
	lead := f.addLead("jordan@acme.com", "Jordan")
	lead.Status = models.LeadStatusReplied

	report, err := f.sender.Run(RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, report.Campaigns[0].Results)
	assert.Empty(t, f.mailer.sent)
}

func TestBatchSenderRepliedLeadKeepsCampaignActive(t *testing.T) {
	f := newFixture(t)
	f.campaign.StopOnReply = false
	lead := f.addLead("jordan@acme.com", "Jordan")
	lead.Status = models.LeadStatusReplied
	due := f.clock.AddDate(0, 0, 3)
	lead.NextSendAt = &due
	require.NoError(t, f.mem.CreateEvent(&models.SendingEvent{
		Model:      gorm.Model{CreatedAt: f.clock},
		Type:       models.EventTypeSent,
		LeadID:     lead.ID,
		CampaignID: f.campaign.ID,
		AccountID:  f.account.ID,
		StepNumber: 1,
		MessageID:  "<s1@test>",
	}))

	// nothing is due yet, but the owed follow-up keeps the campaign open
	report, err := f.sender.Run(RunFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalSent())
	assert.False(t, report.Campaigns[0].Completed)
	assert.Equal(t, models.CampaignStatusActive, f.mem.Campaign(f.campaign.ID).Status)

	// once the gap elapses the replied lead gets its follow-up
	f.clock = f.clock.AddDate(0, 0, 4)
	report, err = f.sender.Run(RunFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalSent())
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "Following up", f.mailer.sent[0].Subject)
}

type nextSendFailStore struct {
	store.Store
	err error
}

func (s *nextSendFailStore) SetNextSendAt(leadID uint, at *time.Time) error {
	return s.err
}

func TestBatchSenderSequenceCompleteSurvivesStoreError(t *testing.T) {
	f := newFixture(t)
	lead := f.addLead("jordan@acme.com", "Jordan")
	lead.Status = models.LeadStatusContacted
	for step := 1; step <= 2; step++ {
		require.NoError(t, f.mem.CreateEvent(&models.SendingEvent{
			Type:       models.EventTypeSent,
			LeadID:     lead.ID,
			CampaignID: f.campaign.ID,
			AccountID:  f.account.ID,
			StepNumber: step,
			MessageID:  fmt.Sprintf("<s%d@test>", step),
		}))
	}
	f.sender.store = &nextSendFailStore{Store: f.mem, err: fmt.Errorf("connection refused")}

	report, err := f.sender.Run(RunFilter{})
	require.NoError(t, err)

	require.Len(t, report.Campaigns[0].Results, 1)
	result := report.Campaigns[0].Results[0]
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Equal(t, "sequence complete", result.Reason)
	assert.Equal(t, models.LeadStatusSequenceComplete, f.mem.Lead(lead.ID).Status)
}

func TestBatchSenderSendFailureMarksAccount(t *testing.T) {
	f := newFixture(t)
	f.addLead("jordan@acme.com", "Jordan")
	f.mailer.err = fmt.Errorf("535 authentication failed")

	report, err := f.sender.Run(RunFilter{})
	require.NoError(t, err)

	cr := report.Campaigns[0]
	assert.Equal(t, 1, cr.Errors)
	assert.Equal(t, models.AccountStatusError, f.mem.Account(f.account.ID).Status)

	// the pending row stays pending as an audit trail of the attempt
	events := f.mem.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTypePending, events[0].Type)
}

func TestBatchSenderBudgetGuard(t *testing.T) {
	f := newFixture(t)
	f.addLead("jordan@acme.com", "Jordan")
	f.sender.opts.Budget = time.Millisecond
	f.sender.now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}

	report, err := f.sender.Run(RunFilter{})
	require.NoError(t, err)
	assert.True(t, report.BudgetExhausted)
	assert.Empty(t, f.mailer.sent)
}

func TestBatchSenderTextOnlyFirstStep(t *testing.T) {
	f := newFixture(t)
	f.addLead("jordan@acme.com", "Jordan")
	f.campaign.SettingsJSON = `{"text_only_first_step":true}`

	_, err := f.sender.Run(RunFilter{})
	require.NoError(t, err)

	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	assert.Empty(t, msg.HTMLBody)
	assert.Equal(t, "Hi Jordan", msg.TextBody)
}
