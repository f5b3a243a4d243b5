package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach/models"
	"outreach/store"
	"outreach/utils"
)

type syncFixture struct {
	mem     *store.Memory
	syncer  *Syncer
	account *models.EmailAccount
	lead    *models.Lead
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()

	mem := store.NewMemory()
	account := mem.AddAccount(&models.EmailAccount{
		Email:    "sender@agency.com",
		Status:   models.AccountStatusActive,
		IMAPHost: "imap.agency.com",
	})
	campaign := mem.AddCampaign(&models.Campaign{
		Name:   "Launch",
		Status: models.CampaignStatusActive,
	})
	lead := mem.AddLead(&models.Lead{
		CampaignID: campaign.ID,
		Email:      "jordan@acme.com",
		Status:     models.LeadStatusContacted,
	})
	require.NoError(t, mem.CreateEvent(&models.SendingEvent{
		Type:       models.EventTypeSent,
		LeadID:     lead.ID,
		CampaignID: campaign.ID,
		AccountID:  account.ID,
		MessageID:  "<m1@agency.com>",
		StepNumber: 1,
	}))

	return &syncFixture{
		mem:     mem,
		syncer:  New(mem, nil, utils.NewHTTPClassifier(""), nil, Options{}),
		account: account,
		lead:    lead,
	}
}

func (f *syncFixture) handle(t *testing.T, msg *inboundMessage) *Report {
	t.Helper()
	report := &Report{}
	require.NoError(t, f.syncer.handleMessage(f.account, msg, true, report))
	return report
}

func TestHandleMessageRecordsReply(t *testing.T) {
	f := newSyncFixture(t)
	msg := &inboundMessage{
		From:      "jordan@acme.com",
		Subject:   "Re: Hello",
		MessageID: "<r1@acme.com>",
		InReplyTo: "<m1@agency.com>",
		TextBody:  "Not interested, remove me",
	}

	report := f.handle(t, msg)
	assert.Equal(t, 1, report.RepliesFound)

	stored := f.mem.Lead(f.lead.ID)
	assert.Equal(t, models.LeadStatusReplied, stored.Status)
	assert.Equal(t, utils.LabelNotInterested, stored.AILabel)
	assert.Equal(t, 1, f.mem.Campaign(f.lead.CampaignID).ReplyCount)

	replies := 0
	for _, e := range f.mem.Events() {
		if e.Type == models.EventTypeReply {
			replies++
			assert.Equal(t, "Not interested, remove me", e.Body)
			assert.Equal(t, 1, e.StepNumber)
		}
	}
	assert.Equal(t, 1, replies)

	// replaying the same message is a no-op
	report = f.handle(t, msg)
	assert.Equal(t, 0, report.RepliesFound)
	assert.Equal(t, 1, f.mem.Campaign(f.lead.CampaignID).ReplyCount)
}

func TestHandleMessageReplyFallbackByAddress(t *testing.T) {
	f := newSyncFixture(t)
	// no threading headers at all; sender address ties it back
	report := f.handle(t, &inboundMessage{
		From:      "jordan@acme.com",
		Subject:   "hello again",
		MessageID: "<r2@acme.com>",
		TextBody:  "sounds interesting, tell me more",
	})

	assert.Equal(t, 1, report.RepliesFound)
	assert.Equal(t, models.LeadStatusReplied, f.mem.Lead(f.lead.ID).Status)
	assert.Equal(t, utils.LabelInterested, f.mem.Lead(f.lead.ID).AILabel)
}

func TestHandleMessageIgnoresUnmatched(t *testing.T) {
	f := newSyncFixture(t)
	report := f.handle(t, &inboundMessage{
		From:      "stranger@nowhere.com",
		Subject:   "newsletter",
		MessageID: "<n1@nowhere.com>",
		TextBody:  "buy now",
	})

	assert.Equal(t, 0, report.RepliesFound)
	assert.Equal(t, models.LeadStatusContacted, f.mem.Lead(f.lead.ID).Status)
}

func TestHandleMessageRecordsBounce(t *testing.T) {
	f := newSyncFixture(t)
	msg := &inboundMessage{
		From:      "mailer-daemon@mail.acme.com",
		Subject:   "Undeliverable: Hello",
		MessageID: "<b1@mail.acme.com>",
		TextBody:  "550 5.1.1 jordan@acme.com user unknown",
	}

	report := f.handle(t, msg)
	assert.Equal(t, 1, report.BouncesFound)
	assert.Equal(t, models.LeadStatusBounced, f.mem.Lead(f.lead.ID).Status)
	assert.Equal(t, 1, f.mem.Campaign(f.lead.CampaignID).BounceCount)

	// a lead bounces at most once
	report = f.handle(t, msg)
	assert.Equal(t, 0, report.BouncesFound)
	assert.Equal(t, 1, f.mem.Campaign(f.lead.CampaignID).BounceCount)
}

func TestHandleMessageSentFolderSkipsClassifier(t *testing.T) {
	f := newSyncFixture(t)
	report := &Report{}
	require.NoError(t, f.syncer.handleMessage(f.account, &inboundMessage{
		From:      "jordan@acme.com",
		Subject:   "Re: Hello",
		MessageID: "<r3@acme.com>",
		InReplyTo: "<m1@agency.com>",
		TextBody:  "Not interested, remove me",
	}, false, report))

	// the reply is recorded, but the intent label is inbox-only
	assert.Equal(t, 1, report.RepliesFound)
	stored := f.mem.Lead(f.lead.ID)
	assert.Equal(t, models.LeadStatusReplied, stored.Status)
	assert.Empty(t, stored.AILabel)
}

func TestFindSentFolder(t *testing.T) {
	tests := []struct {
		name    string
		folders []string
		want    string
	}{
		{"plain", []string{"INBOX", "Drafts", "Sent", "Trash"}, "Sent"},
		{"outlook", []string{"Inbox", "Sent Items", "Junk Email"}, "Sent Items"},
		{"gmail", []string{"INBOX", "[Gmail]/Spam", "[Gmail]/Sent Mail"}, "[Gmail]/Sent Mail"},
		{"namespaced", []string{"INBOX", "INBOX.Sent"}, "INBOX.Sent"},
		{"missing", []string{"INBOX", "Drafts"}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, findSentFolder(tc.folders))
		})
	}
}

func TestHandleMessageSkipsWarmupAndSelf(t *testing.T) {
	f := newSyncFixture(t)

	report := f.handle(t, &inboundMessage{
		From:     "peer@other.com",
		Subject:  "Quick question",
		IsWarmup: true,
	})
	assert.Equal(t, 0, report.RepliesFound)

	report = f.handle(t, &inboundMessage{
		From:    "sender@agency.com",
		Subject: "note to self",
	})
	assert.Equal(t, 0, report.RepliesFound)
	assert.Len(t, f.mem.Events(), 1)
}
