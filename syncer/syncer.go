// Package syncer polls sender mailboxes over IMAP and folds replies and
// bounces back into the event log, lead statuses and campaign counters.
// Each run is a short, budget-bounded batch over the least recently
// synced accounts.
package syncer

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"outreach/models"
	"outreach/store"
	"outreach/utils"
	"outreach/webhook"
)

const (
	defaultAccountLimit = 10
	defaultBudget       = 50 * time.Second
	lookbackDays        = 60
	maxSyncAttempts     = 3
)

// Options tunes a sync run.
type Options struct {
	Budget       time.Duration
	AccountLimit int
}

// Report summarizes one sync run.
type Report struct {
	AccountsProcessed int
	RepliesFound      int
	BouncesFound      int
	Errors            int
}

// inboundMessage is a mailbox message reduced to the fields the sync
// logic needs, so matching and recording are testable without a live
// IMAP connection.
type inboundMessage struct {
	From       string
	Subject    string
	MessageID  string
	InReplyTo  string
	References []string
	TextBody   string
	IsWarmup   bool
}

type Syncer struct {
	store      store.Store
	cipher     *utils.Cipher
	classifier utils.ReplyClassifier
	hooks      *webhook.Dispatcher
	opts       Options

	now   func() time.Time
	sleep func(time.Duration)
	log   *logrus.Entry
}

func New(st store.Store, cipher *utils.Cipher, classifier utils.ReplyClassifier, hooks *webhook.Dispatcher, opts Options) *Syncer {
	if opts.Budget <= 0 {
		opts.Budget = defaultBudget
	}
	if opts.AccountLimit <= 0 {
		opts.AccountLimit = defaultAccountLimit
	}
	return &Syncer{
		store:      st,
		cipher:     cipher,
		classifier: classifier,
		hooks:      hooks,
		opts:       opts,
		now:        time.Now,
		sleep:      time.Sleep,
		log:        logrus.WithField("component", "syncer"),
	}
}

// Run syncs the least recently synced accounts, oldest first, until the
// wall-clock budget runs out. Account failures are isolated; a broken
// mailbox never blocks the rest of the batch.
func (s *Syncer) Run() (*Report, error) {
	started := s.now()
	report := &Report{}

	accounts, err := s.store.AccountsForSync(s.opts.AccountLimit)
	if err != nil {
		return nil, err
	}

	for i := range accounts {
		if s.now().Sub(started) > s.opts.Budget {
			s.log.Info("sync budget exhausted, remaining accounts deferred to next run")
			break
		}

		account := &accounts[i]
		if account.IMAPHost == "" {
			continue
		}

		if err := s.syncAccountWithRetry(account, report); err != nil {
			report.Errors++
			s.log.WithField("account", account.Email).WithError(err).Warn("account sync failed")
			if utils.IsPermanentError(err) {
				if markErr := s.store.MarkAccountError(account.ID, err.Error()); markErr != nil {
					s.log.WithError(markErr).Error("failed to record account error")
				}
			}
			continue
		}

		if err := s.store.StampAccountSynced(account.ID, s.now()); err != nil {
			s.log.WithError(err).Error("failed to stamp sync time")
		}
		report.AccountsProcessed++
	}
	return report, nil
}

// syncAccountWithRetry retries transient connection failures with a short
// backoff; permanent failures surface immediately.
func (s *Syncer) syncAccountWithRetry(account *models.EmailAccount, report *Report) error {
	var lastErr error
	for attempt := 1; attempt <= maxSyncAttempts; attempt++ {
		lastErr = s.syncAccount(account, report)
		if lastErr == nil {
			return nil
		}
		if !utils.IsTransientError(lastErr) {
			return lastErr
		}
		s.sleep(time.Duration(attempt*attempt) * time.Second)
	}
	return lastErr
}

func (s *Syncer) syncAccount(account *models.EmailAccount, report *Report) error {
	imapClient, err := utils.DialIMAP(account, s.cipher)
	if err != nil {
		return err
	}
	defer imapClient.Logout()

	if err := s.syncFolder(imapClient, account, "INBOX", true, report); err != nil {
		return err
	}

	// The Sent mirror catches replies some providers file next to the
	// outbound thread. Classification stays inbox-only.
	if folder := findSentFolder(listFolders(imapClient)); folder != "" {
		if err := s.syncFolder(imapClient, account, folder, false, report); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) syncFolder(imapClient *client.Client, account *models.EmailAccount, folder string, classify bool, report *Report) error {
	if _, err := imapClient.Select(folder, false); err != nil {
		return fmt.Errorf("failed to select %s: %w", folder, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = s.now().AddDate(0, 0, -lookbackDays)
	ids, err := imapClient.Search(criteria)
	if err != nil {
		return fmt.Errorf("%s search failed: %w", folder, err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	for _, msg := range s.fetchMessages(imapClient, seqset) {
		if err := s.handleMessage(account, msg, classify, report); err != nil {
			s.log.WithFields(logrus.Fields{
				"account":    account.Email,
				"folder":     folder,
				"message_id": msg.MessageID,
			}).WithError(err).Warn("failed to process message")
		}
	}
	return nil
}

// listFolders names the account's mailboxes.
func listFolders(imapClient *client.Client) []string {
	mailboxes := make(chan *imap.MailboxInfo, 20)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.List("", "*", mailboxes)
	}()

	var names []string
	for mbox := range mailboxes {
		names = append(names, mbox.Name)
	}
	<-done
	return names
}

// findSentFolder picks the mailbox mirroring outbound mail. Providers
// disagree on the name, so well-known names win before a substring match.
func findSentFolder(names []string) string {
	for _, name := range names {
		switch strings.ToLower(name) {
		case "sent", "sent items", "sent mail", "sent messages":
			return name
		}
	}
	for _, name := range names {
		if strings.Contains(strings.ToLower(name), "sent") {
			return name
		}
	}
	return ""
}

// handleMessage records a single inbound message as a bounce or a reply.
// Already-recorded messages are recognized and skipped, so re-scanning the
// same mailbox window is idempotent.
func (s *Syncer) handleMessage(account *models.EmailAccount, msg *inboundMessage, classify bool, report *Report) error {
	if msg.IsWarmup {
		return nil
	}
	if strings.EqualFold(msg.From, account.Email) {
		return nil
	}

	if isBounceMessage(msg.From, msg.Subject, msg.TextBody) {
		return s.recordBounce(account, msg, report)
	}
	return s.recordReply(account, msg, classify, report)
}

func (s *Syncer) recordBounce(account *models.EmailAccount, msg *inboundMessage, report *Report) error {
	for _, addr := range extractBounceAddresses(msg.TextBody, account.Email) {
		leads, err := s.store.LeadsByEmail(addr)
		if err != nil {
			return err
		}

		for i := range leads {
			lead := &leads[i]

			// Only leads this system actually mailed can bounce.
			lastSent, err := s.store.LastSentEvent(lead.ID, lead.CampaignID)
			if err != nil {
				return err
			}
			if lastSent == nil {
				continue
			}

			bounced, err := s.store.HasBounceEvent(lead.ID)
			if err != nil {
				return err
			}
			if bounced {
				continue
			}

			err = s.store.WithTx(func(tx store.Store) error {
				if err := tx.CreateEvent(&models.SendingEvent{
					Type:       models.EventTypeBounce,
					LeadID:     lead.ID,
					CampaignID: lead.CampaignID,
					AccountID:  account.ID,
					MessageID:  msg.MessageID,
					Subject:    msg.Subject,
					Source:     "sync",
				}); err != nil {
					return err
				}
				if err := tx.UpdateLeadStatus(lead.ID, models.LeadStatusBounced); err != nil {
					return err
				}
				if err := tx.IncrementCampaignBounces(lead.CampaignID); err != nil {
					return err
				}
				return tx.IncrementStat(lead.CampaignID, models.StatDay(s.now()), store.StatColumnBounced)
			})
			if err != nil {
				return err
			}

			report.BouncesFound++
			s.log.WithFields(logrus.Fields{
				"lead":     lead.Email,
				"campaign": lead.CampaignID,
			}).Info("bounce recorded")
		}
	}
	return nil
}

func (s *Syncer) recordReply(account *models.EmailAccount, msg *inboundMessage, classify bool, report *Report) error {
	sent, err := s.matchSentEvent(account, msg)
	if err != nil || sent == nil {
		return err
	}

	if msg.MessageID != "" {
		recorded, err := s.store.HasReplyWithMessageID(msg.MessageID)
		if err != nil {
			return err
		}
		if recorded {
			return nil
		}
	}

	err = s.store.WithTx(func(tx store.Store) error {
		if err := tx.CreateEvent(&models.SendingEvent{
			Type:       models.EventTypeReply,
			LeadID:     sent.LeadID,
			CampaignID: sent.CampaignID,
			AccountID:  account.ID,
			MessageID:  msg.MessageID,
			StepNumber: sent.StepNumber,
			Subject:    msg.Subject,
			Source:     "sync",
			Body:       msg.TextBody,
		}); err != nil {
			return err
		}
		if err := tx.UpdateLeadStatus(sent.LeadID, models.LeadStatusReplied); err != nil {
			return err
		}
		if err := tx.IncrementCampaignReplies(sent.CampaignID); err != nil {
			return err
		}
		return tx.IncrementStat(sent.CampaignID, models.StatDay(s.now()), store.StatColumnReplied)
	})
	if err != nil {
		return err
	}

	report.RepliesFound++
	s.log.WithFields(logrus.Fields{
		"lead":     sent.LeadID,
		"campaign": sent.CampaignID,
	}).Info("reply recorded")

	if s.hooks != nil {
		s.hooks.Fire(models.WebhookEventLeadReplied, map[string]interface{}{
			"leadId":     sent.LeadID,
			"campaignId": sent.CampaignID,
			"subject":    msg.Subject,
		})
	}

	if classify {
		s.classifyReply(sent.LeadID, msg)
	}
	return nil
}

// matchSentEvent ties an inbound message back to a send of this account,
// first by threading headers, then by the sender address.
func (s *Syncer) matchSentEvent(account *models.EmailAccount, msg *inboundMessage) (*models.SendingEvent, error) {
	var refs []string
	if msg.InReplyTo != "" {
		refs = append(refs, msg.InReplyTo)
	}
	refs = append(refs, msg.References...)

	if len(refs) > 0 {
		sent, err := s.store.SentEventByMessageIDs(account.ID, refs)
		if err != nil {
			return nil, err
		}
		if sent != nil {
			return sent, nil
		}
	}
	return s.store.LastSentToAddress(account.ID, msg.From)
}

// classifyReply is best effort; a classifier failure never fails the sync.
func (s *Syncer) classifyReply(leadID uint, msg *inboundMessage) {
	if s.classifier == nil {
		return
	}
	label, err := s.classifier.Classify(msg.Subject, msg.TextBody)
	if err != nil {
		s.log.WithError(err).Debug("reply classification degraded")
	}
	if label == "" {
		return
	}
	if err := s.store.SetLeadLabel(leadID, label); err != nil {
		s.log.WithError(err).Error("failed to store reply label")
	}
}

func (s *Syncer) fetchMessages(imapClient *client.Client, seqset *imap.SeqSet) []*inboundMessage {
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqset, items, messages)
	}()

	var out []*inboundMessage
	for raw := range messages {
		msg := parseMessage(raw, section)
		if msg != nil {
			out = append(out, msg)
		}
	}

	if err := <-done; err != nil {
		s.log.WithError(err).Warn("message fetch incomplete")
	}
	return out
}

func parseMessage(raw *imap.Message, section *imap.BodySectionName) *inboundMessage {
	msg := &inboundMessage{}

	if raw.Envelope != nil {
		msg.Subject = raw.Envelope.Subject
		msg.MessageID = raw.Envelope.MessageId
		msg.InReplyTo = raw.Envelope.InReplyTo
		if len(raw.Envelope.From) > 0 {
			addr := raw.Envelope.From[0]
			msg.From = addr.MailboxName + "@" + addr.HostName
		}
	}

	literal := raw.GetBody(section)
	if literal == nil {
		return msg
	}

	mr, err := mail.CreateReader(literal)
	if err != nil {
		return msg
	}

	if mr.Header.Get("X-Warmup") != "" {
		msg.IsWarmup = true
	}
	if refs := mr.Header.Get("References"); refs != "" {
		msg.References = strings.Fields(refs)
	}
	if msg.InReplyTo == "" {
		msg.InReplyTo = mr.Header.Get("In-Reply-To")
	}

	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := header.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		if contentType == "text/plain" {
			msg.TextBody = string(body)
			break
		}
		if msg.TextBody == "" && contentType == "text/html" {
			msg.TextBody = utils.StripHTML(string(body))
		}
	}
	return msg
}
