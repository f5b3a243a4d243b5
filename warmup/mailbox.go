package warmup

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"outreach/models"
	"outreach/store"
	"outreach/utils"
)

const autoReplyLookback = 7 * 24 * time.Hour

// MailboxMaintainer keeps warmup mailboxes healthy: it rescues the
// account's own warmup messages out of spam folders and sends varied
// auto-replies to unanswered warmup mail.
type MailboxMaintainer struct {
	store  store.Store
	cipher *utils.Cipher
	mailer utils.Mailer

	now func() time.Time
	log *logrus.Entry
}

func NewMailboxMaintainer(st store.Store, cipher *utils.Cipher, mailer utils.Mailer) *MailboxMaintainer {
	return &MailboxMaintainer{
		store:  st,
		cipher: cipher,
		mailer: mailer,
		now:    time.Now,
		log:    logrus.WithField("component", "warmup_mailbox"),
	}
}

// RunMaintenance processes every warmup account with an IMAP endpoint.
// Per-account failures are logged and isolated, never abort the cycle.
func (mm *MailboxMaintainer) RunMaintenance() error {
	accounts, err := mm.store.WarmupAccounts()
	if err != nil {
		return err
	}

	for i := range accounts {
		account := &accounts[i]
		if account.IMAPHost == "" {
			continue
		}
		if err := mm.maintainAccount(account); err != nil {
			mm.log.WithField("account", account.Email).WithError(err).Warn("mailbox maintenance failed")
		}
	}
	return nil
}

func (mm *MailboxMaintainer) maintainAccount(account *models.EmailAccount) error {
	imapClient, err := utils.DialIMAP(account, mm.cipher)
	if err != nil {
		return err
	}
	defer imapClient.Logout()

	if err := mm.rescueSpam(imapClient, account); err != nil {
		mm.log.WithField("account", account.Email).WithError(err).Warn("spam rescue failed")
	}
	return mm.sendAutoReplies(imapClient, account)
}

// rescueSpam moves the account's own tagged warmup messages out of
// spam/junk folders back to the inbox and marks them read.
func (mm *MailboxMaintainer) rescueSpam(imapClient *client.Client, account *models.EmailAccount) error {
	for _, folder := range spamFolders(imapClient) {
		if _, err := imapClient.Select(folder, false); err != nil {
			continue
		}

		criteria := imap.NewSearchCriteria()
		criteria.Header.Add(HeaderWarmup, "true")
		ids, err := imapClient.Search(criteria)
		if err != nil || len(ids) == 0 {
			continue
		}

		seqset := new(imap.SeqSet)
		seqset.AddNum(ids...)

		for _, header := range mm.fetchHeaders(imapClient, seqset) {
			warmupID := header.warmupID
			if warmupID == "" {
				continue
			}
			if err := mm.store.LogWarmupAction(&models.WarmupLog{
				WarmupID:  warmupID,
				AccountID: account.ID,
				Action:    models.WarmupActionSpamRescue,
				MessageID: header.messageID,
			}); err != nil {
				mm.log.WithError(err).Error("failed to log spam rescue")
			}
		}

		flagItem := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := imapClient.Store(seqset, flagItem, []interface{}{imap.SeenFlag}, nil); err != nil {
			mm.log.WithError(err).Warn("failed to mark rescued messages read")
		}
		if err := imapClient.Move(seqset, "INBOX"); err != nil {
			return fmt.Errorf("failed to move messages out of %s: %w", folder, err)
		}

		mm.log.WithFields(logrus.Fields{
			"account": account.Email,
			"folder":  folder,
			"count":   len(ids),
		}).Info("rescued warmup messages from spam")
	}
	return nil
}

// sendAutoReplies answers unreplied warmup messages in the inbox. The
// warmup log guards against double-replying, and reply ids are prefixed so
// the engine never responds to its own reply chain.
func (mm *MailboxMaintainer) sendAutoReplies(imapClient *client.Client, account *models.EmailAccount) error {
	if _, err := imapClient.Select("INBOX", false); err != nil {
		return err
	}

	criteria := imap.NewSearchCriteria()
	criteria.Header.Add(HeaderWarmup, "true")
	criteria.Since = mm.now().Add(-autoReplyLookback)
	ids, err := imapClient.Search(criteria)
	if err != nil || len(ids) == 0 {
		return err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	for _, header := range mm.fetchHeaders(imapClient, seqset) {
		warmupID := header.warmupID
		if warmupID == "" || strings.HasPrefix(warmupID, replyIDPrefix) {
			continue
		}
		if strings.EqualFold(header.from, account.Email) {
			continue
		}
		if replied, err := mm.store.HasWarmupAction(warmupID, models.WarmupActionAutoReply); err != nil || replied {
			continue
		}

		subject, body := generateAutoReply(account.FromName, header.subject)
		msg := &utils.OutgoingMessage{
			To:        header.from,
			Subject:   subject,
			TextBody:  body,
			InReplyTo: header.messageID,
			Headers: map[string]string{
				HeaderWarmup:   "true",
				HeaderWarmupID: replyIDPrefix + warmupID,
			},
		}

		messageID, err := mm.mailer.Send(account, msg)
		if err != nil {
			mm.log.WithField("account", account.Email).WithError(err).Warn("auto-reply send failed")
			continue
		}

		if err := mm.store.LogWarmupAction(&models.WarmupLog{
			WarmupID:  warmupID,
			AccountID: account.ID,
			Action:    models.WarmupActionAutoReply,
			PeerEmail: header.from,
			MessageID: messageID,
		}); err != nil {
			mm.log.WithError(err).Error("failed to log auto-reply")
		}
		if err := mm.store.IncrementWarmupReplied(account.ID); err != nil {
			mm.log.WithError(err).Error("failed to increment reply counter")
		}
	}
	return nil
}

type warmupHeader struct {
	warmupID  string
	messageID string
	from      string
	subject   string
}

// fetchHeaders peeks envelopes and headers for a sequence set without
// marking anything read.
func (mm *MailboxMaintainer) fetchHeaders(imapClient *client.Client, seqset *imap.SeqSet) []warmupHeader {
	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier},
		Peek:         true,
	}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqset, items, messages)
	}()

	var headers []warmupHeader
	for msg := range messages {
		header := warmupHeader{}
		if msg.Envelope != nil {
			header.messageID = msg.Envelope.MessageId
			header.subject = msg.Envelope.Subject
			if len(msg.Envelope.From) > 0 {
				addr := msg.Envelope.From[0]
				header.from = addr.MailboxName + "@" + addr.HostName
			}
		}
		if literal := msg.GetBody(section); literal != nil {
			if mr, err := mail.CreateReader(literal); err == nil {
				header.warmupID = mr.Header.Get(HeaderWarmupID)
			}
		}
		headers = append(headers, header)
	}

	if err := <-done; err != nil {
		mm.log.WithError(err).Warn("header fetch incomplete")
	}
	return headers
}

// spamFolders lists the account's mailboxes and keeps the spam-flavored
// ones.
func spamFolders(imapClient *client.Client) []string {
	mailboxes := make(chan *imap.MailboxInfo, 20)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.List("", "*", mailboxes)
	}()

	var folders []string
	for mbox := range mailboxes {
		name := strings.ToLower(mbox.Name)
		if strings.Contains(name, "spam") || strings.Contains(name, "junk") || strings.Contains(name, "bulk") {
			folders = append(folders, mbox.Name)
		}
	}
	<-done
	return folders
}
