package utils

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"outreach/models"
)

const maxSendAttempts = 3

// OutgoingMessage is one RFC-5322 message ready for delivery.
type OutgoingMessage struct {
	To      string
	CC      []string
	BCC     []string
	Subject string

	// Exactly one of the two bodies is used; HTML wins when both are set.
	HTMLBody string
	TextBody string

	// Threading headers for follow-up steps
	InReplyTo  string
	References []string

	// Extra headers, e.g. the X-Warmup-* markers
	Headers map[string]string
}

// Mailer delivers outgoing messages through an account's SMTP endpoint.
type Mailer interface {
	Send(account *models.EmailAccount, msg *OutgoingMessage) (string, error)
}

// SMTPMailer sends through gomail with per-account credentials. Transient
// failures are retried with quadratic backoff; permanent failures surface
// immediately.
type SMTPMailer struct {
	cipher *Cipher
}

func NewSMTPMailer(cipher *Cipher) *SMTPMailer {
	return &SMTPMailer{cipher: cipher}
}

// Send delivers the message and returns the generated message id.
func (sm *SMTPMailer) Send(account *models.EmailAccount, msg *OutgoingMessage) (string, error) {
	password, err := sm.cipher.Decrypt(account.SMTPPassword)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt SMTP password: %w", err)
	}

	dialer := gomail.NewDialer(
		account.SMTPHost,
		account.SMTPPort,
		account.SMTPUsername,
		password,
	)
	dialer.TLSConfig = &tls.Config{ServerName: account.SMTPHost}

	messageID := msg.Headers["Message-Id"]
	if messageID == "" {
		messageID = fmt.Sprintf("<%s@%s>", uuid.New().String(), account.Domain())
	}

	m := gomail.NewMessage()
	if account.FromName != "" {
		m.SetHeader("From", fmt.Sprintf("%s <%s>", account.FromName, account.Email))
	} else {
		m.SetHeader("From", account.Email)
	}
	m.SetHeader("To", msg.To)
	if len(msg.CC) > 0 {
		m.SetHeader("Cc", msg.CC...)
	}
	if len(msg.BCC) > 0 {
		m.SetHeader("Bcc", msg.BCC...)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-Id", messageID)
	if msg.InReplyTo != "" {
		m.SetHeader("In-Reply-To", msg.InReplyTo)
		references := msg.References
		if len(references) == 0 {
			references = []string{msg.InReplyTo}
		}
		m.SetHeader("References", strings.Join(references, " "))
	}
	for name, value := range msg.Headers {
		if name == "Message-Id" {
			continue
		}
		m.SetHeader(name, value)
	}

	if msg.HTMLBody != "" {
		m.SetBody("text/html", msg.HTMLBody)
	} else {
		m.SetBody("text/plain", msg.TextBody)
	}

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(time.Duration(attempt*attempt) * time.Second)
		}

		if err := dialer.DialAndSend(m); err != nil {
			lastErr = err
			if !IsTransientError(err) {
				break
			}
			logrus.WithFields(logrus.Fields{
				"account": account.Email,
				"attempt": attempt,
			}).WithError(err).Warn("transient send failure, retrying")
			continue
		}
		return messageID, nil
	}

	return "", fmt.Errorf("send failed after %d attempts: %w", maxSendAttempts, lastErr)
}
