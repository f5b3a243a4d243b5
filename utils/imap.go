package utils

import (
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/emersion/go-imap/client"

	"outreach/models"
)

// DialIMAP connects and authenticates against an account's IMAP endpoint,
// honoring the account's encryption mode (SSL/TLS, STARTTLS or plain).
func DialIMAP(account *models.EmailAccount, cipher *Cipher) (*client.Client, error) {
	password, err := cipher.Decrypt(account.IMAPPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt IMAP password: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", account.IMAPHost, account.IMAPPort)

	var imapClient *client.Client
	switch strings.ToUpper(account.IMAPEncryption) {
	case "SSL", "TLS":
		imapClient, err = client.DialTLS(addr, &tls.Config{ServerName: account.IMAPHost})
	case "STARTTLS":
		imapClient, err = client.Dial(addr)
		if err == nil {
			err = imapClient.StartTLS(&tls.Config{ServerName: account.IMAPHost})
		}
	default:
		imapClient, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	username := account.IMAPUsername
	if username == "" {
		username = account.Email
	}
	if err := imapClient.Login(username, password); err != nil {
		imapClient.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	return imapClient, nil
}
