package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBounceMessage(t *testing.T) {
	t.Run("by sender", func(t *testing.T) {
		assert.True(t, isBounceMessage("MAILER-DAEMON@googlemail.com", "anything", ""))
		assert.True(t, isBounceMessage("postmaster@example.com", "anything", ""))
	})

	t.Run("by subject", func(t *testing.T) {
		assert.True(t, isBounceMessage("noreply@example.com", "Undeliverable: Hello", ""))
		assert.True(t, isBounceMessage("noreply@example.com", "Mail delivery failed", ""))
	})

	t.Run("by diagnostic in body", func(t *testing.T) {
		assert.True(t, isBounceMessage("noreply@example.com", "Hello", "550 5.1.1 user unknown"))
		assert.True(t, isBounceMessage("noreply@example.com", "Hello", "recipient address rejected"))
	})

	t.Run("ordinary reply is not a bounce", func(t *testing.T) {
		assert.False(t, isBounceMessage("jordan@acme.com", "Re: Hello", "sounds interesting"))
	})
}

func TestExtractBounceAddresses(t *testing.T) {
	body := `Delivery to the following recipient failed permanently:
  jordan@acme.com
Original-Recipient: rfc822; jordan@acme.com
Reporting-MTA: mailer-daemon@googlemail.com
cc was sam@other.io`

	addrs := extractBounceAddresses(body, "sender@agency.com")
	assert.Equal(t, []string{"jordan@acme.com", "sam@other.io"}, addrs)
}

func TestExtractBounceAddressesExcludesSelf(t *testing.T) {
	body := "could not deliver from Sender@Agency.com to jordan@acme.com"
	addrs := extractBounceAddresses(body, "sender@agency.com")
	assert.Equal(t, []string{"jordan@acme.com"}, addrs)
}
