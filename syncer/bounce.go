package syncer

import (
	"regexp"
	"strings"
)

var addressRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

var bounceSenders = []string{
	"mailer-daemon",
	"postmaster",
	"mail delivery subsystem",
	"mail delivery system",
}

var bounceSubjects = []string{
	"undeliverable",
	"undelivered mail",
	"delivery status notification",
	"delivery has failed",
	"mail delivery failed",
	"failure notice",
	"returned mail",
	"delivery failure",
}

var bounceDiagnostics = []string{
	"550",
	"554",
	"user unknown",
	"mailbox unavailable",
	"mailbox not found",
	"no such user",
	"recipient address rejected",
	"does not exist",
}

// isBounceMessage recognizes delivery status notifications by sender,
// subject or diagnostic phrases in the body.
func isBounceMessage(from, subject, body string) bool {
	lowFrom := strings.ToLower(from)
	for _, s := range bounceSenders {
		if strings.Contains(lowFrom, s) {
			return true
		}
	}

	lowSubject := strings.ToLower(subject)
	for _, s := range bounceSubjects {
		if strings.Contains(lowSubject, s) {
			return true
		}
	}

	lowBody := strings.ToLower(body)
	for _, d := range bounceDiagnostics {
		if strings.Contains(lowBody, d) {
			return true
		}
	}
	return false
}

// extractBounceAddresses pulls candidate failed-recipient addresses out of
// a bounce body, excluding the reporting mailbox itself.
func extractBounceAddresses(body, selfEmail string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, match := range addressRe.FindAllString(body, -1) {
		addr := strings.ToLower(match)
		if addr == strings.ToLower(selfEmail) {
			continue
		}
		if strings.Contains(addr, "mailer-daemon") || strings.Contains(addr, "postmaster") {
			continue
		}
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}
