package utils

import (
	"net"
	"strings"
)

// IsTransientError reports whether an SMTP/IMAP failure is worth retrying:
// connection resets, timeouts, DNS hiccups and 4xx SMTP responses.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	transient := []string{
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"timeout",
		"temporary failure",
		"try again",
		"too many connections",
		"4.",
		"421",
		"450",
		"451",
		"452",
	}
	for _, marker := range transient {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

// IsPermanentError reports whether a failure indicates bad credentials or
// an unreachable host: surfaced immediately, never retried.
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	permanent := []string{
		"authentication failed",
		"invalid credentials",
		"username and password not accepted",
		"535",
		"no such host",
		"host not found",
		"certificate",
	}
	for _, marker := range permanent {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
