package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Reply intent labels
const (
	LabelInterested    = "interested"
	LabelMeetingBooked = "meeting_booked"
	LabelNotInterested = "not_interested"
	LabelOutOfOffice   = "out_of_office"
	LabelWrongPerson   = "wrong_person"
	LabelLost          = "lost"
)

// ReplyClassifier assigns an intent label to an incoming reply.
type ReplyClassifier interface {
	Classify(subject, body string) (string, error)
}

// HTTPClassifier calls the external classifier service and degrades to the
// keyword fallback when the service is unconfigured or unavailable.
type HTTPClassifier struct {
	URL    string
	Client *http.Client
}

func NewHTTPClassifier(url string) *HTTPClassifier {
	return &HTTPClassifier{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (hc *HTTPClassifier) Classify(subject, body string) (string, error) {
	if hc.URL == "" {
		return KeywordClassify(subject, body), nil
	}

	payload, err := json.Marshal(map[string]string{
		"subject": subject,
		"body":    body,
	})
	if err != nil {
		return KeywordClassify(subject, body), nil
	}

	resp, err := hc.Client.Post(hc.URL, "application/json", bytes.NewReader(payload))
	if err != nil {
		logrus.WithError(err).Warn("classifier service unreachable, using keyword fallback")
		return KeywordClassify(subject, body), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logrus.WithField("status", resp.StatusCode).Warn("classifier service error, using keyword fallback")
		return KeywordClassify(subject, body), nil
	}

	var result struct {
		Label string `json:"label"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return KeywordClassify(subject, body), nil
	}

	if !validLabel(result.Label) {
		return KeywordClassify(subject, body), fmt.Errorf("classifier returned unknown label %q", result.Label)
	}
	return result.Label, nil
}

// KeywordClassify is the local fallback classifier.
func KeywordClassify(subject, body string) string {
	text := strings.ToLower(subject + " " + body)

	switch {
	case containsAny(text, "out of office", "ooo", "on vacation", "annual leave", "auto-reply", "automatic reply"):
		return LabelOutOfOffice
	case containsAny(text, "wrong person", "not the right person", "no longer work", "left the company"):
		return LabelWrongPerson
	case containsAny(text, "not interested", "unsubscribe", "remove me", "stop emailing", "no thanks"):
		return LabelNotInterested
	case containsAny(text, "book a meeting", "calendar invite", "meeting confirmed", "scheduled a call", "calendly"):
		return LabelMeetingBooked
	case containsAny(text, "interested", "tell me more", "sounds good", "pricing", "more details"):
		return LabelInterested
	default:
		return LabelLost
	}
}

func containsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func validLabel(label string) bool {
	switch label {
	case LabelInterested, LabelMeetingBooked, LabelNotInterested,
		LabelOutOfOffice, LabelWrongPerson, LabelLost:
		return true
	}
	return false
}
