package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordClassify(t *testing.T) {
	cases := []struct {
		subject string
		body    string
		want    string
	}{
		{"Re: intro", "I'm out of office until Monday", LabelOutOfOffice},
		{"Re: intro", "I no longer work here, try Sam", LabelWrongPerson},
		{"Re: intro", "Not interested, remove me please", LabelNotInterested},
		{"Re: intro", "Sent you a calendar invite for Thursday", LabelMeetingBooked},
		{"Re: intro", "Interested, can you share pricing?", LabelInterested},
		{"Re: intro", "ok", LabelLost},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, KeywordClassify(tc.subject, tc.body), tc.body)
	}
}

func TestHTTPClassifier(t *testing.T) {
	t.Run("uses service label", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"label":"meeting_booked"}`))
		}))
		defer srv.Close()

		label, err := NewHTTPClassifier(srv.URL).Classify("Re: intro", "ok")
		require.NoError(t, err)
		assert.Equal(t, LabelMeetingBooked, label)
	})

	t.Run("empty url falls back to keywords", func(t *testing.T) {
		label, err := NewHTTPClassifier("").Classify("Re: intro", "not interested")
		require.NoError(t, err)
		assert.Equal(t, LabelNotInterested, label)
	})

	t.Run("service error falls back to keywords", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		label, err := NewHTTPClassifier(srv.URL).Classify("Re: intro", "out of office")
		require.NoError(t, err)
		assert.Equal(t, LabelOutOfOffice, label)
	})

	t.Run("unknown label falls back and reports", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"label":"banana"}`))
		}))
		defer srv.Close()

		label, err := NewHTTPClassifier(srv.URL).Classify("Re: intro", "ok")
		assert.Error(t, err)
		assert.Equal(t, LabelLost, label)
	})
}
