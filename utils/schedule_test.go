package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanSendNow(t *testing.T) {
	const (
		tz   = "America/Chicago"
		days = "Mon,Tue,Wed,Thu,Fri"
	)
	// 2024-06-11 is a Tuesday; Chicago is UTC-5 in June.
	tuesday10am := time.Date(2024, 6, 11, 15, 0, 0, 0, time.UTC)
	tuesday8am := time.Date(2024, 6, 11, 13, 0, 0, 0, time.UTC)
	saturday := time.Date(2024, 6, 8, 15, 0, 0, 0, time.UTC)

	t.Run("within window", func(t *testing.T) {
		assert.True(t, CanSendNow("09:00", "17:00", tz, days, tuesday10am))
	})

	t.Run("before window start", func(t *testing.T) {
		assert.False(t, CanSendNow("09:00", "17:00", tz, days, tuesday8am))
	})

	t.Run("disallowed weekday", func(t *testing.T) {
		assert.False(t, CanSendNow("09:00", "17:00", tz, days, saturday))
	})

	t.Run("12 hour clock", func(t *testing.T) {
		assert.True(t, CanSendNow("9:00 AM", "5:00 PM", tz, days, tuesday10am))
		assert.False(t, CanSendNow("9:00 AM", "5:00 PM", tz, days, tuesday8am))
	})

	t.Run("missing inputs fail open", func(t *testing.T) {
		assert.True(t, CanSendNow("", "17:00", tz, days, saturday))
		assert.True(t, CanSendNow("09:00", "17:00", "", days, saturday))
		assert.True(t, CanSendNow("09:00", "17:00", tz, "", saturday))
	})

	t.Run("unknown timezone fails open", func(t *testing.T) {
		assert.True(t, CanSendNow("09:00", "17:00", "Mars/Olympus", days, saturday))
	})

	t.Run("window end inclusive", func(t *testing.T) {
		fivePM := time.Date(2024, 6, 11, 22, 0, 0, 0, time.UTC)
		assert.True(t, CanSendNow("09:00", "17:00", tz, days, fivePM))
	})
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		minutes int
		ok      bool
	}{
		{"09:00", 540, true},
		{"9:00 AM", 540, true},
		{"5:30 pm", 1050, true},
		{"12:00 AM", 0, true},
		{"12:00 PM", 720, true},
		{"23:59", 1439, true},
		{"25:00", 0, false},
		{"morning", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseClock(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.Equal(t, tc.minutes, got, tc.in)
		}
	}
}

func TestNextEligible(t *testing.T) {
	// Saturday afternoon rolls forward to Monday 09:00 local.
	saturday := time.Date(2024, 6, 8, 15, 0, 0, 0, time.UTC)
	next := NextEligible("09:00", "America/Chicago", "Mon,Tue,Wed,Thu,Fri", saturday)

	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, 9, next.Hour())
	assert.True(t, next.After(saturday))
}
