package utils

import (
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// CanSendNow reports whether a campaign may send at the given instant.
// Window bounds are local clock strings in 12h or 24h form, days is a
// comma-separated set of weekday abbreviations ("Mon,Tue,..."). The gate
// fails open: if any of the four inputs is missing the campaign is
// considered sendable.
func CanSendNow(start, end, timezone, days string, now time.Time) bool {
	if start == "" || end == "" || timezone == "" || days == "" {
		return true
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logrus.WithField("timezone", timezone).Warn("unknown timezone, schedule gate failing open")
		return true
	}
	local := now.In(loc)

	if !weekdayAllowed(local.Weekday(), days) {
		return false
	}

	startMin, ok := parseClock(start)
	if !ok {
		return true
	}
	endMin, ok := parseClock(end)
	if !ok {
		return true
	}

	nowMin := local.Hour()*60 + local.Minute()
	return nowMin >= startMin && nowMin <= endMin
}

// NextEligible computes the next instant a campaign may send, walking
// forward day by day (bounded to 7 days) to the next allowed weekday and
// using the window start as the target clock time.
func NextEligible(start, timezone, days string, now time.Time) time.Time {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)

	startMin, ok := parseClock(start)
	if !ok {
		startMin = 9 * 60
	}

	for offset := 0; offset <= 7; offset++ {
		day := local.AddDate(0, 0, offset)
		if days != "" && !weekdayAllowed(day.Weekday(), days) {
			continue
		}
		candidate := time.Date(day.Year(), day.Month(), day.Day(), startMin/60, startMin%60, 0, 0, loc)
		if candidate.After(now) {
			return candidate
		}
	}
	return local.AddDate(0, 0, 1)
}

func weekdayAllowed(day time.Weekday, days string) bool {
	abbrev := day.String()[:3]
	for _, d := range strings.Split(days, ",") {
		if strings.EqualFold(strings.TrimSpace(d), abbrev) {
			return true
		}
	}
	return false
}

// parseClock converts "09:00", "9:00 AM" or "5:30 pm" to minutes after
// midnight.
func parseClock(clock string) (int, bool) {
	clock = strings.TrimSpace(strings.ToUpper(clock))

	meridiem := ""
	for _, suffix := range []string{"AM", "PM"} {
		if strings.HasSuffix(clock, suffix) {
			meridiem = suffix
			clock = strings.TrimSpace(strings.TrimSuffix(clock, suffix))
		}
	}

	parts := strings.Split(clock, ":")
	if len(parts) < 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, false
	}
	minute, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, false
	}

	switch meridiem {
	case "PM":
		if hour != 12 {
			hour += 12
		}
	case "AM":
		if hour == 12 {
			hour = 0
		}
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}
