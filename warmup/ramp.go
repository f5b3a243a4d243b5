// Package warmup ramps new sending accounts through a gradual schedule and
// exchanges authentic-looking mail between accounts to build sender
// reputation before they are trusted with full campaign volume.
package warmup

import (
	"time"

	"outreach/models"
)

// Slow-ramp parameters for non-warmup accounts that opt in: volume grows by
// 20 sends per day of account age.
const (
	slowRampBase    = 20
	slowRampPerDay  = 20
	reputationGain  = 1
	reputationLoss  = 5
	maxWarmupPerRun = 5
)

// RampLimit computes an account's allowed warmup volume for its current
// warmup day: min(cap, start + (day-1)*increase). Day 1 sends exactly the
// start limit; the sequence is non-decreasing and bounded by the cap.
func RampLimit(account *models.EmailAccount) int {
	day := account.WarmupCurrentDay
	if day < 1 {
		day = 1
	}
	limit := account.WarmupStartLimit + (day-1)*account.WarmupIncrease
	if limit > account.WarmupDailyCap {
		return account.WarmupDailyCap
	}
	return limit
}

// EffectiveDailyLimit is the account's sending allowance for today: the
// warmup ramp when warming up, the age-based slow ramp when configured,
// otherwise the flat daily limit.
func EffectiveDailyLimit(account *models.EmailAccount, now time.Time) int {
	if account.WarmupEnabled {
		return RampLimit(account)
	}
	if account.SlowRamp {
		ageDays := int(now.Sub(account.CreatedAt).Hours() / 24)
		if ageDays < 0 {
			ageDays = 0
		}
		ramped := slowRampBase + slowRampPerDay*ageDays
		if ramped < account.DailyLimit {
			return ramped
		}
	}
	return account.DailyLimit
}

// RemainingWarmupQuota is how many warmup sends the account has left today.
func RemainingWarmupQuota(account *models.EmailAccount) int {
	remaining := RampLimit(account) - account.WarmupSentToday
	if remaining < 0 {
		return 0
	}
	return remaining
}
