package warmup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"outreach/models"
)

func warmupAccount(day int) *models.EmailAccount {
	return &models.EmailAccount{
		WarmupEnabled:    true,
		WarmupCurrentDay: day,
		WarmupStartLimit: 10,
		WarmupIncrease:   5,
		WarmupDailyCap:   40,
		DailyLimit:       200,
	}
}

func TestRampLimit(t *testing.T) {
	t.Run("day one sends exactly the start limit", func(t *testing.T) {
		assert.Equal(t, 10, RampLimit(warmupAccount(1)))
	})

	t.Run("grows by the increase each day", func(t *testing.T) {
		assert.Equal(t, 15, RampLimit(warmupAccount(2)))
		assert.Equal(t, 30, RampLimit(warmupAccount(5)))
	})

	t.Run("bounded by the daily cap", func(t *testing.T) {
		assert.Equal(t, 40, RampLimit(warmupAccount(7)))
		assert.Equal(t, 40, RampLimit(warmupAccount(500)))
	})

	t.Run("day below one treated as day one", func(t *testing.T) {
		assert.Equal(t, 10, RampLimit(warmupAccount(0)))
	})

	t.Run("non-decreasing over time", func(t *testing.T) {
		prev := 0
		for day := 1; day <= 30; day++ {
			limit := RampLimit(warmupAccount(day))
			assert.GreaterOrEqual(t, limit, prev)
			prev = limit
		}
	})
}

func TestEffectiveDailyLimit(t *testing.T) {
	now := time.Now()

	t.Run("warmup wins over flat limit", func(t *testing.T) {
		assert.Equal(t, 10, EffectiveDailyLimit(warmupAccount(1), now))
	})

	t.Run("slow ramp grows with account age", func(t *testing.T) {
		account := &models.EmailAccount{SlowRamp: true, DailyLimit: 200}
		account.CreatedAt = now.AddDate(0, 0, -3)
		assert.Equal(t, 80, EffectiveDailyLimit(account, now))
	})

	t.Run("slow ramp capped by flat limit", func(t *testing.T) {
		account := &models.EmailAccount{SlowRamp: true, DailyLimit: 50}
		account.CreatedAt = now.AddDate(0, 0, -10)
		assert.Equal(t, 50, EffectiveDailyLimit(account, now))
	})

	t.Run("plain account uses flat limit", func(t *testing.T) {
		account := &models.EmailAccount{DailyLimit: 50}
		account.CreatedAt = now
		assert.Equal(t, 50, EffectiveDailyLimit(account, now))
	})
}

func TestRemainingWarmupQuota(t *testing.T) {
	account := warmupAccount(2)
	assert.Equal(t, 15, RemainingWarmupQuota(account))

	account.WarmupSentToday = 12
	assert.Equal(t, 3, RemainingWarmupQuota(account))

	account.WarmupSentToday = 20
	assert.Equal(t, 0, RemainingWarmupQuota(account))
}
