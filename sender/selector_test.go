package sender

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach/models"
)

func activeAccount(id uint, email string, sentToday, dailyLimit int) models.EmailAccount {
	account := models.EmailAccount{
		Email:      email,
		Status:     models.AccountStatusActive,
		SentToday:  sentToday,
		DailyLimit: dailyLimit,
	}
	account.ID = id
	account.CreatedAt = time.Now().AddDate(0, 0, -30)
	return account
}

func TestEligibleAccounts(t *testing.T) {
	now := time.Now()

	t.Run("quota boundary", func(t *testing.T) {
		pool := []models.EmailAccount{
			activeAccount(1, "full@x.com", 50, 50),
			activeAccount(2, "almost@x.com", 49, 50),
		}
		eligible := EligibleAccounts(pool, now)
		require.Len(t, eligible, 1)
		assert.Equal(t, "almost@x.com", eligible[0].Email)
	})

	t.Run("non-active statuses excluded", func(t *testing.T) {
		paused := activeAccount(1, "paused@x.com", 0, 50)
		paused.Status = models.AccountStatusPaused
		errored := activeAccount(2, "errored@x.com", 0, 50)
		errored.Status = models.AccountStatusError

		assert.Empty(t, EligibleAccounts([]models.EmailAccount{paused, errored}, now))
	})

	t.Run("warmup ramp bounds eligibility", func(t *testing.T) {
		warming := activeAccount(1, "warm@x.com", 10, 200)
		warming.WarmupEnabled = true
		warming.WarmupCurrentDay = 1
		warming.WarmupStartLimit = 10
		warming.WarmupDailyCap = 40

		assert.Empty(t, EligibleAccounts([]models.EmailAccount{warming}, now))
	})
}

func TestSelectAccount(t *testing.T) {
	now := time.Now()
	settings := models.DefaultCampaignSettings()

	newCampaign := func(accounts ...models.EmailAccount) *models.Campaign {
		c := &models.Campaign{Accounts: accounts}
		c.ID = 1
		return c
	}

	t.Run("round robin advances cursor", func(t *testing.T) {
		campaign := newCampaign(
			activeAccount(1, "a@x.com", 0, 50),
			activeAccount(2, "b@x.com", 0, 50),
			activeAccount(3, "c@x.com", 0, 50),
		)

		sel := SelectAccount(campaign, settings, "lead@y.com", 1, 0, now)
		require.NotNil(t, sel)
		assert.Equal(t, uint(1), sel.Account.ID)
		assert.Equal(t, 1, sel.Cursor)
		assert.False(t, sel.Sticky)

		campaign.LastAccountIndex = sel.Cursor
		sel = SelectAccount(campaign, settings, "lead@y.com", 1, 0, now)
		assert.Equal(t, uint(2), sel.Account.ID)
		assert.Equal(t, 2, sel.Cursor)

		campaign.LastAccountIndex = sel.Cursor
		sel = SelectAccount(campaign, settings, "lead@y.com", 1, 0, now)
		assert.Equal(t, uint(3), sel.Account.ID)
		assert.Equal(t, 0, sel.Cursor)
	})

	t.Run("sticky sender on follow-up steps", func(t *testing.T) {
		campaign := newCampaign(
			activeAccount(1, "a@x.com", 0, 50),
			activeAccount(2, "b@x.com", 0, 50),
		)

		sel := SelectAccount(campaign, settings, "lead@y.com", 2, 2, now)
		require.NotNil(t, sel)
		assert.Equal(t, uint(2), sel.Account.ID)
		assert.True(t, sel.Sticky)
	})

	t.Run("sticky falls back when previous account ineligible", func(t *testing.T) {
		exhausted := activeAccount(2, "b@x.com", 50, 50)
		campaign := newCampaign(activeAccount(1, "a@x.com", 0, 50), exhausted)

		sel := SelectAccount(campaign, settings, "lead@y.com", 2, 2, now)
		require.NotNil(t, sel)
		assert.Equal(t, uint(1), sel.Account.ID)
		assert.False(t, sel.Sticky)
	})

	t.Run("provider affinity narrows the pool", func(t *testing.T) {
		matching := settings
		matching.ProviderMatching = true
		campaign := newCampaign(
			activeAccount(1, "a@custom.io", 0, 50),
			activeAccount(2, "b@gmail.com", 0, 50),
		)

		sel := SelectAccount(campaign, matching, "lead@gmail.com", 1, 0, now)
		require.NotNil(t, sel)
		assert.Equal(t, "b@gmail.com", sel.Account.Email)
	})

	t.Run("no affinity match keeps full pool", func(t *testing.T) {
		matching := settings
		matching.ProviderMatching = true
		campaign := newCampaign(activeAccount(1, "a@custom.io", 0, 50))

		sel := SelectAccount(campaign, matching, "lead@gmail.com", 1, 0, now)
		require.NotNil(t, sel)
		assert.Equal(t, "a@custom.io", sel.Account.Email)
	})

	t.Run("empty pool yields nil", func(t *testing.T) {
		assert.Nil(t, SelectAccount(newCampaign(), settings, "lead@y.com", 1, 0, now))
	})
}
