package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCampaignSettings(t *testing.T) {
	t.Run("empty blob yields defaults", func(t *testing.T) {
		settings := ParseCampaignSettings("")
		assert.Equal(t, DefaultCampaignSettings(), settings)
		assert.True(t, settings.TrackOpens)
		assert.Equal(t, 3000, settings.ThrottleBaseMS)
	})

	t.Run("overrides apply over defaults", func(t *testing.T) {
		settings := ParseCampaignSettings(`{"provider_matching":true,"track_opens":false,"throttle_base_ms":100}`)
		assert.True(t, settings.ProviderMatching)
		assert.False(t, settings.TrackOpens)
		assert.Equal(t, 100, settings.ThrottleBaseMS)
		// untouched keys keep their defaults
		assert.True(t, settings.TrackClicks)
		assert.Equal(t, 5000, settings.ThrottleJitterMS)
	})

	t.Run("malformed blob degrades to defaults", func(t *testing.T) {
		assert.Equal(t, DefaultCampaignSettings(), ParseCampaignSettings("{not json"))
	})

	t.Run("out of range values degrade to defaults", func(t *testing.T) {
		assert.Equal(t, DefaultCampaignSettings(), ParseCampaignSettings(`{"throttle_base_ms":999999}`))
	})

	t.Run("invalid cc address degrades to defaults", func(t *testing.T) {
		assert.Equal(t, DefaultCampaignSettings(), ParseCampaignSettings(`{"cc":["not-an-email"]}`))
	})

	t.Run("unknown keys ignored", func(t *testing.T) {
		settings := ParseCampaignSettings(`{"future_flag":true,"text_only":true}`)
		assert.True(t, settings.TextOnly)
	})
}
