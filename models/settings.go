package models

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

var settingsValidator = validator.New()

// CampaignSettings enumerates every recognized option of the campaign
// settings blob with defined defaults. Unknown keys are ignored; a
// malformed blob degrades to defaults and is logged, never aborts a run.
type CampaignSettings struct {
	Version int `json:"version" validate:"gte=0,lte=1"`

	// Provider affinity: prefer sending accounts whose provider matches
	// the lead's mailbox provider (gmail -> google, outlook -> microsoft)
	ProviderMatching bool `json:"provider_matching"`

	// Plain-text mode: strip HTML globally, or only for the first step
	TextOnly          bool `json:"text_only"`
	TextOnlyFirstStep bool `json:"text_only_first_step"`

	// Tracking toggles
	TrackOpens  bool `json:"track_opens"`
	TrackClicks bool `json:"track_clicks"`

	// Throttle gap between sends, milliseconds
	ThrottleBaseMS   int `json:"throttle_base_ms" validate:"gte=0,lte=60000"`
	ThrottleJitterMS int `json:"throttle_jitter_ms" validate:"gte=0,lte=60000"`

	CC  []string `json:"cc" validate:"dive,email"`
	BCC []string `json:"bcc" validate:"dive,email"`

	// Reorder candidates so never-contacted leads go first
	PrioritizeNew bool `json:"prioritize_new"`
}

// DefaultCampaignSettings returns the settings used when a campaign has no
// blob or a malformed one.
func DefaultCampaignSettings() CampaignSettings {
	return CampaignSettings{
		Version:          1,
		TrackOpens:       true,
		TrackClicks:      true,
		ThrottleBaseMS:   3000,
		ThrottleJitterMS: 5000,
	}
}

// ParseCampaignSettings decodes and validates a campaign's settings blob.
// Any failure degrades to defaults so a bad blob can never abort a batch.
func ParseCampaignSettings(raw string) CampaignSettings {
	settings := DefaultCampaignSettings()
	if raw == "" {
		return settings
	}

	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		logrus.WithError(err).Warn("malformed campaign settings, using defaults")
		return DefaultCampaignSettings()
	}

	if err := settingsValidator.Struct(settings); err != nil {
		logrus.WithError(err).Warn("invalid campaign settings, using defaults")
		return DefaultCampaignSettings()
	}

	return settings
}
