package models

import "gorm.io/gorm"

// Migrate creates or updates the schema for every core entity.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Campaign{},
		&SequenceStep{},
		&StepVariant{},
		&CampaignStat{},
		&EmailAccount{},
		&Lead{},
		&SendingEvent{},
		&WarmupLog{},
		&BlocklistEntry{},
		&WebhookEndpoint{},
	)
}
