package models

import "github.com/recouphq/collections_backend/config"

// MigrateTable runs gorm AutoMigrate for every collections table. Startup can
// skip it (SKIP_MIGRATIONS) and run it as a separate job instead.
func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&Account{},
		&Invoice{},
		&EscalationState{},
		&EscalationTimelineEvent{},
		&EscalationEventRecord{},
		&FailedWebhook{},
		&ReminderDispatchKey{},
	)
	if err != nil {
		logger := config.GetLogger()
		logger.Panic("failed to migrate tables: " + err.Error())
	}
}
