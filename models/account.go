package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Account is the business (tenant) that owns invoices. Onboarding and billing
// manage it elsewhere; collections reads the notification endpoint and the
// sender identity used on reminder payloads.
type Account struct {
	ID           int    `gorm:"primary_key" json:"id"`
	BusinessId   string `gorm:"size:64;uniqueIndex;not null" json:"business_id"`
	BusinessName string `gorm:"size:255;not null" json:"business_name"`
	Email        string `gorm:"size:255" json:"email"`

	// NotificationEndpoint receives reminder dispatch webhooks. The provider
	// behind it (email/SMS/voice/letter) is the endpoint's concern.
	NotificationEndpoint string `gorm:"size:2048" json:"notification_endpoint"`
	NotificationToken    string `gorm:"size:255" json:"notification_token"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetAccountByBusinessId(ctx context.Context, db *gorm.DB, businessId string) (*Account, error) {
	var account Account
	if err := db.WithContext(ctx).First(&account, "business_id = ?", businessId).Error; err != nil {
		return nil, err
	}
	return &account, nil
}
