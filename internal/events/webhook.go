package events

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// WebhookEndpoint is a tenant-registered delivery target for billing events.
type WebhookEndpoint struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	URL       string       `gorm:"type:text;not null" json:"url"`
	Secret    string       `gorm:"type:text" json:"-"`
	Active    bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (WebhookEndpoint) TableName() string { return "webhook_endpoints" }
