package models

import "time"

// OtpIssue logs each code issuance requested through the directory. The
// directory owns generation and storage of the code itself; this table backs
// delivery-status webhooks and basic observability only.
type OtpIssue struct {
	BaseModel
	Phone            string     `gorm:"index" json:"phone"`
	ChurchID         string     `json:"church_id"`
	ExpiresAt        time.Time  `json:"expires_at"`
	ResendAfter      time.Time  `json:"resend_after"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	GatewayMessageID string     `gorm:"index" json:"gateway_message_id,omitempty"`
	Status           string     `json:"status"`
}
