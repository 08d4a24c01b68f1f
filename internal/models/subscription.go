package models

import "time"

// PushSubscription is one browser push endpoint. Category filters which
// articles it receives; breaking articles ignore the filter.
type PushSubscription struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Endpoint  string    `gorm:"uniqueIndex;not null;size:1000" json:"endpoint"`
	P256DH    string    `gorm:"size:255" json:"p256dh"`
	Auth      string    `gorm:"size:255" json:"auth"`
	Category  string    `gorm:"size:255;index" json:"category"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
