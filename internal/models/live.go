package models

import "time"

// LiveEvent is a running live blog. Entries broadcast to its room as they
// are added.
type LiveEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Slug      string    `gorm:"uniqueIndex;not null;size:255" json:"slug"`
	Title     string    `gorm:"not null;size:500" json:"title"`
	Active    bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type LiveEntry struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	EventID    uint        `gorm:"not null;index" json:"event_id"`
	Title      string      `gorm:"size:500" json:"title"`
	Content    string      `gorm:"type:text" json:"content"`
	Attachment Attachment `gorm:"embedded;embeddedPrefix:attachment_" json:"attachment"`
	CreatedAt  time.Time   `gorm:"autoCreateTime" json:"created_at"`

	Event LiveEvent `gorm:"foreignKey:EventID" json:"-"`
}
