package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// StringArray represents a PostgreSQL text[] type
type StringArray []string

// Scan implements the sql.Scanner interface
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}

	switch v := value.(type) {
	case string:
		// Handle PostgreSQL array format: {value1,value2,value3}
		if v == "{}" || v == "" {
			*s = StringArray{}
			return nil
		}

		// Remove outer braces and split by comma
		trimmed := strings.Trim(v, "{}")
		if trimmed == "" {
			*s = StringArray{}
			return nil
		}

		parts := strings.Split(trimmed, ",")
		result := make([]string, len(parts))
		for i, part := range parts {
			// Remove quotes if present
			result[i] = strings.Trim(strings.TrimSpace(part), "\"")
		}
		*s = result
		return nil
	case []byte:
		// Try to parse as JSON first
		var arr []string
		if err := json.Unmarshal(v, &arr); err == nil {
			*s = arr
			return nil
		}
		// Fallback to string parsing
		return s.Scan(string(v))
	default:
		return errors.New(fmt.Sprintf("cannot scan %T into StringArray", value))
	}
}

// Value implements the driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "{}", nil
	}

	// Format as PostgreSQL array: {value1,value2,value3}
	quoted := make([]string, len(s))
	for i, v := range s {
		// Escape quotes and wrap in quotes
		escaped := strings.ReplaceAll(v, "\"", "\\\"")
		quoted[i] = fmt.Sprintf("\"%s\"", escaped)
	}

	return fmt.Sprintf("{%s}", strings.Join(quoted, ",")), nil
}

// Status is the workflow state of an article.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// Valid reports whether s is a known workflow status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusScheduled, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Role is the closed set of author roles.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleEditor      Role = "editor"
	RoleReporter    Role = "reporter"
	RoleContributor Role = "contributor"
)

// Privileged reports whether the role bypasses editorial review.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleEditor
}

// Article type constants. Breaking articles fan out to every push
// subscriber regardless of their category filter.
const (
	TypeStandard = "standard"
	TypeBreaking = "breaking"
)

// Attachment describes a file hosted by the external media host. The host
// owns the bytes; we only keep the URL and the id needed to release it.
// A zero ExternalID means no attachment.
type Attachment struct {
	URL        string      `gorm:"size:1000" json:"url"`
	ExternalID string      `gorm:"size:255" json:"external_id"`
	Variants   StringArray `gorm:"type:text[]" json:"variants"`
}

// Empty reports whether the attachment slot is unused.
func (a Attachment) Empty() bool {
	return a.ExternalID == "" && a.URL == ""
}

type Article struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	Slug        string      `gorm:"uniqueIndex;not null;size:255" json:"slug"`
	Title       string      `gorm:"not null;size:500" json:"title"`
	Body        string      `gorm:"type:text" json:"body"`
	Type        string      `gorm:"size:50;default:'standard'" json:"type"`
	Category    string      `gorm:"size:255;index" json:"category"`
	Subcategory string      `gorm:"size:255" json:"subcategory"`
	Tags        StringArray `gorm:"type:text[]" json:"tags"`

	Image Attachment `gorm:"embedded;embeddedPrefix:image_" json:"image"`
	Video Attachment `gorm:"embedded;embeddedPrefix:video_" json:"video"`

	AuthorID uint  `gorm:"not null;index" json:"author_id"`
	EditorID *uint `json:"editor_id,omitempty"`

	Status      Status     `gorm:"size:50;default:'draft';index" json:"status"`
	Published   bool       `gorm:"default:false;index" json:"published"`
	PublishedAt *time.Time `json:"published_at,omitempty"`

	IsDeleted bool       `gorm:"default:false;index" json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	Views uint64 `gorm:"default:0" json:"views"`

	// Optimistic concurrency token, bumped on every write. A stale update
	// fails with a retryable conflict instead of silently losing data.
	Version uint `gorm:"default:1" json:"version"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
