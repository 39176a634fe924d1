package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User is an application owner. Accounts are created on first login;
// Subject carries the identity-provider subject for that owner.
type User struct {
	ID string `gorm:"primaryKey;size:36"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Email   string `gorm:"uniqueIndex;size:255;not null"`
	Subject string `gorm:"uniqueIndex;size:255;not null"`
	Name    string `gorm:"size:128"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Application is a registered client app. It owns its API keys and
// events; deleting an application cascades to both.
type Application struct {
	ID string `gorm:"primaryKey;size:36"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Name string `gorm:"size:128;not null"`

	OwnerID string `gorm:"index;size:36;not null"`
	Owner   User   `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`

	APIKeys []APIKey `gorm:"foreignKey:ApplicationID;constraint:OnDelete:CASCADE"`
	Events  []Event  `gorm:"foreignKey:ApplicationID;constraint:OnDelete:CASCADE"`
}

func (a *Application) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// APIKey stores the one-way hash of an issued key plus a short
// non-secret prefix of the plaintext for display and candidate lookup.
// The plaintext itself is never persisted. Rows are never deleted;
// revocation and expiry make a key unusable while keeping the audit
// trail intact.
type APIKey struct {
	ID string `gorm:"primaryKey;size:36"`

	CreatedAt time.Time
	UpdatedAt time.Time

	KeyHash   string `gorm:"uniqueIndex;size:255;not null"`
	KeyPrefix string `gorm:"index;size:16;not null"`

	ApplicationID string      `gorm:"index;size:36;not null"`
	Application   Application `gorm:"foreignKey:ApplicationID"`

	ExpiresAt  time.Time `gorm:"not null"`
	RevokedAt  *time.Time
	LastUsedAt *time.Time
}

func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	return nil
}

// Usable reports whether the key can authenticate requests at the
// given instant: not revoked and not past its expiry.
func (k *APIKey) Usable(now time.Time) bool {
	return k.RevokedAt == nil && k.ExpiresAt.After(now)
}

// Event is a single analytics event submitted by a client application.
// Rows are append-only and immutable once written. Timestamp is the
// client-asserted event time; IngestedAt is set by the server.
type Event struct {
	ID string `gorm:"primaryKey;size:36"`

	ApplicationID string `gorm:"size:36;not null;index:idx_events_app_name_ts,priority:1;index:idx_events_app_user_ts,priority:1"`

	EventName string `gorm:"size:128;not null;index:idx_events_app_name_ts,priority:2"`

	URL      string `gorm:"size:2048"`
	Referrer string `gorm:"size:2048"`

	DeviceType string `gorm:"size:32;not null"`

	ClientUserID string `gorm:"size:128;index:idx_events_app_user_ts,priority:2"`
	IPAddress    string `gorm:"size:64"`

	// Metadata holds arbitrary nested key/value data supplied by the
	// client (browser, os, screenSize, custom fields) without schema
	// changes.
	Metadata datatypes.JSONMap `gorm:"type:jsonb"`

	Timestamp  time.Time `gorm:"not null;index;index:idx_events_app_name_ts,priority:3;index:idx_events_app_user_ts,priority:3"`
	IngestedAt time.Time `gorm:"autoCreateTime"`
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
