package models

import "time"

// StateEntry is one persisted key of the local client state (tokens, feed
// cursors). ExpiresAt nil means the entry never expires.
type StateEntry struct {
	Key       string     `gorm:"column:state_key;primaryKey;type:text"`
	Value     string     `gorm:"type:text;not null"`
	ExpiresAt *time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (StateEntry) TableName() string {
	return "state_entries"
}
