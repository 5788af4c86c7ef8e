package entities

import (
	"time"
)

type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

const (
	SettingKeySessionToken       = "session_token"
	SettingKeySessionTokenExpiry = "session_token_expires_at"
	SettingKeySessionEmail       = "session_email"
	SettingKeySessionUserID      = "session_user_id"

	// SettingKeyCredentialPrefix is followed by the lower-cased email.
	SettingKeyCredentialPrefix = "credential:"
)
