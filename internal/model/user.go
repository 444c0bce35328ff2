package model

import "time"

// User is a person interacting with the bot, keyed by their chat identity.
type User struct {
	ID                  int64  `gorm:"primaryKey"`
	FirstName           string `gorm:"not null"`
	Timezone            string `gorm:"default:Asia/Tashkent"`
	RemindersEnabled    bool   `gorm:"default:true"`
	ReminderLeadMinutes int
	FirstTime           bool `gorm:"default:true"`
	LastActive          time.Time
	CreatedAt           time.Time
}
