package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DoseStatus is the outcome of one scheduled dose.
type DoseStatus string

const (
	DosePending   DoseStatus = "pending"
	DoseTaken     DoseStatus = "taken"
	DoseMissed    DoseStatus = "missed"
	DoseCancelled DoseStatus = "cancelled"
)

// DoseRecord is one concrete (pill, date, time) occurrence requiring a
// reminder and a taken/missed outcome. The uuid primary key doubles as the
// opaque reference carried by response buttons.
type DoseRecord struct {
	ID            string `gorm:"primaryKey;size:36"`
	PillID        uint   `gorm:"index;not null"`
	UserID        int64  `gorm:"index;not null"`
	ScheduledTime string `gorm:"size:5;not null"`        // HH:MM
	Date          string `gorm:"size:10;index;not null"` // YYYY-MM-DD
	Status        DoseStatus `gorm:"size:16;default:pending;index"`
	ActualTime    *time.Time
	ReminderSent  bool `gorm:"default:false"`
	CreatedAt     time.Time

	Pill *Pill `gorm:"foreignKey:PillID"`
	User *User `gorm:"foreignKey:UserID"`
}

func (d *DoseRecord) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}
