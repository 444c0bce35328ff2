package model

import "time"

// PrescriptionStatus is the lifecycle state of a treatment course.
type PrescriptionStatus string

const (
	PrescriptionActive    PrescriptionStatus = "active"
	PrescriptionCompleted PrescriptionStatus = "completed"
)

// Prescription is a bounded treatment course grouping one or more pills
// over an inclusive calendar date range.
type Prescription struct {
	ID        uint  `gorm:"primaryKey"`
	UserID    int64 `gorm:"index;not null"`
	Name      string
	StartDate string             `gorm:"size:10;not null"` // YYYY-MM-DD
	EndDate   string             `gorm:"size:10;not null"` // YYYY-MM-DD, inclusive
	PillCount int                `gorm:"not null"`
	Status    PrescriptionStatus `gorm:"size:16;default:active;index"`
	CreatedAt time.Time
}
