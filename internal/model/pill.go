package model

import (
	"encoding/json"
	"sort"
	"time"

	"gorm.io/datatypes"
)

// Pill is one medication within a course. Times holds the daily dosing
// times as a JSON array of sorted "HH:MM" strings.
type Pill struct {
	ID           uint  `gorm:"primaryKey"`
	UserID       int64 `gorm:"index;not null"`
	CourseID     *uint `gorm:"index"`
	Name         string `gorm:"not null"`
	DosagePerDay int    `gorm:"not null"`
	Times        datatypes.JSON
	CourseDays   *int // nil means "for the whole course"
	Active       bool `gorm:"default:true;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Course *Prescription `gorm:"foreignKey:CourseID"`
}

// TimeList decodes the stored dosing times. A corrupt or empty column
// yields nil.
func (p *Pill) TimeList() []string {
	var times []string
	if len(p.Times) == 0 {
		return nil
	}
	if err := json.Unmarshal(p.Times, &times); err != nil {
		return nil
	}
	return times
}

// SetTimes stores the dosing times sorted and duplicate-free.
func (p *Pill) SetTimes(times []string) error {
	uniq := make([]string, 0, len(times))
	seen := make(map[string]bool, len(times))
	for _, t := range times {
		if !seen[t] {
			seen[t] = true
			uniq = append(uniq, t)
		}
	}
	sort.Strings(uniq)
	raw, err := json.Marshal(uniq)
	if err != nil {
		return err
	}
	p.Times = raw
	return nil
}
