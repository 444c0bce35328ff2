package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/soglom/pillbot/internal/model"
	"github.com/soglom/pillbot/internal/timeutil"
)

// CreatePrescription opens a course starting today and spanning days
// calendar days inclusive.
func (s *Store) CreatePrescription(userID int64, name string, days, pillCount int, today string) (*model.Prescription, error) {
	end, err := timeutil.AddDays(today, days-1)
	if err != nil {
		return nil, err
	}
	p := model.Prescription{
		UserID:    userID,
		Name:      name,
		StartDate: today,
		EndDate:   end,
		PillCount: pillCount,
		Status:    model.PrescriptionActive,
	}
	if err := s.db.Create(&p).Error; err != nil {
		return nil, fmt.Errorf("create prescription: %w", err)
	}
	return &p, nil
}

// ActivePrescription returns the user's most recent active course.
func (s *Store) ActivePrescription(userID int64) (*model.Prescription, error) {
	var p model.Prescription
	err := s.db.Where("user_id = ? AND status = ?", userID, model.PrescriptionActive).
		Order("created_at DESC").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CompletedPrescriptions lists the user's finished courses, newest first.
func (s *Store) CompletedPrescriptions(userID int64) ([]model.Prescription, error) {
	var list []model.Prescription
	err := s.db.Where("user_id = ? AND status = ?", userID, model.PrescriptionCompleted).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}

// PrescriptionByID loads a course.
func (s *Store) PrescriptionByID(id uint) (*model.Prescription, error) {
	var p model.Prescription
	if err := s.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// RenamePrescription updates a course's display name.
func (s *Store) RenamePrescription(id uint, name string) (*model.Prescription, error) {
	p, err := s.PrescriptionByID(id)
	if err != nil {
		return nil, err
	}
	p.Name = name
	if err := s.db.Save(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePrescriptionDays rewrites the course span to days calendar days
// from its start date and clamps any pill whose own duration now exceeds
// the new span.
func (s *Store) UpdatePrescriptionDays(id uint, days int) (*model.Prescription, error) {
	p, err := s.PrescriptionByID(id)
	if err != nil {
		return nil, err
	}
	end, err := timeutil.AddDays(p.StartDate, days-1)
	if err != nil {
		return nil, err
	}
	p.EndDate = end
	if err := s.db.Save(p).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&model.Pill{}).
		Where("course_id = ? AND course_days IS NOT NULL AND course_days > ?", id, days).
		Update("course_days", days).Error; err != nil {
		return nil, fmt.Errorf("clamp pill durations: %w", err)
	}
	return p, nil
}

// DeletePrescription cascades: pending dose records of the course's pills
// are cancelled first, then records, pills, and the course row itself are
// hard-deleted so the course never reappears in history.
func (s *Store) DeletePrescription(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var pillIDs []uint
		if err := tx.Model(&model.Pill{}).Where("course_id = ?", id).Pluck("id", &pillIDs).Error; err != nil {
			return err
		}
		if len(pillIDs) > 0 {
			if err := tx.Model(&model.DoseRecord{}).
				Where("pill_id IN ? AND status = ?", pillIDs, model.DosePending).
				Updates(map[string]any{"status": model.DoseCancelled, "reminder_sent": true}).Error; err != nil {
				return err
			}
			if err := tx.Where("pill_id IN ?", pillIDs).Delete(&model.DoseRecord{}).Error; err != nil {
				return err
			}
			if err := tx.Where("course_id = ?", id).Delete(&model.Pill{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&model.Prescription{}, id).Error
	})
}

// CompleteEndedPrescriptions marks every active course whose end date has
// passed as completed and deactivates its pills. Returns the closed
// courses.
func (s *Store) CompleteEndedPrescriptions(today string) ([]model.Prescription, error) {
	var ended []model.Prescription
	if err := s.db.Where("status = ? AND end_date < ?", model.PrescriptionActive, today).Find(&ended).Error; err != nil {
		return nil, err
	}
	for i := range ended {
		ended[i].Status = model.PrescriptionCompleted
		if err := s.db.Save(&ended[i]).Error; err != nil {
			return nil, err
		}
		if err := s.db.Model(&model.Pill{}).
			Where("course_id = ? AND active", ended[i].ID).
			Update("active", false).Error; err != nil {
			return nil, err
		}
	}
	return ended, nil
}

// CreatePill stores a new pill with its dosing times.
func (s *Store) CreatePill(userID int64, courseID *uint, name string, dosagePerDay int, times []string, courseDays *int) (*model.Pill, error) {
	pill := model.Pill{
		UserID:       userID,
		CourseID:     courseID,
		Name:         name,
		DosagePerDay: dosagePerDay,
		CourseDays:   courseDays,
		Active:       true,
	}
	if err := pill.SetTimes(times); err != nil {
		return nil, err
	}
	if err := s.db.Create(&pill).Error; err != nil {
		return nil, fmt.Errorf("create pill: %w", err)
	}
	return &pill, nil
}

// UpdatePill rewrites a pill's name, dosage, and times.
func (s *Store) UpdatePill(id uint, name string, dosagePerDay int, times []string) (*model.Pill, error) {
	pill, err := s.PillByID(id)
	if err != nil {
		return nil, err
	}
	if name != "" {
		pill.Name = name
	}
	pill.DosagePerDay = dosagePerDay
	if err := pill.SetTimes(times); err != nil {
		return nil, err
	}
	if err := s.db.Save(pill).Error; err != nil {
		return nil, err
	}
	return pill, nil
}

// RenamePill updates only the display name.
func (s *Store) RenamePill(id uint, name string) (*model.Pill, error) {
	pill, err := s.PillByID(id)
	if err != nil {
		return nil, err
	}
	pill.Name = name
	if err := s.db.Save(pill).Error; err != nil {
		return nil, err
	}
	return pill, nil
}

// DeactivatePill soft-deletes a pill: it stops materializing doses but is
// retained for history.
func (s *Store) DeactivatePill(id uint) error {
	res := s.db.Model(&model.Pill{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PillByID loads a pill with its course.
func (s *Store) PillByID(id uint) (*model.Pill, error) {
	var pill model.Pill
	if err := s.db.Preload("Course").First(&pill, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &pill, nil
}

// UserPills lists a user's pills, optionally only active ones.
func (s *Store) UserPills(userID int64, activeOnly bool) ([]model.Pill, error) {
	q := s.db.Preload("Course").Where("user_id = ?", userID)
	if activeOnly {
		q = q.Where("active")
	}
	var pills []model.Pill
	err := q.Order("created_at ASC").Find(&pills).Error
	return pills, err
}

// PillsByCourse lists the pills of one course, including inactive ones.
func (s *Store) PillsByCourse(userID int64, courseID uint) ([]model.Pill, error) {
	var pills []model.Pill
	err := s.db.Where("user_id = ? AND course_id = ?", userID, courseID).
		Order("created_at ASC").
		Find(&pills).Error
	return pills, err
}
