package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/soglom/pillbot/internal/model"
)

// DailyStats summarizes one user's day. Cancelled records are excluded.
type DailyStats struct {
	Total   int
	Taken   int
	Missed  int
	Pending int
	Records []model.DoseRecord
}

// TakenSummaryRow is the per-pill intake aggregate: how often a pill was
// taken and when last.
type TakenSummaryRow struct {
	PillID   uint
	Name     string
	LastDate string
	Count    int64
}

// CreateDoseRecord stores one pending (pill, date, time) occurrence.
func (s *Store) CreateDoseRecord(pillID uint, userID int64, scheduledTime, date string) (*model.DoseRecord, error) {
	rec := model.DoseRecord{
		PillID:        pillID,
		UserID:        userID,
		ScheduledTime: scheduledTime,
		Date:          date,
		Status:        model.DosePending,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("create dose record: %w", err)
	}
	return &rec, nil
}

// DoseRecordByID loads a record with its pill and user.
func (s *Store) DoseRecordByID(id string) (*model.DoseRecord, error) {
	var rec model.DoseRecord
	err := s.db.Preload("Pill").Preload("User").First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DoseRecords lists one user's records for a date, ordered by time.
func (s *Store) DoseRecords(userID int64, date string) ([]model.DoseRecord, error) {
	var recs []model.DoseRecord
	err := s.db.Preload("Pill").
		Where("user_id = ? AND date = ?", userID, date).
		Order("scheduled_time ASC").
		Find(&recs).Error
	return recs, err
}

// PendingForHour loads every record still owed a reminder whose scheduled
// time falls in the given "HH" hour of the given date.
func (s *Store) PendingForHour(hour, date string) ([]model.DoseRecord, error) {
	var recs []model.DoseRecord
	err := s.db.Preload("Pill").Preload("User").
		Where("date = ? AND status = ? AND reminder_sent = ? AND scheduled_time LIKE ?",
			date, model.DosePending, false, hour+":%").
		Order("scheduled_time ASC").
		Find(&recs).Error
	return recs, err
}

// MarkReminderSent flips the dedup flag. It never reverts.
func (s *Store) MarkReminderSent(id string) error {
	res := s.db.Model(&model.DoseRecord{}).Where("id = ?", id).Update("reminder_sent", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDoseStatus finalizes a record's outcome.
func (s *Store) UpdateDoseStatus(id string, status model.DoseStatus, at *time.Time) error {
	res := s.db.Model(&model.DoseRecord{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "actual_time": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ensureDoseRecord creates the (pill, date, time) record unless it already
// exists. This is the idempotency key for all materialization paths.
func (s *Store) ensureDoseRecord(pillID uint, userID int64, scheduledTime, date string) (bool, error) {
	var count int64
	err := s.db.Model(&model.DoseRecord{}).
		Where("pill_id = ? AND date = ? AND scheduled_time = ?", pillID, date, scheduledTime).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if _, err := s.CreateDoseRecord(pillID, userID, scheduledTime, date); err != nil {
		return false, err
	}
	return true, nil
}

// MaterializeDay creates the date's dose records for every active pill,
// skipping ones that already exist. Returns the number created.
func (s *Store) MaterializeDay(date string) (int, error) {
	var pills []model.Pill
	if err := s.db.Where("active").Find(&pills).Error; err != nil {
		return 0, err
	}
	created := 0
	for i := range pills {
		for _, t := range pills[i].TimeList() {
			ok, err := s.ensureDoseRecord(pills[i].ID, pills[i].UserID, t, date)
			if err != nil {
				return created, err
			}
			if ok {
				created++
			}
		}
	}
	return created, nil
}

// MaterializeFrom creates the date's records for one pill, but only for
// times at or after fromTime, so intake mid-day never creates reminders
// for times already past.
func (s *Store) MaterializeFrom(pill *model.Pill, date, fromTime string) (int, error) {
	created := 0
	for _, t := range pill.TimeList() {
		if t < fromTime {
			continue
		}
		ok, err := s.ensureDoseRecord(pill.ID, pill.UserID, t, date)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// SyncToday reconciles a pill's records for the date with its (possibly
// edited) time set: pending records for removed times are cancelled with
// the sent flag forced so no sweep picks them up, and records for newly
// valid times at or after fromTime are created without duplicating
// existing ones.
func (s *Store) SyncToday(pill *model.Pill, date, fromTime string) (created, cancelled int, err error) {
	times := pill.TimeList()
	keep := make(map[string]bool, len(times))
	for _, t := range times {
		keep[t] = true
	}

	var existing []model.DoseRecord
	if err := s.db.Where("pill_id = ? AND date = ?", pill.ID, date).Find(&existing).Error; err != nil {
		return 0, 0, err
	}
	present := make(map[string]bool, len(existing))
	for i := range existing {
		rec := &existing[i]
		present[rec.ScheduledTime] = true
		if !keep[rec.ScheduledTime] && rec.Status == model.DosePending {
			err := s.db.Model(rec).
				Updates(map[string]any{"status": model.DoseCancelled, "reminder_sent": true}).Error
			if err != nil {
				return created, cancelled, err
			}
			cancelled++
		}
	}

	for _, t := range times {
		if present[t] || t < fromTime {
			continue
		}
		if _, err := s.CreateDoseRecord(pill.ID, pill.UserID, t, date); err != nil {
			return created, cancelled, err
		}
		created++
	}
	return created, cancelled, nil
}

// Stats aggregates one user's day.
func (s *Store) Stats(userID int64, date string) (DailyStats, error) {
	recs, err := s.DoseRecords(userID, date)
	if err != nil {
		return DailyStats{}, err
	}
	stats := DailyStats{}
	for _, r := range recs {
		switch r.Status {
		case model.DoseCancelled:
			continue
		case model.DoseTaken:
			stats.Taken++
		case model.DoseMissed:
			stats.Missed++
		case model.DosePending:
			stats.Pending++
		}
		stats.Records = append(stats.Records, r)
	}
	stats.Total = len(stats.Records)
	return stats, nil
}

// AppendTakenHistory records one confirmed intake under (user, date),
// snapshotting the pill name so the entry survives pill deletion.
func (s *Store) AppendTakenHistory(userID int64, pillID uint, pillName, date, scheduledTime string) error {
	var hist model.TakenHistory
	err := s.db.Where("user_id = ? AND date = ?", userID, date).First(&hist).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		hist = model.TakenHistory{UserID: userID, Date: date}
	} else if err != nil {
		return err
	}
	item := model.TakenItem{PillID: pillID, Name: pillName, Time: scheduledTime}
	if err := hist.AppendItem(item); err != nil {
		return err
	}
	return s.db.Save(&hist).Error
}

// TakenHistoryRange lists the taken-history groups in [start, end], newest
// first.
func (s *Store) TakenHistoryRange(userID int64, start, end string) ([]model.TakenHistory, error) {
	var list []model.TakenHistory
	err := s.db.Where("user_id = ? AND date >= ? AND date <= ?", userID, start, end).
		Order("date DESC").
		Find(&list).Error
	return list, err
}

// TakenSummary aggregates taken doses per pill with last date and count.
func (s *Store) TakenSummary(userID int64) ([]TakenSummaryRow, error) {
	var rows []TakenSummaryRow
	err := s.db.Model(&model.DoseRecord{}).
		Select("dose_records.pill_id AS pill_id, pills.name AS name, MAX(dose_records.date) AS last_date, COUNT(*) AS count").
		Joins("JOIN pills ON pills.id = dose_records.pill_id").
		Where("dose_records.user_id = ? AND dose_records.status = ?", userID, model.DoseTaken).
		Group("dose_records.pill_id, pills.name").
		Order("last_date DESC").
		Scan(&rows).Error
	return rows, err
}
