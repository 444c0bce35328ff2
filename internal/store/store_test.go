package store

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/soglom/pillbot/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_fk=1", name, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite memory: %v", err)
	}
	if err := db.AutoMigrate(
		&model.User{},
		&model.Prescription{},
		&model.Pill{},
		&model.DoseRecord{},
		&model.TakenHistory{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return New(db)
}

func seedPill(t *testing.T, st *Store, userID int64, courseID *uint, name string, times []string) *model.Pill {
	t.Helper()
	pill, err := st.CreatePill(userID, courseID, name, len(times), times, nil)
	if err != nil {
		t.Fatalf("seed pill %s: %v", name, err)
	}
	return pill
}

func TestFindOrCreateUser(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	user, err := st.FindOrCreateUser(998901234567, "Aziz")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !user.FirstTime || !user.RemindersEnabled {
		t.Fatalf("new user defaults wrong: first_time=%v reminders=%v", user.FirstTime, user.RemindersEnabled)
	}
	if user.Timezone != "Asia/Tashkent" {
		t.Fatalf("default timezone = %q", user.Timezone)
	}

	again, err := st.FindOrCreateUser(998901234567, "Azizbek")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if again.FirstName != "Azizbek" {
		t.Fatalf("name not refreshed: %q", again.FirstName)
	}
}

func TestCreatePrescriptionSpan(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	course, err := st.CreatePrescription(1, "flu", 7, 2, "2026-01-10")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if course.StartDate != "2026-01-10" || course.EndDate != "2026-01-16" {
		t.Fatalf("span = %s -> %s, want 2026-01-10 -> 2026-01-16", course.StartDate, course.EndDate)
	}
	if course.Status != model.PrescriptionActive {
		t.Fatalf("status = %s", course.Status)
	}

	active, err := st.ActivePrescription(1)
	if err != nil {
		t.Fatalf("active lookup: %v", err)
	}
	if active.ID != course.ID {
		t.Fatalf("active = %d, want %d", active.ID, course.ID)
	}
}

func TestMaterializeDayIdempotent(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	pill := seedPill(t, st, 1, nil, "ibuprofen", []string{"08:00", "20:00"})

	created, err := st.MaterializeDay("2026-01-10")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if created != 2 {
		t.Fatalf("first run created %d, want 2", created)
	}

	created, err = st.MaterializeDay("2026-01-10")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if created != 0 {
		t.Fatalf("second run created %d, want 0", created)
	}

	recs, err := st.DoseRecords(1, "2026-01-10")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	for _, rec := range recs {
		if rec.PillID != pill.ID || rec.Status != model.DosePending {
			t.Fatalf("unexpected record: %+v", rec)
		}
	}
}

func TestMaterializeFromSkipsPastTimes(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	pill := seedPill(t, st, 1, nil, "vitamin", []string{"08:00", "14:00", "20:00"})

	created, err := st.MaterializeFrom(pill, "2026-01-10", "14:00")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if created != 2 {
		t.Fatalf("created %d, want 2", created)
	}
	recs, _ := st.DoseRecords(1, "2026-01-10")
	for _, rec := range recs {
		if rec.ScheduledTime < "14:00" {
			t.Fatalf("record for past time %s created", rec.ScheduledTime)
		}
	}
}

func TestSyncTodayReconciles(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	pill := seedPill(t, st, 1, nil, "antibiotic", []string{"08:00", "20:00"})

	if _, err := st.MaterializeFrom(pill, "2026-01-10", "00:00"); err != nil {
		t.Fatalf("materialize: %v", err)
	}

	// Edit: 20:00 replaced with 18:00, 08:00 kept.
	if err := pill.SetTimes([]string{"08:00", "18:00"}); err != nil {
		t.Fatalf("set times: %v", err)
	}
	created, cancelled, err := st.SyncToday(pill, "2026-01-10", "12:00")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if created != 1 || cancelled != 1 {
		t.Fatalf("created=%d cancelled=%d, want 1/1", created, cancelled)
	}

	recs, _ := st.DoseRecords(1, "2026-01-10")
	byTime := map[string]model.DoseRecord{}
	for _, rec := range recs {
		byTime[rec.ScheduledTime] = rec
	}
	if rec := byTime["20:00"]; rec.Status != model.DoseCancelled || !rec.ReminderSent {
		t.Fatalf("removed time not cancelled with sent flag: %+v", rec)
	}
	if rec := byTime["18:00"]; rec.Status != model.DosePending {
		t.Fatalf("new time not pending: %+v", rec)
	}
	// 08:00 was already materialized; a second sync must not duplicate it.
	if _, _, err := st.SyncToday(pill, "2026-01-10", "12:00"); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	recs, _ = st.DoseRecords(1, "2026-01-10")
	count := 0
	for _, rec := range recs {
		if rec.ScheduledTime == "08:00" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("08:00 duplicated: %d records", count)
	}
}

func TestPendingForHour(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	pill := seedPill(t, st, 1, nil, "aspirin", []string{"14:00", "15:30"})

	if _, err := st.MaterializeFrom(pill, "2026-01-10", "00:00"); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	recs, err := st.PendingForHour("14", "2026-01-10")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(recs) != 1 || recs[0].ScheduledTime != "14:00" {
		t.Fatalf("got %+v, want one 14:00 record", recs)
	}
	if recs[0].Pill == nil || recs[0].Pill.Name != "aspirin" {
		t.Fatalf("pill not preloaded: %+v", recs[0].Pill)
	}

	if err := st.MarkReminderSent(recs[0].ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	recs, _ = st.PendingForHour("14", "2026-01-10")
	if len(recs) != 0 {
		t.Fatalf("sent record still pending for hour: %+v", recs)
	}
}

func TestUpdatePrescriptionDaysClampsPills(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	course, err := st.CreatePrescription(1, "flu", 7, 2, "2026-01-10")
	if err != nil {
		t.Fatalf("create course: %v", err)
	}
	seven := 7
	longPill, err := st.CreatePill(1, &course.ID, "long", 1, []string{"08:00"}, &seven)
	if err != nil {
		t.Fatalf("create pill: %v", err)
	}
	wholePill := seedPill(t, st, 1, &course.ID, "whole", []string{"09:00"})

	updated, err := st.UpdatePrescriptionDays(course.ID, 3)
	if err != nil {
		t.Fatalf("update days: %v", err)
	}
	if updated.EndDate != "2026-01-12" {
		t.Fatalf("end date = %s, want 2026-01-12", updated.EndDate)
	}

	got, _ := st.PillByID(longPill.ID)
	if got.CourseDays == nil || *got.CourseDays != 3 {
		t.Fatalf("pill duration not clamped: %v", got.CourseDays)
	}
	got, _ = st.PillByID(wholePill.ID)
	if got.CourseDays != nil {
		t.Fatalf("whole-course pill gained a duration: %v", got.CourseDays)
	}
}

func TestDeletePrescriptionCascades(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	course, err := st.CreatePrescription(1, "flu", 7, 1, "2026-01-10")
	if err != nil {
		t.Fatalf("create course: %v", err)
	}
	pill := seedPill(t, st, 1, &course.ID, "paracetamol", []string{"08:00", "20:00"})
	if _, err := st.MaterializeFrom(pill, "2026-01-10", "00:00"); err != nil {
		t.Fatalf("materialize: %v", err)
	}

	if err := st.DeletePrescription(course.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := st.PrescriptionByID(course.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("course survived: %v", err)
	}
	if _, err := st.PillByID(pill.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("pill survived: %v", err)
	}
	recs, _ := st.DoseRecords(1, "2026-01-10")
	if len(recs) != 0 {
		t.Fatalf("dose records survived: %+v", recs)
	}
	courses, _ := st.CompletedPrescriptions(1)
	if len(courses) != 0 {
		t.Fatalf("deleted course appears in history: %+v", courses)
	}
}

func TestCompleteEndedPrescriptions(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	ended, err := st.CreatePrescription(1, "old", 3, 1, "2026-01-01")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	running, err := st.CreatePrescription(2, "current", 30, 1, "2026-01-01")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pill := seedPill(t, st, 1, &ended.ID, "done", []string{"08:00"})

	closed, err := st.CompleteEndedPrescriptions("2026-01-10")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(closed) != 1 || closed[0].ID != ended.ID {
		t.Fatalf("closed %+v, want course %d", closed, ended.ID)
	}

	got, _ := st.PillByID(pill.ID)
	if got.Active {
		t.Fatal("pill of ended course still active")
	}
	still, err := st.ActivePrescription(2)
	if err != nil || still.ID != running.ID {
		t.Fatalf("running course affected: %v %+v", err, still)
	}
}

func TestStatsExcludesCancelled(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	pill := seedPill(t, st, 1, nil, "mix", []string{"08:00", "12:00", "16:00", "20:00"})

	if _, err := st.MaterializeFrom(pill, "2026-01-10", "00:00"); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	recs, _ := st.DoseRecords(1, "2026-01-10")
	now := time.Now()
	if err := st.UpdateDoseStatus(recs[0].ID, model.DoseTaken, &now); err != nil {
		t.Fatalf("taken: %v", err)
	}
	if err := st.UpdateDoseStatus(recs[1].ID, model.DoseMissed, nil); err != nil {
		t.Fatalf("missed: %v", err)
	}
	if err := st.UpdateDoseStatus(recs[2].ID, model.DoseCancelled, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	stats, err := st.Stats(1, "2026-01-10")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Taken != 1 || stats.Missed != 1 || stats.Pending != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestTakenHistorySurvivesPillDeletion(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	pill := seedPill(t, st, 1, nil, "ephemeral", []string{"08:00"})

	if err := st.AppendTakenHistory(1, pill.ID, pill.Name, "2026-01-10", "08:00"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.AppendTakenHistory(1, pill.ID, pill.Name, "2026-01-10", "20:00"); err != nil {
		t.Fatalf("append second: %v", err)
	}
	if err := st.DeactivatePill(pill.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	hist, err := st.TakenHistoryRange(1, "2026-01-01", "2026-01-31")
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("got %d groups, want 1", len(hist))
	}
	items := hist[0].ItemList()
	if len(items) != 2 || items[0].Name != "ephemeral" {
		t.Fatalf("items = %+v", items)
	}
}
