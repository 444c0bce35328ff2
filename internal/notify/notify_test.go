package notify

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/soglom/pillbot/internal/model"
	"github.com/soglom/pillbot/internal/store"
	"github.com/soglom/pillbot/internal/transport"
)

type fakeSender struct {
	mu    sync.Mutex
	sends []transport.Reply
	fail  bool
}

func (f *fakeSender) Send(userID int64, reply transport.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("transport down")
	}
	f.sends = append(f.sends, reply)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func newTestDispatcher(t *testing.T, now time.Time) (*Dispatcher, *store.Store, *fakeSender) {
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

	st := store.New(db)
	sender := &fakeSender{}
	d := New(st, sender, log.New(io.Discard, "", 0), func() time.Time { return now })
	return d, st, sender
}

func seedRecord(t *testing.T, st *store.Store, userID int64) *model.DoseRecord {
	t.Helper()
	if _, err := st.FindOrCreateUser(userID, "Test"); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	pill, err := st.CreatePill(userID, nil, "aspirin", 1, []string{"14:00"}, nil)
	if err != nil {
		t.Fatalf("seed pill: %v", err)
	}
	rec, err := st.CreateDoseRecord(pill.ID, userID, "14:00", "2026-01-10")
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
	return rec
}

func TestDispatchMarksSent(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC)
	d, st, sender := newTestDispatcher(t, now)
	rec := seedRecord(t, st, 1)

	d.Dispatch(rec)

	if sender.count() != 1 {
		t.Fatalf("sent %d messages, want 1", sender.count())
	}
	fresh, err := st.DoseRecordByID(rec.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !fresh.ReminderSent {
		t.Fatal("sent flag not set")
	}
	reply := sender.sends[0]
	if len(reply.Buttons) != 2 || reply.Buttons[0].Ref != rec.ID {
		t.Fatalf("reply buttons = %+v", reply.Buttons)
	}
}

func TestDispatchSecondCallNoop(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC)
	d, st, sender := newTestDispatcher(t, now)
	rec := seedRecord(t, st, 1)

	d.Dispatch(rec)
	d.Dispatch(rec)

	if sender.count() != 1 {
		t.Fatalf("sent %d messages, want 1", sender.count())
	}
}

func TestDispatchSkipsDisabledUserWithoutMarking(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC)
	d, st, sender := newTestDispatcher(t, now)
	rec := seedRecord(t, st, 1)
	if err := st.UpdateUser(1, map[string]any{"reminders_enabled": false}); err != nil {
		t.Fatalf("disable: %v", err)
	}

	d.Dispatch(rec)

	if sender.count() != 0 {
		t.Fatal("disabled user got a reminder")
	}
	fresh, _ := st.DoseRecordByID(rec.ID)
	if fresh.ReminderSent {
		t.Fatal("sent flag set without delivery")
	}
}

func TestDispatchSendFailureLeavesUnsent(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC)
	d, st, sender := newTestDispatcher(t, now)
	rec := seedRecord(t, st, 1)
	sender.fail = true

	d.Dispatch(rec)

	fresh, _ := st.DoseRecordByID(rec.ID)
	if fresh.ReminderSent {
		t.Fatal("failed send marked as sent")
	}

	// The sweep can retry once the transport recovers.
	sender.fail = false
	d.Dispatch(rec)
	if sender.count() != 1 {
		t.Fatalf("retry sent %d messages, want 1", sender.count())
	}
}

func TestHandleResponseTaken(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 10, 14, 3, 0, 0, time.UTC)
	d, st, _ := newTestDispatcher(t, now)
	rec := seedRecord(t, st, 1)

	reply, err := d.HandleResponse(1, "taken", rec.ID)
	if err != nil {
		t.Fatalf("response: %v", err)
	}
	if !strings.Contains(reply.Text, "Taken") {
		t.Fatalf("reply = %+v", reply)
	}

	fresh, _ := st.DoseRecordByID(rec.ID)
	if fresh.Status != model.DoseTaken || fresh.ActualTime == nil {
		t.Fatalf("record not finalized: %+v", fresh)
	}
	hist, err := st.TakenHistoryRange(1, "2026-01-10", "2026-01-10")
	if err != nil || len(hist) != 1 {
		t.Fatalf("history = %v, %v", hist, err)
	}
	items := hist[0].ItemList()
	if len(items) != 1 || items[0].Name != "aspirin" || items[0].Time != "14:00" {
		t.Fatalf("history items = %+v", items)
	}
}

func TestHandleResponseMissedSkipsHistory(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 10, 14, 3, 0, 0, time.UTC)
	d, st, _ := newTestDispatcher(t, now)
	rec := seedRecord(t, st, 1)

	if _, err := d.HandleResponse(1, "missed", rec.ID); err != nil {
		t.Fatalf("response: %v", err)
	}
	fresh, _ := st.DoseRecordByID(rec.ID)
	if fresh.Status != model.DoseMissed {
		t.Fatalf("status = %s", fresh.Status)
	}
	hist, _ := st.TakenHistoryRange(1, "2026-01-10", "2026-01-10")
	if len(hist) != 0 {
		t.Fatalf("missed dose recorded in taken history: %+v", hist)
	}
}

func TestHandleResponseFinalizedRejected(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 10, 14, 3, 0, 0, time.UTC)
	d, st, _ := newTestDispatcher(t, now)
	rec := seedRecord(t, st, 1)

	if _, err := d.HandleResponse(1, "taken", rec.ID); err != nil {
		t.Fatalf("first response: %v", err)
	}
	if _, err := d.HandleResponse(1, "missed", rec.ID); !errors.Is(err, ErrFinalized) {
		t.Fatalf("second response err = %v, want ErrFinalized", err)
	}
	fresh, _ := st.DoseRecordByID(rec.ID)
	if fresh.Status != model.DoseTaken {
		t.Fatalf("second response overwrote status: %s", fresh.Status)
	}
}

func TestHandleResponseWrongOwner(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 10, 14, 3, 0, 0, time.UTC)
	d, st, _ := newTestDispatcher(t, now)
	rec := seedRecord(t, st, 1)

	if _, err := d.HandleResponse(2, "taken", rec.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
	fresh, _ := st.DoseRecordByID(rec.ID)
	if fresh.Status != model.DosePending {
		t.Fatalf("foreign response changed status: %s", fresh.Status)
	}
}
