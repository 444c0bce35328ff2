package bot

import (
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/soglom/pillbot/internal/intake"
	"github.com/soglom/pillbot/internal/keyboard"
	"github.com/soglom/pillbot/internal/model"
	"github.com/soglom/pillbot/internal/notify"
	"github.com/soglom/pillbot/internal/store"
	"github.com/soglom/pillbot/internal/transport"
)

type fakeSender struct{}

func (fakeSender) Send(int64, transport.Reply) error { return nil }

func newTestBot(t *testing.T, now time.Time) (*Bot, *store.Store) {
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
	logger := log.New(io.Discard, "", 0)
	clock := func() time.Time { return now }
	machine := intake.New(st, logger, clock)
	dispatcher := notify.New(st, fakeSender{}, logger, clock)
	return New(st, machine, dispatcher, logger, clock), st
}

func TestParseIntent(t *testing.T) {
	t.Parallel()

	cases := map[string]intent{
		keyboard.LabelAddCourse: intentAddCourse,
		keyboard.LabelMyPills:   intentMyPills,
		keyboard.LabelBack:      intentBack,
		keyboard.LabelHome:      intentHome,
		keyboard.LabelSettings:  intentSettings,
		"random text":           intentNone,
		"my pills":              intentNone, // labels match exactly
	}
	for text, want := range cases {
		if got := parseIntent(text); got != want {
			t.Errorf("parseIntent(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestWelcomeClearsFirstTimeFlag(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	b, st := newTestBot(t, now)

	replies := b.HandleEvent(transport.Event{UserID: 1, Name: "Aziz", Kind: transport.EventCommand, Command: "start"})
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "Aziz") {
		t.Fatalf("welcome = %+v", replies)
	}

	user, err := st.UserByID(1)
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if user.FirstTime {
		t.Fatal("first-use flag not cleared")
	}
}

func TestMenuHidesAddWithActiveCourse(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	b, st := newTestBot(t, now)
	if _, err := st.FindOrCreateUser(1, "Test"); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	reply := b.menuReply(1, "menu")
	if !containsLabel(reply.Keyboard, keyboard.LabelAddCourse) {
		t.Fatal("add entry missing without active course")
	}

	if _, err := st.CreatePrescription(1, "flu", 7, 1, "2026-01-10"); err != nil {
		t.Fatalf("seed course: %v", err)
	}
	reply = b.menuReply(1, "menu")
	if containsLabel(reply.Keyboard, keyboard.LabelAddCourse) {
		t.Fatal("add entry shown during active course")
	}
}

func TestTakenButtonFlow(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 10, 14, 5, 0, 0, time.UTC)
	b, st := newTestBot(t, now)
	if _, err := st.FindOrCreateUser(1, "Test"); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	pill, err := st.CreatePill(1, nil, "aspirin", 1, []string{"14:00"}, nil)
	if err != nil {
		t.Fatalf("seed pill: %v", err)
	}
	rec, err := st.CreateDoseRecord(pill.ID, 1, "14:00", "2026-01-10")
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}

	ev := transport.Event{UserID: 1, Kind: transport.EventButton, Action: keyboard.ActionTaken, Ref: rec.ID}
	replies := b.HandleEvent(ev)
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "Taken") {
		t.Fatalf("replies = %+v", replies)
	}
	fresh, _ := st.DoseRecordByID(rec.ID)
	if fresh.Status != model.DoseTaken {
		t.Fatalf("status = %s", fresh.Status)
	}

	// The second press must not flip the outcome.
	replies = b.HandleEvent(transport.Event{UserID: 1, Kind: transport.EventButton, Action: keyboard.ActionMissed, Ref: rec.ID})
	if len(replies) != 1 || replies[0].Ack != "Already recorded." {
		t.Fatalf("second press replies = %+v", replies)
	}
	fresh, _ = st.DoseRecordByID(rec.ID)
	if fresh.Status != model.DoseTaken {
		t.Fatalf("second press changed status: %s", fresh.Status)
	}
}

func TestFreeTextFallsBackToMenu(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	b, _ := newTestBot(t, now)

	replies := b.HandleEvent(transport.Event{UserID: 1, Kind: transport.EventText, Text: "what?"})
	if len(replies) != 1 || len(replies[0].Keyboard) == 0 {
		t.Fatalf("no menu offered: %+v", replies)
	}
}

func containsLabel(rows [][]string, label string) bool {
	for _, row := range rows {
		for _, cell := range row {
			if cell == label {
				return true
			}
		}
	}
	return false
}
