// Package notify delivers due-dose reminders and finalizes user
// responses. The dose record's sent flag is the sole dedup authority:
// it is re-read immediately before sending and set immediately after, so
// the hourly batch and the sweep can both hand the same record in without
// the user seeing it twice.
package notify

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/soglom/pillbot/internal/keyboard"
	"github.com/soglom/pillbot/internal/model"
	"github.com/soglom/pillbot/internal/store"
	"github.com/soglom/pillbot/internal/transport"
)

var (
	// ErrNotOwner is returned for a response targeting someone else's record.
	ErrNotOwner = errors.New("notify: record not owned by responder")
	// ErrFinalized is returned for a response to an already-decided record.
	ErrFinalized = errors.New("notify: record already finalized")
)

// Dispatcher sends reminders and records outcomes.
type Dispatcher struct {
	store  *store.Store
	sender transport.Sender
	logger *log.Logger
	now    func() time.Time
}

func New(st *store.Store, sender transport.Sender, logger *log.Logger, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{store: st, sender: sender, logger: logger, now: now}
}

// Dispatch sends the reminder for a due record unless it was already sent
// or resolved. A transport failure leaves the record pending for the
// end-of-hour sweep; there is no further retry.
func (d *Dispatcher) Dispatch(rec *model.DoseRecord) {
	fresh, err := d.store.DoseRecordByID(rec.ID)
	if err != nil {
		d.logger.Printf("notify: record %s vanished: %v", rec.ID, err)
		return
	}
	if fresh.ReminderSent || fresh.Status != model.DosePending {
		return
	}
	if fresh.User != nil && !fresh.User.RemindersEnabled {
		return
	}
	if fresh.Pill == nil {
		d.logger.Printf("notify: record %s has no pill", rec.ID)
		return
	}

	reply := transport.Reply{
		Text: fmt.Sprintf("Time to take your medication.\n\n%s\n%s\n\nDid you take it?",
			fresh.Pill.Name, fresh.ScheduledTime),
		Buttons: []transport.Button{
			{Label: keyboard.LabelTaken, Action: keyboard.ActionTaken, Ref: fresh.ID},
			{Label: keyboard.LabelMissed, Action: keyboard.ActionMissed, Ref: fresh.ID},
		},
	}
	if err := d.sender.Send(fresh.UserID, reply); err != nil {
		d.logger.Printf("notify: send to user %d: %v", fresh.UserID, err)
		return
	}
	if err := d.store.MarkReminderSent(fresh.ID); err != nil {
		d.logger.Printf("notify: mark sent %s: %v", fresh.ID, err)
	}
}

// HandleResponse finalizes a taken/missed button press. Responses are
// idempotent guards: a response for a finalized record, or one not owned
// by the responder, is rejected.
func (d *Dispatcher) HandleResponse(userID int64, action, recordID string) (transport.Reply, error) {
	var status model.DoseStatus
	switch action {
	case keyboard.ActionTaken:
		status = model.DoseTaken
	case keyboard.ActionMissed:
		status = model.DoseMissed
	default:
		return transport.Reply{}, fmt.Errorf("notify: unknown action %q", action)
	}

	rec, err := d.store.DoseRecordByID(recordID)
	if err != nil {
		return transport.Reply{}, err
	}
	if rec.UserID != userID {
		return transport.Reply{}, ErrNotOwner
	}
	if rec.Status != model.DosePending {
		return transport.Reply{}, ErrFinalized
	}

	at := d.now()
	if err := d.store.UpdateDoseStatus(rec.ID, status, &at); err != nil {
		return transport.Reply{}, err
	}

	label := "Missed"
	if status == model.DoseTaken {
		label = "Taken"
		name := ""
		if rec.Pill != nil {
			name = rec.Pill.Name
		}
		if err := d.store.AppendTakenHistory(userID, rec.PillID, name, rec.Date, rec.ScheduledTime); err != nil {
			d.logger.Printf("notify: append taken history: %v", err)
		}
	}
	return transport.Reply{
		Ack:  label,
		Text: fmt.Sprintf("%s - %s. Thank you!", rec.ScheduledTime, label),
	}, nil
}
