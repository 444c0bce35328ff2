// Package bot routes structured transport events to the intake machine,
// the notification dispatcher, and the report screens. Raw text is
// translated into a fixed intent set at this boundary; the intake machine
// itself never sees menu labels it did not define.
package bot

import (
	"errors"
	"log"
	"time"

	"github.com/soglom/pillbot/internal/intake"
	"github.com/soglom/pillbot/internal/keyboard"
	"github.com/soglom/pillbot/internal/model"
	"github.com/soglom/pillbot/internal/notify"
	"github.com/soglom/pillbot/internal/store"
	"github.com/soglom/pillbot/internal/transport"
)

type intent int

const (
	intentNone intent = iota
	intentAddCourse
	intentMyPills
	intentReminders
	intentDailyReport
	intentHistory
	intentAbout
	intentSettings
	intentTimezone
	intentReminderSettings
	intentToggleReminders
	intentLeadMinutes
	intentBack
	intentHome
)

// parseIntent maps exact menu labels to intents. Anything else flows to
// the intake machine as free text.
func parseIntent(text string) intent {
	switch text {
	case keyboard.LabelAddCourse:
		return intentAddCourse
	case keyboard.LabelMyPills:
		return intentMyPills
	case keyboard.LabelReminders:
		return intentReminders
	case keyboard.LabelDailyReport:
		return intentDailyReport
	case keyboard.LabelHistory:
		return intentHistory
	case keyboard.LabelAbout:
		return intentAbout
	case keyboard.LabelSettings:
		return intentSettings
	case keyboard.LabelTimezone:
		return intentTimezone
	case keyboard.LabelReminderSettings:
		return intentReminderSettings
	case keyboard.LabelRemindersOn, keyboard.LabelRemindersOff:
		return intentToggleReminders
	case keyboard.LabelLeadMinutes:
		return intentLeadMinutes
	case keyboard.LabelBack:
		return intentBack
	case keyboard.LabelHome:
		return intentHome
	}
	return intentNone
}

// Bot coordinates the engine's components behind the transport boundary.
type Bot struct {
	store      *store.Store
	machine    *intake.Machine
	dispatcher *notify.Dispatcher
	logger     *log.Logger
	now        func() time.Time
}

func New(st *store.Store, machine *intake.Machine, dispatcher *notify.Dispatcher, logger *log.Logger, now func() time.Time) *Bot {
	if now == nil {
		now = time.Now
	}
	return &Bot{
		store:      st,
		machine:    machine,
		dispatcher: dispatcher,
		logger:     logger,
		now:        now,
	}
}

// HandleEvent processes one inbound event and returns the replies to
// deliver.
func (b *Bot) HandleEvent(ev transport.Event) []transport.Reply {
	user, err := b.store.FindOrCreateUser(ev.UserID, ev.Name)
	if err != nil {
		b.logger.Printf("bot: user lookup %d: %v", ev.UserID, err)
		return []transport.Reply{{Text: "Something went wrong. Please try again later."}}
	}

	switch ev.Kind {
	case transport.EventButton:
		return b.handleButton(user, ev)
	case transport.EventCommand:
		if ev.Command == "start" {
			return b.welcome(user)
		}
		return []transport.Reply{b.menuReply(user.ID, "Main menu")}
	default:
		return b.handleText(user, ev.Text)
	}
}

func (b *Bot) handleButton(user *model.User, ev transport.Event) []transport.Reply {
	switch ev.Action {
	case keyboard.ActionTaken, keyboard.ActionMissed:
		reply, err := b.dispatcher.HandleResponse(user.ID, ev.Action, ev.Ref)
		if err != nil {
			b.logger.Printf("bot: dose response %s/%s: %v", ev.Action, ev.Ref, err)
			switch {
			case errors.Is(err, notify.ErrFinalized):
				return []transport.Reply{{Ack: "Already recorded."}}
			default:
				return []transport.Reply{{Ack: "Something went wrong."}}
			}
		}
		return []transport.Reply{reply}
	case keyboard.ActionConfirmDelete:
		return b.machine.ConfirmDeleteCourse(user)
	case keyboard.ActionCancelDelete:
		return b.machine.CancelDeleteCourse(user)
	}
	return []transport.Reply{{Ack: "Unknown action."}}
}

func (b *Bot) handleText(user *model.User, text string) []transport.Reply {
	switch parseIntent(text) {
	case intentHome:
		b.machine.Abort(user.ID)
		return []transport.Reply{b.menuReply(user.ID, "Main menu")}
	case intentBack:
		if replies, ok := b.machine.Back(user); ok {
			return replies
		}
		return []transport.Reply{b.menuReply(user.ID, "Main menu")}
	case intentAddCourse:
		return b.machine.StartNewCourse(user)
	case intentMyPills:
		return b.myPills(user)
	case intentReminders:
		return b.todayReminders(user)
	case intentDailyReport:
		return b.dailyReport(user)
	case intentHistory:
		return b.history(user)
	case intentAbout:
		return []transport.Reply{{Text: aboutText, Keyboard: keyboard.Nav()}}
	case intentSettings:
		return []transport.Reply{{Text: "Settings\n\nPick a section:", Keyboard: keyboard.Settings()}}
	case intentReminderSettings:
		return b.reminderSettings(user)
	case intentToggleReminders:
		return b.toggleReminders(user)
	case intentLeadMinutes:
		return b.machine.StartLeadMinutes(user)
	case intentTimezone:
		return b.machine.StartTimezone(user)
	}

	if replies, ok := b.machine.HandleText(user, text); ok {
		return replies
	}
	return []transport.Reply{b.menuReply(user.ID, "Pick an option from the menu below.")}
}

func (b *Bot) welcome(user *model.User) []transport.Reply {
	text := "Hello, " + user.FirstName + "!\n\n" +
		"This bot keeps track of your medications and reminds you when it is time to take them.\n\n" +
		"Pick an option below to get started."
	if !user.FirstTime {
		pills, err := b.store.UserPills(user.ID, true)
		if err == nil && len(pills) > 0 {
			text += "\n\nYou have " + itoa(len(pills)) + " active medication(s). Open \"" +
				keyboard.LabelMyPills + "\" to manage them."
		}
	} else if err := b.store.UpdateUser(user.ID, map[string]any{"first_time": false}); err != nil {
		b.logger.Printf("bot: clear first-use flag %d: %v", user.ID, err)
	}
	return []transport.Reply{b.menuReply(user.ID, text)}
}

func (b *Bot) toggleReminders(user *model.User) []transport.Reply {
	enabled := !user.RemindersEnabled
	if err := b.store.UpdateUser(user.ID, map[string]any{"reminders_enabled": enabled}); err != nil {
		b.logger.Printf("bot: toggle reminders %d: %v", user.ID, err)
		return []transport.Reply{{Text: "Something went wrong.", Keyboard: keyboard.Settings()}}
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return []transport.Reply{{
		Text:     "Reminders " + state + ".",
		Keyboard: keyboard.ReminderSettings(enabled),
	}}
}

func (b *Bot) reminderSettings(user *model.User) []transport.Reply {
	state := "disabled"
	if user.RemindersEnabled {
		state = "enabled"
	}
	return []transport.Reply{{
		Text:     "Reminder settings\n\nState: " + state + "\nLead time: " + itoa(user.ReminderLeadMinutes) + " minute(s)",
		Keyboard: keyboard.ReminderSettings(user.RemindersEnabled),
	}}
}

// menuReply builds a main-menu reply, hiding the add entry while a course
// is active.
func (b *Bot) menuReply(userID int64, text string) transport.Reply {
	includeAdd := true
	if _, err := b.store.ActivePrescription(userID); err == nil {
		includeAdd = false
	} else if !errors.Is(err, store.ErrNotFound) {
		b.logger.Printf("bot: active prescription lookup: %v", err)
	}
	return transport.Reply{Text: text, Keyboard: keyboard.Main(includeAdd)}
}

const aboutText = "About\n\n" +
	"This bot helps you follow a medication schedule:\n" +
	"- add prescriptions and their medications\n" +
	"- get reminders at each dosing time\n" +
	"- confirm each dose as taken or missed\n" +
	"- review daily reports and treatment history"
