package intake

import (
	"fmt"
	"sort"
	"strings"

	"github.com/soglom/pillbot/internal/keyboard"
	"github.com/soglom/pillbot/internal/model"
	"github.com/soglom/pillbot/internal/timeutil"
	"github.com/soglom/pillbot/internal/transport"
)

const lastSlot = "22:00"

// nextFloor computes the earliest acceptable next time after accepting
// chosen as slot nextIndex-1 of total doses per day. With two doses the
// second must fall in the day's second half; with three or more,
// consecutive doses are at least four hours apart, never pushing the floor
// past the last palette slot.
func nextFloor(total, nextIndex int, chosen string) string {
	switch {
	case total == 2 && nextIndex == 2:
		return timeutil.MaxTime("12:00", chosen)
	case total >= 3:
		floor := timeutil.AddHours(chosen, 4)
		if floor > lastSlot {
			return lastSlot
		}
		return floor
	default:
		return chosen
	}
}

// selectTime runs one turn of the time-selection sub-protocol, shared by
// new-pill intake and pill editing. Rejections repeat the prompt without
// touching the session.
func (m *Machine) selectTime(user *model.User, sess *Session, text string) []transport.Reply {
	reject := func(msg string) []transport.Reply {
		return []transport.Reply{{
			Text:     msg,
			Keyboard: keyboard.Times(sess.MinTime, sess.Times),
		}}
	}

	if !timeutil.ValidTime(text) {
		return reject("Invalid time format. Example: 09:00")
	}
	for _, t := range sess.Times {
		if t == text {
			return reject(fmt.Sprintf("%s is already chosen. Pick another time.", text))
		}
	}
	if sess.MinTime != "" && text < sess.MinTime {
		return reject(fmt.Sprintf("Too early. Pick a time from %s onward.", sess.MinTime))
	}

	sess.Times = append(sess.Times, text)
	sort.Strings(sess.Times)
	next := sess.NextIndex + 1

	if next <= sess.Dosage {
		sess.NextIndex = next
		sess.MinTime = nextFloor(sess.Dosage, next, text)
		m.sessions.Set(user.ID, sess)
		return []transport.Reply{{
			Text:     fmt.Sprintf("%s saved.\n\nSelect time %d of %d:", text, next, sess.Dosage),
			Keyboard: keyboard.Times(sess.MinTime, sess.Times),
		}}
	}

	if sess.Step == StepEditTimes {
		return m.finishEdit(user, sess)
	}
	return m.finishCreate(user, sess)
}

// finishCreate persists the collected pill and materializes today's
// remaining dose records, then either loops back for the next pill or
// closes the session with a course summary.
func (m *Machine) finishCreate(user *model.User, sess *Session) []transport.Reply {
	courseID := sess.CourseID
	pill, err := m.store.CreatePill(user.ID, &courseID, sess.PillName, sess.Dosage, sess.Times, sess.PillDays)
	if err != nil {
		m.logger.Printf("intake: create pill: %v", err)
		return []transport.Reply{{
			Text:     "Could not save the medication. Pick the last time again:",
			Keyboard: keyboard.Times(sess.MinTime, sess.Times),
		}}
	}
	now := m.now()
	if _, err := m.store.MaterializeFrom(pill, timeutil.FormatDate(now), timeutil.HourStart(now)); err != nil {
		m.logger.Printf("intake: materialize today: %v", err)
	}

	summary := pillSummary("Medication added.", pill)
	done := sess.PillsDone + 1
	if remaining := sess.TotalPills - done; remaining > 0 {
		sess.PillsDone = done
		sess.PillName = ""
		sess.PillDays = nil
		sess.Dosage = 0
		sess.Times = nil
		sess.NextIndex = 1
		sess.MinTime = ""
		sess.Step = StepPillName
		m.sessions.Set(user.ID, sess)
		return []transport.Reply{{
			Text:     fmt.Sprintf("%s\n\n%d more to enter. Next medication name:", summary, remaining),
			Keyboard: keyboard.Nav(),
		}}
	}

	start, end := sess.StartDate, sess.EndDate
	m.sessions.Remove(user.ID)
	return []transport.Reply{m.menuReply(user.ID,
		fmt.Sprintf("%s\n\nPrescription complete. Course: %s -> %s", summary, start, end))}
}

// finishEdit rewrites the pill and resynchronizes today's dose records so
// removed times are cancelled and new ones added without duplicates.
func (m *Machine) finishEdit(user *model.User, sess *Session) []transport.Reply {
	pill, err := m.store.UpdatePill(sess.PillID, sess.PillName, sess.Dosage, sess.Times)
	if err != nil {
		m.logger.Printf("intake: update pill %d: %v", sess.PillID, err)
		m.sessions.Remove(user.ID)
		return []transport.Reply{m.menuReply(user.ID, "Medication not found.")}
	}
	now := m.now()
	if _, _, err := m.store.SyncToday(pill, timeutil.FormatDate(now), timeutil.HourStart(now)); err != nil {
		m.logger.Printf("intake: sync today for pill %d: %v", pill.ID, err)
	}
	m.sessions.Remove(user.ID)
	return []transport.Reply{m.menuReply(user.ID, pillSummary("Medication updated.", pill))}
}

func pillSummary(header string, pill *model.Pill) string {
	return fmt.Sprintf("%s\n\nName: %s\nDaily doses: %d\nTimes: %s",
		header, pill.Name, pill.DosagePerDay, strings.Join(pill.TimeList(), ", "))
}
