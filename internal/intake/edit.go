package intake

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/soglom/pillbot/internal/keyboard"
	"github.com/soglom/pillbot/internal/model"
	"github.com/soglom/pillbot/internal/transport"
)

func (m *Machine) manageSelect(user *model.User, sess *Session, text string) []transport.Reply {
	if text == keyboard.LabelEditCourse {
		if sess.CourseID == 0 {
			return []transport.Reply{{
				Text:     "No active prescription found.",
				Keyboard: keyboard.PillList(false),
			}}
		}
		sess.Step = StepEditCourseMenu
		m.sessions.Set(user.ID, sess)
		return []transport.Reply{{
			Text:     courseHeader(sess) + "\nWhat do we edit?",
			Keyboard: keyboard.CourseEdit(),
		}}
	}

	idx, err := strconv.Atoi(text)
	if err != nil || idx < 1 || idx > len(sess.PillIDs) {
		return []transport.Reply{{
			Text:     "Send a valid number from the list.",
			Keyboard: keyboard.PillList(sess.CourseID != 0),
		}}
	}
	pill, err := m.store.PillByID(sess.PillIDs[idx-1])
	if err != nil {
		m.logger.Printf("intake: pill lookup: %v", err)
		m.sessions.Remove(user.ID)
		return []transport.Reply{m.menuReply(user.ID, "Medication not found.")}
	}

	sess.Step = StepManageAction
	sess.PillID = pill.ID
	sess.PillName = pill.Name
	sess.Dosage = pill.DosagePerDay
	m.sessions.Set(user.ID, sess)
	return []transport.Reply{{
		Text:     fmt.Sprintf("Selected: %s\n%s\n\nWhat should we do?", pill.Name, pillCourseLine(pill)),
		Keyboard: keyboard.PillManage(),
	}}
}

func (m *Machine) manageAction(user *model.User, sess *Session, text string) []transport.Reply {
	switch text {
	case keyboard.LabelDeletePill:
		if err := m.store.DeactivatePill(sess.PillID); err != nil {
			m.logger.Printf("intake: deactivate pill %d: %v", sess.PillID, err)
			m.sessions.Remove(user.ID)
			return []transport.Reply{m.menuReply(user.ID, "Medication not found.")}
		}
		m.sessions.Remove(user.ID)
		return []transport.Reply{m.menuReply(user.ID, "Medication deleted.")}

	case keyboard.LabelEditPill:
		sess.Step = StepEditMenu
		m.sessions.Set(user.ID, sess)
		return []transport.Reply{{Text: "Which field do we edit?", Keyboard: keyboard.PillEdit()}}

	case keyboard.LabelEditCourse:
		pill, err := m.store.PillByID(sess.PillID)
		if err != nil {
			m.logger.Printf("intake: pill lookup: %v", err)
			m.sessions.Remove(user.ID)
			return []transport.Reply{m.menuReply(user.ID, "Medication not found.")}
		}
		if pill.CourseID == nil {
			return []transport.Reply{{
				Text:     "This medication is not linked to a prescription.",
				Keyboard: keyboard.PillManage(),
			}}
		}
		course, err := m.store.PrescriptionByID(*pill.CourseID)
		if err != nil {
			m.sessions.Remove(user.ID)
			return []transport.Reply{m.menuReply(user.ID, "Prescription not found.")}
		}
		sess.Step = StepEditCourseMenu
		sess.CourseID = course.ID
		sess.CourseName = course.Name
		sess.StartDate = course.StartDate
		sess.EndDate = course.EndDate
		m.sessions.Set(user.ID, sess)
		return []transport.Reply{{
			Text:     courseHeader(sess) + "\nWhat do we edit?",
			Keyboard: keyboard.CourseEdit(),
		}}
	}
	return []transport.Reply{{
		Text:     "Choose one of the actions below.",
		Keyboard: keyboard.PillManage(),
	}}
}

func (m *Machine) editMenu(user *model.User, sess *Session, text string) []transport.Reply {
	switch text {
	case keyboard.LabelEditName:
		sess.Step = StepEditName
		m.sessions.Set(user.ID, sess)
		return []transport.Reply{{
			Text:     fmt.Sprintf("Enter the new name (current: %s):", sess.PillName),
			Keyboard: keyboard.Nav(),
		}}
	case keyboard.LabelEditDosage:
		sess.Step = StepEditDosage
		m.sessions.Set(user.ID, sess)
		return []transport.Reply{{
			Text:     fmt.Sprintf("How many times per day? (current: %d)", sess.Dosage),
			Keyboard: keyboard.Nav(),
		}}
	case keyboard.LabelEditTimes:
		// A fresh time set even when only times change: the prior set is
		// no longer trusted once editing starts.
		sess.Step = StepEditTimes
		sess.Times = nil
		sess.NextIndex = 1
		sess.MinTime = ""
		m.sessions.Set(user.ID, sess)
		return []transport.Reply{{
			Text:     fmt.Sprintf("Select time 1 of %d:", sess.Dosage),
			Keyboard: keyboard.Times("", nil),
		}}
	}
	return []transport.Reply{{Text: "Choose which field to edit.", Keyboard: keyboard.PillEdit()}}
}

func (m *Machine) editName(user *model.User, sess *Session, text string) []transport.Reply {
	if text == "" {
		return []transport.Reply{{Text: "Enter the new name:", Keyboard: keyboard.Nav()}}
	}
	pill, err := m.store.RenamePill(sess.PillID, text)
	if err != nil {
		m.logger.Printf("intake: rename pill %d: %v", sess.PillID, err)
		m.sessions.Remove(user.ID)
		return []transport.Reply{m.menuReply(user.ID, "Medication not found.")}
	}
	m.sessions.Remove(user.ID)
	return []transport.Reply{m.menuReply(user.ID, fmt.Sprintf("Name updated: %s", pill.Name))}
}

// editDosage restarts time selection from an empty list: a dosage change
// invalidates the previously chosen set.
func (m *Machine) editDosage(user *model.User, sess *Session, text string) []transport.Reply {
	dosage, err := strconv.Atoi(text)
	if err != nil || dosage < 1 || dosage > 10 {
		return []transport.Reply{{Text: "Enter a number between 1 and 10:", Keyboard: keyboard.Nav()}}
	}
	sess.Dosage = dosage
	sess.Times = nil
	sess.NextIndex = 1
	sess.MinTime = ""
	sess.Step = StepEditTimes
	m.sessions.Set(user.ID, sess)
	return []transport.Reply{{
		Text:     fmt.Sprintf("Dosage updated: %d. Select time 1 of %d:", dosage, dosage),
		Keyboard: keyboard.Times("", nil),
	}}
}

func (m *Machine) editCourseMenu(user *model.User, sess *Session, text string) []transport.Reply {
	switch text {
	case keyboard.LabelEditName:
		sess.Step = StepEditCourseName
		m.sessions.Set(user.ID, sess)
		current := sess.CourseName
		if current == "" {
			current = "-"
		}
		return []transport.Reply{{
			Text:     fmt.Sprintf("Enter the new prescription name (current: %s):", current),
			Keyboard: keyboard.Nav(),
		}}
	case keyboard.LabelCourseDuration:
		sess.Step = StepEditCourseDays
		m.sessions.Set(user.ID, sess)
		return []transport.Reply{{Text: "Enter the new duration in days:", Keyboard: keyboard.Nav()}}
	case keyboard.LabelDeleteCourse:
		sess.Step = StepConfirmDeleteCourse
		m.sessions.Set(user.ID, sess)
		ref := strconv.FormatUint(uint64(sess.CourseID), 10)
		return []transport.Reply{{
			Text: "This prescription and all its medications will be deleted. Confirm?",
			Buttons: []transport.Button{
				{Label: "Yes", Action: keyboard.ActionConfirmDelete, Ref: ref},
				{Label: "No", Action: keyboard.ActionCancelDelete, Ref: ref},
			},
		}}
	}
	return []transport.Reply{{Text: "Choose which field to edit.", Keyboard: keyboard.CourseEdit()}}
}

func (m *Machine) editCourseName(user *model.User, sess *Session, text string) []transport.Reply {
	if text == "" {
		return []transport.Reply{{Text: "Enter the new prescription name:", Keyboard: keyboard.Nav()}}
	}
	course, err := m.store.RenamePrescription(sess.CourseID, text)
	if err != nil {
		m.logger.Printf("intake: rename prescription %d: %v", sess.CourseID, err)
		m.sessions.Remove(user.ID)
		return []transport.Reply{m.menuReply(user.ID, "Prescription not found.")}
	}
	m.sessions.Remove(user.ID)
	return []transport.Reply{m.menuReply(user.ID, fmt.Sprintf("Prescription renamed: %s", course.Name))}
}

func (m *Machine) editCourseDays(user *model.User, sess *Session, text string) []transport.Reply {
	days, err := strconv.Atoi(text)
	if err != nil || days < 1 || days > 365 {
		return []transport.Reply{{Text: "Enter a number between 1 and 365:", Keyboard: keyboard.Nav()}}
	}
	course, err := m.store.UpdatePrescriptionDays(sess.CourseID, days)
	if err != nil {
		m.logger.Printf("intake: update prescription days %d: %v", sess.CourseID, err)
		m.sessions.Remove(user.ID)
		return []transport.Reply{m.menuReply(user.ID, "Prescription not found.")}
	}
	m.sessions.Remove(user.ID)
	return []transport.Reply{m.menuReply(user.ID,
		fmt.Sprintf("Prescription duration updated: %s -> %s", course.StartDate, course.EndDate))}
}

// ConfirmDeleteCourse executes the cascade behind the two-button
// confirmation. The session must still reference the course.
func (m *Machine) ConfirmDeleteCourse(user *model.User) []transport.Reply {
	sess, ok := m.sessions.Get(user.ID)
	if !ok || sess.CourseID == 0 {
		return []transport.Reply{{Ack: "Nothing to delete."}}
	}
	if err := m.store.DeletePrescription(sess.CourseID); err != nil {
		m.logger.Printf("intake: delete prescription %d: %v", sess.CourseID, err)
		m.sessions.Remove(user.ID)
		return []transport.Reply{{Ack: "Something went wrong."}, m.menuReply(user.ID, "Main menu")}
	}
	m.sessions.Remove(user.ID)
	return []transport.Reply{
		{Ack: "Prescription deleted.", Text: "The prescription and its medications were deleted."},
		m.menuReply(user.ID, "Main menu"),
	}
}

// CancelDeleteCourse dismisses the confirmation without side effects.
func (m *Machine) CancelDeleteCourse(user *model.User) []transport.Reply {
	if sess, ok := m.sessions.Get(user.ID); ok && sess.Step == StepConfirmDeleteCourse {
		sess.Step = StepEditCourseMenu
		m.sessions.Set(user.ID, sess)
	}
	return []transport.Reply{{Ack: "Cancelled."}}
}

func (m *Machine) settingsLead(user *model.User, sess *Session, text string) []transport.Reply {
	val, err := strconv.Atoi(text)
	if err != nil || val < 0 || val > 1440 {
		return []transport.Reply{{Text: "Enter a number between 0 and 1440:", Keyboard: keyboard.Settings()}}
	}
	if err := m.store.UpdateUser(user.ID, map[string]any{"reminder_lead_minutes": val}); err != nil {
		m.logger.Printf("intake: update lead minutes: %v", err)
		return []transport.Reply{{Text: "Something went wrong. Try again:", Keyboard: keyboard.Settings()}}
	}
	m.sessions.Remove(user.ID)
	return []transport.Reply{{
		Text:     fmt.Sprintf("Reminders will arrive %d minutes early.", val),
		Keyboard: keyboard.ReminderSettings(user.RemindersEnabled),
	}}
}

func (m *Machine) settingsTimezone(user *model.User, sess *Session, text string) []transport.Reply {
	if _, err := time.LoadLocation(text); err != nil {
		return []transport.Reply{{
			Text:     "Unknown timezone. Pick one from the list or type an IANA zone name:",
			Keyboard: keyboard.Timezones(),
		}}
	}
	if err := m.store.UpdateUser(user.ID, map[string]any{"timezone": text}); err != nil {
		m.logger.Printf("intake: update timezone: %v", err)
		return []transport.Reply{{Text: "Something went wrong. Try again:", Keyboard: keyboard.Timezones()}}
	}
	m.sessions.Remove(user.ID)
	return []transport.Reply{{
		Text:     fmt.Sprintf("Timezone updated: %s", text),
		Keyboard: keyboard.Settings(),
	}}
}

func courseHeader(sess *Session) string {
	name := sess.CourseName
	if name == "" {
		name = "Unnamed"
	}
	return fmt.Sprintf("Prescription: %s (%s -> %s)", name, sess.StartDate, sess.EndDate)
}

func pillCourseLine(pill *model.Pill) string {
	var parts []string
	if pill.Course != nil {
		title := pill.Course.Name
		if title == "" {
			title = "Prescription"
		}
		parts = append(parts, fmt.Sprintf("Course: %s (%s -> %s)", title, pill.Course.StartDate, pill.Course.EndDate))
	} else {
		parts = append(parts, "Course: none")
	}
	if pill.CourseDays != nil {
		parts = append(parts, fmt.Sprintf("Duration: %d days", *pill.CourseDays))
	} else if pill.Course != nil {
		parts = append(parts, "Duration: whole course")
	}
	return strings.Join(parts, "\n")
}
