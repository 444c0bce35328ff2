// Package keyboard holds the fixed menu labels and choice-keyboard
// builders shared by the bot router and the intake machine. The labels are
// the exact strings users send back, so the intent translation layer
// matches against these constants and nothing else.
package keyboard

// Menu labels.
const (
	LabelAddCourse        = "New prescription"
	LabelMyPills          = "My pills"
	LabelReminders        = "Reminders"
	LabelDailyReport      = "Daily report"
	LabelHistory          = "Treatment history"
	LabelAbout            = "About"
	LabelSettings         = "Settings"
	LabelBack             = "Back"
	LabelHome             = "Main menu"
	LabelWholeCourse      = "Whole course"
	LabelEditPill         = "Edit"
	LabelDeletePill       = "Delete"
	LabelEditName         = "Name"
	LabelEditDosage       = "Doses per day"
	LabelEditTimes        = "Times"
	LabelEditCourse       = "Edit prescription"
	LabelCourseDuration   = "Duration (days)"
	LabelDeleteCourse     = "Delete prescription"
	LabelTimezone         = "Timezone"
	LabelReminderSettings = "Reminder settings"
	LabelRemindersOn      = "Enable reminders"
	LabelRemindersOff     = "Disable reminders"
	LabelLeadMinutes      = "Lead minutes"
)

// Button labels and actions.
const (
	LabelTaken  = "Taken"
	LabelMissed = "Missed"

	ActionTaken        = "taken"
	ActionMissed       = "missed"
	ActionConfirmDelete = "confirm_delete_course"
	ActionCancelDelete  = "cancel_delete_course"
)

// Palette is the fixed set of selectable dosing times.
var Palette = []string{
	"08:00", "09:00", "10:00",
	"11:00", "12:00", "13:00",
	"14:00", "15:00", "16:00",
	"17:00", "18:00", "19:00",
	"20:00", "21:00", "22:00",
}

// Main is the top-level menu. The add entry is hidden while a course is
// already active.
func Main(includeAdd bool) [][]string {
	firstRow := []string{LabelMyPills}
	if includeAdd {
		firstRow = []string{LabelAddCourse, LabelMyPills}
	}
	return [][]string{
		firstRow,
		{LabelReminders, LabelDailyReport},
		{LabelHistory},
		{LabelAbout, LabelSettings},
	}
}

// Nav is the navigation row shown during intake steps.
func Nav() [][]string {
	return [][]string{{LabelBack, LabelHome}}
}

// Times builds the dosing-time palette, excluding already-chosen slots and
// anything below the floor, three per row, with the navigation row last.
func Times(minTime string, exclude []string) [][]string {
	excluded := make(map[string]bool, len(exclude))
	for _, t := range exclude {
		excluded[t] = true
	}
	var filtered []string
	for _, t := range Palette {
		if excluded[t] {
			continue
		}
		if minTime != "" && t < minTime {
			continue
		}
		filtered = append(filtered, t)
	}
	var rows [][]string
	for i := 0; i < len(filtered); i += 3 {
		end := i + 3
		if end > len(filtered) {
			end = len(filtered)
		}
		rows = append(rows, filtered[i:end])
	}
	return append(rows, []string{LabelBack, LabelHome})
}

// PillDuration offers "whole course" alongside free numeric input.
func PillDuration() [][]string {
	return [][]string{
		{LabelWholeCourse},
		{LabelBack, LabelHome},
	}
}

// PillList is shown under the numbered medication listing.
func PillList(hasCourse bool) [][]string {
	if hasCourse {
		return [][]string{{LabelEditCourse}, {LabelBack, LabelHome}}
	}
	return [][]string{{LabelBack, LabelHome}}
}

// PillManage offers the per-pill actions.
func PillManage() [][]string {
	return [][]string{
		{LabelEditPill, LabelDeletePill},
		{LabelEditCourse},
		{LabelBack, LabelHome},
	}
}

// PillEdit selects which pill field to edit.
func PillEdit() [][]string {
	return [][]string{
		{LabelEditName, LabelEditDosage},
		{LabelEditTimes},
		{LabelBack, LabelHome},
	}
}

// CourseEdit selects which prescription field to edit.
func CourseEdit() [][]string {
	return [][]string{
		{LabelEditName, LabelCourseDuration},
		{LabelDeleteCourse},
		{LabelBack, LabelHome},
	}
}

// Settings is the settings section menu.
func Settings() [][]string {
	return [][]string{
		{LabelTimezone, LabelReminderSettings},
		{LabelBack, LabelHome},
	}
}

// ReminderSettings toggles and tunes reminders.
func ReminderSettings(enabled bool) [][]string {
	toggle := LabelRemindersOn
	if enabled {
		toggle = LabelRemindersOff
	}
	return [][]string{
		{toggle},
		{LabelLeadMinutes},
		{LabelBack, LabelHome},
	}
}

// Timezones offers the common zone choices; free text is also accepted.
func Timezones() [][]string {
	return [][]string{
		{"Asia/Tashkent", "Asia/Samarkand"},
		{"Europe/Moscow", "Asia/Almaty"},
		{"UTC"},
		{LabelBack, LabelHome},
	}
}
