// Package intake drives the multi-turn dialogue that creates and edits
// prescriptions and their pills. It is a per-user state machine: each turn
// consumes one parsed input, mutates the user's session, and returns the
// replies to send. Malformed input never advances the state; the same
// prompt is repeated.
package intake

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/soglom/pillbot/internal/keyboard"
	"github.com/soglom/pillbot/internal/model"
	"github.com/soglom/pillbot/internal/session"
	"github.com/soglom/pillbot/internal/store"
	"github.com/soglom/pillbot/internal/timeutil"
	"github.com/soglom/pillbot/internal/transport"
)

// Step tags the session's current prompt.
type Step string

const (
	StepCourseName      Step = "course_name"
	StepCourseDays      Step = "course_days"
	StepCoursePillCount Step = "course_pill_count"
	StepPillName        Step = "pill_name"
	StepPillDuration    Step = "pill_duration"
	StepDosage          Step = "dosage_per_day"
	StepSelectTime      Step = "select_time"

	StepManageSelect Step = "manage_select"
	StepManageAction Step = "manage_action"
	StepEditMenu     Step = "edit_menu"
	StepEditName     Step = "edit_name"
	StepEditDosage   Step = "edit_dosage"
	StepEditTimes    Step = "edit_times"

	StepEditCourseMenu      Step = "edit_course_menu"
	StepEditCourseName      Step = "edit_course_name"
	StepEditCourseDays      Step = "edit_course_days"
	StepConfirmDeleteCourse Step = "confirm_delete_course"

	StepSettingsLead     Step = "settings_lead_minutes"
	StepSettingsTimezone Step = "settings_timezone"
)

// Session is the accumulated dialogue state for one user.
type Session struct {
	Step Step

	// New-course flow.
	CourseName string
	CourseDays int
	TotalPills int
	PillsDone  int

	// Persisted course context (new flow after creation, or edit flow).
	CourseID  uint
	StartDate string
	EndDate   string

	// Pill being collected or edited.
	PillID   uint
	PillName string
	PillDays *int // nil means whole course
	Dosage   int

	// Time-selection sub-protocol.
	Times     []string
	NextIndex int
	MinTime   string

	// Listing order for numeric pill selection.
	PillIDs []uint
}

// Machine owns the per-user sessions and applies the intake transitions.
type Machine struct {
	store    *store.Store
	sessions *session.Store[*Session]
	logger   *log.Logger
	now      func() time.Time
}

func New(st *store.Store, logger *log.Logger, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{
		store:    st,
		sessions: session.NewStore[*Session](),
		logger:   logger,
		now:      now,
	}
}

// Active reports whether the user has a dialogue in flight.
func (m *Machine) Active(userID int64) bool {
	_, ok := m.sessions.Get(userID)
	return ok
}

// Session returns the user's current session, if any.
func (m *Machine) Session(userID int64) (*Session, bool) {
	return m.sessions.Get(userID)
}

// Abort unconditionally discards the user's session.
func (m *Machine) Abort(userID int64) {
	m.sessions.Remove(userID)
}

// StartNewCourse replaces any prior session with a fresh prescription
// intake.
func (m *Machine) StartNewCourse(user *model.User) []transport.Reply {
	m.sessions.Set(user.ID, &Session{Step: StepCourseName})
	return []transport.Reply{{
		Text:     "What is this treatment for? (e.g. flu)",
		Keyboard: keyboard.Nav(),
	}}
}

// StartManage begins the numeric pill-selection flow over the given
// listing order. The active course, when present, enables the
// prescription-edit entry.
func (m *Machine) StartManage(user *model.User, pills []model.Pill, course *model.Prescription) {
	sess := &Session{Step: StepManageSelect}
	for _, p := range pills {
		sess.PillIDs = append(sess.PillIDs, p.ID)
	}
	if course != nil {
		sess.CourseID = course.ID
		sess.CourseName = course.Name
		sess.StartDate = course.StartDate
		sess.EndDate = course.EndDate
	}
	m.sessions.Set(user.ID, sess)
}

// StartLeadMinutes prompts for the reminder lead time.
func (m *Machine) StartLeadMinutes(user *model.User) []transport.Reply {
	m.sessions.Set(user.ID, &Session{Step: StepSettingsLead})
	return []transport.Reply{{
		Text:     "How many minutes in advance should reminders arrive? (0-1440)",
		Keyboard: keyboard.Settings(),
	}}
}

// StartTimezone prompts for a timezone choice.
func (m *Machine) StartTimezone(user *model.User) []transport.Reply {
	m.sessions.Set(user.ID, &Session{Step: StepSettingsTimezone})
	return []transport.Reply{{
		Text:     "Pick a timezone or type an IANA zone name (e.g. Asia/Tashkent).",
		Keyboard: keyboard.Timezones(),
	}}
}

// Back retreats exactly one step, restoring the prior prompt. The second
// return is false when no session exists.
func (m *Machine) Back(user *model.User) ([]transport.Reply, bool) {
	sess, ok := m.sessions.Get(user.ID)
	if !ok {
		return nil, false
	}
	switch sess.Step {
	case StepSelectTime:
		sess.Step = StepDosage
		sess.Times = nil
		sess.NextIndex = 1
		sess.MinTime = ""
		m.sessions.Set(user.ID, sess)
		return []transport.Reply{{Text: "How many times per day? (e.g. 3)", Keyboard: keyboard.Nav()}}, true
	case StepDosage:
		sess.Step = StepPillName
		m.sessions.Set(user.ID, sess)
		return []transport.Reply{{Text: "Enter the medication name:", Keyboard: keyboard.Nav()}}, true
	case StepEditTimes:
		sess.Step = StepEditDosage
		m.sessions.Set(user.ID, sess)
		return []transport.Reply{{
			Text:     fmt.Sprintf("How many times per day? (current: %d)", sess.Dosage),
			Keyboard: keyboard.Nav(),
		}}, true
	case StepSettingsLead, StepSettingsTimezone:
		m.sessions.Remove(user.ID)
		return []transport.Reply{{Text: "Settings", Keyboard: keyboard.Settings()}}, true
	default:
		m.sessions.Remove(user.ID)
		return []transport.Reply{m.menuReply(user.ID, "Main menu")}, true
	}
}

// HandleText feeds one free-text input into the session. The second return
// is false when the user has no dialogue in flight.
func (m *Machine) HandleText(user *model.User, text string) ([]transport.Reply, bool) {
	sess, ok := m.sessions.Get(user.ID)
	if !ok {
		return nil, false
	}
	text = strings.TrimSpace(text)

	switch sess.Step {
	case StepCourseName:
		return m.courseName(user, sess, text), true
	case StepCourseDays:
		return m.courseDays(user, sess, text), true
	case StepCoursePillCount:
		return m.coursePillCount(user, sess, text), true
	case StepPillName:
		return m.pillName(user, sess, text), true
	case StepPillDuration:
		return m.pillDuration(user, sess, text), true
	case StepDosage:
		return m.dosage(user, sess, text), true
	case StepSelectTime, StepEditTimes:
		return m.selectTime(user, sess, text), true
	case StepManageSelect:
		return m.manageSelect(user, sess, text), true
	case StepManageAction:
		return m.manageAction(user, sess, text), true
	case StepEditMenu:
		return m.editMenu(user, sess, text), true
	case StepEditName:
		return m.editName(user, sess, text), true
	case StepEditDosage:
		return m.editDosage(user, sess, text), true
	case StepEditCourseMenu:
		return m.editCourseMenu(user, sess, text), true
	case StepEditCourseName:
		return m.editCourseName(user, sess, text), true
	case StepEditCourseDays:
		return m.editCourseDays(user, sess, text), true
	case StepConfirmDeleteCourse:
		// Only the confirm/cancel buttons advance this step.
		return []transport.Reply{{
			Text: "Use the buttons to confirm or cancel the deletion.",
		}}, true
	case StepSettingsLead:
		return m.settingsLead(user, sess, text), true
	case StepSettingsTimezone:
		return m.settingsTimezone(user, sess, text), true
	default:
		m.sessions.Remove(user.ID)
		return []transport.Reply{m.menuReply(user.ID, "Main menu")}, true
	}
}

func (m *Machine) courseName(user *model.User, sess *Session, text string) []transport.Reply {
	if text == "" {
		return []transport.Reply{{Text: "Enter a name for the treatment:", Keyboard: keyboard.Nav()}}
	}
	sess.CourseName = text
	sess.Step = StepCourseDays
	m.sessions.Set(user.ID, sess)
	return []transport.Reply{{Text: "How many days will the treatment last? (e.g. 7)", Keyboard: keyboard.Nav()}}
}

func (m *Machine) courseDays(user *model.User, sess *Session, text string) []transport.Reply {
	days, err := strconv.Atoi(text)
	if err != nil || days < 1 || days > 365 {
		return []transport.Reply{{Text: "Enter a number between 1 and 365:", Keyboard: keyboard.Nav()}}
	}
	sess.CourseDays = days
	sess.Step = StepCoursePillCount
	m.sessions.Set(user.ID, sess)
	return []transport.Reply{{Text: "How many medications are in the prescription? (e.g. 2)", Keyboard: keyboard.Nav()}}
}

func (m *Machine) coursePillCount(user *model.User, sess *Session, text string) []transport.Reply {
	count, err := strconv.Atoi(text)
	if err != nil || count < 1 || count > 20 {
		return []transport.Reply{{Text: "Enter a number between 1 and 20:", Keyboard: keyboard.Nav()}}
	}
	today := timeutil.FormatDate(m.now())
	course, err := m.store.CreatePrescription(user.ID, sess.CourseName, sess.CourseDays, count, today)
	if err != nil {
		m.logger.Printf("intake: create prescription: %v", err)
		return []transport.Reply{{Text: "Something went wrong. Please try again:", Keyboard: keyboard.Nav()}}
	}
	sess.TotalPills = count
	sess.PillsDone = 0
	sess.CourseID = course.ID
	sess.StartDate = course.StartDate
	sess.EndDate = course.EndDate
	sess.Step = StepPillName
	m.sessions.Set(user.ID, sess)
	return []transport.Reply{{Text: "Enter the medication name:", Keyboard: keyboard.Nav()}}
}

func (m *Machine) pillName(user *model.User, sess *Session, text string) []transport.Reply {
	if text == "" {
		return []transport.Reply{{Text: "Enter the medication name:", Keyboard: keyboard.Nav()}}
	}
	sess.PillName = text
	sess.Step = StepPillDuration
	m.sessions.Set(user.ID, sess)
	return []transport.Reply{{
		Text: fmt.Sprintf("%s (course: %d days)\n\nFor how many days will you take it? Enter a number or choose %q.",
			text, sess.CourseDays, keyboard.LabelWholeCourse),
		Keyboard: keyboard.PillDuration(),
	}}
}

func (m *Machine) pillDuration(user *model.User, sess *Session, text string) []transport.Reply {
	if text == keyboard.LabelWholeCourse {
		sess.PillDays = nil
		sess.Step = StepDosage
		m.sessions.Set(user.ID, sess)
		return []transport.Reply{{Text: "How many times per day? (e.g. 3)", Keyboard: keyboard.Nav()}}
	}
	maxDays := sess.CourseDays
	if maxDays == 0 {
		maxDays = 365
	}
	days, err := strconv.Atoi(text)
	if err != nil || days < 1 || days > maxDays {
		return []transport.Reply{{
			Text:     fmt.Sprintf("Enter a number between 1 and %d, or choose %q:", maxDays, keyboard.LabelWholeCourse),
			Keyboard: keyboard.PillDuration(),
		}}
	}
	sess.PillDays = &days
	sess.Step = StepDosage
	m.sessions.Set(user.ID, sess)
	return []transport.Reply{{Text: "How many times per day? (e.g. 3)", Keyboard: keyboard.Nav()}}
}

func (m *Machine) dosage(user *model.User, sess *Session, text string) []transport.Reply {
	dosage, err := strconv.Atoi(text)
	if err != nil || dosage < 1 || dosage > 10 {
		return []transport.Reply{{Text: "Enter a number between 1 and 10:", Keyboard: keyboard.Nav()}}
	}
	sess.Dosage = dosage
	sess.Times = nil
	sess.NextIndex = 1
	sess.MinTime = ""
	sess.Step = StepSelectTime
	m.sessions.Set(user.ID, sess)
	return []transport.Reply{{
		Text:     fmt.Sprintf("Daily doses: %d.\n\nSelect time 1 of %d:", dosage, dosage),
		Keyboard: keyboard.Times("", nil),
	}}
}

// menuReply builds a main-menu reply, hiding the add entry while a course
// is active.
func (m *Machine) menuReply(userID int64, text string) transport.Reply {
	includeAdd := true
	if _, err := m.store.ActivePrescription(userID); err == nil {
		includeAdd = false
	} else if !errors.Is(err, store.ErrNotFound) {
		m.logger.Printf("intake: active prescription lookup: %v", err)
	}
	return transport.Reply{Text: text, Keyboard: keyboard.Main(includeAdd)}
}
