package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/soglom/pillbot/internal/keyboard"
	"github.com/soglom/pillbot/internal/model"
	"github.com/soglom/pillbot/internal/store"
	"github.com/soglom/pillbot/internal/timeutil"
	"github.com/soglom/pillbot/internal/transport"
)

// myPills renders the numbered medication list and opens the manage flow.
func (b *Bot) myPills(user *model.User) []transport.Reply {
	pills, err := b.store.UserPills(user.ID, true)
	if err != nil {
		b.logger.Printf("bot: list pills %d: %v", user.ID, err)
		return []transport.Reply{b.menuReply(user.ID, "Something went wrong.")}
	}
	if len(pills) == 0 {
		return []transport.Reply{b.menuReply(user.ID,
			"You have no medications yet.\n\nUse \""+keyboard.LabelAddCourse+"\" to add one.")}
	}

	var course *model.Prescription
	if active, err := b.store.ActivePrescription(user.ID); err == nil {
		course = active
	} else if !errors.Is(err, store.ErrNotFound) {
		b.logger.Printf("bot: active prescription lookup: %v", err)
	}

	var sb strings.Builder
	sb.WriteString("Your medications:\n\n")
	for i, pill := range pills {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, pill.Name))
		if pill.Course != nil {
			title := pill.Course.Name
			if title == "" {
				title = "Prescription #" + itoa(i+1)
			}
			sb.WriteString("   Course: " + title + " (" + pill.Course.StartDate + " -> " + pill.Course.EndDate + ")\n")
		} else {
			sb.WriteString("   Course: none\n")
		}
		if pill.CourseDays != nil {
			sb.WriteString("   Duration: " + itoa(*pill.CourseDays) + " days\n")
		} else if pill.Course != nil {
			sb.WriteString("   Duration: whole course\n")
		}
		sb.WriteString("   Daily: " + itoa(pill.DosagePerDay) + " time(s)\n")
		sb.WriteString("   Times: " + strings.Join(pill.TimeList(), ", ") + "\n\n")
	}
	sb.WriteString("Send a medication's number to manage it.")

	b.machine.StartManage(user, pills, course)
	return []transport.Reply{{
		Text:     sb.String(),
		Keyboard: keyboard.PillList(course != nil),
	}}
}

// todayReminders lists today's schedule with per-dose status.
func (b *Bot) todayReminders(user *model.User) []transport.Reply {
	today := timeutil.FormatDate(b.now())
	stats, err := b.store.Stats(user.ID, today)
	if err != nil {
		b.logger.Printf("bot: today reminders %d: %v", user.ID, err)
		return []transport.Reply{b.menuReply(user.ID, "Something went wrong.")}
	}
	if stats.Total == 0 {
		return []transport.Reply{b.menuReply(user.ID, "No reminders for today.")}
	}
	var sb strings.Builder
	sb.WriteString("Today's reminders:\n\n")
	for _, rec := range stats.Records {
		sb.WriteString(doseLine(rec))
	}
	return []transport.Reply{b.menuReply(user.ID, strings.TrimRight(sb.String(), "\n"))}
}

// dailyReport summarizes today's taken/missed/pending counts with detail.
func (b *Bot) dailyReport(user *model.User) []transport.Reply {
	today := timeutil.FormatDate(b.now())
	stats, err := b.store.Stats(user.ID, today)
	if err != nil {
		b.logger.Printf("bot: daily report %d: %v", user.ID, err)
		return []transport.Reply{b.menuReply(user.ID, "Something went wrong.")}
	}
	if stats.Total == 0 {
		return []transport.Reply{b.menuReply(user.ID, "Nothing scheduled for today yet.")}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Report for %s:\n\n", today)
	fmt.Fprintf(&sb, "Taken: %d\nMissed: %d\nPending: %d\n\nDetail:\n", stats.Taken, stats.Missed, stats.Pending)
	for _, rec := range stats.Records {
		sb.WriteString(doseLine(rec))
	}
	return []transport.Reply{b.menuReply(user.ID, strings.TrimRight(sb.String(), "\n"))}
}

// history renders completed courses with their pills, plus the per-pill
// intake summary.
func (b *Bot) history(user *model.User) []transport.Reply {
	courses, err := b.store.CompletedPrescriptions(user.ID)
	if err != nil {
		b.logger.Printf("bot: history %d: %v", user.ID, err)
		return []transport.Reply{b.menuReply(user.ID, "Something went wrong.")}
	}
	if len(courses) == 0 {
		return []transport.Reply{b.menuReply(user.ID, "No treatment history yet.")}
	}

	var sb strings.Builder
	for i, course := range courses {
		name := course.Name
		if name == "" {
			name = "-"
		}
		days := timeutil.DaysBetweenInclusive(course.StartDate, course.EndDate)
		fmt.Fprintf(&sb, "%d. %s: %d days (%s -> %s)\n", i+1, name, days, course.StartDate, course.EndDate)
		pills, err := b.store.PillsByCourse(user.ID, course.ID)
		if err != nil {
			b.logger.Printf("bot: pills by course %d: %v", course.ID, err)
			continue
		}
		if len(pills) == 0 {
			sb.WriteString("   (no medications)\n")
		}
		for _, pill := range pills {
			duration := "whole course"
			if pill.CourseDays != nil {
				duration = itoa(*pill.CourseDays) + " days"
			}
			fmt.Fprintf(&sb, "   - %s (%s, %d time(s) daily)\n", pill.Name, duration, pill.DosagePerDay)
		}
		sb.WriteString("\n")
	}

	if rows, err := b.store.TakenSummary(user.ID); err == nil && len(rows) > 0 {
		sb.WriteString("Doses taken in total:\n")
		for _, row := range rows {
			fmt.Fprintf(&sb, "   %s: %d (last on %s)\n", row.Name, row.Count, row.LastDate)
		}
	}
	return []transport.Reply{b.menuReply(user.ID, strings.TrimRight(sb.String(), "\n"))}
}

func doseLine(rec model.DoseRecord) string {
	name := "(deleted)"
	if rec.Pill != nil {
		name = rec.Pill.Name
	}
	return fmt.Sprintf("%s - %s (%s)\n", rec.ScheduledTime, name, rec.Status)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
