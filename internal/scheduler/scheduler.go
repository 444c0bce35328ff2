// Package scheduler converts the day's pending dose records into
// reminders: an hourly batch arms one per-dose timer per record, an
// end-of-hour sweep re-dispatches anything a timer missed, and nightly
// housekeeping materializes the new day and closes ended courses. The
// store stays authoritative throughout; a restart only loses armed timers.
package scheduler

import (
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/soglom/pillbot/internal/model"
	"github.com/soglom/pillbot/internal/store"
	"github.com/soglom/pillbot/internal/timeutil"
)

// Notifier delivers one due dose record. Implementations must be safe for
// concurrent use and must guard against double-sending themselves; the
// scheduler's timer bookkeeping is not the dedup authority.
type Notifier interface {
	Dispatch(rec *model.DoseRecord)
}

// Scheduler owns the cron entries and the current hour's timers.
type Scheduler struct {
	store    *store.Store
	notifier Notifier
	cron     *cron.Cron
	clock    Clock
	logger   *log.Logger

	mu     sync.Mutex
	timers []Timer
}

func New(st *store.Store, notifier Notifier, logger *log.Logger, loc *time.Location) *Scheduler {
	return &Scheduler{
		store:    st,
		notifier: notifier,
		cron:     cron.New(cron.WithLocation(loc)),
		clock:    systemClock{loc: loc},
		logger:   logger,
	}
}

// Start registers the cron entries and immediately schedules the current
// hour so a restart mid-hour still delivers that hour's reminders.
func (s *Scheduler) Start() error {
	entries := []struct {
		spec string
		fn   func()
	}{
		{"0 * * * *", s.ScheduleHour},
		{"59 * * * *", s.SweepHour},
		{"1 0 * * *", s.MaterializeDay},
		{"2 0 * * *", s.CloseEndedCourses},
	}
	for _, e := range entries {
		if _, err := s.cron.AddFunc(e.spec, e.fn); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.ScheduleHour()
	return nil
}

// Stop halts the cron loop, waits for running jobs, and cancels armed
// timers.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cancelTimers()
}

// ScheduleHour loads every record still owed a reminder in the current
// hour and arms one timer per record. Records already due dispatch
// immediately. Timers from the previous hour are cancelled first so
// overlapping schedules never double-fire.
func (s *Scheduler) ScheduleHour() {
	now := s.clock.Now()
	date := timeutil.FormatDate(now)
	hour := timeutil.HourPrefix(now)

	s.cancelTimers()

	recs, err := s.store.PendingForHour(hour, date)
	if err != nil {
		s.logger.Printf("scheduler: load hour %s: %v", hour, err)
		return
	}

	armed := 0
	for i := range recs {
		rec := recs[i]
		delay := timeutil.DelayUntil(now, rec.ScheduledTime) - leadTime(rec.User)
		if delay <= 0 {
			go s.notifier.Dispatch(&rec)
			continue
		}
		t := s.clock.AfterFunc(delay, func() {
			s.notifier.Dispatch(&rec)
		})
		s.addTimer(t)
		armed++
	}
	s.logger.Printf("scheduler: hour %s: %d record(s), %d timer(s) armed", hour, len(recs), armed)
}

// SweepHour re-queries the current hour's pending set and dispatches
// whatever is still owed a reminder. The dispatcher's sent-flag check
// keeps this from double-sending.
func (s *Scheduler) SweepHour() {
	now := s.clock.Now()
	recs, err := s.store.PendingForHour(timeutil.HourPrefix(now), timeutil.FormatDate(now))
	if err != nil {
		s.logger.Printf("scheduler: sweep: %v", err)
		return
	}
	for i := range recs {
		s.notifier.Dispatch(&recs[i])
	}
	if len(recs) > 0 {
		s.logger.Printf("scheduler: sweep re-dispatched %d record(s)", len(recs))
	}
}

// MaterializeDay creates the new day's dose records for every active pill.
func (s *Scheduler) MaterializeDay() {
	date := timeutil.FormatDate(s.clock.Now())
	n, err := s.store.MaterializeDay(date)
	if err != nil {
		s.logger.Printf("scheduler: materialize %s: %v", date, err)
		return
	}
	s.logger.Printf("scheduler: materialized %d dose record(s) for %s", n, date)
}

// CloseEndedCourses completes prescriptions whose end date has passed and
// deactivates their pills.
func (s *Scheduler) CloseEndedCourses() {
	today := timeutil.FormatDate(s.clock.Now())
	ended, err := s.store.CompleteEndedPrescriptions(today)
	if err != nil {
		s.logger.Printf("scheduler: close ended courses: %v", err)
		return
	}
	if len(ended) > 0 {
		s.logger.Printf("scheduler: closed %d prescription(s)", len(ended))
	}
}

func (s *Scheduler) addTimer(t Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers = append(s.timers, t)
}

func (s *Scheduler) cancelTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
}

// leadTime converts a user's lead-minutes preference into a timer offset.
func leadTime(u *model.User) time.Duration {
	if u == nil || u.ReminderLeadMinutes <= 0 {
		return 0
	}
	return time.Duration(u.ReminderLeadMinutes) * time.Minute
}
