// Package sweeper reconciles reservation status with the passage of
// time. A Sweeper is started and stopped explicitly by the process that
// owns it; each run completes elapsed stays, flags no-shows and sends
// check-in and review reminders.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/service"
	"github.com/iliyamo/hotel-reservation/internal/utils"
)

// Store lists the reservations each sweep acts on.
type Store interface {
	DueForCompletion(ctx context.Context, before time.Time) ([]model.Reservation, error)
	DueForNoShow(ctx context.Context, cutoff time.Time) ([]model.Reservation, error)
	ReminderTargets(ctx context.Context, from, to time.Time) ([]model.ReminderTarget, error)
	ReviewReminderTargets(ctx context.Context, from, to time.Time) ([]model.ReminderTarget, error)
}

// Transitioner applies the sweeper's status changes through the
// lifecycle rules.
type Transitioner interface {
	Complete(ctx context.Context, id uint64) (*model.Reservation, error)
	MarkNoShow(ctx context.Context, id uint64) (*model.Reservation, error)
}

const (
	noShowGrace    = 24 * time.Hour
	reminderLead   = 24 * time.Hour
	reminderSlack  = time.Hour
	dedupeTTL      = 72 * time.Hour
	runLockKey     = "sweeper:run"
	checkInKeyFmt  = "reminder:checkin:%d:%d"
	reviewKeyFmt   = "reminder:review:%d:%d"
	defaultEvery   = time.Hour
	defaultLockTTL = 50 * time.Minute
)

// Report summarizes one run. Errors collects failures of individual
// items; a failing item never stops the rest of the run.
type Report struct {
	Completed       int
	NoShows         int
	Reminders       int
	ReviewReminders int
	Errors          []error
}

type Sweeper struct {
	store    Store
	lc       Transitioner
	notifier service.Notifier
	dedupe   Deduper
	interval time.Duration
	lockTTL  time.Duration
	log      *logrus.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Config groups the collaborators of a Sweeper. Notifier may be nil, in
// which case reminders are skipped. Dedupe defaults to an in-memory
// deduper.
type Config struct {
	Store     Store
	Lifecycle Transitioner
	Notifier  service.Notifier
	Dedupe    Deduper
	Interval  time.Duration
	LockTTL   time.Duration
	Logger    *logrus.Logger
	Now       func() time.Time
}

func New(c Config) *Sweeper {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	if c.Dedupe == nil {
		c.Dedupe = NewMemoryDeduper(c.Now)
	}
	if c.Interval <= 0 {
		c.Interval = defaultEvery
	}
	if c.LockTTL <= 0 || c.LockTTL >= c.Interval {
		c.LockTTL = c.Interval - c.Interval/6
		if c.LockTTL <= 0 {
			c.LockTTL = defaultLockTTL
		}
	}
	return &Sweeper{
		store:    c.Store,
		lc:       c.Lifecycle,
		notifier: c.Notifier,
		dedupe:   c.Dedupe,
		interval: c.Interval,
		lockTTL:  c.LockTTL,
		log:      c.Logger,
		now:      c.Now,
	}
}

// Start runs a sweep immediately and then once per interval until ctx
// is cancelled or Stop is called. Calling Start on a running sweeper is
// a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.log.WithField("interval", s.interval.String()).Info("sweeper started")
}

// Stop cancels the loop and waits for an in-flight run to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick runs a sweep if no other instance holds the run lock.
func (s *Sweeper) tick(ctx context.Context) {
	ok, err := s.dedupe.Claim(ctx, runLockKey, s.lockTTL)
	if err != nil {
		s.log.WithError(err).Warn("sweeper: run lock unavailable, sweeping anyway")
	} else if !ok {
		s.log.Debug("sweeper: another instance holds the run lock")
		return
	}
	rep := s.RunOnce(ctx)
	fields := logrus.Fields{
		"completed":        rep.Completed,
		"no_shows":         rep.NoShows,
		"reminders":        rep.Reminders,
		"review_reminders": rep.ReviewReminders,
		"errors":           len(rep.Errors),
	}
	if len(rep.Errors) > 0 {
		s.log.WithFields(fields).Warn("sweep finished with errors")
		return
	}
	s.log.WithFields(fields).Info("sweep finished")
}

// RunOnce performs every sweep once. The sweeps are independent: a
// failure in one is recorded in the report and the others still run.
func (s *Sweeper) RunOnce(ctx context.Context) Report {
	var rep Report
	now := s.now().UTC()
	s.complete(ctx, now, &rep)
	s.noShows(ctx, now, &rep)
	s.checkInReminders(ctx, now, &rep)
	s.reviewReminders(ctx, now, &rep)
	return rep
}

// complete closes stays whose check-out day is over.
func (s *Sweeper) complete(ctx context.Context, now time.Time, rep *Report) {
	due, err := s.store.DueForCompletion(ctx, utils.Day(now))
	if err != nil {
		s.fail(rep, "completion sweep", err)
		return
	}
	for _, res := range due {
		if _, err := s.lc.Complete(ctx, res.ID); err != nil {
			if errors.Is(err, service.ErrInvalidTransition) {
				continue
			}
			s.fail(rep, fmt.Sprintf("complete reservation %d", res.ID), err)
			continue
		}
		rep.Completed++
	}
}

// noShows flags confirmed stays whose check-in passed more than a day
// ago without the guest checking in.
func (s *Sweeper) noShows(ctx context.Context, now time.Time, rep *Report) {
	due, err := s.store.DueForNoShow(ctx, now.Add(-noShowGrace))
	if err != nil {
		s.fail(rep, "no-show sweep", err)
		return
	}
	for _, res := range due {
		if _, err := s.lc.MarkNoShow(ctx, res.ID); err != nil {
			if errors.Is(err, service.ErrInvalidTransition) {
				continue
			}
			s.fail(rep, fmt.Sprintf("mark reservation %d no-show", res.ID), err)
			continue
		}
		rep.NoShows++
	}
}

func (s *Sweeper) checkInReminders(ctx context.Context, now time.Time, rep *Report) {
	if s.notifier == nil {
		return
	}
	targets, err := s.store.ReminderTargets(ctx, now.Add(reminderLead-reminderSlack), now.Add(reminderLead+reminderSlack))
	if err != nil {
		s.fail(rep, "check-in reminder sweep", err)
		return
	}
	rep.Reminders += s.remind(ctx, targets, model.NotifyCheckInReminder, checkInKeyFmt, rep)
}

func (s *Sweeper) reviewReminders(ctx context.Context, now time.Time, rep *Report) {
	if s.notifier == nil {
		return
	}
	targets, err := s.store.ReviewReminderTargets(ctx, now.Add(-reminderLead-reminderSlack), now.Add(-reminderLead+reminderSlack))
	if err != nil {
		s.fail(rep, "review reminder sweep", err)
		return
	}
	rep.ReviewReminders += s.remind(ctx, targets, model.NotifyReviewReminder, reviewKeyFmt, rep)
}

// remind notifies each target once. The claim is taken before sending,
// so a failed send is not retried by later runs.
func (s *Sweeper) remind(ctx context.Context, targets []model.ReminderTarget, kind model.NotificationKind, keyFmt string, rep *Report) int {
	sent := 0
	for _, t := range targets {
		key := fmt.Sprintf(keyFmt, t.ReservationID, t.HotelID)
		first, err := s.dedupe.Claim(ctx, key, dedupeTTL)
		if err != nil {
			s.fail(rep, "claim "+key, err)
			continue
		}
		if !first {
			continue
		}
		n := model.Notification{
			Kind:          kind,
			ReservationID: t.ReservationID,
			GuestID:       t.GuestID,
			GuestEmail:    t.GuestEmail,
			HotelID:       t.HotelID,
			HotelName:     t.HotelName,
			Status:        t.Status,
			CheckInDate:   t.CheckInDate,
			CheckOutDate:  t.CheckOutDate,
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.fail(rep, fmt.Sprintf("send %s for reservation %d", kind, t.ReservationID), err)
			continue
		}
		sent++
	}
	return sent
}

func (s *Sweeper) fail(rep *Report, what string, err error) {
	err = fmt.Errorf("%s: %w", what, err)
	rep.Errors = append(rep.Errors, err)
	s.log.WithError(err).Error("sweeper")
}
