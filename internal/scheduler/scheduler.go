package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/review-agent/backend/pkg/logger"
)

const defaultTick = 30 * time.Second

type Schedule interface {
	Next(after time.Time) time.Time
}

// Daily fires once a day at Hour:Minute local time.
type Daily struct {
	Hour   int
	Minute int
}

func (d Daily) Next(after time.Time) time.Time {
	next := time.Date(after.Year(), after.Month(), after.Day(), d.Hour, d.Minute, 0, 0, after.Location())
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Weekly fires once a week on Weekday at Hour:Minute local time.
type Weekly struct {
	Weekday time.Weekday
	Hour    int
	Minute  int
}

func (w Weekly) Next(after time.Time) time.Time {
	next := time.Date(after.Year(), after.Month(), after.Day(), w.Hour, w.Minute, 0, 0, after.Location())
	next = next.AddDate(0, 0, (int(w.Weekday)-int(next.Weekday())+7)%7)
	if !next.After(after) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// ParseClock reads a 24h "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

type Job struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
	LastErr string
}

type job struct {
	Job
	schedule Schedule
	run      func(ctx context.Context) error
}

// Scheduler runs registered jobs on their schedules from a single
// goroutine. Jobs never overlap.
type Scheduler struct {
	tick time.Duration
	now  func() time.Time

	mu       sync.Mutex
	jobs     []*job
	stopCh   chan struct{}
	stopOnce sync.Once
}

func New() *Scheduler {
	return &Scheduler{
		tick:   defaultTick,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
}

func (s *Scheduler) Add(name string, schedule Schedule, run func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := &job{
		Job:      Job{Name: name, NextRun: schedule.Next(s.now())},
		schedule: schedule,
		run:      run,
	}
	s.jobs = append(s.jobs, j)
	logger.Info("Scheduled job added", zap.String("job", name), zap.Time("next_run", j.NextRun))
}

func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = j.Job
	}
	return out
}

// Start blocks until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	logger.Info("Scheduler started", zap.Int("jobs", len(s.Jobs())))
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Scheduler stopping")
			return
		case <-s.stopCh:
			logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.runDue(ctx, s.now())
		}
	}
}

// Stop halts the scheduler loop. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if now.Before(j.NextRun) {
			continue
		}
		logger.Info("Running scheduled job", zap.String("job", j.Name))
		start := time.Now()

		err := j.run(ctx)
		j.LastRun = now
		j.LastErr = ""
		if err != nil {
			j.LastErr = err.Error()
			logger.Error("Scheduled job failed", zap.String("job", j.Name), zap.Error(err))
		}
		j.NextRun = j.schedule.Next(now)
		logger.Info("Scheduled job finished",
			zap.String("job", j.Name),
			zap.Duration("duration", time.Since(start)),
			zap.Time("next_run", j.NextRun),
		)
	}
}
