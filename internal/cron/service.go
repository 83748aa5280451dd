// Package cron runs recurring jobs: scheduled workflows and periodic
// maintenance such as idle-terminal reaping.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"
)

// parser accepts standard 5-field expressions and descriptors (@every 5m).
var parser = robfigcron.NewParser(
	robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow | robfigcron.Descriptor,
)

// Parse validates expr and binds it to the IANA timezone tz (empty = local).
func Parse(expr, tz string) (robfigcron.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	if tz == "" {
		return sched, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return withLocation(sched, loc), nil
}

// NextRun returns the first activation of expr after from.
func NextRun(expr, tz string, from time.Time) (time.Time, error) {
	sched, err := Parse(expr, tz)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// Service owns one robfig scheduler and tracks entries by caller-chosen id.
type Service struct {
	mu      sync.Mutex
	robfig  *robfigcron.Cron
	entries map[string]robfigcron.EntryID
	running bool
}

func NewService() *Service {
	return &Service{
		robfig:  robfigcron.New(robfigcron.WithParser(parser)),
		entries: make(map[string]robfigcron.EntryID),
	}
}

// Schedule (re)registers fn under id. An existing entry with the same id is
// replaced.
func (s *Service) Schedule(id, expr, tz string, fn func()) error {
	sched, err := Parse(expr, tz)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
	s.entries[id] = s.robfig.Schedule(sched, robfigcron.FuncJob(func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("cron: job panicked", "id", id, "panic", r)
			}
		}()
		fn()
	}))
	slog.Debug("cron: scheduled", "id", id, "expr", expr)
	return nil
}

// Every registers fn to run at a fixed interval.
func (s *Service) Every(id string, interval time.Duration, fn func()) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}
	return s.Schedule(id, "@every "+interval.String(), "", fn)
}

// Remove unregisters id and reports whether it was scheduled.
func (s *Service) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Service) removeLocked(id string) bool {
	eid, ok := s.entries[id]
	if !ok {
		return false
	}
	s.robfig.Remove(eid)
	delete(s.entries, id)
	return true
}

// Next returns the next activation time of id.
func (s *Service) Next(id string) (time.Time, bool) {
	s.mu.Lock()
	eid, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next := s.robfig.Entry(eid).Next
	if next.IsZero() {
		// Not started yet: compute from the schedule directly.
		next = s.robfig.Entry(eid).Schedule.Next(time.Now())
	}
	return next, true
}

// IDs returns the scheduled ids, sorted.
func (s *Service) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Start runs the scheduler until ctx is cancelled, then waits for running
// jobs to finish.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("cron: already running")
	}
	s.running = true
	n := len(s.entries)
	s.mu.Unlock()

	s.robfig.Start()
	slog.Info("cron: started", "entries", n)

	<-ctx.Done()
	<-s.robfig.Stop().Done()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return ctx.Err()
}

// locSchedule evaluates a schedule in a fixed location.
type locSchedule struct {
	inner robfigcron.Schedule
	loc   *time.Location
}

func (l locSchedule) Next(t time.Time) time.Time {
	return l.inner.Next(t.In(l.loc))
}

func withLocation(s robfigcron.Schedule, loc *time.Location) robfigcron.Schedule {
	return locSchedule{inner: s, loc: loc}
}
