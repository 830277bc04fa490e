// Package scheduler fires report tasks at their configured daily times or
// cron expressions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// Entry is one task's trigger definition.
type Entry struct {
	TaskName string
	Times    []string // daily "HH:MM" wall-clock triggers
	Cron     string   // optional five-field cron expression
}

// Dispatch receives the name of a task due to run. Implementations must not
// block: the scheduler calls it from its tick loop.
type Dispatch func(taskName string)

// Scheduler checks entries against the wall clock and dispatches due tasks
// at most once per minute each.
type Scheduler struct {
	entries  []Entry
	dispatch Dispatch
	log      *slog.Logger
	gron     *gronx.Gronx

	tick time.Duration
	now  func() time.Time

	mu        sync.Mutex
	lastFired map[string]string // task name -> dated minute of last fire
}

// New validates entries and constructs a scheduler.
func New(entries []Entry, dispatch Dispatch, log *slog.Logger) (*Scheduler, error) {
	if len(entries) == 0 {
		return nil, errors.New("at least one schedule entry is required")
	}
	if dispatch == nil {
		return nil, errors.New("dispatch is required")
	}
	if log == nil {
		log = slog.Default()
	}

	gron := gronx.New()
	for _, entry := range entries {
		if strings.TrimSpace(entry.TaskName) == "" {
			return nil, errors.New("schedule entry has no task name")
		}
		if len(entry.Times) == 0 && strings.TrimSpace(entry.Cron) == "" {
			return nil, fmt.Errorf("task %s: schedule entry has no trigger", entry.TaskName)
		}
		if expr := strings.TrimSpace(entry.Cron); expr != "" && !gron.IsValid(expr) {
			return nil, fmt.Errorf("task %s: invalid cron expression %q", entry.TaskName, expr)
		}
	}

	return &Scheduler{
		entries:   entries,
		dispatch:  dispatch,
		log:       log.With("component", "scheduler"),
		gron:      gron,
		tick:      15 * time.Second,
		now:       time.Now,
		lastFired: make(map[string]string, len(entries)),
	}, nil
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("Scheduler started", "entries", len(s.entries))

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.fireDue()
		}
	}
}

// fireDue dispatches every entry matching the current minute, suppressing
// duplicate fires within that minute.
func (s *Scheduler) fireDue() {
	now := s.now()
	minuteKey := now.Format("15:04")
	// Dedup on the dated minute so a daily trigger fires again tomorrow.
	firedKey := now.Format("2006-01-02 15:04")

	for _, entry := range s.entries {
		if !s.due(entry, now, minuteKey) {
			continue
		}

		s.mu.Lock()
		already := s.lastFired[entry.TaskName] == firedKey
		if !already {
			s.lastFired[entry.TaskName] = firedKey
		}
		s.mu.Unlock()

		if already {
			continue
		}

		s.log.Info("Task due", "task", entry.TaskName, "at", minuteKey)
		s.dispatch(entry.TaskName)
	}
}

func (s *Scheduler) due(entry Entry, now time.Time, minuteKey string) bool {
	if slices.Contains(entry.Times, minuteKey) {
		return true
	}

	expr := strings.TrimSpace(entry.Cron)
	if expr == "" {
		return false
	}

	due, err := s.gron.IsDue(expr, now)
	if err != nil {
		s.log.Error("Cron evaluation failed", "task", entry.TaskName, "error", err)
		return false
	}

	return due
}
