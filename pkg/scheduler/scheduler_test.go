package scheduler

import (
	"sync"
	"testing"
	"time"
)

func newTestScheduler(t *testing.T, entries []Entry) (*Scheduler, *[]string) {
	t.Helper()

	var (
		mu    sync.Mutex
		fired []string
	)

	sched, err := New(entries, func(taskName string) {
		mu.Lock()
		defer mu.Unlock()
		fired = append(fired, taskName)
	}, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	return sched, &fired
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, func(string) {}, nil); err == nil {
		t.Fatal("expected error for empty entries")
	}

	entries := []Entry{{TaskName: "t", Times: []string{"08:00"}}}
	if _, err := New(entries, nil, nil); err == nil {
		t.Fatal("expected error for nil dispatch")
	}

	if _, err := New([]Entry{{TaskName: "t"}}, func(string) {}, nil); err == nil {
		t.Fatal("expected error for entry without trigger")
	}

	if _, err := New([]Entry{{TaskName: "t", Cron: "not a cron"}}, func(string) {}, nil); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestFireDueMatchesDailyTime(t *testing.T) {
	sched, fired := newTestScheduler(t, []Entry{
		{TaskName: "morning", Times: []string{"08:30"}},
		{TaskName: "evening", Times: []string{"17:30"}},
	})

	sched.now = func() time.Time {
		return time.Date(2026, 8, 25, 8, 30, 10, 0, time.Local)
	}

	sched.fireDue()

	if len(*fired) != 1 || (*fired)[0] != "morning" {
		t.Fatalf("fired = %v, want [morning]", *fired)
	}
}

func TestFireDueSuppressesDuplicateMinute(t *testing.T) {
	sched, fired := newTestScheduler(t, []Entry{
		{TaskName: "morning", Times: []string{"08:30"}},
	})

	sched.now = func() time.Time {
		return time.Date(2026, 8, 25, 8, 30, 10, 0, time.Local)
	}

	sched.fireDue()
	sched.fireDue()
	sched.fireDue()

	if len(*fired) != 1 {
		t.Fatalf("fired %d times, want 1", len(*fired))
	}
}

func TestFireDueRefiresOnLaterMinute(t *testing.T) {
	sched, fired := newTestScheduler(t, []Entry{
		{TaskName: "twice", Times: []string{"08:30", "17:30"}},
	})

	sched.now = func() time.Time {
		return time.Date(2026, 8, 25, 8, 30, 0, 0, time.Local)
	}
	sched.fireDue()

	sched.now = func() time.Time {
		return time.Date(2026, 8, 25, 17, 30, 0, 0, time.Local)
	}
	sched.fireDue()

	if len(*fired) != 2 {
		t.Fatalf("fired %d times, want 2", len(*fired))
	}
}

func TestFireDueRefiresNextDay(t *testing.T) {
	sched, fired := newTestScheduler(t, []Entry{
		{TaskName: "daily", Times: []string{"08:30"}},
	})

	sched.now = func() time.Time {
		return time.Date(2026, 8, 25, 8, 30, 0, 0, time.Local)
	}
	sched.fireDue()

	sched.now = func() time.Time {
		return time.Date(2026, 8, 26, 8, 30, 0, 0, time.Local)
	}
	sched.fireDue()

	if len(*fired) != 2 {
		t.Fatalf("fired %d times, want 2", len(*fired))
	}
}

func TestFireDueMatchesCron(t *testing.T) {
	sched, fired := newTestScheduler(t, []Entry{
		{TaskName: "cron-task", Cron: "30 8 * * *"},
	})

	sched.now = func() time.Time {
		return time.Date(2026, 8, 25, 8, 30, 0, 0, time.Local)
	}
	sched.fireDue()

	if len(*fired) != 1 || (*fired)[0] != "cron-task" {
		t.Fatalf("fired = %v, want [cron-task]", *fired)
	}

	sched.now = func() time.Time {
		return time.Date(2026, 8, 25, 8, 31, 0, 0, time.Local)
	}
	sched.fireDue()

	if len(*fired) != 1 {
		t.Fatalf("fired = %v, want no additional fire outside cron minute", *fired)
	}
}
