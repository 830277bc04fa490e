package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"reportpush/pkg/bus"
	"reportpush/pkg/channel"
	"reportpush/pkg/config"
	"reportpush/pkg/report"
	"reportpush/pkg/scheduler"
)

// Service is the serve-mode daemon: it owns the channels, the report
// pipeline, one runner per task, the scheduler, and the status server.
type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	events   *bus.EventBus
	pipeline *report.Pipeline
	sched    *scheduler.Scheduler
	channels []channel.Notifier
	runners  map[string]*taskRunner

	mu            sync.RWMutex
	startedAt     time.Time
	runCtx        context.Context
	schedulerUp   bool
	channelStates map[string]ChannelState
	taskStates    map[string]TaskState
}

// taskRunner serializes runs of one task: a task never overlaps itself,
// while distinct tasks run concurrently.
type taskRunner struct {
	task  *report.Task
	runMu sync.Mutex
}

type ChannelState struct {
	Configured bool `json:"configured"`
}

type TaskState struct {
	RunID         string `json:"run_id,omitempty"`
	LastStartedAt string `json:"last_started_at,omitempty"`
	LastResult    string `json:"last_result,omitempty"`
	Stage         string `json:"stage,omitempty"`
	Error         string `json:"error,omitempty"`
	Deliveries    int    `json:"deliveries"`
}

// NewService wires channels, pipeline, runners, and scheduler from config.
func NewService(cfg *config.Config, notifiers []channel.Notifier, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(notifiers) == 0 {
		return nil, errors.New("at least one channel notifier is required")
	}
	if len(cfg.Tasks) == 0 {
		return nil, errors.New("at least one task is required")
	}
	if log == nil {
		log = slog.Default()
	}

	events := bus.NewEventBus()

	pipeline, err := report.NewPipeline(notifiers, events, log)
	if err != nil {
		events.Close()
		return nil, fmt.Errorf("initialize pipeline: %w", err)
	}

	svc := &Service{
		cfg:           cfg,
		log:           log.With("component", "service"),
		events:        events,
		pipeline:      pipeline,
		channels:      notifiers,
		runners:       make(map[string]*taskRunner, len(cfg.Tasks)),
		channelStates: make(map[string]ChannelState, len(notifiers)),
		taskStates:    make(map[string]TaskState, len(cfg.Tasks)),
	}

	entries := make([]scheduler.Entry, 0, len(cfg.Tasks))
	for _, taskCfg := range cfg.Tasks {
		task := report.NewTask(taskCfg)
		svc.runners[task.Name] = &taskRunner{task: task}
		svc.taskStates[task.Name] = TaskState{}
		entries = append(entries, scheduler.Entry{
			TaskName: task.Name,
			Times:    taskCfg.Schedule.Times,
			Cron:     taskCfg.Schedule.Cron,
		})
	}

	sched, err := scheduler.New(entries, svc.dispatch, log)
	if err != nil {
		events.Close()
		return nil, fmt.Errorf("initialize scheduler: %w", err)
	}
	svc.sched = sched

	for _, notifier := range notifiers {
		svc.channelStates[notifier.Name()] = ChannelState{Configured: true}
	}

	return svc, nil
}

// Run starts the status server, the event consumer, and the scheduler, then
// blocks until the context is cancelled or a component fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.runCtx = ctx
	s.mu.Unlock()

	serverErrors := make(chan error, 1)
	go s.runStatusServer(ctx, serverErrors)

	eventCh, unsubscribe := s.events.Subscribe(ctx, 64)
	defer unsubscribe()
	go s.consumeEvents(eventCh)

	s.mu.Lock()
	s.schedulerUp = true
	s.mu.Unlock()

	schedErrors := make(chan error, 1)
	go func() {
		err := s.sched.Run(ctx)
		s.mu.Lock()
		s.schedulerUp = false
		s.mu.Unlock()
		if err != nil && !errors.Is(err, context.Canceled) {
			schedErrors <- fmt.Errorf("run scheduler: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.events.Close()
		return nil
	case err := <-serverErrors:
		s.events.Close()
		return err
	case err := <-schedErrors:
		s.events.Close()
		return err
	}
}

// RunTask executes one task by name, serialized against other runs of the
// same task. Used by both the scheduler dispatch and the run command.
func (s *Service) RunTask(ctx context.Context, name string) error {
	runner, ok := s.runners[name]
	if !ok {
		return fmt.Errorf("unknown task %q", name)
	}

	runner.runMu.Lock()
	defer runner.runMu.Unlock()

	return s.pipeline.Run(ctx, runner.task)
}

// TaskNames returns the configured task names.
func (s *Service) TaskNames() []string {
	names := make([]string, 0, len(s.runners))
	for name := range s.runners {
		names = append(names, name)
	}
	return names
}

// dispatch is the scheduler callback; it hands the run to a goroutine so the
// tick loop never blocks on a slow task. Runs inherit the service run context
// so shutdown aborts in-flight renders and sends.
func (s *Service) dispatch(taskName string) {
	s.mu.RLock()
	ctx := s.runCtx
	s.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		if err := s.RunTask(ctx, taskName); err != nil {
			s.log.Error("Scheduled run failed", "task", taskName, "error", err)
		}
	}()
}

// consumeEvents folds bus events into the status snapshot.
func (s *Service) consumeEvents(events <-chan bus.Event) {
	for event := range events {
		s.mu.Lock()
		state := s.taskStates[event.TaskName]
		switch event.Type {
		case bus.EventRunStarted:
			state.RunID = event.RunID
			state.LastStartedAt = event.At.Format(time.RFC3339)
			state.LastResult = "running"
			state.Stage = ""
			state.Error = ""
		case bus.EventRunCompleted:
			state.LastResult = "ok"
			state.Stage = ""
			state.Error = ""
		case bus.EventRunFailed:
			state.LastResult = "failed"
			state.Stage = event.Stage
			state.Error = event.Error
		case bus.EventDeliverySucceeded:
			state.Deliveries++
		case bus.EventDeliveryFailed:
			// Terminal delivery failures surface through run_failed.
		}
		if event.TaskName != "" {
			s.taskStates[event.TaskName] = state
		}
		s.mu.Unlock()
	}
}
