package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"reportpush/pkg/bus"
	"reportpush/pkg/channel"
	"reportpush/pkg/media"
)

// Pipeline executes report tasks against a set of push channels.
type Pipeline struct {
	notifiers []channel.Notifier
	events    *bus.EventBus
	log       *slog.Logger

	// Test seams.
	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// NewPipeline wires the pipeline to its channels and event bus.
func NewPipeline(notifiers []channel.Notifier, events *bus.EventBus, log *slog.Logger) (*Pipeline, error) {
	if len(notifiers) == 0 {
		return nil, errors.New("at least one notifier is required")
	}
	if events == nil {
		events = bus.NewEventBus()
	}
	if log == nil {
		log = slog.Default()
	}

	return &Pipeline{
		notifiers: notifiers,
		events:    events,
		log:       log.With("component", "report.pipeline"),
		sleep:     sleepCtx,
		now:       time.Now,
	}, nil
}

// Run executes one task end to end and returns the first stage failure.
//
// Render and check failures send a warning text before aborting, matching
// the behavior expected by report consumers: silence means success.
func (p *Pipeline) Run(ctx context.Context, task *Task) error {
	runID := uuid.NewString()
	start := p.now()
	log := p.log.With("task", task.Name, "run_id", runID)

	log.Info("Task run started")
	p.publish(ctx, bus.Event{Type: bus.EventRunStarted, TaskName: task.Name, RunID: runID})

	err := p.runStages(ctx, task, runID, start, log)
	if err != nil {
		var staged *StageError
		stage := ""
		if errors.As(err, &staged) {
			stage = staged.Stage
		}
		log.Error("Task run failed", "stage", stage, "error", err)
		p.publish(ctx, bus.Event{
			Type:     bus.EventRunFailed,
			TaskName: task.Name,
			RunID:    runID,
			Stage:    stage,
			Error:    err.Error(),
		})
		return err
	}

	log.Info("Task run completed", "elapsed", p.now().Sub(start).Round(time.Millisecond))
	p.publish(ctx, bus.Event{Type: bus.EventRunCompleted, TaskName: task.Name, RunID: runID})
	return nil
}

func (p *Pipeline) runStages(ctx context.Context, task *Task, runID string, start time.Time, log *slog.Logger) error {
	if err := p.render(ctx, task); err != nil {
		p.warn(ctx, task, fmt.Sprintf("report %s: render failed, check the data source", task.Name))
		return stageErr("render", err)
	}

	if task.Check.Enabled {
		if err := p.check(ctx, task, log); err != nil {
			p.warn(ctx, task, task.Check.NotifyMessage)
			return stageErr("check", err)
		}
	}

	snapshots, err := p.collect(task, start)
	if err != nil {
		return stageErr("collect", err)
	}
	log.Info("Snapshots collected", "count", len(snapshots))

	if err := p.deliver(ctx, task, runID, snapshots, log); err != nil {
		return stageErr("deliver", err)
	}

	if task.Cleanup {
		p.cleanup(snapshots, log)
	}

	return nil
}

// render runs the task's render command under its timeout.
func (p *Pipeline) render(ctx context.Context, task *Task) error {
	renderCtx, cancel := context.WithTimeout(ctx, task.RenderTimeout)
	defer cancel()

	cmd := exec.CommandContext(renderCtx, task.Render.Command[0], task.Render.Command[1:]...)
	cmd.Dir = task.Render.Workdir

	output, err := cmd.CombinedOutput()
	if renderCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("render command timed out after %s", task.RenderTimeout)
	}
	if err != nil {
		return fmt.Errorf("render command: %w (output: %s)", err, truncateOutput(output))
	}

	return nil
}

// check runs the validation command with retries, re-rendering between
// attempts so a late data source still gets a chance to pass.
func (p *Pipeline) check(ctx context.Context, task *Task, log *slog.Logger) error {
	var lastErr error
	for attempt := 1; attempt <= task.Check.Retries; attempt++ {
		cmd := exec.CommandContext(ctx, task.Check.Command[0], task.Check.Command[1:]...)
		cmd.Dir = task.Render.Workdir

		output, err := cmd.CombinedOutput()
		if err == nil {
			log.Info("Data check passed", "attempt", attempt)
			return nil
		}

		lastErr = fmt.Errorf("check command: %w (output: %s)", err, truncateOutput(output))
		log.Warn("Data check failed", "attempt", attempt, "of", task.Check.Retries, "error", err)

		if attempt == task.Check.Retries {
			break
		}
		if err := p.sleep(ctx, task.Check.Interval); err != nil {
			return err
		}
		if err := p.render(ctx, task); err != nil {
			return fmt.Errorf("re-render before check retry: %w", err)
		}
	}

	return fmt.Errorf("after %d attempts: %w", task.Check.Retries, lastErr)
}

// collect gathers snapshot files written by this run, identified by
// modification time at or after the run start.
func (p *Pipeline) collect(task *Task, start time.Time) ([]string, error) {
	pattern := filepath.Join(task.Render.OutputDir, task.Pattern)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}

	// One second of slack covers coarse filesystem timestamps.
	cutoff := start.Add(-time.Second)

	fresh := make([]string, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		if info.ModTime().Before(cutoff) {
			continue
		}
		fresh = append(fresh, match)
	}

	if len(fresh) == 0 {
		return nil, fmt.Errorf("no snapshots matching %s produced by this run", pattern)
	}

	sort.Strings(fresh)
	return fresh, nil
}

// deliver sends each snapshot as an image, then the optional attachment as a
// file, on every channel. Each send retries with exponential backoff.
func (p *Pipeline) deliver(ctx context.Context, task *Task, runID string, snapshots []string, log *slog.Logger) error {
	for _, path := range snapshots {
		snap, err := media.LoadSnapshot(path)
		if err != nil {
			return err
		}

		for _, notifier := range p.notifiers {
			delivery := bus.Delivery{
				Channel:  notifier.Name(),
				Target:   task.Target,
				Kind:     "image",
				TaskName: task.Name,
				RunID:    runID,
				Detail:   snap.FileName,
			}

			err := withRetry(ctx, sendRetryLimit, p.sleep, func(ctx context.Context) error {
				return notifier.SendImage(ctx, task.Target, snap)
			})
			if err != nil {
				p.publishDelivery(ctx, bus.EventDeliveryFailed, delivery, err)
				return fmt.Errorf("send %s via %s: %w", snap.FileName, notifier.Name(), err)
			}

			p.publishDelivery(ctx, bus.EventDeliverySucceeded, delivery, nil)
			log.Info("Snapshot delivered", "channel", notifier.Name(), "file", snap.FileName, "size", strconv.FormatInt(snap.Size, 10))
		}
	}

	if !task.Attachment.Enabled {
		return nil
	}

	return p.deliverAttachment(ctx, task, runID, log)
}

func (p *Pipeline) deliverAttachment(ctx context.Context, task *Task, runID string, log *slog.Logger) error {
	content, err := os.ReadFile(task.Attachment.Path)
	if err != nil {
		return fmt.Errorf("read attachment: %w", err)
	}

	file := channel.File{FileName: filepath.Base(task.Attachment.Path), Content: content}

	for _, notifier := range p.notifiers {
		delivery := bus.Delivery{
			Channel:  notifier.Name(),
			Target:   task.Target,
			Kind:     "file",
			TaskName: task.Name,
			RunID:    runID,
			Detail:   file.FileName,
		}

		err := withRetry(ctx, sendRetryLimit, p.sleep, func(ctx context.Context) error {
			return notifier.SendFile(ctx, task.Target, file)
		})
		if err != nil {
			p.publishDelivery(ctx, bus.EventDeliveryFailed, delivery, err)
			return fmt.Errorf("send attachment via %s: %w", notifier.Name(), err)
		}

		p.publishDelivery(ctx, bus.EventDeliverySucceeded, delivery, nil)
		log.Info("Attachment delivered", "channel", notifier.Name(), "file", file.FileName)
	}

	return nil
}

// warn sends a failure notification to the task's warning target on every
// channel. Warning delivery is best effort.
func (p *Pipeline) warn(ctx context.Context, task *Task, message string) {
	msg := channel.Text{Content: message, MentionedUsers: task.Check.NotifyUsers}

	for _, notifier := range p.notifiers {
		if err := notifier.SendText(ctx, task.Check.WarningTarget, msg); err != nil {
			p.log.Error("Failed to send warning", "task", task.Name, "channel", notifier.Name(), "error", err)
		}
	}
}

// cleanup removes delivered snapshot files.
func (p *Pipeline) cleanup(snapshots []string, log *slog.Logger) {
	for _, path := range snapshots {
		if err := os.Remove(path); err != nil {
			log.Warn("Failed to remove snapshot", "file", path, "error", err)
			continue
		}
		log.Debug("Snapshot removed", "file", filepath.Base(path))
	}
}

func (p *Pipeline) publish(ctx context.Context, event bus.Event) {
	p.events.Publish(ctx, event)
}

func (p *Pipeline) publishDelivery(ctx context.Context, eventType bus.EventType, delivery bus.Delivery, err error) {
	event := bus.Event{
		Type:     eventType,
		TaskName: delivery.TaskName,
		RunID:    delivery.RunID,
		Stage:    "deliver",
		Payload: map[string]string{
			"channel": delivery.Channel,
			"target":  delivery.Target,
			"kind":    delivery.Kind,
			"detail":  delivery.Detail,
		},
	}
	if err != nil {
		event.Error = err.Error()
	}

	p.events.Publish(ctx, event)
}

func truncateOutput(output []byte) string {
	text := strings.TrimSpace(string(output))
	if len(text) > 512 {
		return text[:512] + "..."
	}
	return text
}
