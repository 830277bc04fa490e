// Package report runs scheduled report tasks: render snapshots through an
// external command, validate the result, and deliver images and attachments
// to the configured push channels.
package report

import (
	"fmt"
	"time"

	"reportpush/pkg/config"
)

const (
	defaultRenderTimeout = 120 * time.Second
	defaultCheckRetries  = 3
	defaultCheckInterval = 10 * time.Second
	defaultPattern       = "*.png"
)

// Task is one report job with config defaults resolved.
type Task struct {
	Name          string
	Render        config.RenderConfig
	RenderTimeout time.Duration
	Pattern       string
	Target        string
	Check         CheckPolicy
	Attachment    config.AttachmentConfig
	Cleanup       bool
}

// CheckPolicy is the resolved post-render validation policy.
type CheckPolicy struct {
	Enabled       bool
	Command       []string
	Retries       int
	Interval      time.Duration
	NotifyMessage string
	NotifyUsers   []string
	WarningTarget string
}

// NewTask resolves one task config into a runnable task.
func NewTask(cfg config.TaskConfig) *Task {
	task := &Task{
		Name:          cfg.Name,
		Render:        cfg.Render,
		RenderTimeout: defaultRenderTimeout,
		Pattern:       defaultPattern,
		Target:        cfg.Schedule.Target,
		Attachment:    cfg.Attachment,
		Cleanup:       cfg.Cleanup,
	}

	if cfg.Render.TimeoutSeconds > 0 {
		task.RenderTimeout = time.Duration(cfg.Render.TimeoutSeconds) * time.Second
	}
	if cfg.Render.Pattern != "" {
		task.Pattern = cfg.Render.Pattern
	}

	task.Check = CheckPolicy{
		Enabled:       cfg.Check.Enabled,
		Command:       cfg.Check.Command,
		Retries:       defaultCheckRetries,
		Interval:      defaultCheckInterval,
		NotifyMessage: cfg.Check.NotifyMessage,
		NotifyUsers:   cfg.Check.NotifyUsers,
		WarningTarget: cfg.Check.WarningTarget,
	}
	if cfg.Check.Retries > 0 {
		task.Check.Retries = cfg.Check.Retries
	}
	if cfg.Check.IntervalSeconds > 0 {
		task.Check.Interval = time.Duration(cfg.Check.IntervalSeconds) * time.Second
	}
	if task.Check.NotifyMessage == "" {
		task.Check.NotifyMessage = fmt.Sprintf("report %s: data check failed", cfg.Name)
	}
	if task.Check.WarningTarget == "" {
		task.Check.WarningTarget = cfg.Schedule.Target
	}

	return task
}

// StageError tags a pipeline failure with the stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
