package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	envWecomWebhookKey  = "WECOM_WEBHOOK_KEY"
	envTelegramBotToken = "TELEGRAM_BOT_TOKEN"
	envTelegramChatID   = "TELEGRAM_CHAT_ID"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Channels ChannelsConfig `json:"channels"`
	Tasks    []TaskConfig   `json:"tasks"`
	Serve    ServeConfig    `json:"serve"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// ChannelsConfig stores push channel settings.
type ChannelsConfig struct {
	Wecom    WecomConfig    `json:"wecom"`
	Telegram TelegramConfig `json:"telegram"`
}

// WecomConfig configures the WeCom group-robot webhook channel.
//
// Targets map logical names (referenced by tasks) to webhook keys. The
// default target is used by tasks that do not name one explicitly.
type WecomConfig struct {
	Enabled       bool              `json:"enabled"`
	BaseURL       string            `json:"base_url,omitempty"`
	Targets       map[string]string `json:"targets"`
	DefaultTarget string            `json:"default_target,omitempty"`
}

// TelegramConfig configures the optional Telegram push channel.
type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  string `json:"chat_id"`
}

// TaskConfig describes one scheduled report task.
type TaskConfig struct {
	Name       string           `json:"name"`
	Render     RenderConfig     `json:"render"`
	Schedule   ScheduleConfig   `json:"schedule"`
	Check      CheckConfig      `json:"check,omitempty"`
	Attachment AttachmentConfig `json:"attachment,omitempty"`
	Cleanup    bool             `json:"cleanup,omitempty"`
}

// RenderConfig describes how a task produces its snapshot images.
type RenderConfig struct {
	Command        []string `json:"command"`
	Workdir        string   `json:"workdir,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
	OutputDir      string   `json:"output_dir"`
	Pattern        string   `json:"pattern,omitempty"`
}

// ScheduleConfig holds the trigger times and delivery target of a task.
//
// Times are daily "HH:MM" wall-clock triggers; Cron is a standard five-field
// expression. Either or both may be set.
type ScheduleConfig struct {
	Times  []string `json:"times,omitempty"`
	Cron   string   `json:"cron,omitempty"`
	Target string   `json:"target,omitempty"`
}

// CheckConfig configures post-render validation with retry.
type CheckConfig struct {
	Enabled         bool     `json:"enabled"`
	Command         []string `json:"command,omitempty"`
	Retries         int      `json:"retries,omitempty"`
	IntervalSeconds int      `json:"interval_seconds,omitempty"`
	NotifyMessage   string   `json:"notify_message,omitempty"`
	NotifyUsers     []string `json:"notify_users,omitempty"`
	WarningTarget   string   `json:"warning_target,omitempty"`
}

// AttachmentConfig configures the optional file sent after snapshots.
type AttachmentConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// ServeConfig configures status server bind settings for serve mode.
type ServeConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if key := strings.TrimSpace(os.Getenv(envWecomWebhookKey)); key != "" {
		if cfg.Channels.Wecom.Targets == nil {
			cfg.Channels.Wecom.Targets = make(map[string]string, 1)
		}
		target := strings.TrimSpace(cfg.Channels.Wecom.DefaultTarget)
		if target == "" {
			target = "default"
			cfg.Channels.Wecom.DefaultTarget = target
		}
		cfg.Channels.Wecom.Targets[target] = key
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}

	if chatID := strings.TrimSpace(os.Getenv(envTelegramChatID)); chatID != "" {
		cfg.Channels.Telegram.ChatID = chatID
	}
}

// validate rejects configurations the runtime cannot act on.
func validate(cfg *Config) error {
	names := make(map[string]struct{}, len(cfg.Tasks))
	for i := range cfg.Tasks {
		task := &cfg.Tasks[i]
		name := strings.TrimSpace(task.Name)
		if name == "" {
			return fmt.Errorf("tasks[%d]: name is required", i)
		}
		if _, dup := names[name]; dup {
			return fmt.Errorf("tasks[%d]: duplicate task name %q", i, name)
		}
		names[name] = struct{}{}

		if len(task.Render.Command) == 0 {
			return fmt.Errorf("task %s: render.command is required", name)
		}
		if strings.TrimSpace(task.Render.OutputDir) == "" {
			return fmt.Errorf("task %s: render.output_dir is required", name)
		}
		if len(task.Schedule.Times) == 0 && strings.TrimSpace(task.Schedule.Cron) == "" {
			return fmt.Errorf("task %s: schedule needs times or cron", name)
		}
		for _, at := range task.Schedule.Times {
			if !ValidClockTime(at) {
				return fmt.Errorf("task %s: invalid schedule time %q (want HH:MM)", name, at)
			}
		}
		if task.Check.Enabled && len(task.Check.Command) == 0 {
			return fmt.Errorf("task %s: check.command is required when check is enabled", name)
		}
		if task.Attachment.Enabled && strings.TrimSpace(task.Attachment.Path) == "" {
			return fmt.Errorf("task %s: attachment.path is required when attachment is enabled", name)
		}
	}

	return nil
}

// ValidClockTime reports whether input is a well-formed 24h "HH:MM" value.
func ValidClockTime(input string) bool {
	trimmed := strings.TrimSpace(input)
	if len(trimmed) != 5 || trimmed[2] != ':' {
		return false
	}

	hour, minute := 0, 0
	if _, err := fmt.Sscanf(trimmed, "%02d:%02d", &hour, &minute); err != nil {
		return false
	}

	return hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59
}

// ParseCSV splits comma-separated values and returns a trimmed compact slice.
func ParseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is REPORTPUSH_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("REPORTPUSH_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("REPORTPUSH_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
