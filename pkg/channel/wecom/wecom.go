package wecom

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"reportpush/pkg/channel"
	"reportpush/pkg/config"
	"reportpush/pkg/media"
	"reportpush/pkg/wecom"
)

const channelName = "wecom"

// Notifier pushes report output to WeCom group robots, routing deliveries to
// webhook keys by target name.
type Notifier struct {
	cfg     config.WecomConfig
	client  *wecom.Client
	log     *slog.Logger
	nowFunc func() time.Time
}

// NewNotifier validates WeCom configuration and constructs a notifier.
func NewNotifier(cfg config.WecomConfig, log *slog.Logger) (*Notifier, error) {
	if len(cfg.Targets) == 0 {
		return nil, errors.New("channels.wecom.targets is required")
	}
	for name, key := range cfg.Targets {
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("channels.wecom.targets.%s: key is empty", name)
		}
	}
	if cfg.DefaultTarget != "" {
		if _, ok := cfg.Targets[cfg.DefaultTarget]; !ok {
			return nil, fmt.Errorf("channels.wecom.default_target %q is not a configured target", cfg.DefaultTarget)
		}
	}

	if log == nil {
		log = slog.Default()
	}

	return &Notifier{
		cfg:     cfg,
		client:  wecom.NewClient(cfg.BaseURL, log),
		log:     log.With("component", "channel.wecom"),
		nowFunc: time.Now,
	}, nil
}

// Name returns the channel identifier used in events and logs.
func (n *Notifier) Name() string {
	return channelName
}

// SendText posts a text message, carrying mentioned users through.
func (n *Notifier) SendText(ctx context.Context, target string, msg channel.Text) error {
	key, err := n.keyFor(target)
	if err != nil {
		return err
	}

	return n.client.SendText(ctx, key, msg.Content, msg.MentionedUsers)
}

// SendImage posts one snapshot as an image message.
func (n *Notifier) SendImage(ctx context.Context, target string, snap *media.Snapshot) error {
	if snap == nil {
		return errors.New("snapshot is required")
	}

	key, err := n.keyFor(target)
	if err != nil {
		return err
	}

	return n.client.SendImage(ctx, key, snap.Base64, snap.MD5)
}

// SendFile uploads the attachment under a date-stamped name and sends the
// resulting media id as a file message. Upload and send use the same key:
// a media id is only valid for the robot that created it.
func (n *Notifier) SendFile(ctx context.Context, target string, file channel.File) error {
	key, err := n.keyFor(target)
	if err != nil {
		return err
	}

	stamped := media.StampFileName(file.FileName, n.nowFunc().Format("2006-01-02"))
	upload, err := n.client.UploadMedia(ctx, key, wecom.MediaFile, stamped, bytes.NewReader(file.Content))
	if err != nil {
		return fmt.Errorf("upload %s: %w", file.FileName, err)
	}

	n.log.Info("Attachment uploaded", "file", stamped, "expires_at", upload.ExpiresAt)

	return n.client.SendFile(ctx, key, upload)
}

// keyFor resolves a target name to its webhook key, falling back to the
// configured default when target is empty.
func (n *Notifier) keyFor(target string) (string, error) {
	name := strings.TrimSpace(target)
	if name == "" {
		name = n.cfg.DefaultTarget
	}
	if name == "" {
		return "", errors.New("no target given and no default_target configured")
	}

	key, ok := n.cfg.Targets[name]
	if !ok {
		return "", fmt.Errorf("unknown wecom target %q", name)
	}

	return key, nil
}
