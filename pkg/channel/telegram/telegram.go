package telegram

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"reportpush/pkg/channel"
	"reportpush/pkg/config"
	"reportpush/pkg/media"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"
const messagePreviewLimit = 240

// Notifier mirrors report deliveries to one Telegram chat.
//
// Push-only: the bot never polls for updates, it only sends.
type Notifier struct {
	cfg    config.TelegramConfig
	chatID int64
	bot    *telego.Bot
	log    *slog.Logger
}

// NewNotifier validates Telegram configuration and constructs a notifier.
func NewNotifier(cfg config.TelegramConfig, log *slog.Logger) (*Notifier, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	chatID, err := parseChatID(cfg.ChatID)
	if err != nil {
		return nil, err
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}

	return &Notifier{
		cfg:    cfg,
		chatID: chatID,
		bot:    bot,
		log:    log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in events and logs.
func (n *Notifier) Name() string {
	return channelName
}

// SendText sends a plain message; mentioned users are appended as trailing
// @-handles since Telegram has no mentioned_list equivalent.
func (n *Notifier) SendText(ctx context.Context, _ string, msg channel.Text) error {
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return errors.New("text content is required")
	}

	for _, user := range msg.MentionedUsers {
		if trimmed := strings.TrimSpace(user); trimmed != "" {
			content += "\n@" + trimmed
		}
	}

	n.log.Info("Sending message", "chat_id", n.chatID, "content", previewText(content))

	if _, err := n.bot.SendMessage(ctx, tu.Message(tu.ID(n.chatID), content)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	return nil
}

// SendImage sends one snapshot as a photo.
func (n *Notifier) SendImage(ctx context.Context, _ string, snap *media.Snapshot) error {
	if snap == nil {
		return errors.New("snapshot is required")
	}

	raw, err := base64.StdEncoding.DecodeString(snap.Base64)
	if err != nil {
		return fmt.Errorf("decode snapshot payload: %w", err)
	}

	photo := tu.Photo(tu.ID(n.chatID), tu.FileFromBytes(raw, snap.FileName))
	if _, err := n.bot.SendPhoto(ctx, photo); err != nil {
		return fmt.Errorf("send telegram photo: %w", err)
	}

	return nil
}

// SendFile sends an attachment as a document.
func (n *Notifier) SendFile(ctx context.Context, _ string, file channel.File) error {
	if len(file.Content) == 0 {
		return errors.New("file content is required")
	}

	document := tu.Document(tu.ID(n.chatID), tu.FileFromBytes(file.Content, file.FileName))
	if _, err := n.bot.SendDocument(ctx, document); err != nil {
		return fmt.Errorf("send telegram document: %w", err)
	}

	return nil
}

// parseChatID requires an explicit numeric chat id; push-only bots have no
// inbound message to learn it from.
func parseChatID(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, errors.New("channels.telegram.chat_id is required")
	}

	chatID, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("channels.telegram.chat_id must be numeric: %w", err)
	}

	return chatID, nil
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
