package channel

import (
	"context"

	"reportpush/pkg/media"
)

// Text is an outbound plain-text notification.
type Text struct {
	Content        string
	MentionedUsers []string
}

// File is an outbound file attachment.
type File struct {
	FileName string
	Content  []byte
}

// Notifier pushes report output to one external transport (for example the
// WeCom group robot). Target names how config routes a delivery; adapters
// that support only one destination may ignore it.
type Notifier interface {
	Name() string
	SendText(ctx context.Context, target string, msg Text) error
	SendImage(ctx context.Context, target string, snap *media.Snapshot) error
	SendFile(ctx context.Context, target string, file File) error
}
