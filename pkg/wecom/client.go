// Package wecom implements the WeCom group-robot webhook API: message
// sending (text, markdown, image, file) and temporary media upload.
package wecom

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the production webhook endpoint prefix.
const DefaultBaseURL = "https://qyapi.weixin.qq.com/cgi-bin/webhook"

// MaxImageSize is the decoded image payload limit enforced by the receiver.
const MaxImageSize = 2 * 1024 * 1024

const requestTimeout = 15 * time.Second

// APIError is a webhook-level failure (errcode != 0 in an HTTP 200 reply).
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wecom api error %d: %s", e.Code, e.Msg)
}

// Client talks to one webhook base URL; the per-target key is passed per call
// so one client can serve several robot groups.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient builds a webhook client. An empty baseURL selects production.
func NewClient(baseURL string, log *slog.Logger) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        log.With("component", "wecom.client"),
	}
}

// SendText posts a text message, optionally mentioning users by id.
func (c *Client) SendText(ctx context.Context, key string, content string, mentioned []string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("text content is required")
	}

	return c.postMessage(ctx, key, message{
		MsgType: "text",
		Text:    &textPayload{Content: content, MentionedList: mentioned},
	})
}

// SendMarkdown posts a markdown message.
func (c *Client) SendMarkdown(ctx context.Context, key string, content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("markdown content is required")
	}

	return c.postMessage(ctx, key, message{
		MsgType:  "markdown",
		Markdown: &markdownPayload{Content: content},
	})
}

// SendImage posts an image message from its base64 payload and raw-bytes MD5.
//
// The receiver validates the size limit, the JPEG/PNG requirement, and the
// checksum; checking here turns a remote rejection into a local error that
// names the problem.
func (c *Client) SendImage(ctx context.Context, key string, imageBase64 string, md5Hex string) error {
	raw, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		return fmt.Errorf("image payload is not valid base64: %w", err)
	}
	if len(raw) == 0 {
		return errors.New("image payload is empty")
	}
	if len(raw) > MaxImageSize {
		return fmt.Errorf("image payload is %d bytes, limit is %d", len(raw), MaxImageSize)
	}
	if sniffed := http.DetectContentType(raw); sniffed != "image/jpeg" && sniffed != "image/png" {
		return fmt.Errorf("image payload is %s, only JPEG and PNG are accepted", sniffed)
	}

	digest := md5.Sum(raw)
	if !strings.EqualFold(hex.EncodeToString(digest[:]), strings.TrimSpace(md5Hex)) {
		return errors.New("image md5 does not match decoded payload")
	}

	return c.postMessage(ctx, key, message{
		MsgType: "image",
		Image:   &imagePayload{Base64: imageBase64, MD5: strings.ToLower(strings.TrimSpace(md5Hex))},
	})
}

// SendFile posts a file message referencing a previously uploaded media id.
//
// The handle must come from the same key and still be inside its validity
// window; the server enforces both, the expiry is also checked locally.
func (c *Client) SendFile(ctx context.Context, key string, upload *MediaUpload) error {
	if upload == nil || strings.TrimSpace(upload.ID) == "" {
		return errors.New("media upload handle is required")
	}
	if upload.Expired(time.Now()) {
		return fmt.Errorf("media_id expired at %s", upload.ExpiresAt.Format(time.RFC3339))
	}

	return c.postMessage(ctx, key, message{
		MsgType: "file",
		File:    &filePayload{MediaID: upload.ID},
	})
}

func (c *Client) postMessage(ctx context.Context, key string, msg message) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("webhook key is required")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", msg.MsgType, err)
	}

	endpoint := c.baseURL + "/send?key=" + url.QueryEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send %s message: %w", msg.MsgType, err)
	}
	defer resp.Body.Close()

	if err := decodeAPIResponse(resp); err != nil {
		return fmt.Errorf("send %s message: %w", msg.MsgType, err)
	}

	c.log.Debug("Message sent", "msgtype", msg.MsgType)
	return nil
}

func decodeAPIResponse(resp *http.Response) error {
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var decoded apiResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if decoded.ErrCode != 0 {
		return &APIError{Code: decoded.ErrCode, Msg: decoded.ErrMsg}
	}

	return nil
}
