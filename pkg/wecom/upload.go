package wecom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// MediaType selects the upload_media type parameter.
type MediaType string

const (
	MediaVoice MediaType = "voice"
	MediaFile  MediaType = "file"
)

// MediaValidity is how long the server keeps an uploaded media id.
const MediaValidity = 72 * time.Hour

// MediaUpload is the handle returned by UploadMedia.
//
// The id is opaque, scoped to the key that uploaded it, and unusable after
// ExpiresAt. Callers must not cache it past the validity window.
type MediaUpload struct {
	ID        string
	Type      MediaType
	Key       string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the handle is past its validity window at now.
func (u *MediaUpload) Expired(now time.Time) bool {
	if u == nil || u.ExpiresAt.IsZero() {
		return false
	}
	return now.After(u.ExpiresAt)
}

// UploadMedia posts one file as the "media" multipart part and returns the
// short-lived media id handle.
func (c *Client) UploadMedia(ctx context.Context, key string, mediaType MediaType, fileName string, content io.Reader) (*MediaUpload, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("webhook key is required")
	}
	if mediaType != MediaVoice && mediaType != MediaFile {
		return nil, fmt.Errorf("unsupported media type %q (voice or file)", mediaType)
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, errors.New("file name is required")
	}

	raw, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("read upload content: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("upload content is empty")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(
		`form-data; name="media"; filename=%s; filelength=%d`,
		strconv.Quote(fileName), len(raw)))
	header.Set("Content-Type", contentTypeFor(fileName))

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create media part: %w", err)
	}
	if _, err := part.Write(raw); err != nil {
		return nil, fmt.Errorf("write media part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finish multipart body: %w", err)
	}

	endpoint := c.baseURL + "/upload_media?key=" + url.QueryEscape(key) + "&type=" + string(mediaType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}
	defer resp.Body.Close()

	decoded, err := decodeUploadResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}

	createdAt := time.Now()
	if epoch, err := strconv.ParseInt(strings.TrimSpace(decoded.CreatedAt), 10, 64); err == nil && epoch > 0 {
		createdAt = time.Unix(epoch, 0)
	}

	upload := &MediaUpload{
		ID:        decoded.MediaID,
		Type:      mediaType,
		Key:       key,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(MediaValidity),
	}

	c.log.Debug("Media uploaded", "type", string(mediaType), "file", fileName, "expires_at", upload.ExpiresAt)
	return upload, nil
}

func decodeUploadResponse(resp *http.Response) (*uploadResponse, error) {
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var decoded uploadResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if decoded.ErrCode != 0 {
		return nil, &APIError{Code: decoded.ErrCode, Msg: decoded.ErrMsg}
	}
	if strings.TrimSpace(decoded.MediaID) == "" {
		return nil, errors.New("response is missing media_id")
	}

	return &decoded, nil
}

// contentTypeFor guesses the part content type from the file extension.
func contentTypeFor(fileName string) string {
	if byExt := mime.TypeByExtension(filepath.Ext(fileName)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}
