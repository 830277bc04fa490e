package media

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// MaxImageSize is the webhook limit on decoded image bytes (2MB).
const MaxImageSize = 2 * 1024 * 1024

// imageExts maps file extensions to MIME types accepted by the webhook.
var imageExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// Snapshot is one report image prepared for webhook delivery.
//
// Base64 holds the encoded raw bytes and MD5 the lowercase hex digest of the
// same raw bytes, matching what the receiver validates.
type Snapshot struct {
	FileName  string
	MediaType string
	Size      int64
	Base64    string
	MD5       string
}

// LoadSnapshot reads an image file and produces its sendable payload.
//
// The file must sniff as JPEG or PNG and decode to at most MaxImageSize
// bytes; the receiver rejects anything else.
func LoadSnapshot(path string) (*Snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	fileName := filepath.Base(path)
	if info.Size() == 0 {
		return nil, fmt.Errorf("snapshot %s: empty file", fileName)
	}
	if info.Size() > MaxImageSize {
		return nil, fmt.Errorf("snapshot %s: %.1f MB exceeds the %d MB image limit",
			fileName, float64(info.Size())/(1024*1024), MaxImageSize/(1024*1024))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}

	mediaType, err := detectImageType(fileName, data)
	if err != nil {
		return nil, err
	}

	digest := md5.Sum(data)

	return &Snapshot{
		FileName:  fileName,
		MediaType: mediaType,
		Size:      info.Size(),
		Base64:    base64.StdEncoding.EncodeToString(data),
		MD5:       hex.EncodeToString(digest[:]),
	}, nil
}

// detectImageType resolves the MIME type from content, falling back on the
// extension map only when both agree the file is a supported image.
func detectImageType(fileName string, data []byte) (string, error) {
	sniffed := http.DetectContentType(data)
	if sniffed == "image/jpeg" || sniffed == "image/png" {
		return sniffed, nil
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if _, known := imageExts[ext]; known {
		return "", fmt.Errorf("snapshot %s: content is %s, not a JPEG or PNG image", fileName, sniffed)
	}

	return "", fmt.Errorf("snapshot %s: unsupported image type %s (JPEG and PNG only)", fileName, sniffed)
}

// StampFileName inserts a date suffix before the extension, the form the
// upload endpoint receives: report.xlsx -> report_2026-01-02.xlsx.
func StampFileName(fileName string, date string) string {
	ext := filepath.Ext(fileName)
	name := strings.TrimSuffix(fileName, ext)
	return name + "_" + date + ext
}
