package wecom

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestUploadMediaMultipartShape(t *testing.T) {
	var (
		gotQuery    map[string]string
		gotPartName string
		gotFileName string
		gotPartType string
		gotBody     []byte
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"key":  r.URL.Query().Get("key"),
			"type": r.URL.Query().Get("type"),
		}

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/form-data" {
			t.Errorf("content type = %q (%v), want multipart/form-data", mediaType, err)
			http.Error(w, "bad content type", http.StatusBadRequest)
			return
		}

		reader := multipart.NewReader(r.Body, params["boundary"])
		part, err := reader.NextPart()
		if err != nil {
			t.Errorf("read part: %v", err)
			http.Error(w, "no part", http.StatusBadRequest)
			return
		}
		gotPartName = part.FormName()
		gotFileName = part.FileName()
		gotPartType = part.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(part)

		fmt.Fprintf(w, `{"errcode":0,"errmsg":"ok","type":"file","media_id":"MEDIA-1","created_at":"%d"}`, time.Now().Unix())
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, nil)
	upload, err := client.UploadMedia(context.Background(), "secret", MediaFile, "mytext.txt", strings.NewReader("mytext"))
	if err != nil {
		t.Fatalf("UploadMedia error: %v", err)
	}

	if gotQuery["key"] != "secret" {
		t.Fatalf("key = %q, want %q", gotQuery["key"], "secret")
	}
	if gotQuery["type"] != "file" {
		t.Fatalf("type = %q, want %q", gotQuery["type"], "file")
	}
	if gotPartName != "media" {
		t.Fatalf("part name = %q, want %q", gotPartName, "media")
	}
	if gotFileName != "mytext.txt" {
		t.Fatalf("file name = %q, want %q", gotFileName, "mytext.txt")
	}
	if gotPartType != "text/plain; charset=utf-8" {
		t.Fatalf("part content type = %q, want text/plain", gotPartType)
	}
	if string(gotBody) != "mytext" {
		t.Fatalf("part body = %q, want %q", gotBody, "mytext")
	}

	if upload.ID != "MEDIA-1" {
		t.Fatalf("media id = %q, want %q", upload.ID, "MEDIA-1")
	}
	if upload.Type != MediaFile {
		t.Fatalf("media type = %q, want file", upload.Type)
	}
	if upload.Key != "secret" {
		t.Fatalf("key = %q, want secret", upload.Key)
	}

	wantExpiry := upload.CreatedAt.Add(MediaValidity)
	if !upload.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expires at = %v, want created_at + 72h", upload.ExpiresAt)
	}
	if upload.Expired(time.Now()) {
		t.Fatal("fresh upload reported as expired")
	}
	if !upload.Expired(time.Now().Add(MediaValidity + time.Hour)) {
		t.Fatal("upload not reported expired past validity window")
	}
}

func TestUploadMediaRejectsBadInput(t *testing.T) {
	client := NewClient("http://127.0.0.1:0", nil)
	ctx := context.Background()

	if _, err := client.UploadMedia(ctx, "", MediaFile, "a.txt", strings.NewReader("x")); err == nil {
		t.Fatal("expected missing key error")
	}
	if _, err := client.UploadMedia(ctx, "k", MediaType("video"), "a.txt", strings.NewReader("x")); err == nil {
		t.Fatal("expected unsupported type error")
	}
	if _, err := client.UploadMedia(ctx, "k", MediaFile, " ", strings.NewReader("x")); err == nil {
		t.Fatal("expected missing file name error")
	}
	if _, err := client.UploadMedia(ctx, "k", MediaFile, "a.txt", strings.NewReader("")); err == nil {
		t.Fatal("expected empty content error")
	}
}

func TestUploadMediaAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errcode":40058,"errmsg":"invalid type"}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, nil)
	if _, err := client.UploadMedia(context.Background(), "k", MediaVoice, "a.amr", strings.NewReader("x")); err == nil {
		t.Fatal("expected api error")
	}
}

func TestUploadMediaMissingMediaID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, nil)
	if _, err := client.UploadMedia(context.Background(), "k", MediaFile, "a.txt", strings.NewReader("x")); err == nil {
		t.Fatal("expected missing media_id error")
	}
}
