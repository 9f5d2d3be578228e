package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voyagen/tvvault/internal/models"
)

func testClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Second}
}

func TestDownload(t *testing.T) {
	body := strings.Repeat("#EXTINF line padding\n", 5000)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		_, _ = w.Write([]byte(body))
	}))
	defer ts.Close()

	var events []models.Progress
	got, err := Download(context.Background(), testClient(), ts.URL, "test-agent", func(p models.Progress) {
		events = append(events, p)
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if got != body {
		t.Fatalf("body mismatch: got %d bytes, want %d", len(got), len(body))
	}

	if len(events) == 0 {
		t.Fatal("expected progress events")
	}
	prev := -1
	for _, ev := range events {
		if ev.Percent == nil {
			t.Fatalf("expected percent on event %q", ev.Message)
		}
		if *ev.Percent < prev {
			t.Fatalf("progress went backwards: %d after %d", *ev.Percent, prev)
		}
		prev = *ev.Percent
	}
	if prev != 100 {
		t.Errorf("expected final percent 100, got %d", prev)
	}
}

func TestDownloadNoContentLength(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fl, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("flusher not supported")
		}
		// Flushing forces chunked encoding, so no length is declared.
		_, _ = w.Write([]byte("first chunk\n"))
		fl.Flush()
		_, _ = w.Write([]byte("second chunk\n"))
	}))
	defer ts.Close()

	var events []models.Progress
	got, err := Download(context.Background(), testClient(), ts.URL, "", func(p models.Progress) {
		events = append(events, p)
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if got != "first chunk\nsecond chunk\n" {
		t.Fatalf("unexpected body: %q", got)
	}
	for _, ev := range events {
		if ev.Percent != nil {
			t.Fatalf("expected no percent without content length, got %d", *ev.Percent)
		}
	}
}

func TestDownloadHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer ts.Close()

	_, err := Download(context.Background(), testClient(), ts.URL, "", nil)
	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
}

func TestDownloadUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // connection refused

	_, err := Download(context.Background(), testClient(), ts.URL, "", nil)
	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
}

func TestDownloadPanickingObserver(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4")
		_, _ = w.Write([]byte("body"))
	}))
	defer ts.Close()

	got, err := Download(context.Background(), testClient(), ts.URL, "", func(models.Progress) {
		panic("observer bug")
	})
	if err != nil {
		t.Fatalf("observer panic must not abort the download: %v", err)
	}
	if got != "body" {
		t.Fatalf("unexpected body: %q", got)
	}
}
