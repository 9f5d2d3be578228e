package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/voyagen/tvvault/internal/models"
)

// readChunkSize is the buffer size for incremental body reads. Small enough
// to give useful progress granularity on slow links.
const readChunkSize = 32 * 1024

// Download issues a streaming GET for url and reads the body in chunks,
// reporting byte-level progress as a percentage of the declared content
// length. When the server declares no length the percent is omitted.
// The concatenated body is returned as UTF-8 text.
func Download(ctx context.Context, client *http.Client, url, userAgent string, onProgress models.ProgressFunc) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &DownloadError{Err: fmt.Errorf("NewRequest: %w", err)}
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &DownloadError{Err: fmt.Errorf("Do: %w", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &DownloadError{Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	contentLength := resp.ContentLength
	var body bytes.Buffer
	if contentLength > 0 {
		body.Grow(int(contentLength))
	}

	buf := make([]byte, readChunkSize)
	var received int64
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			body.Write(buf[:n])
			received += int64(n)
			if contentLength > 0 {
				pct := int(math.Round(float64(received) / float64(contentLength) * 100))
				onProgress.Emit(fmt.Sprintf("Downloading playlist: %d%%", pct), models.Pct(pct))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", &DownloadError{Err: fmt.Errorf("read body: %w", err)}
		}
	}
	return body.String(), nil
}
