package fetcher

import "fmt"

// DownloadError signals a network or HTTP failure while fetching a playlist.
type DownloadError struct {
	Err error
}

func (e *DownloadError) Error() string { return fmt.Sprintf("download: %v", e.Err) }
func (e *DownloadError) Unwrap() error { return e.Err }

// ParseError signals structurally invalid playlist text — no bounded set of
// entries could be identified at all. Per-entry anomalies never raise it.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }
