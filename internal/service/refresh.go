package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/voyagen/tvvault/internal/fetcher"
	"github.com/voyagen/tvvault/internal/models"
	"github.com/voyagen/tvvault/internal/store"
	"github.com/voyagen/tvvault/internal/xtream"
)

// Refresh runs the full ingestion pipeline for creds:
// validate account → download playlist → parse → categorize → persist.
// Each stage transition and each stage's progress is reported to observe.
// The first failing stage stops the pipeline; nothing downstream runs.
// On success the stored catalog is the complete new data set; on failure
// it is exactly what it was before.
func Refresh(ctx context.Context, s store.Store, xc *xtream.Client, hc *http.Client, userAgent string, creds models.Credentials, observe StatusFunc) error {
	p := &pipeline{observe: observe}

	p.advance(StateValidating, "Verifying credentials...")
	if _, err := xc.AccountInfo(ctx, creds); err != nil {
		return p.fail(err)
	}
	// Credentials proved valid: keep them for future sessions.
	if err := s.SaveAccount(ctx, creds); err != nil {
		return p.fail(fmt.Errorf("save account: %w", err))
	}

	p.advance(StateDownloading, "Fetching playlist...")
	text, err := fetcher.Download(ctx, hc, creds.PlaylistURL(), userAgent, p.progress)
	if err != nil {
		return p.fail(err)
	}

	p.advance(StateParsing, "Parsing playlist...")
	entries, err := fetcher.ParsePlaylist(strings.NewReader(text))
	if err != nil {
		return p.fail(err)
	}
	categories := Categorize(entries)

	p.advance(StatePersisting, "Saving data to database...")
	if err := s.ReplaceCatalog(ctx, categories, p.progress); err != nil {
		return p.fail(err)
	}

	p.complete("Data refresh complete")
	return nil
}

// pipeline tracks the state machine and shields it from its observer.
type pipeline struct {
	observe StatusFunc
	state   State
}

func (p *pipeline) emit(st Status) {
	if p.observe == nil {
		return
	}
	defer func() { _ = recover() }()
	p.observe(st)
}

func (p *pipeline) advance(next State, message string) {
	p.state = next
	p.emit(Status{InProgress: true, Message: message})
}

// progress forwards component-level progress as in-progress statuses
// without changing state.
func (p *pipeline) progress(ev models.Progress) {
	p.emit(Status{InProgress: true, Message: ev.Message})
}

func (p *pipeline) complete(message string) {
	p.state = StateComplete
	p.emit(Status{Success: true, Message: message})
}

func (p *pipeline) fail(err error) error {
	p.state = StateFailed
	p.emit(Status{Message: err.Error()})
	return err
}
