package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voyagen/tvvault/internal/fetcher"
	"github.com/voyagen/tvvault/internal/models"
	"github.com/voyagen/tvvault/internal/store"
	"github.com/voyagen/tvvault/internal/xtream"
)

// fakeStore records writes in memory for pipeline tests.
type fakeStore struct {
	saved      []models.Credentials
	catalog    []models.Category
	replaced   bool
	replaceErr error
	saveErr    error
}

func (f *fakeStore) ReplaceCatalog(_ context.Context, categories []models.Category, onProgress models.ProgressFunc) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	onProgress.Emit("Saving categories: 100%", models.Pct(100))
	f.catalog = categories
	f.replaced = true
	return nil
}

func (f *fakeStore) ListCategoriesByKind(_ context.Context, kind models.Kind) ([]models.Category, error) {
	var out []models.Category
	for _, c := range f.catalog {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetCategoryWithItems(_ context.Context, categoryID int64) (*models.Category, error) {
	for i := range f.catalog {
		if f.catalog[i].ID == categoryID {
			return &f.catalog[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) SaveAccount(_ context.Context, creds models.Credentials) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, creds)
	return nil
}

func (f *fakeStore) GetAccount(_ context.Context) (*models.Credentials, error) {
	if len(f.saved) == 0 {
		return nil, store.ErrNotFound
	}
	return &f.saved[len(f.saved)-1], nil
}

const newsPlaylist = `#EXTM3U
#EXTINF:-1 tvg-name="CNN" tvg-logo="http://logos/cnn.png" group-title="News",CNN
http://host/live/user/pass/1.ts
#EXTINF:-1 tvg-name="BBC" group-title="News",BBC
http://host/live/user/pass/2.ts
`

// newProvider fakes an Xtream provider: player_api.php and get.php.
func newProvider(t *testing.T, authFlag int, playlist string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/player_api.php", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"user_info":{"username":%q,"auth":%d,"status":"Active"},"server_info":{"url":"host"}}`,
			r.URL.Query().Get("username"), authFlag)
	})
	mux.HandleFunc("/get.php", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(playlist))
	})
	return httptest.NewServer(mux)
}

func refreshDeps() (*xtream.Client, *http.Client) {
	return xtream.NewClient("test", 5*time.Second), &http.Client{Timeout: 5 * time.Second}
}

func TestRefreshSuccess(t *testing.T) {
	ts := newProvider(t, 1, newsPlaylist)
	defer ts.Close()

	s := &fakeStore{}
	creds := models.Credentials{Username: "u", Password: "p", Server: ts.URL}
	xc, hc := refreshDeps()

	var statuses []Status
	err := Refresh(context.Background(), s, xc, hc, "test", creds, func(st Status) {
		statuses = append(statuses, st)
	})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if len(s.saved) != 1 || s.saved[0] != creds {
		t.Errorf("credentials not stored: %+v", s.saved)
	}
	if !s.replaced {
		t.Fatal("catalog was not persisted")
	}
	if len(s.catalog) != 1 {
		t.Fatalf("expected 1 category, got %d", len(s.catalog))
	}
	news := s.catalog[0]
	if news.Name != "News" || news.Kind != models.KindLive {
		t.Errorf("unexpected category: %+v", news)
	}
	if len(news.Items) != 2 || news.Items[0].Name != "CNN" || news.Items[1].Name != "BBC" {
		t.Errorf("unexpected items: %+v", news.Items)
	}
	if news.Items[0].URL != "http://host/live/user/pass/1.ts" {
		t.Errorf("URL not preserved: %s", news.Items[0].URL)
	}

	if len(statuses) == 0 {
		t.Fatal("expected status events")
	}
	final := statuses[len(statuses)-1]
	if !final.Success || final.InProgress || final.Message != "Data refresh complete" {
		t.Errorf("unexpected final status: %+v", final)
	}
	for _, st := range statuses[:len(statuses)-1] {
		if st.Success || !st.InProgress {
			t.Errorf("intermediate status must be in-progress: %+v", st)
		}
	}
}

func TestRefreshAuthGate(t *testing.T) {
	ts := newProvider(t, 0, newsPlaylist)
	defer ts.Close()

	s := &fakeStore{}
	creds := models.Credentials{Username: "u", Password: "bad", Server: ts.URL}
	xc, hc := refreshDeps()

	var statuses []Status
	err := Refresh(context.Background(), s, xc, hc, "test", creds, func(st Status) {
		statuses = append(statuses, st)
	})

	var authErr *xtream.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if len(s.saved) != 0 {
		t.Error("credentials must not be stored on failed validation")
	}
	if s.replaced {
		t.Error("nothing downstream may run after a failed validation")
	}

	final := statuses[len(statuses)-1]
	if final.Success || final.InProgress {
		t.Errorf("unexpected final status: %+v", final)
	}
}

func TestRefreshDownloadFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/player_api.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"user_info":{"auth":1},"server_info":{}}`)
	})
	mux.HandleFunc("/get.php", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	s := &fakeStore{}
	xc, hc := refreshDeps()
	err := Refresh(context.Background(), s, xc, hc, "test",
		models.Credentials{Username: "u", Password: "p", Server: ts.URL}, nil)

	var dlErr *fetcher.DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
	if s.replaced {
		t.Error("catalog must not be touched after a failed download")
	}
}

func TestRefreshPersistFailure(t *testing.T) {
	ts := newProvider(t, 1, newsPlaylist)
	defer ts.Close()

	s := &fakeStore{replaceErr: &store.PersistError{Err: errors.New("disk full")}}
	xc, hc := refreshDeps()

	var statuses []Status
	err := Refresh(context.Background(), s, xc, hc, "test",
		models.Credentials{Username: "u", Password: "p", Server: ts.URL},
		func(st Status) { statuses = append(statuses, st) })

	var persistErr *store.PersistError
	if !errors.As(err, &persistErr) {
		t.Fatalf("expected PersistError, got %v", err)
	}
	final := statuses[len(statuses)-1]
	if final.Success || final.InProgress {
		t.Errorf("unexpected final status: %+v", final)
	}
}

func TestRefreshPanickingObserver(t *testing.T) {
	ts := newProvider(t, 1, newsPlaylist)
	defer ts.Close()

	s := &fakeStore{}
	xc, hc := refreshDeps()
	err := Refresh(context.Background(), s, xc, hc, "test",
		models.Credentials{Username: "u", Password: "p", Server: ts.URL},
		func(Status) { panic("observer bug") })
	if err != nil {
		t.Fatalf("observer panic must not abort the pipeline: %v", err)
	}
	if !s.replaced {
		t.Error("catalog was not persisted")
	}
}

func TestStateString(t *testing.T) {
	want := map[State]string{
		StateIdle:        "idle",
		StateValidating:  "validating",
		StateDownloading: "downloading",
		StateParsing:     "parsing",
		StatePersisting:  "persisting",
		StateComplete:    "complete",
		StateFailed:      "failed",
		State(99):        "unknown",
	}
	for st, s := range want {
		if st.String() != s {
			t.Errorf("State(%d).String() = %s, want %s", st, st.String(), s)
		}
	}
}
