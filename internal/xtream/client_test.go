package xtream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voyagen/tvvault/internal/models"
)

func TestAccountInfo(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/player_api.php" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("username") != "alice" || q.Get("password") != "secret" {
			t.Errorf("credentials not forwarded: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"user_info": {
				"username": "alice",
				"auth": 1,
				"status": "Active",
				"exp_date": "1767225600",
				"is_trial": "0",
				"active_cons": "1",
				"max_connections": "2"
			},
			"server_info": {
				"url": "host.example",
				"port": "8080",
				"server_protocol": "http",
				"timezone": "UTC",
				"timestamp_now": 1735689600
			}
		}`)
	}))
	defer ts.Close()

	c := NewClient("test-agent", 5*time.Second)
	info, err := c.AccountInfo(context.Background(), models.Credentials{
		Username: "alice",
		Password: "secret",
		Server:   ts.URL,
	})
	if err != nil {
		t.Fatalf("AccountInfo: %v", err)
	}
	if info.UserInfo.Username != "alice" || info.UserInfo.Auth != 1 {
		t.Errorf("unexpected user info: %+v", info.UserInfo)
	}
	if info.ServerInfo.URL != "host.example" || info.ServerInfo.TimestampNow != 1735689600 {
		t.Errorf("unexpected server info: %+v", info.ServerInfo)
	}
}

func TestAccountInfoRejected(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "auth flag zero",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"user_info":{"auth":0},"server_info":{}}`)
			},
		},
		{
			name: "http error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "forbidden", http.StatusForbidden)
			},
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `<html>not json</html>`)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			c := NewClient("", 5*time.Second)
			_, err := c.AccountInfo(context.Background(), models.Credentials{
				Username: "u", Password: "p", Server: ts.URL,
			})
			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("expected AuthError, got %v", err)
			}
		})
	}
}

func TestAccountInfoUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // connection refused

	c := NewClient("", time.Second)
	_, err := c.AccountInfo(context.Background(), models.Credentials{
		Username: "u", Password: "p", Server: ts.URL,
	})
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}
