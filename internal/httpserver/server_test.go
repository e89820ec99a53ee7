package httpserver

import (
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/pokerdurak/internal/config"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("games now: {now_games} of {all_games}, heartbeat {HEARTBIT_INTERVAL}s on {host}"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	timing := config.Resolved{
		HeartbeatInterval:     15 * time.Second,
		ArrivalGrace:          10 * time.Millisecond,
		DisconnectGraceSocket: 5 * time.Second,
		TurnTimeout:           300 * time.Second,
	}
	s := New(zerolog.Nop(), rand.New(rand.NewSource(1)), quartz.NewReal(), timing, dir)
	return s, dir
}

func TestStaticRootRewritesToIndex(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/", nil)
	req.Host = "example.test"
	rec := httptest.NewRecorder()

	s.handleStatic(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	want := "games now: 0 of 0, heartbeat 15s on example.test"
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestStaticIssuesSIDCookieOnFirstVisit(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	s.handleStatic(rec, req)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "sid" {
		t.Fatalf("got cookies %+v, want one sid cookie", cookies)
	}
}

func TestStaticDoesNotReissueSIDCookie(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "7"})
	rec := httptest.NewRecorder()

	s.handleStatic(rec, req)

	if len(rec.Result().Cookies()) != 0 {
		t.Errorf("got cookies %+v, want none for a request that already carries sid", rec.Result().Cookies())
	}
}

func TestStaticUnknownPathIs404(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/nope.html", nil)
	rec := httptest.NewRecorder()

	s.handleStatic(rec, req)

	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
