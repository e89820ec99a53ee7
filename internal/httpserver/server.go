// Package httpserver wires the out-of-scope external surface named in the
// wire protocol: the /ws upgrade, the sid session cookie, and the static
// asset rewrites. It is a thin adapter in front of internal/session and
// internal/pool.
package httpserver

import (
	"context"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lox/pokerdurak/internal/config"
	"github.com/lox/pokerdurak/internal/game"
	"github.com/lox/pokerdurak/internal/pool"
	"github.com/lox/pokerdurak/internal/session"
)

const sidCookieName = "sid"

// pageRewrites maps a request path to the static file that serves it.
var pageRewrites = map[string]string{
	"/":       "index.html",
	"/stat":   "stat.html",
	"/about":  "about.html",
	"/winner": "winner.html",
	"/loser":  "loser.html",
	"/game":   "game.html",
}

// Server hosts the websocket upgrade and the static asset handler over one
// process-wide Pool.
type Server struct {
	pool       *pool.Pool
	staticDir  string
	upgrader   websocket.Upgrader
	mux        *http.ServeMux
	httpServer *http.Server
	logger     zerolog.Logger
	clock      quartz.Clock
	timing     config.Resolved
	nextPID    uint64
}

// New builds a Server backed by a fresh Pool seeded from rng.
func New(logger zerolog.Logger, rng *rand.Rand, clock quartz.Clock, timing config.Resolved, staticDir string) *Server {
	p := pool.NewWithTiming(logger, rng, clock, timing.ArrivalGrace, timing.DisconnectGraceSocket)
	s := &Server{
		pool:      p,
		staticDir: staticDir,
		logger:    logger.With().Str("component", "httpserver").Logger(),
		clock:     clock,
		timing:    timing,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/", s.handleStatic)
	return s
}

// Pool exposes the underlying session manager, e.g. for admin/metrics wiring.
func (s *Server) Pool() *pool.Pool { return s.pool }

// Serve runs the HTTP server on listener until it is closed or shut down.
func (s *Server) Serve(listener net.Listener) error {
	s.httpServer = &http.Server{Handler: s.mux}
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("server starting")
	return s.httpServer.Serve(listener)
}

// Shutdown gracefully stops accepting new connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// allocatePID mints a new pid for a client with no sid cookie yet.
func (s *Server) allocatePID() game.PID {
	return game.PID(atomic.AddUint64(&s.nextPID, 1))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.sidFromRequest(r)
	if !ok {
		pid = s.allocatePID()
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	sess := session.NewWithTurnTimeout(conn, pid, s.pool, s.clock, s.logger, s.timing.HeartbeatInterval, s.timing.TurnTimeout)
	sess.Run()
}

func (s *Server) sidFromRequest(r *http.Request) (game.PID, bool) {
	c, err := r.Cookie(sidCookieName)
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseUint(c.Value, 10, 64)
	if err != nil {
		return 0, false
	}
	return game.PID(v), true
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	file, ok := pageRewrites[path]
	if !ok {
		file = strings.TrimPrefix(path, "/")
	}

	if _, hasSID := s.sidFromRequest(r); !hasSID {
		http.SetCookie(w, &http.Cookie{
			Name:  sidCookieName,
			Value: strconv.FormatUint(uint64(s.allocatePID()), 10),
			Path:  "/",
		})
	}

	full := filepath.Join(s.staticDir, filepath.Clean("/"+file))
	body, err := os.ReadFile(full)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(file))
	_, _ = w.Write([]byte(s.substituteTokens(string(body), r)))
}

func (s *Server) substituteTokens(body string, r *http.Request) string {
	replacer := strings.NewReplacer(
		"{host}", r.Host,
		"{HEARTBIT_INTERVAL}", strconv.Itoa(int(s.timing.HeartbeatInterval.Seconds())),
		"{all_games}", strconv.FormatUint(s.pool.GamesTotal(), 10),
		"{now_games}", strconv.FormatInt(s.pool.GamesActive(), 10),
	)
	return replacer.Replace(body)
}

func contentTypeFor(file string) string {
	switch filepath.Ext(file) {
	case ".html":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
