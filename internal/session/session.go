// Package session runs the per-client loop: one goroutine owns one
// websocket connection end to end, from matchmaking through play to
// departure.
package session

import (
	"time"

	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lox/pokerdurak/internal/game"
	"github.com/lox/pokerdurak/internal/pool"
	"github.com/lox/pokerdurak/internal/protocol"
	"github.com/lox/pokerdurak/internal/worker"
)

// refreshThrottle bounds how often the loop re-checks turn/winner state,
// independent of how quickly frames arrive.
const refreshThrottle = 250 * time.Millisecond

// ChatMaxBytes is the largest SendMessage body the loop will forward.
const ChatMaxBytes = 4096

// Conn is the subset of *websocket.Conn the session loop needs. Matching it
// against a narrow interface keeps the loop's dispatch logic testable
// without a live socket; *websocket.Conn satisfies it directly.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// DefaultTurnTimeout is the wall-clock budget for a stepping player to
// produce a valid step once it becomes their turn.
const DefaultTurnTimeout = 300 * time.Second

// Session runs the lifecycle of a single client connection for pid.
type Session struct {
	conn              Conn
	pid               game.PID
	pool              *pool.Pool
	clock             quartz.Clock
	logger            zerolog.Logger
	heartbeatInterval time.Duration
	turnTimeout       time.Duration
}

// New constructs a session for one accepted connection, using the default
// turn timeout. Use NewWithTurnTimeout to override it from config.Resolved.
func New(conn Conn, pid game.PID, p *pool.Pool, clock quartz.Clock, logger zerolog.Logger, heartbeatInterval time.Duration) *Session {
	return NewWithTurnTimeout(conn, pid, p, clock, logger, heartbeatInterval, DefaultTurnTimeout)
}

// NewWithTurnTimeout is New with the turn timeout overridden.
func NewWithTurnTimeout(conn Conn, pid game.PID, p *pool.Pool, clock quartz.Clock, logger zerolog.Logger, heartbeatInterval, turnTimeout time.Duration) *Session {
	return &Session{
		conn:              conn,
		pid:               pid,
		pool:              p,
		clock:             clock,
		logger:            logger.With().Uint64("pid", uint64(pid)).Logger(),
		heartbeatInterval: heartbeatInterval,
		turnTimeout:       turnTimeout,
	}
}

// Run executes arrival, matchmaking wait, play, and departure, returning
// once the connection has been fully relinquished (either closed directly,
// because no table was ever joined, or handed to the departure finalizer).
func (s *Session) Run() {
	result := s.pool.Arrive(s.pid)
	if result.AlreadyPlaying {
		s.send(protocol.YouArePlaying{})
		_ = s.conn.Close()
		return
	}

	var handle *worker.Handle
	matched := result.Matched
	if result.Reconnected {
		handle = result.Handle
	}

	yourTurnNew := true
	var steppingTime *time.Time
	if t, ok := s.pool.SteppingTime(s.pid); ok {
		stashed := t
		steppingTime = &stashed
	}
	lastRefresh := s.clock.Now()
	wsEndSuccess := false
	explicitExit := false

	if handle != nil {
		s.announceSeated(handle)
	}

loop:
	for {
		_ = s.conn.SetReadDeadline(s.clock.Now().Add(s.heartbeatInterval))
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			wsEndSuccess = false
			break loop
		}

		if handle == nil {
			select {
			case h, ok := <-matched:
				if ok {
					handle = h
					s.announceSeated(handle)
				}
			default:
			}
		}

		req, perr := protocol.UnmarshalRequest(data)
		if perr != nil {
			s.send(protocol.JSONError{})
			continue
		}

		if handle == nil {
			switch req.Kind {
			case protocol.ReqPing:
				s.send(protocol.Pong{})
			case protocol.ReqExit:
				wsEndSuccess = true
				explicitExit = true
				break loop
			}
			continue
		}

		if s.clock.Now().Sub(lastRefresh) >= refreshThrottle {
			lastRefresh = s.clock.Now()
			terminate, winnerDeclared := s.refresh(handle, &yourTurnNew, &steppingTime)
			if terminate {
				wsEndSuccess = true
				break loop
			}
			_ = winnerDeclared
		}

		for _, msg := range s.drainChat(handle) {
			s.send(protocol.Message{Text: msg})
		}

		switch req.Kind {
		case protocol.ReqPing:
			s.send(protocol.Pong{})

		case protocol.ReqMakeStep:
			if err := handle.MakeStep(req.Step); err != nil {
				s.send(protocol.StepError{Kind: protocol.StepErrorKind(err)})
				continue
			}
			yourTurnNew = true
			steppingTime = nil
			if kicked, _ := handle.IsKicked(); kicked {
				wsEndSuccess = true
				break loop
			}
			s.sendYouMadeStep(handle)

		case protocol.ReqSendMessage:
			if len(req.Text) <= ChatMaxBytes {
				_ = handle.SendMessage(req.Text)
				s.send(protocol.Sent{OK: true})
			} else {
				s.send(protocol.Sent{OK: false})
			}

		case protocol.ReqExit:
			handle.Kick()
			wsEndSuccess = true
			explicitExit = true
			break loop

		default:
			s.send(protocol.JSONError{})
		}
	}

	if handle == nil {
		_ = s.conn.Close()
		return
	}

	if wsEndSuccess {
		s.pool.ClearSteppingTime(s.pid)
	} else if steppingTime != nil {
		s.pool.SetSteppingTime(s.pid, *steppingTime)
	} else {
		s.pool.ClearSteppingTime(s.pid)
	}

	grace := s.pool.DisconnectGraceSocket()
	if explicitExit {
		grace = pool.DisconnectGraceExplicit
	}
	s.pool.Depart(s.pid, grace, func(wonTable bool) {
		if wonTable {
			s.send(protocol.GameWinner{})
		} else {
			s.send(protocol.GameLoser{})
		}
		_ = s.conn.Close()
	})
}

func (s *Session) announceSeated(h *worker.Handle) {
	s.send(protocol.ID{Value: uint64(s.pid)})
	s.send(protocol.YouArePlaying{})
	hand, _ := h.PlayerCards()
	deckSize, _ := h.DeckSize()
	s.send(protocol.YourCards{Cards: hand, DeckSize: deckSize})
}

// refresh implements refresh_time: it reports the remaining turn clock if
// it is our turn and we haven't yet, self-kicks on turn timeout, and
// detects a table winner. It returns whether the loop should terminate.
func (s *Session) refresh(h *worker.Handle, yourTurnNew *bool, steppingTime **time.Time) (terminate, winnerDeclared bool) {
	stepping, err := h.SteppingPlayer()
	if err == nil && stepping == s.pid {
		switch {
		case *yourTurnNew:
			if *steppingTime == nil {
				now := s.clock.Now()
				*steppingTime = &now
			}
			s.sendYourTurn(h, **steppingTime)
			*yourTurnNew = false
		case s.clock.Now().Sub(**steppingTime) > s.turnTimeout:
			h.Kick()
			return true, false
		}
	}

	if _, hasWinner, _ := h.Winner(); hasWinner {
		return true, true
	}
	return false, false
}

func (s *Session) drainChat(h *worker.Handle) []string {
	msgs, err := h.GetMessages()
	if err != nil {
		return nil
	}
	return msgs
}

func (s *Session) sendYourTurn(h *worker.Handle, steppingTime time.Time) {
	state, _ := h.State()
	hand, _ := h.PlayerCards()
	deckSize, _ := h.DeckSize()
	nextHandSize := nextSeatHandSize(h)
	remaining := int((s.turnTimeout - s.clock.Now().Sub(steppingTime)).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	s.send(protocol.YourTurn{
		Board:        protocol.NewWireBoard(state),
		Hand:         hand,
		DeckSize:     deckSize,
		NextHandSize: nextHandSize,
		SecondsLeft:  remaining,
	})
}

func (s *Session) sendYouMadeStep(h *worker.Handle) {
	state, _ := h.State()
	hand, _ := h.PlayerCards()
	deckSize, _ := h.DeckSize()
	s.send(protocol.YouMadeStep{
		Board:        protocol.NewWireBoard(state),
		Hand:         hand,
		DeckSize:     deckSize,
		NextHandSize: nextSeatHandSize(h),
	})
}

func nextSeatHandSize(h *worker.Handle) int {
	decks, err := h.PlayersDecks()
	if err != nil || len(decks) == 0 {
		return 0
	}
	return decks[0]
}

func (s *Session) send(v interface{}) {
	data, err := protocol.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode outgoing message")
		return
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write websocket frame")
	}
}
