// Package worker runs one game.Table behind a single multi-producer request
// channel, so every mutation of the table happens on one goroutine while any
// number of client sessions submit requests concurrently through per-player
// handles.
package worker

import (
	"errors"
	"math/rand"
	"time"

	"github.com/lox/pokerdurak/internal/deck"
	"github.com/lox/pokerdurak/internal/game"
)

// requestTimeout bounds how long a Handle call waits for the worker to pick
// up a request or reply to one, mirroring the bounded send used elsewhere in
// this codebase for anything that could otherwise block forever on a wedged
// goroutine.
const requestTimeout = 2 * time.Second

var (
	// ErrWorkerExited is returned by a Handle call once the worker has torn
	// its table down (every seat has called Exit).
	ErrWorkerExited = errors.New("worker: game worker has exited")
	// ErrWorkerTimeout is returned if the worker does not service a request
	// within requestTimeout.
	ErrWorkerTimeout = errors.New("worker: request timed out")
)

type reqKind int

const (
	reqMakeStep reqKind = iota
	reqPlayersDecks
	reqKick
	reqSteppingPlayer
	reqPlayerCards
	reqDeckSize
	reqIsKicked
	reqWinner
	reqState
	reqSendMessage
	reqGetMessages
	reqExit
)

type request struct {
	kind  reqKind
	pid   game.PID
	step  game.Step
	text  string
	reply chan response
}

type response struct {
	err       error
	decks     []int
	pid       game.PID
	hasWinner bool
	cards     []deck.Card
	size      int
	kicked    bool
	state     game.BoardState
	messages  []string
	wasLast   bool
}

// Worker owns one game.Table and serialises every access to it through
// requests.
type Worker struct {
	requests chan request
	done     chan struct{}
}

// Spawn builds a table for playerIDs and starts the worker goroutine that
// owns it.
func Spawn(rng *rand.Rand, playerIDs []game.PID) (*Worker, error) {
	table, err := game.New(rng, playerIDs)
	if err != nil {
		return nil, err
	}
	w := &Worker{
		requests: make(chan request, 64),
		done:     make(chan struct{}),
	}
	go w.run(table, playerIDs)
	return w, nil
}

// Done is closed once every player has called Exit and the table has torn
// down; a Kick alone does not count towards it.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Handle binds this worker to a single pid, exposing typed, blocking calls.
func (w *Worker) Handle(pid game.PID) *Handle {
	return &Handle{w: w, pid: pid}
}

func (w *Worker) run(table *game.Table, playerIDs []game.PID) {
	mailbox := make(map[game.PID][]string, len(playerIDs))
	liveness := len(playerIDs)

	for req := range w.requests {
		switch req.kind {
		case reqMakeStep:
			req.reply <- response{err: table.MakeStep(req.pid, req.step)}

		case reqPlayersDecks:
			req.reply <- response{decks: table.PlayersDecks()}

		case reqKick:
			table.Kick(req.pid)

		case reqSteppingPlayer:
			req.reply <- response{pid: table.SteppingPlayer()}

		case reqPlayerCards:
			cards, err := table.PlayerCards(req.pid)
			req.reply <- response{cards: cards, err: err}

		case reqDeckSize:
			req.reply <- response{size: table.DeckSize()}

		case reqIsKicked:
			req.reply <- response{kicked: table.IsKicked(req.pid)}

		case reqWinner:
			pid, ok := table.Winner()
			req.reply <- response{pid: pid, hasWinner: ok}

		case reqState:
			req.reply <- response{state: table.State()}

		case reqSendMessage:
			for _, id := range playerIDs {
				if id != req.pid {
					mailbox[id] = append(mailbox[id], req.text)
				}
			}
			req.reply <- response{}

		case reqGetMessages:
			msgs := mailbox[req.pid]
			mailbox[req.pid] = nil
			req.reply <- response{messages: msgs}

		case reqExit:
			table.Kick(req.pid)
			liveness--
			wasLast := liveness <= 0
			req.reply <- response{wasLast: wasLast}
			if wasLast {
				close(w.done)
				return
			}
		}
	}
}

// Handle is a per-player view onto a Worker: every method blocks on a reply
// from the owning goroutine, or returns ErrWorkerTimeout/ErrWorkerExited.
type Handle struct {
	w   *Worker
	pid game.PID
}

// PID returns the bound player id.
func (h *Handle) PID() game.PID { return h.pid }

func (h *Handle) call(req request) response {
	req.pid = h.pid
	req.reply = make(chan response, 1)

	select {
	case h.w.requests <- req:
	case <-time.After(requestTimeout):
		return response{err: ErrWorkerTimeout}
	case <-h.w.done:
		return response{err: ErrWorkerExited}
	}

	select {
	case resp := <-req.reply:
		return resp
	case <-time.After(requestTimeout):
		return response{err: ErrWorkerTimeout}
	case <-h.w.done:
		return response{err: ErrWorkerExited}
	}
}

// cast enqueues req without waiting for a reply, for mutations the protocol
// defines as fire-and-forget. It still respects requestTimeout/done so a
// wedged worker cannot block the caller forever.
func (h *Handle) cast(req request) {
	req.pid = h.pid
	select {
	case h.w.requests <- req:
	case <-time.After(requestTimeout):
	case <-h.w.done:
	}
}

// MakeStep submits a step on behalf of the bound player.
func (h *Handle) MakeStep(step game.Step) error {
	return h.call(request{kind: reqMakeStep, step: step}).err
}

// PlayersDecks returns the hand sizes of every other live seat, in rotation
// order starting after the stepping seat.
func (h *Handle) PlayersDecks() ([]int, error) {
	resp := h.call(request{kind: reqPlayersDecks})
	return resp.decks, resp.err
}

// Kick forcibly removes the bound player from the rotation. It is
// fire-and-forget: the caller does not wait for the worker to apply it.
func (h *Handle) Kick() {
	h.cast(request{kind: reqKick})
}

// SteppingPlayer returns the pid whose turn it currently is.
func (h *Handle) SteppingPlayer() (game.PID, error) {
	resp := h.call(request{kind: reqSteppingPlayer})
	return resp.pid, resp.err
}

// PlayerCards returns the bound player's hand.
func (h *Handle) PlayerCards() ([]deck.Card, error) {
	resp := h.call(request{kind: reqPlayerCards})
	return resp.cards, resp.err
}

// DeckSize returns the number of cards left in the table's deck.
func (h *Handle) DeckSize() (int, error) {
	resp := h.call(request{kind: reqDeckSize})
	return resp.size, resp.err
}

// IsKicked reports whether the bound player has been kicked.
func (h *Handle) IsKicked() (bool, error) {
	resp := h.call(request{kind: reqIsKicked})
	return resp.kicked, resp.err
}

// Winner returns the table's winner, if one has been declared.
func (h *Handle) Winner() (game.PID, bool, error) {
	resp := h.call(request{kind: reqWinner})
	return resp.pid, resp.hasWinner, resp.err
}

// State returns a snapshot of the board.
func (h *Handle) State() (game.BoardState, error) {
	resp := h.call(request{kind: reqState})
	return resp.state, resp.err
}

// SendMessage enqueues text onto every other seated player's chat mailbox,
// kicked players included.
func (h *Handle) SendMessage(text string) error {
	return h.call(request{kind: reqSendMessage, text: text}).err
}

// GetMessages drains and returns the bound player's chat mailbox in FIFO
// order.
func (h *Handle) GetMessages() ([]string, error) {
	resp := h.call(request{kind: reqGetMessages})
	return resp.messages, resp.err
}

// Exit kicks the bound player and decrements the table's liveness counter.
// Once every player has exited, the worker tears its table down and closes
// Done; wasLast reports whether this call was the one that did so.
func (h *Handle) Exit() (wasLast bool, err error) {
	resp := h.call(request{kind: reqExit})
	return resp.wasLast, resp.err
}
