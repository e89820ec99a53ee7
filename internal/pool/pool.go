// Package pool implements the process-wide session manager: it tracks which
// players are waiting, seated, or in a disconnect-grace quarantine, matches
// waiting players into freshly spawned table workers, and finalises
// departures after a grace window.
package pool

import (
	"math/rand"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/pokerdurak/internal/game"
	"github.com/lox/pokerdurak/internal/worker"
)

// DisconnectGraceExplicit is the grace window for an explicit Exit: there is
// nothing to reconnect to, so it is always zero rather than configurable.
const DisconnectGraceExplicit = 0

// Default timing constants, used when New is called without overriding them
// via config.Resolved.
const (
	DefaultArrivalGrace          = 200 * time.Millisecond
	DefaultDisconnectGraceSocket = 5 * time.Second
)

// seatsPerTable is how many waiting players are drained into one table as
// soon as the waiting set reaches this size.
const seatsPerTable = 2

// ArriveResult is the outcome of Arrive for one pid.
type ArriveResult struct {
	// Handle is set only when the pid reconnected into its quarantined
	// table; a fresh match delivers its handle through Matched instead.
	Handle *worker.Handle
	// Reconnected is true when Handle came from on_delete quarantine.
	Reconnected bool
	// AlreadyPlaying is true when pid is already an active player elsewhere;
	// the caller should emit YouArePlaying and not proceed to play.
	AlreadyPlaying bool
	// Waiting is true when pid was queued; Matched receives the handle once
	// the match completes (already on return, if this arrival completed it).
	Waiting bool
	Matched <-chan *worker.Handle
}

// Pool is the process-wide session manager. The registry maps and game
// counters are guarded by mu; critical sections stay short and never block on a websocket send or
// a worker round-trip.
type Pool struct {
	mu sync.Mutex

	activePlayers map[game.PID]struct{}
	handles       map[game.PID]*worker.Handle
	steppingTimes map[game.PID]*time.Time
	waiting       map[game.PID]chan *worker.Handle
	onDelete      map[game.PID]*worker.Handle

	gamesTotal  uint64
	gamesActive int64

	rngMu sync.Mutex
	rng   *rand.Rand

	clock  quartz.Clock
	logger zerolog.Logger

	arrivalGrace          time.Duration
	disconnectGraceSocket time.Duration
}

// New constructs an empty pool with the default timing constants. rng seeds
// every table's own private RNG (cloned so tables shuffle independently);
// clock drives the arrival and departure grace windows, overridable with a
// fake clock in tests.
func New(logger zerolog.Logger, rng *rand.Rand, clock quartz.Clock) *Pool {
	return NewWithTiming(logger, rng, clock, DefaultArrivalGrace, DefaultDisconnectGraceSocket)
}

// NewWithTiming is New with the arrival grace and disconnect grace windows
// overridden, as loaded from config.Resolved.
func NewWithTiming(logger zerolog.Logger, rng *rand.Rand, clock quartz.Clock, arrivalGrace, disconnectGraceSocket time.Duration) *Pool {
	return &Pool{
		activePlayers:         make(map[game.PID]struct{}),
		handles:               make(map[game.PID]*worker.Handle),
		steppingTimes:         make(map[game.PID]*time.Time),
		waiting:               make(map[game.PID]chan *worker.Handle),
		onDelete:              make(map[game.PID]*worker.Handle),
		rng:                   rng,
		clock:                 clock,
		logger:                logger.With().Str("component", "pool").Logger(),
		arrivalGrace:          arrivalGrace,
		disconnectGraceSocket: disconnectGraceSocket,
	}
}

// DisconnectGraceSocket is the configured grace window for an involuntary
// disconnect (dropped socket, turn timeout, winner declared elsewhere).
func (p *Pool) DisconnectGraceSocket() time.Duration {
	return p.disconnectGraceSocket
}

// Arrive runs the arrival-grace sleep and the dispatch/matchmaking step of a
// connection's lifecycle. Callers must not call Arrive again for the same
// pid until the connection has fully departed.
func (p *Pool) Arrive(pid game.PID) ArriveResult {
	p.clock.Sleep(p.arrivalGrace)

	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.onDelete[pid]; ok {
		delete(p.onDelete, pid)
		p.activePlayers[pid] = struct{}{}
		p.handles[pid] = h
		p.logger.Info().Uint64("pid", uint64(pid)).Msg("player reconnected during grace window")
		return ArriveResult{Handle: h, Reconnected: true}
	}

	if _, ok := p.activePlayers[pid]; ok {
		return ArriveResult{AlreadyPlaying: true}
	}

	matched := make(chan *worker.Handle, 1)
	p.waiting[pid] = matched

	if len(p.waiting) >= seatsPerTable {
		p.drainWaitingIntoTable()
	}

	return ArriveResult{Waiting: true, Matched: matched}
}

// drainWaitingIntoTable must be called with mu held. It spawns a table for
// every pid currently in waiting and delivers each a handle.
func (p *Pool) drainWaitingIntoTable() {
	ids := make([]game.PID, 0, len(p.waiting))
	chans := make([]chan *worker.Handle, 0, len(p.waiting))
	for pid, ch := range p.waiting {
		ids = append(ids, pid)
		chans = append(chans, ch)
		delete(p.waiting, pid)
	}

	w, err := worker.Spawn(p.cloneRNG(), ids)
	if err != nil {
		p.logger.Error().Err(err).Int("players", len(ids)).Msg("failed to spawn table")
		for _, ch := range chans {
			close(ch)
		}
		return
	}

	for i, pid := range ids {
		h := w.Handle(pid)
		p.activePlayers[pid] = struct{}{}
		p.handles[pid] = h
		p.steppingTimes[pid] = nil
		chans[i] <- h
	}
	p.gamesTotal++
	p.gamesActive++
	p.logger.Info().Int("players", len(ids)).Msg("matched a new table")
}

// cloneRNG draws a seed from the pool's shared RNG under its own lock and
// returns a private RNG for one table, so concurrent tables never contend on
// a single source.
func (p *Pool) cloneRNG() *rand.Rand {
	p.rngMu.Lock()
	seed := p.rng.Int63()
	p.rngMu.Unlock()
	return rand.New(rand.NewSource(seed))
}

// SteppingTime returns the stashed turn-start instant for pid, if any.
func (p *Pool) SteppingTime(pid game.PID) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.steppingTimes[pid]
	if !ok || t == nil {
		return time.Time{}, false
	}
	return *t, true
}

// SetSteppingTime stashes the turn-start instant for pid.
func (p *Pool) SetSteppingTime(pid game.PID, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steppingTimes[pid] = &at
}

// ClearSteppingTime removes any stashed turn-start instant for pid.
func (p *Pool) ClearSteppingTime(pid game.PID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steppingTimes[pid] = nil
}

// Depart begins the departure step of a connection's lifecycle: the handle
// is quarantined in on_delete for grace, then (unless a reconnect reclaims
// it first) finalised in a short-lived goroutine that kicks the player,
// exits the table, and invokes onFinal with whether this pid was the
// table's winner. onFinal is never called if the pid reconnects within
// grace. onFinal may be nil.
func (p *Pool) Depart(pid game.PID, grace time.Duration, onFinal func(wonTable bool)) {
	p.mu.Lock()
	h, ok := p.handles[pid]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.activePlayers, pid)
	delete(p.handles, pid)
	p.onDelete[pid] = h
	p.mu.Unlock()

	go p.finalizeDeparture(pid, h, grace, onFinal)
}

func (p *Pool) finalizeDeparture(pid game.PID, h *worker.Handle, grace time.Duration, onFinal func(bool)) {
	p.clock.Sleep(grace)

	p.mu.Lock()
	_, stillQuarantined := p.onDelete[pid]
	if stillQuarantined {
		delete(p.onDelete, pid)
		delete(p.steppingTimes, pid)
	}
	p.mu.Unlock()

	if !stillQuarantined {
		// Arrive's reconnect branch already reclaimed this pid.
		return
	}

	h.Kick()
	winnerPID, hasWinner, _ := h.Winner()
	wonTable := hasWinner && winnerPID == pid

	wasLast, _ := h.Exit()
	if wasLast {
		p.mu.Lock()
		p.gamesActive--
		p.mu.Unlock()
	}

	p.logger.Info().Uint64("pid", uint64(pid)).Bool("won", wonTable).Msg("player departed")
	if onFinal != nil {
		onFinal(wonTable)
	}
}

// GamesTotal returns the number of tables ever spawned.
func (p *Pool) GamesTotal() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gamesTotal
}

// GamesActive returns the number of tables with at least one seated player.
func (p *Pool) GamesActive() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gamesActive
}
