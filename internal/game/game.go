// Package game implements the authoritative per-table state machine: deck,
// per-player hands, the shared board, the stepping-player rotation, and
// kick/winner bookkeeping. A Table is owned exclusively by one caller (in
// practice, a single worker goroutine); it performs no synchronisation of
// its own.
package game

import (
	"errors"
	"math/rand"
	"sort"

	"github.com/lox/pokerdurak/internal/comb"
	"github.com/lox/pokerdurak/internal/deck"
)

// PID identifies a player across the pool, the worker and the table. It is
// the same unsigned integer carried by the client's session cookie.
type PID uint64

// Step errors. All are recovered locally: the table state is left unchanged.
var (
	ErrInvalidPID      = errors.New("game: caller is not the stepping player")
	ErrInvalidStepType = errors.New("game: step is illegal in this board state")
	ErrInvalidCards    = errors.New("game: cards are not available for this step")
	ErrInvalidComb     = errors.New("game: cards do not form a recognised combination")
	ErrWeakComb        = errors.New("game: combination does not strictly beat the board")
)

// ErrPlayerCount is returned by New when the player count falls outside
// [2, 9]. The upper bound is floor(52/5) - 1, one seat fewer than a 52-card
// deck could deal five cards to.
var ErrPlayerCount = errors.New("game: player count must be between 2 and 9")

const initialHandSize = 5

// StepKind identifies which of the four step types a Step performs.
type StepKind int

const (
	StepGetCard StepKind = iota
	StepGiveComb
	StepTransComb
	StepGetComb
)

// Step is one action a stepping player may submit. Cards is only meaningful
// for GiveComb and TransComb.
type Step struct {
	Kind  StepKind
	Cards []deck.Card
}

// Board is the pile of cards currently in play together with the strongest
// combination laid on it so far.
type Board struct {
	Comb  comb.Combination
	Cards []deck.Card
}

// BoardState is the Passive/Active(Board) tagged union.
type BoardState struct {
	Active bool
	Board  Board
}

type player struct {
	id   PID
	hand map[deck.Card]struct{}
}

// Table is the per-table game state machine.
type Table struct {
	players       []player
	idIndex       map[PID]int
	rotationNext  []int
	rotationPrev  []int
	steppingIndex int
	winnerIdx     int // -1 if no winner yet
	deck          *deck.Deck
	state         BoardState
}

// New constructs a table for the given player ids: 2 to 9 players share an
// initial 5-card deal from one 52-card deck. Seating order is randomised,
// the rotation is built as a circular doubly-linked list over seat indices,
// and the stepping player is whoever holds the lexicographically smallest
// sorted hand (ties broken by the lower seat index).
func New(rng *rand.Rand, playerIDs []PID) (*Table, error) {
	n := len(playerIDs)
	if n < 2 || n > 9 {
		return nil, ErrPlayerCount
	}

	shuffled := make([]PID, n)
	copy(shuffled, playerIDs)
	rng.Shuffle(n, func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	t := &Table{
		players:      make([]player, n),
		idIndex:      make(map[PID]int, n),
		rotationNext: make([]int, n),
		rotationPrev: make([]int, n),
		winnerIdx:    -1,
		deck:         deck.New(rng),
	}

	for i, pid := range shuffled {
		t.players[i] = player{id: pid, hand: make(map[deck.Card]struct{}, initialHandSize)}
		t.idIndex[pid] = i
		t.rotationNext[i] = (i + 1) % n
		t.rotationPrev[i] = (i - 1 + n) % n
	}

	for i := range t.players {
		for c := 0; c < initialHandSize; c++ {
			card, ok := t.deck.Pop()
			if !ok {
				break
			}
			t.players[i].hand[card] = struct{}{}
		}
	}

	t.steppingIndex = minHandIndex(t.players)

	return t, nil
}

func minHandIndex(players []player) int {
	best := 0
	bestSorted := sortedRanks(players[0].hand)
	for i := 1; i < len(players); i++ {
		sorted := sortedRanks(players[i].hand)
		if compareRankSlices(sorted, bestSorted) < 0 {
			best, bestSorted = i, sorted
		}
	}
	return best
}

func sortedRanks(hand map[deck.Card]struct{}) []deck.Rank {
	out := make([]deck.Rank, 0, len(hand))
	for c := range hand {
		out = append(out, c.Rank)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func compareRankSlices(a, b []deck.Rank) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// MakeStep applies step on behalf of pid, the caller's pid must be the
// current stepping player.
func (t *Table) MakeStep(pid PID, step Step) error {
	idx, ok := t.idIndex[pid]
	if !ok || idx != t.steppingIndex {
		return ErrInvalidPID
	}

	if t.state.Active {
		return t.stepActive(idx, step)
	}
	return t.stepPassive(idx, step)
}

func (t *Table) stepPassive(idx int, step Step) error {
	switch step.Kind {
	case StepGetCard:
		card, ok := t.deck.Pop()
		if !ok {
			return ErrInvalidStepType
		}
		t.players[idx].hand[card] = struct{}{}
		t.advance()
		return nil

	case StepGiveComb:
		if !isSubset(step.Cards, t.players[idx].hand) {
			return ErrInvalidCards
		}
		c, err := comb.Recognize(step.Cards)
		if err != nil {
			return ErrInvalidComb
		}
		removeFromHand(t.players[idx].hand, step.Cards)
		t.state = BoardState{Active: true, Board: Board{Comb: c, Cards: cloneCards(step.Cards)}}
		t.completeStep(idx)
		return nil

	default:
		return ErrInvalidStepType
	}
}

func (t *Table) stepActive(idx int, step Step) error {
	board := t.state.Board

	switch step.Kind {
	case StepTransComb:
		fromHand := countIn(step.Cards, t.players[idx].hand)
		if fromHand < 1 {
			return ErrInvalidCards
		}
		fromBoard := countInCards(step.Cards, board.Cards)
		if fromHand+fromBoard < len(step.Cards) {
			return ErrInvalidCards
		}
		newComb, err := comb.Recognize(step.Cards)
		if err != nil {
			return ErrInvalidComb
		}
		if !board.Comb.Rank.Less(newComb.Rank) {
			return ErrWeakComb
		}

		removeFromHand(t.players[idx].hand, step.Cards)
		t.state = BoardState{Active: true, Board: Board{
			Comb:  newComb,
			Cards: unionCards(board.Cards, step.Cards),
		}}
		t.completeStep(idx)
		return nil

	case StepGetComb:
		unionIntoHand(t.players[idx].hand, board.Comb.Cards)

		seats := t.otherSeatsInOrder()
		for _, seat := range seats {
			for len(t.players[seat].hand) < initialHandSize {
				card, ok := t.deck.Pop()
				if !ok {
					break
				}
				t.players[seat].hand[card] = struct{}{}
			}
		}
		for _, seat := range seats {
			card, ok := t.deck.Pop()
			if !ok {
				break
			}
			t.players[seat].hand[card] = struct{}{}
		}

		t.state = BoardState{}
		t.advance()
		return nil

	default:
		return ErrInvalidStepType
	}
}

// completeStep runs the shared post-move bookkeeping for GiveComb/TransComb:
// declare a win if the deck and hand are both empty, otherwise advance.
func (t *Table) completeStep(idx int) {
	if t.deck.Size() == 0 && len(t.players[idx].hand) == 0 {
		t.winByEmptyHand(idx)
		return
	}
	t.advance()
}

func (t *Table) advance() {
	t.steppingIndex = t.rotationNext[t.steppingIndex]
}

// otherSeatsInOrder returns every other live seat, starting one seat after
// the stepping player and walking the rotation back to it.
func (t *Table) otherSeatsInOrder() []int {
	var out []int
	cur := t.rotationNext[t.steppingIndex]
	for cur != t.steppingIndex {
		out = append(out, cur)
		cur = t.rotationNext[cur]
	}
	return out
}

// kick splices idx out of the rotation. It is idempotent; kicking an
// already-kicked seat is a no-op. If idx was stepping, stepping advances to
// the live seat that followed it before the splice takes effect.
func (t *Table) kick(idx int) {
	if t.rotationNext[idx] == idx {
		return
	}
	next := t.rotationNext[idx]
	prev := t.rotationPrev[idx]

	if t.steppingIndex == idx {
		t.steppingIndex = next
	}

	t.rotationNext[prev] = next
	t.rotationPrev[next] = prev
	t.rotationNext[idx] = idx
	t.rotationPrev[idx] = idx
}

// winByEmptyHand marks idx the winner (if no winner is recorded yet) and
// kicks it from the rotation.
func (t *Table) winByEmptyHand(idx int) {
	if t.winnerIdx < 0 {
		t.winnerIdx = idx
	}
	t.kick(idx)
}

// Kick forcibly removes pid from the rotation (an explicit exit, or a
// disconnect timeout). If this would leave a single live seat and no winner
// has been recorded, that surviving seat becomes the winner. Unknown pids
// and already-kicked pids are no-ops.
func (t *Table) Kick(pid PID) {
	idx, ok := t.idIndex[pid]
	if !ok || t.rotationNext[idx] == idx {
		return
	}
	if t.rotationNext[idx] == t.rotationPrev[idx] && t.winnerIdx < 0 {
		t.winnerIdx = t.rotationNext[idx]
	}
	t.kick(idx)
}

// SteppingPlayer returns the pid whose turn it currently is.
func (t *Table) SteppingPlayer() PID {
	return t.players[t.steppingIndex].id
}

// PlayerCards returns the full hand of pid.
func (t *Table) PlayerCards(pid PID) ([]deck.Card, error) {
	idx, ok := t.idIndex[pid]
	if !ok {
		return nil, errUnknownPID
	}
	out := make([]deck.Card, 0, len(t.players[idx].hand))
	for c := range t.players[idx].hand {
		out = append(out, c)
	}
	return out, nil
}

// DeckSize returns the number of cards remaining in the deck.
func (t *Table) DeckSize() int {
	return t.deck.Size()
}

// IsKicked reports whether pid has been kicked from the rotation.
func (t *Table) IsKicked(pid PID) bool {
	idx, ok := t.idIndex[pid]
	if !ok {
		return true
	}
	return t.rotationNext[idx] == idx
}

// Winner returns the winning pid, if one has been declared.
func (t *Table) Winner() (PID, bool) {
	if t.winnerIdx < 0 {
		return 0, false
	}
	return t.players[t.winnerIdx].id, true
}

// State returns a snapshot of the current board state.
func (t *Table) State() BoardState {
	if !t.state.Active {
		return BoardState{}
	}
	return BoardState{Active: true, Board: Board{
		Comb:  t.state.Board.Comb,
		Cards: cloneCards(t.state.Board.Cards),
	}}
}

// PlayersDecks returns the hand sizes of every player except the stepping
// one, in rotation order starting one seat after the stepping seat.
func (t *Table) PlayersDecks() []int {
	seats := t.otherSeatsInOrder()
	out := make([]int, len(seats))
	for i, seat := range seats {
		out[i] = len(t.players[seat].hand)
	}
	return out
}

var errUnknownPID = errors.New("game: unknown pid")

func isSubset(cards []deck.Card, hand map[deck.Card]struct{}) bool {
	seen := make(map[deck.Card]int, len(cards))
	for _, c := range cards {
		seen[c]++
		if seen[c] > 1 {
			return false
		}
		if _, ok := hand[c]; !ok {
			return false
		}
	}
	return true
}

func countIn(cards []deck.Card, hand map[deck.Card]struct{}) int {
	n := 0
	for _, c := range cards {
		if _, ok := hand[c]; ok {
			n++
		}
	}
	return n
}

func countInCards(cards []deck.Card, pool []deck.Card) int {
	set := make(map[deck.Card]struct{}, len(pool))
	for _, c := range pool {
		set[c] = struct{}{}
	}
	n := 0
	for _, c := range cards {
		if _, ok := set[c]; ok {
			n++
		}
	}
	return n
}

func removeFromHand(hand map[deck.Card]struct{}, cards []deck.Card) {
	for _, c := range cards {
		delete(hand, c)
	}
}

func unionIntoHand(hand map[deck.Card]struct{}, cards []deck.Card) {
	for _, c := range cards {
		hand[c] = struct{}{}
	}
}

func unionCards(a, b []deck.Card) []deck.Card {
	set := make(map[deck.Card]struct{}, len(a)+len(b))
	for _, c := range a {
		set[c] = struct{}{}
	}
	for _, c := range b {
		set[c] = struct{}{}
	}
	out := make([]deck.Card, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func cloneCards(cards []deck.Card) []deck.Card {
	out := make([]deck.Card, len(cards))
	copy(out, cards)
	return out
}
