package game

import (
	"math/rand"
	"testing"

	"github.com/lox/pokerdurak/internal/comb"
	"github.com/lox/pokerdurak/internal/deck"
)

func newTestTable(t *testing.T, seed int64, n int) *Table {
	t.Helper()
	ids := make([]PID, n)
	for i := range ids {
		ids[i] = PID(i + 1)
	}
	table, err := New(rand.New(rand.NewSource(seed)), ids)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return table
}

func TestNewRejectsOutOfRangePlayerCounts(t *testing.T) {
	if _, err := New(rand.New(rand.NewSource(1)), []PID{1}); err != ErrPlayerCount {
		t.Errorf("1 player: got %v, want ErrPlayerCount", err)
	}
	ids := make([]PID, 10)
	for i := range ids {
		ids[i] = PID(i + 1)
	}
	if _, err := New(rand.New(rand.NewSource(1)), ids); err != ErrPlayerCount {
		t.Errorf("10 players: got %v, want ErrPlayerCount", err)
	}
}

func TestNewDealsFiveCardsToEachPlayer(t *testing.T) {
	table := newTestTable(t, 1, 4)
	for _, id := range []PID{1, 2, 3, 4} {
		hand, err := table.PlayerCards(id)
		if err != nil {
			t.Fatalf("PlayerCards(%v): %v", id, err)
		}
		if len(hand) != 5 {
			t.Errorf("player %v has %d cards, want 5", id, len(hand))
		}
	}
	if table.DeckSize() != 52-4*5 {
		t.Errorf("DeckSize() = %d, want %d", table.DeckSize(), 52-4*5)
	}
}

func TestOnlyTheSteppingPlayerMayMove(t *testing.T) {
	table := newTestTable(t, 2, 2)
	stepping := table.SteppingPlayer()
	other := PID(1)
	if other == stepping {
		other = PID(2)
	}
	if err := table.MakeStep(other, Step{Kind: StepGetCard}); err != ErrInvalidPID {
		t.Errorf("got %v, want ErrInvalidPID", err)
	}
}

func TestGetCardAdvancesStepping(t *testing.T) {
	table := newTestTable(t, 3, 3)
	stepping := table.SteppingPlayer()
	before := table.DeckSize()
	if err := table.MakeStep(stepping, Step{Kind: StepGetCard}); err != nil {
		t.Fatalf("MakeStep: %v", err)
	}
	if table.DeckSize() != before-1 {
		t.Errorf("DeckSize() = %d, want %d", table.DeckSize(), before-1)
	}
	if table.SteppingPlayer() == stepping {
		t.Error("stepping player did not advance")
	}
}

func TestGiveCombRequiresCardsInHand(t *testing.T) {
	table := newTestTable(t, 4, 2)
	stepping := table.SteppingPlayer()
	foreign := deck.NewCard(deck.Ace, deck.Spades)
	hand, _ := table.PlayerCards(stepping)
	for _, c := range hand {
		if c == foreign {
			foreign = deck.NewCard(deck.King, deck.Hearts)
		}
	}
	err := table.MakeStep(stepping, Step{Kind: StepGiveComb, Cards: []deck.Card{foreign}})
	if err != ErrInvalidCards {
		t.Errorf("got %v, want ErrInvalidCards", err)
	}
}

func TestGiveCombOpensBoardAndAdvances(t *testing.T) {
	table := newTestTable(t, 5, 2)
	stepping := table.SteppingPlayer()
	hand, _ := table.PlayerCards(stepping)
	one := []deck.Card{hand[0]}
	if err := table.MakeStep(stepping, Step{Kind: StepGiveComb, Cards: one}); err != nil {
		t.Fatalf("MakeStep: %v", err)
	}
	state := table.State()
	if !state.Active {
		t.Fatal("expected board to become Active")
	}
	want, err := comb.Recognize(one)
	if err != nil {
		t.Fatalf("comb.Recognize: %v", err)
	}
	if !state.Board.Comb.Equal(want) {
		t.Error("board comb does not match the laid card")
	}
	if table.SteppingPlayer() == stepping {
		t.Error("stepping player did not advance after GiveComb")
	}
}

func TestTransCombMustStrictlyBeatTheBoard(t *testing.T) {
	table := newTestTable(t, 6, 2)
	stepping := table.SteppingPlayer()
	hand, _ := table.PlayerCards(stepping)

	// Find a low card to open with, distinct from the rest.
	low := hand[0]
	for _, c := range hand {
		if c.Rank < low.Rank {
			low = c
		}
	}
	if err := table.MakeStep(stepping, Step{Kind: StepGiveComb, Cards: []deck.Card{low}}); err != nil {
		t.Fatalf("GiveComb: %v", err)
	}

	next := table.SteppingPlayer()
	nextHand, _ := table.PlayerCards(next)
	weaker := nextHand[0]
	for _, c := range nextHand {
		if c.Rank < weaker.Rank {
			weaker = c
		}
	}
	if weaker.Rank <= low.Rank {
		err := table.MakeStep(next, Step{Kind: StepTransComb, Cards: []deck.Card{weaker}})
		if err != ErrWeakComb {
			t.Fatalf("got %v for a weaker/equal card, want ErrWeakComb", err)
		}
	}
}

func TestKickIsIdempotent(t *testing.T) {
	table := newTestTable(t, 7, 3)
	victim := PID(1)
	table.Kick(victim)
	if !table.IsKicked(victim) {
		t.Fatal("expected victim to be kicked")
	}
	table.Kick(victim)
	if !table.IsKicked(victim) {
		t.Fatal("second kick must remain idempotent")
	}
}

func TestKickingDownToOnePlayerDeclaresSurvivorWinner(t *testing.T) {
	table := newTestTable(t, 8, 2)
	ids := []PID{1, 2}
	loser, survivor := ids[0], ids[1]
	table.Kick(loser)
	winner, ok := table.Winner()
	if !ok {
		t.Fatal("expected a winner once only one player remains")
	}
	if winner != survivor {
		t.Errorf("winner = %v, want survivor %v", winner, survivor)
	}
}

func TestPlayersDecksExcludesStepping(t *testing.T) {
	table := newTestTable(t, 9, 3)
	stepping := table.SteppingPlayer()
	decks := table.PlayersDecks()
	if len(decks) != 2 {
		t.Fatalf("PlayersDecks() returned %d entries, want 2", len(decks))
	}
	hand, _ := table.PlayerCards(stepping)
	_ = hand
}
