package worker

import (
	"math/rand"
	"testing"
	"time"

	"github.com/lox/pokerdurak/internal/game"
)

func spawnTest(t *testing.T, seed int64, n int) (*Worker, []game.PID) {
	t.Helper()
	ids := make([]game.PID, n)
	for i := range ids {
		ids[i] = game.PID(i + 1)
	}
	w, err := Spawn(rand.New(rand.NewSource(seed)), ids)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	return w, ids
}

func TestHandleMakeStepAndQueries(t *testing.T) {
	w, ids := spawnTest(t, 1, 2)
	var stepping game.PID
	for _, id := range ids {
		h := w.Handle(id)
		sp, err := h.SteppingPlayer()
		if err != nil {
			t.Fatalf("SteppingPlayer: %v", err)
		}
		if sp == id {
			stepping = id
		}
	}

	h := w.Handle(stepping)
	deckBefore, err := h.DeckSize()
	if err != nil {
		t.Fatalf("DeckSize: %v", err)
	}
	if err := h.MakeStep(game.Step{Kind: game.StepGetCard}); err != nil {
		t.Fatalf("MakeStep: %v", err)
	}
	deckAfter, err := h.DeckSize()
	if err != nil {
		t.Fatalf("DeckSize: %v", err)
	}
	if deckAfter != deckBefore-1 {
		t.Errorf("DeckSize() = %d, want %d", deckAfter, deckBefore-1)
	}
}

func TestChatMailboxIsFIFOAndExcludesSender(t *testing.T) {
	w, ids := spawnTest(t, 2, 3)
	sender := w.Handle(ids[0])
	if err := sender.SendMessage("hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if err := sender.SendMessage("world"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	msgs, err := sender.GetMessages()
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("sender's own mailbox should stay empty, got %v", msgs)
	}

	recipient := w.Handle(ids[1])
	msgs, err = recipient.GetMessages()
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0] != "hello" || msgs[1] != "world" {
		t.Errorf("got %v, want [hello world] in order", msgs)
	}

	// A second drain finds nothing left.
	msgs, err = recipient.GetMessages()
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected mailbox to be empty after drain, got %v", msgs)
	}
}

func TestExitingAllPlayersTearsDownTheWorker(t *testing.T) {
	w, ids := spawnTest(t, 3, 2)
	for i, id := range ids {
		wasLast, err := w.Handle(id).Exit()
		if err != nil {
			t.Fatalf("Exit: %v", err)
		}
		if want := i == len(ids)-1; wasLast != want {
			t.Errorf("Exit() wasLast = %v, want %v", wasLast, want)
		}
	}
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not tear down after all players exited")
	}
}

func TestCallAfterDoneReturnsErrWorkerExited(t *testing.T) {
	w, ids := spawnTest(t, 4, 2)
	for _, id := range ids {
		_, _ = w.Handle(id).Exit()
	}
	<-w.Done()

	h := w.Handle(ids[0])
	if _, err := h.DeckSize(); err != ErrWorkerExited {
		t.Errorf("got %v, want ErrWorkerExited", err)
	}
}
