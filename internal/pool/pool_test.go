package pool

import (
	"math/rand"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/pokerdurak/internal/game"
)

func newTestPool(t *testing.T, seed int64) *Pool {
	t.Helper()
	return New(zerolog.Nop(), rand.New(rand.NewSource(seed)), quartz.NewReal())
}

func TestFirstArrivalWaitsForASecond(t *testing.T) {
	p := newTestPool(t, 1)
	result := p.Arrive(game.PID(1))
	if !result.Waiting {
		t.Fatalf("first arrival should wait, got %+v", result)
	}
	select {
	case <-result.Matched:
		t.Fatal("first arrival matched before a second player arrived")
	default:
	}
}

func TestSecondArrivalMatchesBoth(t *testing.T) {
	p := newTestPool(t, 2)
	first := p.Arrive(game.PID(1))
	second := p.Arrive(game.PID(2))
	if !second.Waiting {
		t.Fatalf("second arrival should report Waiting with a fired Matched channel, got %+v", second)
	}

	select {
	case h := <-first.Matched:
		if h == nil || h.PID() != game.PID(1) {
			t.Fatalf("got handle %+v, want pid 1", h)
		}
	case <-time.After(time.Second):
		t.Fatal("first player was never matched")
	}
	select {
	case h := <-second.Matched:
		if h == nil || h.PID() != game.PID(2) {
			t.Fatalf("got handle %+v, want pid 2", h)
		}
	case <-time.After(time.Second):
		t.Fatal("second player was never matched")
	}

	if p.GamesTotal() != 1 {
		t.Errorf("GamesTotal() = %d, want 1", p.GamesTotal())
	}
	if p.GamesActive() != 1 {
		t.Errorf("GamesActive() = %d, want 1", p.GamesActive())
	}
}

func TestArriveRefusesAnAlreadyActivePlayer(t *testing.T) {
	p := newTestPool(t, 3)
	first := p.Arrive(game.PID(1))
	p.Arrive(game.PID(2))
	<-first.Matched

	again := p.Arrive(game.PID(1))
	if !again.AlreadyPlaying {
		t.Fatalf("got %+v, want AlreadyPlaying", again)
	}
}

func TestReconnectDuringGraceReclaimsTheHandle(t *testing.T) {
	p := newTestPool(t, 4)
	first := p.Arrive(game.PID(1))
	p.Arrive(game.PID(2))
	h := <-first.Matched

	finalized := make(chan bool, 1)
	p.Depart(game.PID(1), time.Second, func(won bool) { finalized <- won })

	reconnect := p.Arrive(game.PID(1))
	if !reconnect.Reconnected || reconnect.Handle == nil {
		t.Fatalf("got %+v, want a reconnect", reconnect)
	}
	if reconnect.Handle.PID() != h.PID() {
		t.Errorf("reconnected handle pid = %v, want %v", reconnect.Handle.PID(), h.PID())
	}

	select {
	case <-finalized:
		t.Fatal("departure finalizer ran despite reconnect")
	case <-time.After(1200 * time.Millisecond):
	}
}

func TestDepartureWithoutReconnectFinalizes(t *testing.T) {
	p := newTestPool(t, 5)
	first := p.Arrive(game.PID(1))
	p.Arrive(game.PID(2))
	<-first.Matched

	finalized := make(chan bool, 1)
	p.Depart(game.PID(1), 10*time.Millisecond, func(won bool) { finalized <- won })

	select {
	case <-finalized:
	case <-time.After(time.Second):
		t.Fatal("departure never finalized")
	}

	again := p.Arrive(game.PID(1))
	if !again.Waiting {
		t.Fatalf("pid should be free to rejoin after finalization, got %+v", again)
	}
}

func TestSteppingTimeStashAndClear(t *testing.T) {
	p := newTestPool(t, 6)
	pid := game.PID(9)
	if _, ok := p.SteppingTime(pid); ok {
		t.Fatal("expected no stepping time before it is set")
	}
	now := time.Now()
	p.SetSteppingTime(pid, now)
	got, ok := p.SteppingTime(pid)
	if !ok || !got.Equal(now) {
		t.Fatalf("got %v, %v, want %v, true", got, ok, now)
	}
	p.ClearSteppingTime(pid)
	if _, ok := p.SteppingTime(pid); ok {
		t.Fatal("expected stepping time to be cleared")
	}
}
