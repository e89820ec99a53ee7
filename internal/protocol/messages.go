// Package protocol defines the websocket wire messages exchanged between a
// client and a table session, and the JSON codec between them.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/lox/pokerdurak/internal/deck"
	"github.com/lox/pokerdurak/internal/game"
)

// ErrUnknownMessageType is returned by Marshal for a value with no registered
// wire encoding.
var ErrUnknownMessageType = errors.New("protocol: unknown message type")

// ErrMalformedRequest is returned by UnmarshalRequest when data is not one of
// the recognised client request shapes. The caller should reply JsonError
// and keep the connection open.
var ErrMalformedRequest = errors.New("protocol: malformed client request")

// RequestKind distinguishes the four shapes a client frame can take.
type RequestKind int

const (
	ReqPing RequestKind = iota
	ReqMakeStep
	ReqSendMessage
	ReqExit
)

// Request is the decoded form of one client -> server frame.
type Request struct {
	Kind RequestKind
	Step game.Step // set when Kind == ReqMakeStep
	Text string    // set when Kind == ReqSendMessage
}

// UnmarshalRequest decodes one client -> server JSON value. Client requests
// are a tagged union rather than a single concrete struct, so decoding means
// sniffing the shape of the value rather than filling a caller-supplied
// pointer.
func UnmarshalRequest(data []byte) (Request, error) {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		switch bare {
		case "Ping":
			return Request{Kind: ReqPing}, nil
		case "Exit":
			return Request{Kind: ReqExit}, nil
		default:
			return Request{}, ErrMalformedRequest
		}
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(data, &keyed); err != nil || len(keyed) != 1 {
		return Request{}, ErrMalformedRequest
	}

	if raw, ok := keyed["MakeStep"]; ok {
		step, err := unmarshalStep(raw)
		if err != nil {
			return Request{}, err
		}
		return Request{Kind: ReqMakeStep, Step: step}, nil
	}
	if raw, ok := keyed["SendMessage"]; ok {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return Request{}, ErrMalformedRequest
		}
		return Request{Kind: ReqSendMessage, Text: text}, nil
	}
	return Request{}, ErrMalformedRequest
}

func unmarshalStep(data json.RawMessage) (game.Step, error) {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		switch bare {
		case "GetCard":
			return game.Step{Kind: game.StepGetCard}, nil
		case "GetComb":
			return game.Step{Kind: game.StepGetComb}, nil
		default:
			return game.Step{}, ErrMalformedRequest
		}
	}

	var keyed map[string][]deck.Card
	if err := json.Unmarshal(data, &keyed); err != nil || len(keyed) != 1 {
		return game.Step{}, ErrMalformedRequest
	}
	if cards, ok := keyed["GiveComb"]; ok {
		return game.Step{Kind: game.StepGiveComb, Cards: cards}, nil
	}
	if cards, ok := keyed["TransComb"]; ok {
		return game.Step{Kind: game.StepTransComb, Cards: cards}, nil
	}
	return game.Step{}, ErrMalformedRequest
}

// Pong answers a client Ping.
type Pong struct{}

func (Pong) MarshalJSON() ([]byte, error) { return json.Marshal("Pong") }

// ID carries the player's own pid, sent once on connect.
type ID struct {
	Value uint64
}

func (m ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID uint64 `json:"ID"`
	}{m.Value})
}

// YouArePlaying announces that a table seat was assigned. It is also the
// reply, sent before closing, to a connection whose pid is already playing.
type YouArePlaying struct{}

func (YouArePlaying) MarshalJSON() ([]byte, error) { return json.Marshal("YouArePlaying") }

// YourCards reports the client's hand and the remaining deck size.
type YourCards struct {
	Cards    []deck.Card
	DeckSize int
}

func (m YourCards) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		YourCards [2]interface{} `json:"YourCards"`
	}{[2]interface{}{m.Cards, m.DeckSize}})
}

// YourTurn prompts the client to act; SecondsLeft counts down the turn
// timeout.
type YourTurn struct {
	Board        wireBoard
	Hand         []deck.Card
	DeckSize     int
	NextHandSize int
	SecondsLeft  int
}

func (m YourTurn) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		YourTurn [5]interface{} `json:"YourTurn"`
	}{[5]interface{}{m.Board, m.Hand, m.DeckSize, m.NextHandSize, m.SecondsLeft}})
}

// YouMadeStep confirms a step was applied and reports the resulting state.
type YouMadeStep struct {
	Board        wireBoard
	Hand         []deck.Card
	DeckSize     int
	NextHandSize int
}

func (m YouMadeStep) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		YouMadeStep [4]interface{} `json:"YouMadeStep"`
	}{[4]interface{}{m.Board, m.Hand, m.DeckSize, m.NextHandSize}})
}

// StepError reports why a step was rejected; the state machine is unchanged.
type StepError struct {
	Kind string
}

func (m StepError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		StepError string `json:"StepError"`
	}{m.Kind})
}

// StepErrorKind maps a game package sentinel error to its wire name.
func StepErrorKind(err error) string {
	switch err {
	case game.ErrInvalidPID:
		return "InvalidPID"
	case game.ErrInvalidStepType:
		return "InvalidStepType"
	case game.ErrInvalidCards:
		return "InvalidCards"
	case game.ErrInvalidComb:
		return "InvalidComb"
	case game.ErrWeakComb:
		return "WeakComb"
	default:
		return "InvalidStepType"
	}
}

// Message is a chat line broadcast to a table.
type Message struct {
	Text string
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Message string `json:"Message"`
	}{m.Text})
}

// Sent acknowledges a SendMessage request.
type Sent struct {
	OK bool
}

func (m Sent) MarshalJSON() ([]byte, error) {
	if m.OK {
		return json.Marshal(struct {
			Sent struct {
				Ok *struct{} `json:"Ok"`
			} `json:"Sent"`
		}{})
	}
	return json.Marshal(struct {
		Sent struct {
			Err *struct{} `json:"Err"`
		} `json:"Sent"`
	}{})
}

// JSONError is sent when a received frame does not parse as a request; the
// connection stays open.
type JSONError struct{}

func (JSONError) MarshalJSON() ([]byte, error) { return json.Marshal("JsonError") }

// GameWinner announces this client won its table.
type GameWinner struct{}

func (GameWinner) MarshalJSON() ([]byte, error) { return json.Marshal("GameWinner") }

// GameLoser announces this client was kicked or ran out the clock.
type GameLoser struct{}

func (GameLoser) MarshalJSON() ([]byte, error) { return json.Marshal("GameLoser") }

// wireBoard is board_state on the wire: "Passive" or
// {"Active": {"cards": [...], "comb": {"cards": [...]}}}. comb.rank is
// intentionally omitted; the client treats the board as opaque or recomputes
// it itself.
type wireBoard struct {
	state game.BoardState
}

// NewWireBoard adapts a game.BoardState to its wire representation.
func NewWireBoard(state game.BoardState) wireBoard {
	return wireBoard{state: state}
}

type wireComb struct {
	Cards []deck.Card `json:"cards"`
}

type wireActiveBoard struct {
	Cards []deck.Card `json:"cards"`
	Comb  wireComb    `json:"comb"`
}

func (b wireBoard) MarshalJSON() ([]byte, error) {
	if !b.state.Active {
		return json.Marshal("Passive")
	}
	return json.Marshal(struct {
		Active wireActiveBoard `json:"Active"`
	}{
		Active: wireActiveBoard{
			Cards: b.state.Board.Cards,
			Comb:  wireComb{Cards: b.state.Board.Comb.Cards},
		},
	})
}
