package protocol

import (
	"bytes"
	"encoding/json"
	"sync"
)

// bufferPool reuses encode buffers across frames; a table can be broadcasting
// to several clients concurrently.
var bufferPool = sync.Pool{
	New: func() interface{} {
		return &bytes.Buffer{}
	},
}

// Marshal serializes a server -> client message to its JSON wire form. v must
// be one of the protocol package's message types, each of which implements
// json.Marshaler directly.
func Marshal(v interface{}) ([]byte, error) {
	switch v.(type) {
	case Pong, ID, YouArePlaying, YourCards, YourTurn, YouMadeStep,
		StepError, Message, Sent, JSONError, GameWinner, GameLoser:
		// fall through to the shared encode path below
	default:
		return nil, ErrUnknownMessageType
	}

	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	enc := json.NewEncoder(buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	// Encode appends a trailing newline; frames are one JSON value each, so
	// strip it before handing the bytes to the websocket writer.
	out := make([]byte, buf.Len()-1)
	copy(out, buf.Bytes())
	return out, nil
}
