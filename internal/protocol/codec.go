package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeError marks a frame that failed schema validation. The coordinator
// never sees such frames; the transport layer rejects them.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "decode: " + e.Reason }

func decodeErrf(format string, args ...any) error {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// Decode parses one inbound client frame into exactly one of the
// client-to-server variants (create_game, join_game, move). Unknown
// discriminants, extra fields, missing required fields, malformed
// coordinates and unknown promotion tags are all rejected here.
func Decode(raw []byte) (Message, error) {
	var probe struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, decodeErrf("not a JSON object: %v", err)
	}

	switch probe.Type {
	case TypeCreateGame:
		var m CreateGame
		if err := strictUnmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil

	case TypeJoinGame:
		var m JoinGame
		if err := strictUnmarshal(raw, &m); err != nil {
			return nil, err
		}
		if strings.TrimSpace(m.GameID) == "" {
			return nil, decodeErrf("join_game requires gameId")
		}
		return m, nil

	case TypeMove:
		var m Move
		if err := strictUnmarshal(raw, &m); err != nil {
			return nil, err
		}
		if !ValidCoord(m.From) {
			return nil, decodeErrf("move has malformed from square %q", m.From)
		}
		if !ValidCoord(m.To) {
			return nil, decodeErrf("move has malformed to square %q", m.To)
		}
		if !m.Promotion.Valid() {
			return nil, decodeErrf("move has unknown promotion %q", m.Promotion)
		}
		if m.Promotion == "" && hasExplicitEmptyPromotion(raw) {
			return nil, decodeErrf("move has empty promotion")
		}
		return m, nil

	case "":
		return nil, decodeErrf("missing type discriminant")
	default:
		return nil, decodeErrf("unexpected message type %q", probe.Type)
	}
}

// DecodeServer parses one server-to-client frame (game_created,
// game_start, move_made, error) under the same strictness as Decode.
// Client-side tooling uses it; the server only ever emits these.
func DecodeServer(raw []byte) (Message, error) {
	var probe struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, decodeErrf("not a JSON object: %v", err)
	}

	switch probe.Type {
	case TypeGameCreated:
		var m GameCreated
		if err := strictUnmarshal(raw, &m); err != nil {
			return nil, err
		}
		if strings.TrimSpace(m.GameID) == "" {
			return nil, decodeErrf("game_created requires gameId")
		}
		return m, nil

	case TypeGameStart:
		var m GameStart
		if err := strictUnmarshal(raw, &m); err != nil {
			return nil, err
		}
		if !m.Color.Valid() {
			return nil, decodeErrf("game_start has unknown color %q", m.Color)
		}
		return m, nil

	case TypeMoveMade:
		var m MoveMade
		if err := strictUnmarshal(raw, &m); err != nil {
			return nil, err
		}
		if !m.By.Valid() {
			return nil, decodeErrf("move_made has unknown color %q", m.By)
		}
		if !ValidCoord(m.From) || !ValidCoord(m.To) {
			return nil, decodeErrf("move_made has malformed squares %q %q", m.From, m.To)
		}
		if !m.Promotion.Valid() {
			return nil, decodeErrf("move_made has unknown promotion %q", m.Promotion)
		}
		if m.Promotion == "" && hasExplicitEmptyPromotion(raw) {
			return nil, decodeErrf("move_made has empty promotion")
		}
		return m, nil

	case TypeError:
		var m Error
		if err := strictUnmarshal(raw, &m); err != nil {
			return nil, err
		}
		switch m.Code {
		case CodeInvalidGame, CodeInvalidMove, CodeWrongTurn:
		default:
			return nil, decodeErrf("error has unknown code %q", m.Code)
		}
		return m, nil

	case "":
		return nil, decodeErrf("missing type discriminant")
	default:
		return nil, decodeErrf("unexpected message type %q", probe.Type)
	}
}

// Encode serializes an outbound message.
func Encode(m Message) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}
	return raw, nil
}

// hasExplicitEmptyPromotion distinguishes {"promotion":""} from an absent
// promotion field; only absence means "no promotion" on the wire.
func hasExplicitEmptyPromotion(raw []byte) bool {
	var probe struct {
		Promotion *string `json:"promotion"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Promotion != nil && *probe.Promotion == ""
}

func strictUnmarshal(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return decodeErrf("%v", err)
	}
	// Reject trailing garbage after the object.
	if dec.More() {
		return decodeErrf("trailing data after message")
	}
	return nil
}
