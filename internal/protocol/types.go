// Package protocol defines the closed set of JSON messages exchanged
// between clients and the session server, plus the strict decoder that
// guards the coordinator from malformed input.
package protocol

import "regexp"

// Type discriminates message variants on the wire.
type Type string

const (
	TypeCreateGame  Type = "create_game"
	TypeGameCreated Type = "game_created"
	TypeJoinGame    Type = "join_game"
	TypeGameStart   Type = "game_start"
	TypeMove        Type = "move"
	TypeMoveMade    Type = "move_made"
	TypeError       Type = "error"
)

// Color identifies a side of a session. White always moves first.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Valid() bool { return c == White || c == Black }

// Other returns the opposing color.
func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// Promotion is an optional piece tag carried with a move. The server
// relays it opaquely; U marks an unspecified promotion.
type Promotion string

const (
	PromoteQueen       Promotion = "Q"
	PromoteRook        Promotion = "R"
	PromoteBishop      Promotion = "B"
	PromoteKnight      Promotion = "N"
	PromoteUnspecified Promotion = "U"
)

func (p Promotion) Valid() bool {
	switch p {
	case "", PromoteQueen, PromoteRook, PromoteBishop, PromoteKnight, PromoteUnspecified:
		return true
	}
	return false
}

// ErrorCode is the closed set of protocol-level rejection codes.
type ErrorCode string

const (
	CodeInvalidGame ErrorCode = "invalid_game"
	CodeInvalidMove ErrorCode = "invalid_move"
	CodeWrongTurn   ErrorCode = "wrong_turn"
)

// coordPattern matches one square of the 5x5x5 board: level, file, rank.
var coordPattern = regexp.MustCompile(`^[A-E][a-e][1-5]$`)

// ValidCoord reports whether s names a board square.
func ValidCoord(s string) bool { return coordPattern.MatchString(s) }

// Message is implemented by every wire variant.
type Message interface {
	MessageType() Type
}

// CreateGame asks the server to open a new session. No payload.
type CreateGame struct {
	Type Type `json:"type"`
}

// GameCreated carries the id of a freshly created session back to its creator.
type GameCreated struct {
	Type   Type   `json:"type"`
	GameID string `json:"gameId"`
}

// JoinGame asks to take the free seat of an existing session.
type JoinGame struct {
	Type   Type   `json:"type"`
	GameID string `json:"gameId"`
}

// GameStart tells a participant its assigned color once both seats are taken.
type GameStart struct {
	Type            Type   `json:"type"`
	Color           Color  `json:"color"`
	InitialPosition string `json:"initialPosition,omitempty"`
}

// Move submits a move for the sender's session.
type Move struct {
	Type      Type      `json:"type"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Promotion Promotion `json:"promotion,omitempty"`
}

// MoveMade is the broadcast form of an accepted move.
type MoveMade struct {
	Type      Type      `json:"type"`
	By        Color     `json:"by"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Promotion Promotion `json:"promotion,omitempty"`
}

// Error reports a rejected request to the offending sender only.
type Error struct {
	Type    Type      `json:"type"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (CreateGame) MessageType() Type  { return TypeCreateGame }
func (GameCreated) MessageType() Type { return TypeGameCreated }
func (JoinGame) MessageType() Type    { return TypeJoinGame }
func (GameStart) MessageType() Type   { return TypeGameStart }
func (Move) MessageType() Type        { return TypeMove }
func (MoveMade) MessageType() Type    { return TypeMoveMade }
func (Error) MessageType() Type       { return TypeError }

// Constructors fill in the discriminant so callers cannot emit an untagged frame.

func NewGameCreated(gameID string) GameCreated {
	return GameCreated{Type: TypeGameCreated, GameID: gameID}
}

func NewGameStart(color Color) GameStart {
	return GameStart{Type: TypeGameStart, Color: color}
}

func NewMoveMade(by Color, from, to string, promotion Promotion) MoveMade {
	return MoveMade{Type: TypeMoveMade, By: by, From: from, To: to, Promotion: promotion}
}

func NewError(code ErrorCode, message string) Error {
	return Error{Type: TypeError, Code: code, Message: message}
}
