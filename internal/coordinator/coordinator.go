// Package coordinator implements the session protocol state machine:
// it interprets decoded client messages against registry state and emits
// the resulting replies and broadcasts.
package coordinator

import (
	"context"
	"crypto/rand"
	"math/big"

	"go.uber.org/zap"

	"github.com/howard36/3d-chess/internal/archive"
	"github.com/howard36/3d-chess/internal/game"
	"github.com/howard36/3d-chess/internal/msgcat"
	"github.com/howard36/3d-chess/internal/protocol"
)

// Fallback texts used when the message catalog cannot render a key.
const (
	textGameNotFound = "Invalid game ID"
	textGameFull     = "Game full"
	textInvalidMove  = "Invalid game or player state"
	textWrongTurn    = "Not your turn"
	textAlreadyBound = "Already in a game"
)

// Binding is a connection's place in the protocol: unset until a create
// or join succeeds, immutable afterward for the life of the connection.
type Binding struct {
	SessionID string
	Color     protocol.Color
}

func (b *Binding) Bound() bool { return b != nil && b.SessionID != "" }

type Coordinator struct {
	registry *game.Registry
	catalog  *msgcat.Catalog
	archive  archive.Repository
	logger   *zap.Logger
}

// New wires a coordinator. catalog and repo may be nil; logger defaults
// to a nop logger.
func New(registry *game.Registry, catalog *msgcat.Catalog, repo archive.Repository, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if repo == nil {
		repo = archive.NewMemory()
	}
	return &Coordinator{registry: registry, catalog: catalog, archive: repo, logger: logger}
}

// Handle processes one decoded inbound message from the connection whose
// send capability is sender and whose binding state is b. All resulting
// outbound messages are handed to the participants' channels before
// Handle returns.
func (c *Coordinator) Handle(ctx context.Context, sender game.Channel, b *Binding, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.CreateGame:
		c.handleCreate(ctx, sender, b)
	case protocol.JoinGame:
		c.handleJoin(ctx, sender, b, m)
	case protocol.Move:
		c.handleMove(ctx, sender, b, m)
	default:
		// Server-to-client variants are rejected by the decoder; this is
		// unreachable with a well-behaved transport layer.
		c.logger.Warn("coordinator_unexpected_message", zap.String("message_type", string(msg.MessageType())))
	}
}

func (c *Coordinator) handleCreate(ctx context.Context, sender game.Channel, b *Binding) {
	if b.Bound() {
		c.sendError(ctx, sender, protocol.CodeInvalidGame, c.text("error.already_bound", textAlreadyBound))
		return
	}

	s := c.registry.Create()
	color := randomColor()
	if err := s.Seat(color, sender); err != nil {
		// A fresh session has both seats free; only a programming error
		// could land here.
		c.logger.Error("session_seat_error", zap.String("session_id", s.ID), zap.Error(err))
		c.sendError(ctx, sender, protocol.CodeInvalidGame, c.text("error.game_not_found", textGameNotFound))
		return
	}
	b.SessionID = s.ID
	b.Color = color

	c.logger.Info("session_create",
		zap.String("session_id", s.ID),
		zap.String("creator_color", string(color)),
	)
	if err := c.archive.RecordSession(ctx, s.ID, color); err != nil {
		c.logger.Warn("archive_session_error", zap.String("session_id", s.ID), zap.Error(err))
	}

	c.send(ctx, sender, protocol.NewGameCreated(s.ID))
}

func (c *Coordinator) handleJoin(ctx context.Context, sender game.Channel, b *Binding, m protocol.JoinGame) {
	if b.Bound() {
		c.sendError(ctx, sender, protocol.CodeInvalidGame, c.text("error.already_bound", textAlreadyBound))
		return
	}

	s, ok := c.registry.Get(m.GameID)
	if !ok {
		c.sendError(ctx, sender, protocol.CodeInvalidGame, c.text("error.game_not_found", textGameNotFound))
		return
	}

	// Both game_start notifications go out inside the session's critical
	// section, white first, so neither participant can observe a move
	// racing ahead of its own start message.
	assigned, err := s.Admit(sender, func(color protocol.Color, seat game.Channel) {
		c.send(ctx, seat, protocol.NewGameStart(color))
	})
	if err != nil {
		c.sendError(ctx, sender, protocol.CodeInvalidGame, c.text("error.game_full", textGameFull))
		return
	}
	b.SessionID = s.ID
	b.Color = assigned

	c.logger.Info("session_join",
		zap.String("session_id", s.ID),
		zap.String("joiner_color", string(assigned)),
	)
}

func (c *Coordinator) handleMove(ctx context.Context, sender game.Channel, b *Binding, m protocol.Move) {
	if !b.Bound() {
		c.sendError(ctx, sender, protocol.CodeInvalidMove, c.text("error.invalid_move", textInvalidMove))
		return
	}
	s, ok := c.registry.Get(b.SessionID)
	if !ok {
		c.sendError(ctx, sender, protocol.CodeInvalidMove, c.text("error.invalid_move", textInvalidMove))
		return
	}

	made := protocol.NewMoveMade(b.Color, m.From, m.To, m.Promotion)
	err := s.Relay(b.Color, func(color protocol.Color, seat game.Channel) {
		c.send(ctx, seat, made)
	})
	if err != nil {
		c.sendError(ctx, sender, protocol.CodeWrongTurn, c.text("error.wrong_turn", textWrongTurn))
		return
	}

	c.logger.Info("move",
		zap.String("session_id", s.ID),
		zap.String("by", string(b.Color)),
		zap.String("from", m.From),
		zap.String("to", m.To),
		zap.String("promotion", string(m.Promotion)),
	)
	if err := c.archive.RecordMove(ctx, s.ID, archive.MoveRecord{
		By:        b.Color,
		From:      m.From,
		To:        m.To,
		Promotion: m.Promotion,
	}); err != nil {
		c.logger.Warn("archive_move_error", zap.String("session_id", s.ID), zap.Error(err))
	}
}

func (c *Coordinator) send(ctx context.Context, ch game.Channel, msg protocol.Message) {
	raw, err := protocol.Encode(msg)
	if err != nil {
		c.logger.Error("encode_error", zap.String("message_type", string(msg.MessageType())), zap.Error(err))
		return
	}
	// A failed send is a transport concern; the protocol state has
	// already committed by the time the frame is handed over.
	if err := ch.Send(ctx, raw); err != nil {
		c.logger.Warn("send_error", zap.String("message_type", string(msg.MessageType())), zap.Error(err))
	}
}

func (c *Coordinator) sendError(ctx context.Context, ch game.Channel, code protocol.ErrorCode, text string) {
	c.send(ctx, ch, protocol.NewError(code, text))
}

func (c *Coordinator) text(key, fallback string) string {
	if c.catalog == nil {
		return fallback
	}
	return c.catalog.Text(key, fallback)
}

// randomColor draws the creator's seat uniformly. White still moves
// first either way.
func randomColor() protocol.Color {
	if n, err := rand.Int(rand.Reader, big.NewInt(2)); err == nil && n.Int64() == 0 {
		return protocol.Black
	}
	return protocol.White
}
