// Package game holds the per-session coordination state and the
// process-wide registry of live sessions.
package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/howard36/3d-chess/internal/protocol"
)

var (
	ErrSeatTaken   = errors.New("seat already occupied")
	ErrFull        = errors.New("session already has two participants")
	ErrNotYourTurn = errors.New("not this player's turn")
)

// Channel is the per-participant send capability owned by the transport
// layer. Sends are expected to be queued or bounded; a Channel must never
// block indefinitely.
type Channel interface {
	Send(ctx context.Context, frame []byte) error
}

// Session is one game's coordination state: who sits where and whose
// move is accepted next. All mutation happens under the session mutex so
// concurrent joins and moves on the same session cannot interleave.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu    sync.Mutex
	seats map[protocol.Color]Channel
	turn  protocol.Color
}

func newSession(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		seats:     make(map[protocol.Color]Channel, 2),
		// White moves first regardless of which color the creator drew.
		turn: protocol.White,
	}
}

// Turn reports the color currently allowed to move.
func (s *Session) Turn() protocol.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

// Participants reports how many seats are taken.
func (s *Session) Participants() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seats)
}

// Seat places ch at the given color. Used when the creator takes its
// randomly drawn seat in a fresh session. An occupied seat is never
// reassigned.
func (s *Session) Seat(color protocol.Color, ch Channel) error {
	if !color.Valid() || ch == nil {
		return ErrSeatTaken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.seats[color]; taken {
		return ErrSeatTaken
	}
	s.seats[color] = ch
	return nil
}

// Admit seats ch at the one free color and invokes notify for every
// participant in white-then-black order while the session lock is still
// held, so a racing join or move cannot slip between the seat assignment
// and the notifications. Returns the color the joiner was assigned.
func (s *Session) Admit(ch Channel, notify func(protocol.Color, Channel)) (protocol.Color, error) {
	if ch == nil {
		return "", ErrFull
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.seats) >= 2 {
		return "", ErrFull
	}
	assigned := protocol.White
	if _, taken := s.seats[protocol.White]; taken {
		assigned = protocol.Black
	}
	s.seats[assigned] = ch
	if notify != nil {
		for _, color := range []protocol.Color{protocol.White, protocol.Black} {
			if seat, ok := s.seats[color]; ok {
				notify(color, seat)
			}
		}
	}
	return assigned, nil
}

// Relay accepts a move by the given color: it validates the turn, invokes
// broadcast for every participant (mover included) and then flips the
// turn, all in one critical section. A rejected move leaves the turn and
// the seats untouched.
func (s *Session) Relay(by protocol.Color, broadcast func(protocol.Color, Channel)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turn != by {
		return ErrNotYourTurn
	}
	if broadcast != nil {
		for _, color := range []protocol.Color{protocol.White, protocol.Black} {
			if seat, ok := s.seats[color]; ok {
				broadcast(color, seat)
			}
		}
	}
	s.turn = by.Other()
	return nil
}
