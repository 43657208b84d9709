package coordinator

import (
	"context"
	"sync"
	"testing"

	"github.com/howard36/3d-chess/internal/archive"
	"github.com/howard36/3d-chess/internal/game"
	"github.com/howard36/3d-chess/internal/msgcat"
	"github.com/howard36/3d-chess/internal/protocol"
)

// fakeChannel records every outbound frame, decoded.
type fakeChannel struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (f *fakeChannel) Send(ctx context.Context, frame []byte) error {
	msg, err := protocol.DecodeServer(frame)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) all() []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Message, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func (f *fakeChannel) last(t *testing.T) protocol.Message {
	t.Helper()
	msgs := f.all()
	if len(msgs) == 0 { t.Fatalf("no messages received") }
	return msgs[len(msgs)-1]
}

func newTestCoordinator(t *testing.T) (*Coordinator, *game.Registry, archive.Repository) {
	t.Helper()
	catalog, err := msgcat.New("")
	if err != nil { t.Fatalf("msgcat.New: %v", err) }
	registry := game.NewRegistry()
	repo := archive.NewMemory()
	return New(registry, catalog, repo, nil), registry, repo
}

func createGame(t *testing.T, c *Coordinator) (*fakeChannel, *Binding, string) {
	t.Helper()
	ch := &fakeChannel{}
	b := &Binding{}
	c.Handle(context.Background(), ch, b, protocol.CreateGame{Type: protocol.TypeCreateGame})
	created, ok := ch.last(t).(protocol.GameCreated)
	if !ok { t.Fatalf("expected game_created, got %T", ch.last(t)) }
	if created.GameID == "" { t.Fatalf("empty game id") }
	return ch, b, created.GameID
}

func joinGame(t *testing.T, c *Coordinator, id string) (*fakeChannel, *Binding) {
	t.Helper()
	ch := &fakeChannel{}
	b := &Binding{}
	c.Handle(context.Background(), ch, b, protocol.JoinGame{Type: protocol.TypeJoinGame, GameID: id})
	return ch, b
}

func TestCreateGameRepliesToCreatorOnly(t *testing.T) {
	c, registry, _ := newTestCoordinator(t)
	ch, b, id := createGame(t, c)

	if len(ch.all()) != 1 { t.Fatalf("expected exactly one reply, got %d", len(ch.all())) }
	if !b.Bound() || b.SessionID != id { t.Fatalf("creator not bound: %+v", b) }
	if !b.Color.Valid() { t.Fatalf("creator color not assigned: %q", b.Color) }

	s, ok := registry.Get(id)
	if !ok { t.Fatalf("session not registered") }
	if s.Participants() != 1 { t.Fatalf("expected 1 participant, got %d", s.Participants()) }
	if s.Turn() != protocol.White { t.Fatalf("turn must preset to white, got %q", s.Turn()) }
}

func TestCreateWhileBoundRejected(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ch, b, id := createGame(t, c)

	c.Handle(context.Background(), ch, b, protocol.CreateGame{Type: protocol.TypeCreateGame})
	errMsg, ok := ch.last(t).(protocol.Error)
	if !ok { t.Fatalf("expected error, got %T", ch.last(t)) }
	if errMsg.Code != protocol.CodeInvalidGame { t.Fatalf("unexpected code %q", errMsg.Code) }
	if b.SessionID != id { t.Fatalf("binding changed on rejected create") }
}

func TestJoinStartsGameForBoth(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	creatorCh, creatorB, id := createGame(t, c)
	joinerCh, joinerB := joinGame(t, c, id)

	creatorStart, ok := creatorCh.last(t).(protocol.GameStart)
	if !ok { t.Fatalf("creator expected game_start, got %T", creatorCh.last(t)) }
	joinerStart, ok := joinerCh.last(t).(protocol.GameStart)
	if !ok { t.Fatalf("joiner expected game_start, got %T", joinerCh.last(t)) }

	if creatorStart.Color == joinerStart.Color {
		t.Fatalf("roles must be complementary, both got %q", creatorStart.Color)
	}
	if creatorStart.Color != creatorB.Color || joinerStart.Color != joinerB.Color {
		t.Fatalf("game_start color does not match binding")
	}
	if !joinerB.Bound() || joinerB.SessionID != id { t.Fatalf("joiner not bound: %+v", joinerB) }
}

func TestJoinUnknownGame(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ch, b := joinGame(t, c, "no-such-game")

	errMsg, ok := ch.last(t).(protocol.Error)
	if !ok { t.Fatalf("expected error, got %T", ch.last(t)) }
	if errMsg.Code != protocol.CodeInvalidGame { t.Fatalf("unexpected code %q", errMsg.Code) }
	if b.Bound() { t.Fatalf("binding must stay unset after rejected join") }
	if len(ch.all()) != 1 { t.Fatalf("expected exactly one error, got %d messages", len(ch.all())) }
}

func TestThirdJoinRejectedAsFull(t *testing.T) {
	c, registry, _ := newTestCoordinator(t)
	_, _, id := createGame(t, c)
	joinGame(t, c, id)

	thirdCh, thirdB := joinGame(t, c, id)
	errMsg, ok := thirdCh.last(t).(protocol.Error)
	if !ok { t.Fatalf("expected error, got %T", thirdCh.last(t)) }
	if errMsg.Code != protocol.CodeInvalidGame { t.Fatalf("unexpected code %q", errMsg.Code) }
	if errMsg.Message != "Game full" { t.Fatalf("expected fullness message, got %q", errMsg.Message) }
	if thirdB.Bound() { t.Fatalf("third client must stay unbound") }

	s, _ := registry.Get(id)
	if s.Participants() != 2 { t.Fatalf("participants changed on rejected join: %d", s.Participants()) }
}

// activePair creates a session with both seats taken and returns the
// white and black ends.
func activePair(t *testing.T, c *Coordinator) (white, black *fakeChannel, whiteB, blackB *Binding, id string) {
	t.Helper()
	creatorCh, creatorB, gameID := createGame(t, c)
	joinerCh, joinerB := joinGame(t, c, gameID)
	if creatorB.Color == protocol.White {
		return creatorCh, joinerCh, creatorB, joinerB, gameID
	}
	return joinerCh, creatorCh, joinerB, creatorB, gameID
}

func TestMoveBroadcastToBothAndTurnFlips(t *testing.T) {
	c, registry, repo := newTestCoordinator(t)
	white, black, whiteB, _, id := activePair(t, c)

	c.Handle(context.Background(), white, whiteB, protocol.Move{Type: protocol.TypeMove, From: "Aa1", To: "Aa2"})

	for name, ch := range map[string]*fakeChannel{"white": white, "black": black} {
		made, ok := ch.last(t).(protocol.MoveMade)
		if !ok { t.Fatalf("%s expected move_made, got %T", name, ch.last(t)) }
		if made.By != protocol.White || made.From != "Aa1" || made.To != "Aa2" || made.Promotion != "" {
			t.Fatalf("%s got wrong broadcast: %+v", name, made)
		}
	}

	s, _ := registry.Get(id)
	if s.Turn() != protocol.Black { t.Fatalf("turn must flip to black, got %q", s.Turn()) }

	moves, err := repo.SessionMoves(context.Background(), id)
	if err != nil { t.Fatalf("SessionMoves: %v", err) }
	if len(moves) != 1 || moves[0].By != protocol.White { t.Fatalf("archive mismatch: %+v", moves) }
}

func TestSecondMoveBySamePlayerRejected(t *testing.T) {
	c, registry, _ := newTestCoordinator(t)
	white, black, whiteB, _, id := activePair(t, c)

	c.Handle(context.Background(), white, whiteB, protocol.Move{Type: protocol.TypeMove, From: "Aa1", To: "Aa2"})
	blackBefore := len(black.all())

	c.Handle(context.Background(), white, whiteB, protocol.Move{Type: protocol.TypeMove, From: "Aa2", To: "Aa3"})
	errMsg, ok := white.last(t).(protocol.Error)
	if !ok { t.Fatalf("expected error, got %T", white.last(t)) }
	if errMsg.Code != protocol.CodeWrongTurn { t.Fatalf("unexpected code %q", errMsg.Code) }
	if errMsg.Message != "Not your turn" { t.Fatalf("unexpected message %q", errMsg.Message) }

	if len(black.all()) != blackBefore { t.Fatalf("opponent must see nothing for a rejected move") }
	s, _ := registry.Get(id)
	if s.Turn() != protocol.Black { t.Fatalf("turn changed on rejected move: %q", s.Turn()) }
}

func TestMoveBeforeOpponentJoins(t *testing.T) {
	c, registry, _ := newTestCoordinator(t)
	ch, b, id := createGame(t, c)

	c.Handle(context.Background(), ch, b, protocol.Move{Type: protocol.TypeMove, From: "Aa1", To: "Aa2"})

	s, _ := registry.Get(id)
	// The turn check is strict equality against the preset turn: a solo
	// creator holding black never holds it; a solo creator holding white
	// does, and the relay reaches only its own channel.
	switch b.Color {
	case protocol.Black:
		errMsg, ok := ch.last(t).(protocol.Error)
		if !ok { t.Fatalf("expected error, got %T", ch.last(t)) }
		if errMsg.Code != protocol.CodeWrongTurn { t.Fatalf("unexpected code %q", errMsg.Code) }
		if s.Turn() != protocol.White { t.Fatalf("turn changed on rejected move: %q", s.Turn()) }
	case protocol.White:
		made, ok := ch.last(t).(protocol.MoveMade)
		if !ok { t.Fatalf("expected move_made, got %T", ch.last(t)) }
		if made.By != protocol.White { t.Fatalf("unexpected mover %q", made.By) }
		if s.Turn() != protocol.Black { t.Fatalf("turn must flip after accepted move: %q", s.Turn()) }
	}
}

func TestMoveWhileUnbound(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ch := &fakeChannel{}
	b := &Binding{}

	c.Handle(context.Background(), ch, b, protocol.Move{Type: protocol.TypeMove, From: "Aa1", To: "Aa2"})
	errMsg, ok := ch.last(t).(protocol.Error)
	if !ok { t.Fatalf("expected error, got %T", ch.last(t)) }
	if errMsg.Code != protocol.CodeInvalidMove { t.Fatalf("unexpected code %q", errMsg.Code) }
	if errMsg.Message != "Invalid game or player state" { t.Fatalf("unexpected message %q", errMsg.Message) }
	if len(ch.all()) != 1 { t.Fatalf("expected exactly one error, got %d", len(ch.all())) }
}

func TestMoveAgainstVanishedSession(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ch := &fakeChannel{}
	b := &Binding{SessionID: "gone", Color: protocol.White}

	c.Handle(context.Background(), ch, b, protocol.Move{Type: protocol.TypeMove, From: "Aa1", To: "Aa2"})
	errMsg, ok := ch.last(t).(protocol.Error)
	if !ok { t.Fatalf("expected error, got %T", ch.last(t)) }
	if errMsg.Code != protocol.CodeInvalidMove { t.Fatalf("unexpected code %q", errMsg.Code) }
}

func TestCreatorColorBothOutcomesPossible(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	seen := make(map[protocol.Color]bool)
	for i := 0; i < 200 && len(seen) < 2; i++ {
		_, b, _ := createGame(t, c)
		seen[b.Color] = true
	}
	if len(seen) != 2 {
		t.Fatalf("creator color never varied across 200 creations: %v", seen)
	}
}

func TestMovePromotionRelayedVerbatim(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	white, black, whiteB, _, _ := activePair(t, c)

	c.Handle(context.Background(), white, whiteB, protocol.Move{Type: protocol.TypeMove, From: "Ea5", To: "Eb5", Promotion: protocol.PromoteKnight})
	made, ok := black.last(t).(protocol.MoveMade)
	if !ok { t.Fatalf("expected move_made, got %T", black.last(t)) }
	if made.Promotion != protocol.PromoteKnight { t.Fatalf("promotion dropped: %+v", made) }
}
