package wsclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/howard36/3d-chess/internal/protocol"
)

var ErrNotConnected = errors.New("websocket not connected")

// MessageCallback receives every decoded server frame.
type MessageCallback func(msg protocol.Message)

// WebSocket is one client connection to the session server. There is no
// session resume in the protocol, so a redial always starts unbound.
type WebSocket struct {
	wsURL string

	conn   *websocket.Conn
	connMu sync.Mutex

	msgCbs []MessageCallback
	cbM    sync.RWMutex

	writeTimeout time.Duration
	pingInterval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWebSocket(wsURL string) *WebSocket {
	return &WebSocket{
		wsURL:        wsURL,
		writeTimeout: 5 * time.Second,
		pingInterval: 30 * time.Second,
		stopCh:       make(chan struct{}),
	}
}

// Connect dials the server and starts the listen and ping loops.
func (ws *WebSocket) Connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, ws.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return err
	}

	ws.connMu.Lock()
	ws.conn = conn
	ws.connMu.Unlock()

	ws.wg.Add(2)
	go ws.listen()
	go ws.pingLoop()
	return nil
}

// OnMessage registers a callback for decoded server frames. Register
// before Connect to avoid missing early messages.
func (ws *WebSocket) OnMessage(cb MessageCallback) {
	ws.cbM.Lock()
	defer ws.cbM.Unlock()
	ws.msgCbs = append(ws.msgCbs, cb)
}

// CreateGame sends a create_game request.
func (ws *WebSocket) CreateGame(ctx context.Context) error {
	return ws.write(ctx, protocol.CreateGame{Type: protocol.TypeCreateGame})
}

// JoinGame sends a join_game request for the given session id.
func (ws *WebSocket) JoinGame(ctx context.Context, gameID string) error {
	return ws.write(ctx, protocol.JoinGame{Type: protocol.TypeJoinGame, GameID: gameID})
}

// SendMove submits a move.
func (ws *WebSocket) SendMove(ctx context.Context, from, to string, promotion protocol.Promotion) error {
	return ws.write(ctx, protocol.Move{Type: protocol.TypeMove, From: from, To: to, Promotion: promotion})
}

func (ws *WebSocket) write(ctx context.Context, msg protocol.Message) error {
	ws.connMu.Lock()
	conn := ws.conn
	ws.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	raw, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, ws.writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, raw)
}

func (ws *WebSocket) listen() {
	defer ws.wg.Done()
	for {
		select {
		case <-ws.stopCh:
			return
		default:
		}

		ws.connMu.Lock()
		conn := ws.conn
		ws.connMu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.Read(context.Background())
		if err != nil {
			return
		}
		msg, err := protocol.DecodeServer(raw)
		if err != nil {
			// Server frames that fail validation are dropped; the server
			// is the authority on the wire format.
			continue
		}

		ws.cbM.RLock()
		callbacks := make([]MessageCallback, len(ws.msgCbs))
		copy(callbacks, ws.msgCbs)
		ws.cbM.RUnlock()
		for _, cb := range callbacks {
			if cb != nil {
				cb(msg)
			}
		}
	}
}

func (ws *WebSocket) pingLoop() {
	defer ws.wg.Done()
	t := time.NewTicker(ws.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ws.stopCh:
			return
		case <-t.C:
			ws.connMu.Lock()
			conn := ws.conn
			ws.connMu.Unlock()
			if conn == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// Close tears the connection down and waits for the loops to exit.
func (ws *WebSocket) Close(ctx context.Context) error {
	ws.stopOnce.Do(func() { close(ws.stopCh) })

	ws.connMu.Lock()
	if ws.conn != nil {
		_ = ws.conn.Close(websocket.StatusNormalClosure, "close")
		ws.conn = nil
	}
	ws.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		ws.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
