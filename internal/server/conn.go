package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/howard36/3d-chess/internal/coordinator"
	"github.com/howard36/3d-chess/internal/protocol"
)

// wsChannel adapts one websocket connection to the game.Channel send
// capability. Every write carries a bounded deadline so a dead peer
// cannot wedge a session's critical section.
type wsChannel struct {
	conn    *websocket.Conn
	timeout time.Duration

	mu sync.Mutex
}

// Send is invoked with the originating request's context, but a frame may
// be destined for the opponent: its delivery must not be cut short by the
// sender's connection going away, so the write deadline derives from the
// channel's own timeout only.
func (c *wsChannel) Send(_ context.Context, frame []byte) error {
	wctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(wctx, websocket.MessageText, frame)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if len(s.cfg.AllowedOrigins) > 0 {
		opts.OriginPatterns = s.cfg.AllowedOrigins
	} else {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Warn("ws_accept_error", zap.Error(err))
		return
	}

	s.conns.Add(1)
	s.logger.Info("ws_accept", zap.String("remote", r.RemoteAddr))
	defer func() {
		s.conns.Add(-1)
		s.logger.Info("ws_close", zap.String("remote", r.RemoteAddr))
	}()
	defer conn.Close(websocket.StatusGoingAway, "server closing connection")

	s.serveConn(r.Context(), conn, r.RemoteAddr)
}

// serveConn runs one connection's read loop: decode each inbound frame,
// hand it to the coordinator, repeat until the peer goes away. Malformed
// frames are a connection-level rejection; the coordinator never sees
// them. Disconnect performs no session cleanup.
func (s *Server) serveConn(ctx context.Context, conn *websocket.Conn, remote string) {
	ch := &wsChannel{conn: conn, timeout: s.cfg.WSWriteTimeout}
	binding := &coordinator.Binding{}

	for {
		typ, raw, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Debug("ws_read_end", zap.String("remote", remote), zap.Error(err))
			return
		}
		if typ != websocket.MessageText {
			_ = conn.Close(websocket.StatusUnsupportedData, "text frames only")
			return
		}

		msg, err := protocol.Decode(raw)
		if err != nil {
			s.logger.Warn("ws_decode_reject", zap.String("remote", remote), zap.Error(err))
			_ = conn.Close(websocket.StatusInvalidFramePayloadData, "malformed message")
			return
		}

		s.coord.Handle(ctx, ch, binding, msg)
	}
}
