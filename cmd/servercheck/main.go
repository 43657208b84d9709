// servercheck probes a running session server: it hits the health
// surface, opens a WebSocket, creates a game and waits for the
// game_created reply.
package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/howard36/3d-chess/internal/protocol"
	"github.com/howard36/3d-chess/internal/wsclient"
)

func main() {
	baseURL := strings.TrimSpace(os.Getenv("SERVER_BASE_URL"))
	wsURL := strings.TrimSpace(os.Getenv("SERVER_WS_URL"))

	if baseURL == "" {
		log.Fatal("SERVER_BASE_URL is required")
	}

	client := wsclient.NewClient(baseURL, wsclient.WithTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := client.Health(ctx)
	if err != nil {
		log.Fatalf("/health error: %v", err)
	}
	log.Printf("/health ok: status=%s", health.Status)

	status, err := client.Status(ctx)
	if err != nil {
		log.Printf("/status error: %v", err)
	} else {
		log.Printf("/status ok: sessions=%d connections=%d", status.Sessions, status.Connections)
	}

	if wsURL == "" {
		wsURL = strings.Replace(baseURL, "http", "ws", 1) + "/ws"
	}

	ws := wsclient.NewWebSocket(wsURL)
	created := make(chan string, 1)
	ws.OnMessage(func(msg protocol.Message) {
		if m, ok := msg.(protocol.GameCreated); ok {
			created <- m.GameID
		}
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Fatalf("ws connect error: %v", err)
	}

	if err := ws.CreateGame(cctx); err != nil {
		log.Fatalf("create_game send error: %v", err)
	}

	select {
	case id := <-created:
		log.Printf("ws ok: game_created id=%s", id)
	case <-time.After(10 * time.Second):
		log.Fatal("ws timeout: no game_created reply")
	}

	_ = ws.Close(context.Background())
}
