package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/docserve/internal/hub"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to the peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from the peer.
	maxMessageSize = 512
)

// handleWebSocket upgrades the connection and wires a hub session to it.
// The session lives until the browser goes away; build failures are pushed
// as updates, never as disconnects.
func (s *PreviewServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The server binds to localhost by default; same-host pages
		// served by us are the only expected origins.
		OriginPatterns: []string{r.Host, "localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.log.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}

	conn.SetReadLimit(maxMessageSize)
	session := s.hub.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		defer cancel()
		s.readPump(ctx, conn)
	}()

	go func() {
		defer cancel()
		defer s.hub.Unsubscribe(session)
		defer conn.Close(websocket.StatusNormalClosure, "")
		s.writePump(ctx, conn, session)
	}()
}

// readPump discards inbound messages; its only job is noticing that the
// peer went away.
func (s *PreviewServer) readPump(ctx context.Context, conn *websocket.Conn) {
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// writePump pushes hub updates and keepalive pings to the peer.
func (s *PreviewServer) writePump(ctx context.Context, conn *websocket.Conn, session *hub.Session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case update, ok := <-session.Updates():
			if !ok {
				return
			}
			payload, err := json.Marshal(update)
			if err != nil {
				s.log.Warn(ctx, err, "marshalling update")
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err = conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
