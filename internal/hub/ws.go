package hub

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/alexanderramin/todotree/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	FrameChange = "change"

	// SeqHeader carries the hub sequence number on API responses. A snapshot
	// includes every change up to it; a command's change is at or below it.
	SeqHeader = "X-Todotree-Seq"

	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
)

// Frame is the JSON message sent on the change stream.
type Frame struct {
	Type   string            `json:"type"`
	Seq    uint64            `json:"seq,omitempty"`
	Change *domain.ChangeSet `json:"change,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWS streams every published ChangeSet as a change frame. The
// subscription is taken before the handshake completes, so a client that
// fetches a snapshot after dialing misses nothing.
func (s *Server) handleWS(c *gin.Context) {
	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub.ID)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	s.logger.Info("replica connected", "subscriber", sub.ID, "remote", c.Request.RemoteAddr)
	defer s.logger.Info("replica disconnected", "subscriber", sub.ID)

	// The read side only serves control frames and notices the peer leaving.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
				return
			}
			msg, err := json.Marshal(Frame{Type: FrameChange, Seq: ev.Seq, Change: &ev.Change})
			if err != nil {
				s.logger.Error("encoding change frame", "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
