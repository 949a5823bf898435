package api

import (
	"net/http"
	"time"

	"github.com/cognitodev/launchpad/pkg/logger"
	"github.com/cognitodev/launchpad/pkg/session"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type EventMessage struct {
	Type    string           `json:"type"`
	Session *session.Session `json:"session,omitempty"`
	Update  *session.Update  `json:"update,omitempty"`
}

// StreamEvents upgrades to a websocket that carries a snapshot followed by every update.
func (s *Server) StreamEvents(c *gin.Context) {
	o, ok := s.lookup(c)
	if !ok {
		return
	}

	// subscribe before the snapshot so nothing falls between them
	updates, unsubscribe := s.hub.Subscribe(o.ID())
	defer unsubscribe()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("failed to upgrade connection", zap.String("session", o.ID()), zap.Error(err))
		return
	}
	defer conn.Close()

	snapshot := o.Snapshot()
	if err := writeJSON(conn, EventMessage{Type: "snapshot", Session: &snapshot}); err != nil {
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := writeJSON(conn, EventMessage{Type: "update", Update: &u}); err != nil {
				logger.Debug("websocket write failed", zap.String("session", o.ID()), zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
