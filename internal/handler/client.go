package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const viewerWriteWait = 5 * time.Second

// viewerReadWait is how long a viewer may stay silent. Pings go out well
// inside it, so a live browser always answers in time.
var viewerReadWait = 60 * time.Second

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ViewWebsocketHandler registers a viewer with the hub, which then receives
// annotated frames and alerts until it disconnects.
func ViewWebsocketHandler(s *Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		connection, err := Upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			s.Logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		connection.SetReadLimit(512)
		_ = connection.SetReadDeadline(time.Now().Add(viewerReadWait))
		connection.SetPongHandler(func(string) error {
			return connection.SetReadDeadline(time.Now().Add(viewerReadWait))
		})

		s.Hub.Register(connection)
		defer s.Hub.Unregister(connection)

		done := make(chan struct{})
		defer close(done)
		go pingViewer(connection, done)

		s.Logger.Info("Viewer connected")

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.Logger.Info("Viewer disconnected normally")
				} else {
					s.Logger.Warning("Viewer disconnected with error: %v", err)
				}
				return
			}
			_ = connection.SetReadDeadline(time.Now().Add(viewerReadWait))
		}
	}
}

// pingViewer keeps the read deadline alive for viewers that never send
// anything. WriteControl is safe alongside the hub's writes.
func pingViewer(connection *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(viewerReadWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := connection.WriteControl(websocket.PingMessage, nil, time.Now().Add(viewerWriteWait)); err != nil {
				return
			}
		}
	}
}
