package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"watchtower/internal/frame"
	"watchtower/internal/logger"
	"watchtower/internal/service/alert"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub, cancel
}

func connectViewer(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() >= 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return msg
}

func TestHubBroadcast(t *testing.T) {
	hub, _ := startHub(t)
	conn := connectViewer(t, hub)

	require.True(t, hub.Broadcast([]byte(`{"type":"ping"}`)))
	assert.JSONEq(t, `{"type":"ping"}`, string(readMessage(t, conn)))
}

func TestHubStopClosesClients(t *testing.T) {
	hub, cancel := startHub(t)
	conn := connectViewer(t, hub)

	cancel()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestBroadcastNeverBlocks(t *testing.T) {
	hub := NewHub(logger.NewNop())

	for i := 0; i < broadcastQueue; i++ {
		assert.True(t, hub.Broadcast([]byte("x")))
	}
	assert.False(t, hub.Broadcast([]byte("x")))

	sender := NewHubSender(hub)
	a := alert.New(alert.KindWeaponDetected, 0.9, nil, nil, time.Now())
	for i := 0; i < broadcastQueue; i++ {
		require.NoError(t, sender.Send(context.Background(), a), "frame backlog must not block alerts")
	}
	assert.ErrorIs(t, sender.Send(context.Background(), a), ErrHubBusy)
}

func TestHubSendsAlertsAheadOfFrames(t *testing.T) {
	hub, _ := startHub(t)
	conn := connectViewer(t, hub)

	a := alert.New(alert.KindUnusualBehavior, 6000, nil, nil, time.Now())
	require.NoError(t, NewHubSender(hub).Send(context.Background(), a))
	for i := 0; i < broadcastQueue; i++ {
		hub.Broadcast([]byte(`{"type":"frame"}`))
	}

	var msg AlertMessage
	require.NoError(t, json.Unmarshal(readMessage(t, conn), &msg))
	assert.Equal(t, TypeAlert, msg.Type)
	assert.Equal(t, a.ID, msg.Alert.ID)
}

func TestHubSender(t *testing.T) {
	hub, _ := startHub(t)
	conn := connectViewer(t, hub)

	a := alert.New(alert.KindWeaponDetected, 0.9, alert.Details{alert.DetailType: "knife"}, frame.New(2, 2), time.Now())
	require.NoError(t, NewHubSender(hub).Send(context.Background(), a))

	var msg AlertMessage
	require.NoError(t, json.Unmarshal(readMessage(t, conn), &msg))
	assert.Equal(t, TypeAlert, msg.Type)
	assert.Equal(t, a.ID, msg.Alert.ID)
	assert.Equal(t, alert.KindWeaponDetected, msg.Alert.Kind)
	assert.Equal(t, "knife", msg.Alert.Details[alert.DetailType])
}

func TestStreamerSendsNewFrames(t *testing.T) {
	hub, _ := startHub(t)
	conn := connectViewer(t, hub)

	buf := frame.NewBuffer()
	buf.Set(frame.New(32, 24))

	streamer := NewStreamer(hub, buf, "lobby", 5*time.Millisecond, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = streamer.Run(ctx) }()

	var msg FrameMessage
	require.NoError(t, json.Unmarshal(readMessage(t, conn), &msg))
	assert.Equal(t, TypeFrame, msg.Type)
	assert.Equal(t, "lobby", msg.Camera)

	jpeg, err := base64.StdEncoding.DecodeString(msg.Image)
	require.NoError(t, err)
	decoded, err := frame.DecodeJPEG(jpeg)
	require.NoError(t, err)
	assert.Equal(t, 32, decoded.Width)
	assert.Equal(t, 24, decoded.Height)
}
