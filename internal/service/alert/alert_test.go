package alert

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"watchtower/internal/frame"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FillsScoreAndTimestamp(t *testing.T) {
	at := time.Date(2025, 6, 15, 14, 30, 5, 0, time.UTC)
	in := Details{DetailType: "knife"}

	a := New(KindWeaponDetected, 0.91, in, nil, at)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, KindWeaponDetected, a.Kind)
	assert.Equal(t, 0.91, a.Score())
	assert.Equal(t, "20250615_143005", a.Details[DetailTimestamp])
	assert.Equal(t, "knife", a.Details[DetailType])
	assert.NotContains(t, in, DetailScore, "input details must not be mutated")
}

func TestAlert_Caption(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	a := New(KindUnusualBehavior, 8000, Details{DetailType: "Sudden motion or loitering"}, nil, at)

	caption := a.Caption()
	assert.True(t, strings.HasPrefix(caption, "🚨 Unusual Behavior\n"))
	assert.Contains(t, caption, "score=8000.00")
	assert.Contains(t, caption, "type=Sudden motion or loitering")
	assert.True(t, strings.HasSuffix(caption, "Time: 20250102_030405"))
}

func TestJournal_RecentNewestFirst(t *testing.T) {
	j := NewJournal(3)
	for i := 1; i <= 5; i++ {
		a := New(KindUnusualBehavior, float64(i), nil, nil, time.Now())
		require.NoError(t, j.Send(context.Background(), a))
	}

	assert.Equal(t, 3, j.Len())
	recent := j.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, []float64{5, 4, 3}, []float64{recent[0].Score, recent[1].Score, recent[2].Score})

	assert.Len(t, j.Recent(2), 2)
	assert.Empty(t, NewJournal(4).Recent(10))
}

func TestWebhookSender(t *testing.T) {
	var got WebhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := NewWebhookSender(server.URL, "gate", server.Client())
	a := New(KindWeaponDetected, 0.8, Details{DetailType: "knife"}, frame.New(8, 8), time.Now())

	require.NoError(t, sender.Send(context.Background(), a))
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "gate", got.Camera)
	assert.Equal(t, KindWeaponDetected, got.Kind)

	jpeg, err := base64.StdEncoding.DecodeString(got.Snapshot)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, jpeg[:2])
}

func TestWebhookSender_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender := NewWebhookSender(server.URL, "gate", nil)
	err := sender.Send(context.Background(), New(KindUnusualBehavior, 1, nil, nil, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestTelegramSender(t *testing.T) {
	const token = "123:abc"
	var (
		caption string
		chatID  string
		photo   []byte
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/bot" + token + "/getMe":
			fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"watch","username":"watch_bot"}}`)
		case "/bot" + token + "/sendPhoto":
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			caption = r.FormValue("caption")
			chatID = r.FormValue("chat_id")
			if file, _, err := r.FormFile("photo"); assert.NoError(t, err) {
				photo, _ = io.ReadAll(file)
			}
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"not found"}`)
		}
	}))
	defer server.Close()

	sender, err := NewTelegramSenderWithClient(token, server.URL+"/bot%s/%s", 42, server.Client())
	require.NoError(t, err)

	a := New(KindWeaponDetected, 0.77, Details{DetailType: "gun"}, frame.New(16, 16), time.Now())
	require.NoError(t, sender.Send(context.Background(), a))

	assert.Equal(t, "42", chatID)
	assert.Equal(t, a.Caption(), caption)
	require.True(t, len(photo) > 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, photo[:2])
}
