package websocket_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dom/pack-minter/internal/domain"
	"github.com/dom/pack-minter/internal/websocket"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newHubServer(t *testing.T) (*websocket.Hub, func(wallet string) *gorillaWS.Conn) {
	t.Helper()

	hub := websocket.NewHub(zaptest.NewLogger(t))
	go hub.Run()

	upgrader := gorillaWS.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := websocket.NewClient(hub, conn, r.URL.Query().Get("wallet"))
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(func() {
		hub.Stop()
		server.Close()
	})

	dial := func(wallet string) *gorillaWS.Conn {
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "?wallet=" + wallet
		conn, _, err := gorillaWS.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		require.Eventually(t, func() bool { return hub.Watchers(wallet) > 0 }, 2*time.Second, 10*time.Millisecond)
		return conn
	}
	return hub, dial
}

func readMessage(t *testing.T, conn *gorillaWS.Conn) websocket.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg websocket.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_PublishReachesOnlyWatchers(t *testing.T) {
	hub, dial := newHubServer(t)
	alice := dial("0xa")
	bob := dial("0xb")

	hub.Publish("0xa", domain.MintEvent{Type: domain.EventPackStarted, RunID: "run-1", Total: 3})
	hub.Publish("0xb", domain.MintEvent{Type: domain.EventPackCompleted, RunID: "run-2"})

	msg := readMessage(t, alice)
	assert.Equal(t, domain.EventPackStarted, msg.Type)
	assert.NotZero(t, msg.Timestamp)

	var event domain.MintEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &event))
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, 3, event.Total)

	// bob's first frame is his own event, not alice's.
	assert.Equal(t, domain.EventPackCompleted, readMessage(t, bob).Type)
}

func TestHub_MultipleClientsPerWallet(t *testing.T) {
	hub, dial := newHubServer(t)
	first := dial("0xa")
	second := dial("0xa")
	require.Eventually(t, func() bool { return hub.Watchers("0xa") == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish("0xa", domain.MintEvent{Type: domain.EventCardMinted})

	assert.Equal(t, domain.EventCardMinted, readMessage(t, first).Type)
	assert.Equal(t, domain.EventCardMinted, readMessage(t, second).Type)
}

func TestHub_PublishWithoutWatchers(t *testing.T) {
	hub := websocket.NewHub(zaptest.NewLogger(t))
	go hub.Run()

	hub.Publish("0xnobody", domain.MintEvent{Type: domain.EventPackStarted})
	assert.Zero(t, hub.Watchers("0xnobody"))

	hub.Stop()
	hub.Stop()
	// After stop, publishing is a no-op.
	hub.Publish("0xnobody", domain.MintEvent{Type: domain.EventPackStarted})
}

func TestHub_ConcurrentStop(t *testing.T) {
	hub := websocket.NewHub(zaptest.NewLogger(t))
	go hub.Run()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotPanics(t, hub.Stop)
		}()
	}

	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
