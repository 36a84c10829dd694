package testutil

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dom/pack-minter/internal/domain"
	"github.com/dom/pack-minter/internal/websocket"
	gorillaWS "github.com/gorilla/websocket"
)

// WSClient is a test client for the mint progress feed
type WSClient struct {
	t        *testing.T
	conn     *gorillaWS.Conn
	messages chan *websocket.Message
	errors   chan error
	done     chan struct{}
	once     sync.Once
}

// NewWSClient connects to url and starts reading messages
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()

	dialer := *gorillaWS.DefaultDialer
	dialer.HandshakeTimeout = 5 * time.Second

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to connect to websocket: %v", err)
	}

	client := &WSClient{
		t:        t,
		conn:     conn,
		messages: make(chan *websocket.Message, 100),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}

	go client.readPump()

	t.Cleanup(func() {
		client.Close()
	})

	return client
}

func (c *WSClient) readPump() {
	defer close(c.messages)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			case c.errors <- err:
			}
			return
		}

		var msg websocket.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		select {
		case c.messages <- &msg:
		case <-c.done:
			return
		}
	}
}

// Close closes the connection gracefully
func (c *WSClient) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.WriteMessage(gorillaWS.CloseMessage, gorillaWS.FormatCloseMessage(gorillaWS.CloseNormalClosure, ""))
		c.conn.Close()
	})
}

// ExpectEvent waits for a message of the given type and decodes its payload
func (c *WSClient) ExpectEvent(eventType domain.MintEventType, timeout time.Duration) domain.MintEvent {
	c.t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case msg, ok := <-c.messages:
			if !ok {
				c.t.Fatalf("connection closed while waiting for %s", eventType)
			}
			if msg.Type != eventType {
				continue
			}
			var event domain.MintEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				c.t.Fatalf("failed to decode %s payload: %v", eventType, err)
			}
			return event
		case err := <-c.errors:
			c.t.Fatalf("error while waiting for %s: %v", eventType, err)
		case <-deadline:
			c.t.Fatalf("timeout waiting for %s", eventType)
		}
	}
}
