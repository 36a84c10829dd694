package websocket

import (
	"encoding/json"
	"sync"

	"github.com/dom/pack-minter/internal/domain"
	"go.uber.org/zap"
)

type delivery struct {
	wallet string
	data   []byte
}

// Hub fans mint progress events out to the clients watching each wallet.
type Hub struct {
	wallets    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan delivery
	stop       chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
	logger     *zap.Logger
	mu         sync.RWMutex
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		wallets:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan delivery, 256),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Named("websocket"),
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for _, clients := range h.wallets {
				for client := range clients {
					client.Close()
				}
			}
			h.wallets = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			clients, ok := h.wallets[client.wallet]
			if !ok {
				clients = make(map[*Client]bool)
				h.wallets[client.wallet] = clients
			}
			clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case d := <-h.broadcast:
			h.mu.Lock()
			for client := range h.wallets[d.wallet] {
				select {
				case client.send <- d.data:
				default:
					h.logger.Warn("dropping slow client", zap.String("wallet", d.wallet))
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(client *Client) {
	clients, ok := h.wallets[client.wallet]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	client.Close()
	if len(clients) == 0 {
		delete(h.wallets, client.wallet)
	}
}

// Stop closes every client and blocks until Run has exited.
// Safe to call more than once and from several goroutines.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish never blocks the mint pipeline; events are dropped when the hub is
// backed up or stopped.
func (h *Hub) Publish(wallet string, event domain.MintEvent) {
	msg, err := NewMessage(event)
	if err != nil {
		h.logger.Error("encode event", zap.Error(err))
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode message", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- delivery{wallet: wallet, data: data}:
	case <-h.done:
	default:
		h.logger.Warn("event dropped, hub busy", zap.String("wallet", wallet), zap.String("type", string(event.Type)))
	}
}

// Watchers reports how many clients follow wallet.
func (h *Hub) Watchers(wallet string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.wallets[wallet])
}
