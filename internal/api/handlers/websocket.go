package handlers

import (
	"net/http"

	"github.com/dom/pack-minter/internal/domain"
	"github.com/dom/pack-minter/internal/websocket"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WebSocketHandler struct {
	hub      *websocket.Hub
	upgrader ws.Upgrader
	logger   *zap.Logger
}

func NewWebSocketHandler(hub *websocket.Hub, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &WebSocketHandler{
		hub: hub,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
		logger: logger.Named("handler.websocket"),
	}
}

func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	wallet, err := domain.NormalizeAddress(r.URL.Query().Get("wallet_address"))
	if err != nil {
		http.Error(w, "wallet_address is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	client := websocket.NewClient(h.hub, conn, wallet)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
