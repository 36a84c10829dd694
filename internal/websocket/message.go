package websocket

import (
	"encoding/json"
	"time"

	"github.com/dom/pack-minter/internal/domain"
)

type Message struct {
	Type      domain.MintEventType `json:"type"`
	Payload   json.RawMessage      `json:"payload"`
	Timestamp int64                `json:"timestamp"`
}

func NewMessage(event domain.MintEvent) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      event.Type,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}
