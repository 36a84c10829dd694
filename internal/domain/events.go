package domain

type MintEventType string

const (
	EventPackStarted   MintEventType = "pack_started"
	EventCardMinted    MintEventType = "card_minted"
	EventCardFailed    MintEventType = "card_failed"
	EventPackCompleted MintEventType = "pack_completed"
)

// MintEvent is a progress notification for one pack run.
type MintEvent struct {
	Type      MintEventType `json:"type"`
	RunID     string        `json:"runId"`
	PackType  string        `json:"packType"`
	Recipient string        `json:"recipient"`
	Card      *MintedCard   `json:"card,omitempty"`
	Rarity    Rarity        `json:"rarity,omitempty"`
	TokenID   uint64        `json:"tokenId,omitempty"`
	Minted    int           `json:"minted"`
	Total     int           `json:"total"`
	Error     string        `json:"error,omitempty"`
}
