package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/dom/pack-minter/internal/domain"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TestAddress returns a distinct lowercase account address for n.
func TestAddress(n int) string {
	return fmt.Sprintf("0x%040x", 0xabc000+n)
}

// RandomAddress returns a fresh lowercase account address.
func RandomAddress() string {
	id := uuid.New()
	return fmt.Sprintf("0x%x", id[:]) + "00000000"
}

// WalletBuilder creates ledger wallets with a builder pattern
type WalletBuilder struct {
	address string
	tokens  []uint64
	wins    int64
}

// NewWalletBuilder creates a new WalletBuilder with a random address
func NewWalletBuilder() *WalletBuilder {
	return &WalletBuilder{address: RandomAddress(), tokens: []uint64{}}
}

func (b *WalletBuilder) WithAddress(address string) *WalletBuilder {
	b.address = address
	return b
}

func (b *WalletBuilder) WithTokens(ids ...uint64) *WalletBuilder {
	b.tokens = ids
	return b
}

func (b *WalletBuilder) WithWins(wins int64) *WalletBuilder {
	b.wins = wins
	return b
}

func (b *WalletBuilder) wallet() *domain.Wallet {
	now := time.Now()
	return &domain.Wallet{
		WalletAddress: b.address,
		OwnedTokenIDs: datatypes.JSONSlice[uint64](b.tokens),
		Wins:          b.wins,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Build creates the wallet in the database
func (b *WalletBuilder) Build(t *testing.T, db *gorm.DB) *domain.Wallet {
	t.Helper()

	w := b.wallet()
	if err := db.Create(w).Error; err != nil {
		t.Fatalf("failed to create wallet: %v", err)
	}
	return w
}

// BuildInMemory stores the wallet in repo
func (b *WalletBuilder) BuildInMemory(repo *MemoryWalletRepository) *domain.Wallet {
	w := b.wallet()
	repo.Put(w)
	return w
}

// NewMintedCard returns a fully populated card for tokenID owned by recipient.
func NewMintedCard(tokenID uint64, rarity domain.Rarity, recipient string) domain.MintedCard {
	card := domain.Card{Character: "Sonic", Background: "Green Hill", Effect: "Blue Glow", Gear: "Power Ring"}
	imageURI := "ipfs://images/card.png"
	return domain.MintedCard{
		TokenID:         tokenID,
		Rarity:          rarity,
		Recipient:       recipient,
		MetadataURI:     fmt.Sprintf("ipfs://metadata/%d", tokenID),
		ImageURI:        imageURI,
		TransactionHash: TxHash(tokenID),
		Metadata:        domain.BuildMetadata("SegaUNLEASHED", tokenID, "Bronze", card, "Aura", rarity, imageURI),
	}
}

// CreateAuthenticatedRequest creates an HTTP request with a bearer token
func CreateAuthenticatedRequest(t *testing.T, method, url string, body interface{}, token string) *http.Request {
	t.Helper()

	var bodyReader *bytes.Buffer
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	} else {
		bodyReader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// MintBody is the JSON body the pack-opening client posts.
func MintBody(recipient, packType string) map[string]any {
	return map[string]any{
		"recipient": recipient,
		"traits":    map[string]string{"packType": packType},
	}
}
