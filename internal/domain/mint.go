package domain

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/datatypes"
)

// CardState is the last step a card completed.
type CardState string

const (
	CardPending           CardState = "pending"
	CardSampled           CardState = "sampled"
	CardAssetPublished    CardState = "asset_published"
	CardMetadataPublished CardState = "metadata_published"
	CardMinted            CardState = "minted"
	CardRecorded          CardState = "recorded"
)

// MintedCard is one token confirmed on chain.
type MintedCard struct {
	TokenID         uint64       `json:"tokenId"`
	Rarity          Rarity       `json:"rarity"`
	Recipient       string       `json:"-"`
	MetadataURI     string       `json:"metadataUri"`
	ImageURI        string       `json:"imageUri"`
	TransactionHash string       `json:"transactionHash"`
	Metadata        CardMetadata `json:"-"`
}

// NFT is the ledger row for a minted token.
type NFT struct {
	NFTID           uint64                           `json:"nft_id" gorm:"column:nft_id;primaryKey;autoIncrement:false"`
	NFTData         datatypes.JSONType[CardMetadata] `json:"nft_data" gorm:"column:nft_data;type:jsonb;not null"`
	Owner           string                           `json:"owner" gorm:"column:owner;index;not null"`
	Rarity          Rarity                           `json:"rarity" gorm:"not null"`
	MetadataURI     string                           `json:"metadata_uri" gorm:"not null"`
	ImageURI        string                           `json:"image_uri" gorm:"not null"`
	TransactionHash string                           `json:"transaction_hash" gorm:"not null"`
	CreatedAt       time.Time                        `json:"created_at"`
}

func (NFT) TableName() string { return "nfts" }

func NewNFT(card MintedCard) *NFT {
	return &NFT{
		NFTID:           card.TokenID,
		NFTData:         datatypes.NewJSONType(card.Metadata),
		Owner:           card.Recipient,
		Rarity:          card.Rarity,
		MetadataURI:     card.MetadataURI,
		ImageURI:        card.ImageURI,
		TransactionHash: card.TransactionHash,
		CreatedAt:       time.Now(),
	}
}

// Wallet is keyed by the lowercased address.
type Wallet struct {
	WalletAddress string                      `json:"wallet_address" gorm:"column:wallet_address;primaryKey;check:wallet_address = lower(wallet_address)"`
	OwnedTokenIDs datatypes.JSONSlice[uint64] `json:"owned_token_ids" gorm:"column:owned_token_ids;type:jsonb;not null;default:'[]'"`
	Wins          int64                       `json:"wins" gorm:"not null;default:0;index"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
}

func (Wallet) TableName() string { return "wallets" }

// TokenCounter is the persisted highest minted token id for a named sequence.
type TokenCounter struct {
	Name      string `gorm:"primaryKey"`
	Current   uint64 `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// ReconciliationItem is a card that is on chain but missing from the ledger.
type ReconciliationItem struct {
	ID        string       `json:"id"`
	RunID     string       `json:"runId"`
	Card      MintedCard   `json:"card"`
	Recipient string       `json:"recipient"`
	Metadata  CardMetadata `json:"metadata"`
	LastError string       `json:"lastError"`
	Attempts  int          `json:"attempts"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// MintedCard rebuilds the card with the fields json drops.
func (r *ReconciliationItem) MintedCard() MintedCard {
	card := r.Card
	card.Recipient = r.Recipient
	card.Metadata = r.Metadata
	return card
}

// NormalizeAddress validates a 0x-prefixed 20-byte hex account address and
// returns it lowercased.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", ErrMissingParameter
	}
	if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
		return "", ErrInvalidRecipient
	}
	if !common.IsHexAddress(address) {
		return "", ErrInvalidRecipient
	}
	return strings.ToLower(address), nil
}
