package repository

import (
	"context"

	"github.com/dom/pack-minter/internal/domain"
)

// CounterStore persists the highest minted token id.
//
// Peek returns 0 when no state exists yet. Unreadable state is reported to the
// store's CorruptionHandler and also reads as 0; only an unreachable backend
// returns an error. Advance never moves the counter backwards, so writing the
// same value twice is safe.
type CounterStore interface {
	Peek(ctx context.Context) (uint64, error)
	Advance(ctx context.Context, value uint64) error
}

// CorruptionHandler is told when a counter backend held unreadable state.
type CorruptionHandler func(ctx context.Context, err error)

// Locker provides a mutual-exclusion section keyed by name, possibly shared
// across processes. The returned lease must be released.
type Locker interface {
	Lock(ctx context.Context, key string) (*Lease, error)
}

type NFTRepository interface {
	// Create fails with domain.ErrDuplicateRecord when the token id exists.
	Create(ctx context.Context, nft *domain.NFT) error
	GetByID(ctx context.Context, tokenID uint64) (*domain.NFT, error)
	GetByIDs(ctx context.Context, tokenIDs []uint64) ([]*domain.NFT, error)
}

type WalletRepository interface {
	// AppendToken adds tokenID to the wallet's owned list, creating the wallet
	// if needed. Appending an id already in the list is a no-op.
	AppendToken(ctx context.Context, address string, tokenID uint64) error
	// IncrementWins fails with domain.ErrWalletNotFound for unknown wallets.
	IncrementWins(ctx context.Context, address string) (*domain.Wallet, error)
	GetByAddress(ctx context.Context, address string) (*domain.Wallet, error)
	TopByWins(ctx context.Context, limit int) ([]*domain.Wallet, error)
}

// ReconciliationQueue holds cards minted on chain whose ledger write failed.
type ReconciliationQueue interface {
	Enqueue(ctx context.Context, item *domain.ReconciliationItem) error
	List(ctx context.Context) ([]*domain.ReconciliationItem, error)
	// Update removes resolved ids and stores new state for retried items.
	Update(ctx context.Context, resolved []string, retried []*domain.ReconciliationItem) error
}

type Repositories struct {
	NFT    NFTRepository
	Wallet WalletRepository
}
