package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dom/pack-minter/internal/domain"
	"github.com/dom/pack-minter/internal/repository"
	"go.uber.org/zap"
)

type LedgerService struct {
	nftRepo         repository.NFTRepository
	walletRepo      repository.WalletRepository
	leaderboardSize int
	logger          *zap.Logger
}

func NewLedgerService(nftRepo repository.NFTRepository, walletRepo repository.WalletRepository, leaderboardSize int, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		nftRepo:         nftRepo,
		walletRepo:      walletRepo,
		leaderboardSize: leaderboardSize,
		logger:          logger.Named("ledger"),
	}
}

// RecordMint inserts the token row. A second insert for the same token id
// fails with domain.ErrDuplicateRecord.
func (s *LedgerService) RecordMint(ctx context.Context, card domain.MintedCard) error {
	return s.nftRepo.Create(ctx, domain.NewNFT(card))
}

func (s *LedgerService) AppendOwnedToken(ctx context.Context, wallet string, tokenID uint64) error {
	address, err := domain.NormalizeAddress(wallet)
	if err != nil {
		return err
	}
	return s.walletRepo.AppendToken(ctx, address, tokenID)
}

// IncrementWins credits a battle win to a wallet already in the ledger.
func (s *LedgerService) IncrementWins(ctx context.Context, wallet string) (*domain.Wallet, error) {
	address, err := domain.NormalizeAddress(wallet)
	if err != nil {
		return nil, err
	}
	updated, err := s.walletRepo.IncrementWins(ctx, address)
	if err != nil {
		if errors.Is(err, domain.ErrWalletNotFound) {
			s.logger.Warn("win for unknown wallet", zap.String("wallet", address))
		}
		return nil, err
	}
	s.logger.Info("win recorded", zap.String("wallet", address), zap.Int64("wins", updated.Wins))
	return updated, nil
}

func (s *LedgerService) Leaderboard(ctx context.Context) ([]*domain.Wallet, error) {
	return s.walletRepo.TopByWins(ctx, s.leaderboardSize)
}

func (s *LedgerService) GetWallet(ctx context.Context, wallet string) (*domain.Wallet, error) {
	address, err := domain.NormalizeAddress(wallet)
	if err != nil {
		return nil, err
	}
	return s.walletRepo.GetByAddress(ctx, address)
}

// Gallery returns every recorded token the wallet owns, in token id order.
func (s *LedgerService) Gallery(ctx context.Context, wallet string) ([]*domain.NFT, error) {
	w, err := s.GetWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if len(w.OwnedTokenIDs) == 0 {
		return nil, domain.ErrNoTokens
	}

	nfts, err := s.nftRepo.GetByIDs(ctx, w.OwnedTokenIDs)
	if err != nil {
		return nil, fmt.Errorf("load tokens for %s: %w", w.WalletAddress, err)
	}
	if len(nfts) == 0 {
		return nil, domain.ErrNoTokens
	}
	return nfts, nil
}
