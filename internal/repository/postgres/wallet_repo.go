package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/dom/pack-minter/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type walletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *walletRepository {
	return &walletRepository{db: db}
}

// AppendToken is a single upsert so concurrent appends and win increments on
// the same row never lose each other's writes.
func (r *walletRepository) AppendToken(ctx context.Context, address string, tokenID uint64) error {
	now := time.Now()
	wallet := &domain.Wallet{
		WalletAddress: address,
		OwnedTokenIDs: datatypes.JSONSlice[uint64]{tokenID},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "wallet_address"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"owned_token_ids": gorm.Expr(
				"CASE WHEN wallets.owned_token_ids @> EXCLUDED.owned_token_ids " +
					"THEN wallets.owned_token_ids " +
					"ELSE wallets.owned_token_ids || EXCLUDED.owned_token_ids END"),
			"updated_at": now,
		}),
	}).Create(wallet).Error
}

func (r *walletRepository) IncrementWins(ctx context.Context, address string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	result := r.db.WithContext(ctx).
		Model(&wallet).
		Clauses(clause.Returning{}).
		Where("wallet_address = ?", address).
		Updates(map[string]interface{}{
			"wins":       gorm.Expr("wins + 1"),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, domain.ErrWalletNotFound
	}
	return &wallet, nil
}

func (r *walletRepository) GetByAddress(ctx context.Context, address string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := r.db.WithContext(ctx).First(&wallet, "wallet_address = ?", address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *walletRepository) TopByWins(ctx context.Context, limit int) ([]*domain.Wallet, error) {
	var wallets []*domain.Wallet
	err := r.db.WithContext(ctx).
		Order("wins DESC").
		Order("wallet_address ASC").
		Limit(limit).
		Find(&wallets).Error
	if err != nil {
		return nil, err
	}
	return wallets, nil
}
