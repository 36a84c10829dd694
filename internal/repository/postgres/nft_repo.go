package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dom/pack-minter/internal/domain"
	"gorm.io/gorm"
)

type nftRepository struct {
	db *gorm.DB
}

func NewNFTRepository(db *gorm.DB) *nftRepository {
	return &nftRepository{db: db}
}

func (r *nftRepository) Create(ctx context.Context, nft *domain.NFT) error {
	err := r.db.WithContext(ctx).Create(nft).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: token %d", domain.ErrDuplicateRecord, nft.NFTID)
	}
	return err
}

func (r *nftRepository) GetByID(ctx context.Context, tokenID uint64) (*domain.NFT, error) {
	var nft domain.NFT
	err := r.db.WithContext(ctx).First(&nft, "nft_id = ?", tokenID).Error
	if err != nil {
		return nil, err
	}
	return &nft, nil
}

func (r *nftRepository) GetByIDs(ctx context.Context, tokenIDs []uint64) ([]*domain.NFT, error) {
	var nfts []*domain.NFT
	if len(tokenIDs) == 0 {
		return nfts, nil
	}
	err := r.db.WithContext(ctx).
		Where("nft_id IN ?", tokenIDs).
		Order("nft_id ASC").
		Find(&nfts).Error
	if err != nil {
		return nil, err
	}
	return nfts, nil
}
