package handlers

import (
	"errors"
	"net/http"

	"github.com/dom/pack-minter/internal/domain"
	"github.com/dom/pack-minter/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type LedgerHandler struct {
	ledgerService *service.LedgerService
	logger        *zap.Logger
}

func NewLedgerHandler(ledgerService *service.LedgerService, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService, logger: logger.Named("handler.ledger")}
}

type LeaderboardEntry struct {
	WalletAddress string `json:"wallet_address"`
	Wins          int64  `json:"wins"`
	Tokens        int    `json:"tokens"`
}

type NFTResponse struct {
	NFTID   uint64              `json:"nft_id"`
	NFTData domain.CardMetadata `json:"nft_data"`
}

type NFTsResponse struct {
	NFTs []NFTResponse `json:"nfts"`
}

func (h *LedgerHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	wallets, err := h.ledgerService.Leaderboard(r.Context())
	if err != nil {
		h.logger.Error("leaderboard", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load leaderboard")
		return
	}

	entries := make([]LeaderboardEntry, len(wallets))
	for i, wallet := range wallets {
		entries[i] = LeaderboardEntry{
			WalletAddress: wallet.WalletAddress,
			Wins:          wallet.Wins,
			Tokens:        len(wallet.OwnedTokenIDs),
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *LedgerHandler) NFTs(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet_address")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet_address is required")
		return
	}

	nfts, err := h.ledgerService.Gallery(r.Context(), wallet)
	if err != nil {
		h.writeLookupError(w, "gallery", wallet, err)
		return
	}

	resp := NFTsResponse{NFTs: make([]NFTResponse, len(nfts))}
	for i, nft := range nfts {
		resp.NFTs[i] = NFTResponse{NFTID: nft.NFTID, NFTData: nft.NFTData.Data()}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LedgerHandler) Wallet(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	wallet, err := h.ledgerService.GetWallet(r.Context(), address)
	if err != nil {
		h.writeLookupError(w, "wallet", address, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (h *LedgerHandler) writeLookupError(w http.ResponseWriter, op, wallet string, err error) {
	switch {
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, "Invalid wallet address")
	case errors.Is(err, domain.ErrWalletNotFound):
		writeError(w, http.StatusNotFound, "No wallet found")
	case errors.Is(err, domain.ErrNoTokens):
		writeError(w, http.StatusNotFound, "No NFT IDs found for this wallet")
	default:
		h.logger.Error(op, zap.String("wallet", wallet), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load wallet")
	}
}
