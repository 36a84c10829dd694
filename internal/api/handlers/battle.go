package handlers

import (
	"errors"
	"net/http"

	"github.com/dom/pack-minter/internal/domain"
	"github.com/dom/pack-minter/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BattleHandler serves the battle-result collaborator.
type BattleHandler struct {
	ledgerService *service.LedgerService
	logger        *zap.Logger
}

func NewBattleHandler(ledgerService *service.LedgerService, logger *zap.Logger) *BattleHandler {
	return &BattleHandler{ledgerService: ledgerService, logger: logger.Named("handler.battle")}
}

type WinResponse struct {
	WalletAddress string `json:"wallet_address"`
	Wins          int64  `json:"wins"`
}

func (h *BattleHandler) RecordWin(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	wallet, err := h.ledgerService.IncrementWins(r.Context(), address)
	if err != nil {
		switch {
		case domain.IsValidation(err):
			writeError(w, http.StatusBadRequest, "Invalid wallet address")
		case errors.Is(err, domain.ErrWalletNotFound):
			writeError(w, http.StatusNotFound, "No matching user for wallet")
		default:
			h.logger.Error("record win", zap.String("wallet", address), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to record win")
		}
		return
	}

	writeJSON(w, http.StatusOK, WinResponse{WalletAddress: wallet.WalletAddress, Wins: wallet.Wins})
}
