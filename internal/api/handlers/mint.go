package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dom/pack-minter/internal/domain"
	"github.com/dom/pack-minter/internal/service"
	"go.uber.org/zap"
)

const maxMintBody = 64 << 10

type MintHandler struct {
	mintService *service.MintService
	logger      *zap.Logger
}

func NewMintHandler(mintService *service.MintService, logger *zap.Logger) *MintHandler {
	return &MintHandler{mintService: mintService, logger: logger.Named("handler.mint")}
}

type MintTraits struct {
	PackType string `json:"packType"`
}

type MintRequest struct {
	Recipient string      `json:"recipient"`
	Traits    *MintTraits `json:"traits"`
}

// MintResponse is returned for every request that passed validation. On
// failure FailedAt names the rarity of the card that stopped the run, and
// Minted still lists every card that was completed before it.
type MintResponse struct {
	Message            string              `json:"message"`
	PackType           string              `json:"packType"`
	RunID              string              `json:"runId"`
	Minted             []domain.MintedCard `json:"minted"`
	FailedAt           *domain.Rarity      `json:"failedAt"`
	FailedTokenID      *uint64             `json:"failedTokenId"`
	Error              *string             `json:"error"`
	PendingTransaction *string             `json:"pendingTransaction"`
	Unrecorded         []domain.MintedCard `json:"unrecorded"`
}

func (h *MintHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxMintBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	packType := ""
	if req.Traits != nil {
		packType = req.Traits.PackType
	}

	// Cards already on chain must finish recording even if the client leaves.
	ctx := context.WithoutCancel(r.Context())
	result, err := h.mintService.Mint(ctx, service.MintRequest{
		Recipient: req.Recipient,
		PackType:  packType,
	})
	if err != nil && domain.IsValidation(err) {
		writeError(w, http.StatusBadRequest, validationMessage(err, req.Recipient, packType))
		return
	}
	if errors.Is(err, domain.ErrShuttingDown) && result == nil {
		writeError(w, http.StatusServiceUnavailable, "Minter is shutting down, retry shortly")
		return
	}
	if result == nil {
		h.logger.Error("mint failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := MintResponse{
		Message:    "NFT pack minted successfully",
		PackType:   result.PackType,
		RunID:      result.RunID,
		Minted:     result.Minted,
		Unrecorded: result.Unrecorded,
	}
	if err == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	msg := err.Error()
	resp.Message = "NFT pack minting stopped early"
	resp.Error = &msg
	var stepErr *domain.StepError
	if errors.As(err, &stepErr) {
		rarity := stepErr.Rarity
		tokenID := stepErr.TokenID
		resp.FailedAt = &rarity
		resp.FailedTokenID = &tokenID
	}
	if result.PendingTransaction != "" {
		pending := result.PendingTransaction
		resp.PendingTransaction = &pending
	}

	h.logger.Error("mint stopped",
		zap.String("run_id", result.RunID),
		zap.Int("minted", len(result.Minted)),
		zap.Int("unrecorded", len(result.Unrecorded)),
		zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, resp)
}

func validationMessage(err error, recipient, packType string) string {
	switch {
	case errors.Is(err, domain.ErrMissingParameter):
		return "Missing recipient or packType"
	case errors.Is(err, domain.ErrUnknownPackTier):
		return "Unknown packType: " + packType
	case errors.Is(err, domain.ErrInvalidRecipient):
		return "Invalid recipient address: " + recipient
	default:
		return err.Error()
	}
}
