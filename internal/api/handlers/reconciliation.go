package handlers

import (
	"net/http"

	"github.com/dom/pack-minter/internal/domain"
	"github.com/dom/pack-minter/internal/service"
	"go.uber.org/zap"
)

type ReconciliationHandler struct {
	reconcileService *service.ReconcileService
	logger           *zap.Logger
}

func NewReconciliationHandler(reconcileService *service.ReconcileService, logger *zap.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{reconcileService: reconcileService, logger: logger.Named("handler.reconcile")}
}

type ReconciliationListResponse struct {
	Items []*domain.ReconciliationItem `json:"items"`
}

func (h *ReconciliationHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.reconcileService.Pending(r.Context())
	if err != nil {
		h.logger.Error("list", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read reconciliation queue")
		return
	}
	writeJSON(w, http.StatusOK, ReconciliationListResponse{Items: items})
}

func (h *ReconciliationHandler) Replay(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconcileService.ReplayOnce(r.Context())
	if err != nil {
		h.logger.Error("replay", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Replay failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
