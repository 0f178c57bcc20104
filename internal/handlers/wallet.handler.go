package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/home-express/finance-core/internal/model"
	xhttp "github.com/home-express/finance-core/pkg/http"
)

type WalletService interface {
	GetWallet(ctx context.Context, transportID int64) (*model.Wallet, error)
	ListTransactions(ctx context.Context, transportID int64, limit, offset int) ([]*model.WalletTransaction, error)
	Adjust(ctx context.Context, transportID, adjustmentID, amount int64, note string) (*model.LedgerResult, error)
	Reconcile(ctx context.Context, transportID int64) (*model.ReconciliationReport, error)
}

type WalletHandler struct {
	svc WalletService
}

func NewWalletHandler(svc WalletService) *WalletHandler {
	return &WalletHandler{svc: svc}
}

func RegisterWalletRoutes(g *router.Group, h *WalletHandler) {
	g.GET("/transports/{id}/wallet", h.Get)
	g.GET("/transports/{id}/wallet/transactions", h.Transactions)
	g.GET("/transports/{id}/wallet/reconcile", h.Reconcile)
	g.POST("/transports/{id}/wallet/adjustments", h.Adjust)
}

type walletAdjustmentRequest struct {
	AdjustmentID int64  `json:"adjustment_id"`
	Amount       int64  `json:"amount"`
	Note         string `json:"note"`
}

func (h *WalletHandler) Get(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	w, err := h.svc.GetWallet(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, w)
}

func (h *WalletHandler) Transactions(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	items, err := h.svc.ListTransactions(ctx, id, queryInt(ctx, "limit", 50), queryInt(ctx, "offset", 0))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]any{"items": items})
}

func (h *WalletHandler) Reconcile(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	report, err := h.svc.Reconcile(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, report)
}

func (h *WalletHandler) Adjust(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	var req walletAdjustmentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.AdjustmentID <= 0 {
		writeError(ctx, xhttp.StatusBadRequest, "adjustment_id is required")
		return
	}
	res, err := h.svc.Adjust(ctx, id, req.AdjustmentID, req.Amount, req.Note)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	status := xhttp.StatusCreated
	if res.Duplicate {
		status = xhttp.StatusOK
	}
	writeJSON(ctx, status, res)
}
