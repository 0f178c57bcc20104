package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/home-express/finance-core/internal/model"
	"github.com/home-express/finance-core/internal/services"
	xhttp "github.com/home-express/finance-core/pkg/http"
)

type SettlementService interface {
	CheckEligibility(ctx context.Context, bookingID int64) (*model.EligibilityResult, error)
	ProcessSettlement(ctx context.Context, bookingID int64) (*model.Settlement, error)
	RefreshBreakdown(ctx context.Context, bookingID int64) (*model.Settlement, error)
	HoldSettlement(ctx context.Context, bookingID int64, reason string) (*model.Settlement, error)
	ReleaseHold(ctx context.Context, bookingID int64) (*model.Settlement, error)
	ApplyAdjustment(ctx context.Context, bookingID, adjustment int64) (*model.Settlement, error)
	GetByBooking(ctx context.Context, bookingID int64) (*model.Settlement, error)
	Audit(ctx context.Context, bookingID int64) (*services.SettlementAudit, error)
}

type SettlementHandler struct {
	svc SettlementService
}

func NewSettlementHandler(svc SettlementService) *SettlementHandler {
	return &SettlementHandler{svc: svc}
}

func RegisterSettlementRoutes(g *router.Group, h *SettlementHandler) {
	g.GET("/bookings/{id}/settlement", h.bookingAction(SettlementService.GetByBooking, xhttp.StatusOK))
	g.GET("/bookings/{id}/settlement/eligibility", h.Eligibility)
	g.GET("/bookings/{id}/settlement/audit", h.Audit)
	g.POST("/bookings/{id}/settlement/refresh", h.bookingAction(SettlementService.RefreshBreakdown, xhttp.StatusOK))
	g.POST("/bookings/{id}/settlement/process", h.Process)
	g.POST("/bookings/{id}/settlement/hold", h.Hold)
	g.POST("/bookings/{id}/settlement/release", h.bookingAction(SettlementService.ReleaseHold, xhttp.StatusOK))
	g.POST("/bookings/{id}/settlement/adjustment", h.Adjust)
}

type holdRequest struct {
	Reason string `json:"reason"`
}

type adjustmentRequest struct {
	Amount int64 `json:"amount"`
}

func (h *SettlementHandler) bookingAction(action func(SettlementService, context.Context, int64) (*model.Settlement, error), status int) xhttp.RequestHandler {
	return func(ctx *xhttp.RequestCtx) {
		id, err := pathInt64(ctx, "id")
		if err != nil {
			writeError(ctx, xhttp.StatusBadRequest, err.Error())
			return
		}
		st, err := action(h.svc, ctx, id)
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		if st == nil {
			writeError(ctx, xhttp.StatusNotFound, "booking has no settlement yet")
			return
		}
		writeJSON(ctx, status, st)
	}
}

// Process answers 409 with the held settlement when open incidents block it.
func (h *SettlementHandler) Process(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	st, err := h.svc.ProcessSettlement(ctx, id)
	if err != nil {
		if st != nil && model.HasCode(err, model.CodeOpenIncidents) {
			writeJSON(ctx, xhttp.StatusConflict, map[string]any{"error": err.Error(), "code": model.CodeOpenIncidents, "settlement": st})
			return
		}
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, st)
}

func (h *SettlementHandler) Eligibility(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.CheckEligibility(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, res)
}

func (h *SettlementHandler) Audit(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.Audit(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, res)
}

func (h *SettlementHandler) Hold(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	var req holdRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	st, err := h.svc.HoldSettlement(ctx, id, req.Reason)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, st)
}

func (h *SettlementHandler) Adjust(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	var req adjustmentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	st, err := h.svc.ApplyAdjustment(ctx, id, req.Amount)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, st)
}
