package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/fasthttp/router"
	"github.com/home-express/finance-core/internal/model"
	xhttp "github.com/home-express/finance-core/pkg/http"
)

type PayoutService interface {
	CreatePayoutBatch(ctx context.Context, transportID int64) (*model.Payout, error)
	UpdatePayoutStatus(ctx context.Context, upd model.PayoutStatusUpdate) (*model.Payout, error)
	ProcessPayout(ctx context.Context, payoutID int64) (*model.Payout, error)
	GetPayout(ctx context.Context, payoutID int64) (*model.Payout, error)
	ListPayouts(ctx context.Context, filter model.PayoutFilter) ([]*model.Payout, error)
}

type PayoutHandler struct {
	svc PayoutService
}

func NewPayoutHandler(svc PayoutService) *PayoutHandler {
	return &PayoutHandler{svc: svc}
}

func RegisterPayoutRoutes(g *router.Group, h *PayoutHandler) {
	g.POST("/transports/{id}/payouts", h.CreateBatch)
	g.GET("/payouts", h.List)
	g.GET("/payouts/{id}", h.Get)
	g.POST("/payouts/{id}/process", h.Process)
	g.PATCH("/payouts/{id}/status", h.UpdateStatus)
}

type payoutStatusRequest struct {
	Status               model.PayoutStatus `json:"status"`
	FailureReason        string             `json:"failure_reason"`
	TransactionReference string             `json:"transaction_reference"`
	Retryable            bool               `json:"retryable"`
}

func (h *PayoutHandler) CreateBatch(ctx *xhttp.RequestCtx) {
	transportID, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	p, err := h.svc.CreatePayoutBatch(ctx, transportID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, p)
}

func (h *PayoutHandler) List(ctx *xhttp.RequestCtx) {
	f := model.PayoutFilter{
		Limit:  queryInt(ctx, "limit", 50),
		Offset: queryInt(ctx, "offset", 0),
	}
	if v := query(ctx, "transport_id"); v != "" {
		if id, e := strconv.ParseInt(v, 10, 64); e == nil {
			f.TransportID = &id
		}
	}
	if v := query(ctx, "status"); v != "" {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				f.Statuses = append(f.Statuses, model.PayoutStatus(strings.ToUpper(part)))
			}
		}
	}
	var err error
	if f.CreatedFrom, err = queryTime(ctx, "from"); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	if f.CreatedTo, err = queryTime(ctx, "to"); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}

	items, err := h.svc.ListPayouts(ctx, f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]any{"items": items})
}

func (h *PayoutHandler) Get(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	p, err := h.svc.GetPayout(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, p)
}

func (h *PayoutHandler) Process(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	p, err := h.svc.ProcessPayout(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, p)
}

// UpdateStatus is also the bank's settlement callback.
func (h *PayoutHandler) UpdateStatus(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	var req payoutStatusRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	p, err := h.svc.UpdatePayoutStatus(ctx, model.PayoutStatusUpdate{
		PayoutID:             id,
		Status:               req.Status,
		FailureReason:        req.FailureReason,
		TransactionReference: req.TransactionReference,
		Retryable:            req.Retryable,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, p)
}
