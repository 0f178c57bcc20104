package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/home-express/finance-core/internal/model"
	xhttp "github.com/home-express/finance-core/pkg/http"
)

type PaymentService interface {
	InitializePayment(ctx context.Context, req model.InitializePaymentRequest) (*model.InitiationResult, error)
	InitiateDeposit(ctx context.Context, bookingID int64, method model.PaymentMethod, idempotencyKey string) (*model.InitiationResult, error)
	InitiateRemainingPayment(ctx context.Context, bookingID int64, method model.PaymentMethod, tip int64, idempotencyKey string) (*model.InitiationResult, error)
	ConfirmPayment(ctx context.Context, req model.ConfirmPaymentRequest) (*model.Payment, error)
	ConfirmGatewayPayment(ctx context.Context, conf model.GatewayConfirmation) (*model.Payment, error)
	GetPayment(ctx context.Context, paymentID int64) (*model.Payment, error)
	ListBookingPayments(ctx context.Context, bookingID int64) ([]*model.Payment, error)
}

type PaymentHandler struct {
	svc PaymentService
}

func NewPaymentHandler(svc PaymentService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

func RegisterPaymentRoutes(g *router.Group, h *PaymentHandler) {
	g.POST("/payments", h.Initialize)
	g.GET("/payments/{id}", h.Get)
	g.POST("/payments/{id}/confirm", h.Confirm)
	g.POST("/payments/gateway/callback", h.GatewayCallback)
	g.POST("/bookings/{id}/payments/deposit", h.InitiateDeposit)
	g.POST("/bookings/{id}/payments/remaining", h.InitiateRemaining)
	g.GET("/bookings/{id}/payments", h.ListByBooking)
}

type initializePaymentRequest struct {
	BookingID      int64               `json:"booking_id"`
	Type           model.PaymentType   `json:"type"`
	Method         model.PaymentMethod `json:"method"`
	Amount         int64               `json:"amount"`
	TipAmount      int64               `json:"tip_amount"`
	IdempotencyKey string              `json:"idempotency_key"`
}

type initiateRequest struct {
	Method         model.PaymentMethod `json:"method"`
	TipAmount      int64               `json:"tip_amount"`
	IdempotencyKey string              `json:"idempotency_key"`
}

type confirmPaymentRequest struct {
	TransactionID string `json:"transaction_id"`
	ConfirmedBy   *int64 `json:"confirmed_by"`
}

type gatewayCallbackRequest struct {
	OrderCode  string `json:"order_code"`
	PaidAmount int64  `json:"paid_amount"`
	Reference  string `json:"reference"`
}

// idempotencyKey prefers the Idempotency-Key header over the body field.
func idempotencyKey(ctx *xhttp.RequestCtx, fromBody string) string {
	if v := ctx.Request.Header.Peek("Idempotency-Key"); len(v) > 0 {
		return string(v)
	}
	return fromBody
}

func writeInitiation(ctx *xhttp.RequestCtx, res *model.InitiationResult) {
	status := xhttp.StatusCreated
	if res.Replayed || res.AlreadyPaid {
		status = xhttp.StatusOK
	}
	writeJSON(ctx, status, res)
}

func (h *PaymentHandler) Initialize(ctx *xhttp.RequestCtx) {
	var req initializePaymentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	res, err := h.svc.InitializePayment(ctx, model.InitializePaymentRequest{
		BookingID:      req.BookingID,
		Type:           req.Type,
		Method:         req.Method,
		Amount:         req.Amount,
		TipAmount:      req.TipAmount,
		IdempotencyKey: idempotencyKey(ctx, req.IdempotencyKey),
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeInitiation(ctx, res)
}

func (h *PaymentHandler) InitiateDeposit(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	var req initiateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	res, err := h.svc.InitiateDeposit(ctx, id, req.Method, idempotencyKey(ctx, req.IdempotencyKey))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeInitiation(ctx, res)
}

func (h *PaymentHandler) InitiateRemaining(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	var req initiateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	res, err := h.svc.InitiateRemainingPayment(ctx, id, req.Method, req.TipAmount, idempotencyKey(ctx, req.IdempotencyKey))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeInitiation(ctx, res)
}

func (h *PaymentHandler) Confirm(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	var req confirmPaymentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	p, err := h.svc.ConfirmPayment(ctx, model.ConfirmPaymentRequest{
		PaymentID:     id,
		TransactionID: req.TransactionID,
		ConfirmedBy:   req.ConfirmedBy,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, p)
}

// GatewayCallback receives the payment gateway's success notification.
func (h *PaymentHandler) GatewayCallback(ctx *xhttp.RequestCtx) {
	var req gatewayCallbackRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	p, err := h.svc.ConfirmGatewayPayment(ctx, model.GatewayConfirmation{
		OrderCode:  req.OrderCode,
		PaidAmount: req.PaidAmount,
		Reference:  req.Reference,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, p)
}

func (h *PaymentHandler) Get(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	p, err := h.svc.GetPayment(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, p)
}

func (h *PaymentHandler) ListByBooking(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	items, err := h.svc.ListBookingPayments(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]any{"items": items})
}
