package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/home-express/finance-core/internal/model"
	xhttp "github.com/home-express/finance-core/pkg/http"
)

type BookingService interface {
	CreateBooking(ctx context.Context, customerID int64) (*model.Booking, error)
	GetBooking(ctx context.Context, bookingID int64) (*model.Booking, error)
	UpdateStatus(ctx context.Context, bookingID int64, to model.BookingStatus, actor model.Actor, reason string) (*model.Booking, error)
	AcceptQuotation(ctx context.Context, req model.AcceptQuotationRequest) (*model.Booking, error)
	SignContract(ctx context.Context, bookingID int64) (*model.Contract, error)
	StartJob(ctx context.Context, bookingID int64, actor model.Actor) (*model.Booking, error)
	CompleteJob(ctx context.Context, bookingID int64, actor model.Actor) (*model.Booking, error)
	ConfirmCompletion(ctx context.Context, bookingID int64, actor model.Actor) (*model.Booking, error)
	Cancel(ctx context.Context, bookingID int64, actor model.Actor, reason string) (*model.Booking, error)
	ReportIncident(ctx context.Context, bookingID, reportedBy int64, description string) (*model.Incident, error)
	ResolveIncident(ctx context.Context, incidentID int64, dismiss bool) (*model.Incident, error)
	Timeline(ctx context.Context, bookingID int64) ([]*model.BookingStatusHistory, error)
}

type BookingHandler struct {
	svc BookingService
}

func NewBookingHandler(svc BookingService) *BookingHandler {
	return &BookingHandler{svc: svc}
}

func RegisterBookingRoutes(g *router.Group, h *BookingHandler) {
	g.POST("/bookings", h.Create)
	g.GET("/bookings/{id}", h.Get)
	g.PATCH("/bookings/{id}/status", h.UpdateStatus)
	g.POST("/bookings/{id}/quotation/accept", h.AcceptQuotation)
	g.POST("/bookings/{id}/contract", h.SignContract)
	g.POST("/bookings/{id}/start", h.transition(BookingService.StartJob))
	g.POST("/bookings/{id}/complete", h.transition(BookingService.CompleteJob))
	g.POST("/bookings/{id}/confirm", h.transition(BookingService.ConfirmCompletion))
	g.POST("/bookings/{id}/cancel", h.Cancel)
	g.GET("/bookings/{id}/timeline", h.Timeline)
	g.POST("/bookings/{id}/incidents", h.ReportIncident)
	g.POST("/incidents/{id}/resolve", h.ResolveIncident)
}

type createBookingRequest struct {
	CustomerID int64 `json:"customer_id"`
}

type statusRequest struct {
	actorRequest
	Status model.BookingStatus `json:"status"`
	Reason string              `json:"reason"`
}

type acceptQuotationRequest struct {
	actorRequest
	QuotationID int64 `json:"quotation_id"`
	TransportID int64 `json:"transport_id"`
	FinalPrice  int64 `json:"final_price"`
}

type incidentRequest struct {
	ReportedBy  int64  `json:"reported_by"`
	Description string `json:"description"`
}

type resolveIncidentRequest struct {
	Dismiss bool `json:"dismiss"`
}

func (h *BookingHandler) Create(ctx *xhttp.RequestCtx) {
	var req createBookingRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	b, err := h.svc.CreateBooking(ctx, req.CustomerID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, b)
}

func (h *BookingHandler) Get(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	b, err := h.svc.GetBooking(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, b)
}

func (h *BookingHandler) UpdateStatus(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	var req statusRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	b, err := h.svc.UpdateStatus(ctx, id, req.Status, req.actor(), req.Reason)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, b)
}

func (h *BookingHandler) AcceptQuotation(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	var req acceptQuotationRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	b, err := h.svc.AcceptQuotation(ctx, model.AcceptQuotationRequest{
		BookingID:   id,
		QuotationID: req.QuotationID,
		TransportID: req.TransportID,
		FinalPrice:  req.FinalPrice,
		Actor:       req.actor(),
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, b)
}

func (h *BookingHandler) SignContract(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	c, err := h.svc.SignContract(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, c)
}

// transition serves the job steps, which all take a booking id and an actor.
func (h *BookingHandler) transition(step func(BookingService, context.Context, int64, model.Actor) (*model.Booking, error)) xhttp.RequestHandler {
	return func(ctx *xhttp.RequestCtx) {
		id, err := pathInt64(ctx, "id")
		if err != nil {
			writeError(ctx, xhttp.StatusBadRequest, err.Error())
			return
		}
		var req actorRequest
		if err := readJSON(ctx, &req); err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		b, err := step(h.svc, ctx, id, req.actor())
		if err != nil {
			writeServiceError(ctx, err)
			return
		}
		writeJSON(ctx, xhttp.StatusOK, b)
	}
}

func (h *BookingHandler) Cancel(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	var req statusRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	b, err := h.svc.Cancel(ctx, id, req.actor(), req.Reason)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, b)
}

func (h *BookingHandler) Timeline(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	items, err := h.svc.Timeline(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]any{"items": items})
}

func (h *BookingHandler) ReportIncident(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	var req incidentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	inc, err := h.svc.ReportIncident(ctx, id, req.ReportedBy, req.Description)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, inc)
}

func (h *BookingHandler) ResolveIncident(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	var req resolveIncidentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	inc, err := h.svc.ResolveIncident(ctx, id, req.Dismiss)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, inc)
}
