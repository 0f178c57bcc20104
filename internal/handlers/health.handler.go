package handlers

import (
	"context"

	"github.com/fasthttp/router"
	xhttp "github.com/home-express/finance-core/pkg/http"
)

type HealthService interface {
	Check(ctx context.Context) map[string]string
}

type HealthHandler struct {
	svc HealthService
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(svc HealthService) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// GetHealth answers 503 when any dependency is down.
func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	checks := h.svc.Check(ctx)
	status := xhttp.StatusOK
	for _, v := range checks {
		if v != "ok" {
			status = xhttp.StatusServiceUnavailable
		}
	}
	writeJSON(ctx, status, map[string]any{"status": xhttp.StatusText(status), "checks": checks})
}
