package handlers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/home-express/finance-core/internal/model"
	xhttp "github.com/home-express/finance-core/pkg/http"
	"github.com/home-express/finance-core/pkg/logger"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type actorRequest struct {
	ActorID   int64           `json:"actor_id"`
	ActorRole model.ActorRole `json:"actor_role"`
}

func (a actorRequest) actor() model.Actor {
	role := a.ActorRole
	if role == "" {
		role = model.ActorSystem
	}
	return model.Actor{ID: a.ActorID, Role: role}
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, errorResponse{Error: msg})
}

// writeServiceError maps business error kinds to status codes. Anything that
// is not a business error is a 500 and its text is not exposed.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	be, ok := model.AsBusinessError(err)
	if !ok {
		logger.Error("request failed", "path", string(ctx.Path()), "error", err)
		writeError(ctx, xhttp.StatusInternalServerError, xhttp.StatusText(xhttp.StatusInternalServerError))
		return
	}
	writeJSON(ctx, statusFor(be.Kind), errorResponse{Error: be.Error(), Code: string(be.Code)})
}

func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation:
		return xhttp.StatusBadRequest
	case model.KindState:
		return xhttp.StatusConflict
	case model.KindNotFound:
		return xhttp.StatusNotFound
	case model.KindExternal:
		return xhttp.StatusBadGateway
	default:
		return xhttp.StatusInternalServerError
	}
}

// pathInt64 reads a numeric router parameter such as {id}.
func pathInt64(ctx *xhttp.RequestCtx, name string) (int64, error) {
	raw := fmt.Sprint(ctx.UserValue(name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func queryInt(ctx *xhttp.RequestCtx, key string, def int) int {
	if v := query(ctx, key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// queryTime reads an RFC3339 or YYYY-MM-DD query parameter. Absent is nil.
func queryTime(ctx *xhttp.RequestCtx, name string) (*time.Time, error) {
	v := query(ctx, name)
	if v == "" {
		return nil, nil
	}
	t, err := parseTime(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC3339 or YYYY-MM-DD, got %q", name, v)
	}
	return &t, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
