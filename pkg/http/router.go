package xhttp

import (
	"encoding/json"

	"github.com/fasthttp/router"
)

type Router = router.Router

// CreateDefaultRouter returns a router whose fallbacks answer in the same
// {"error": ...} shape the api handlers use.
func CreateDefaultRouter() *Router {
	r := router.New()
	r.RedirectTrailingSlash = true
	r.SaveMatchedRoutePath = true
	r.HandleMethodNotAllowed = true
	r.NotFound = func(ctx *RequestCtx) {
		writeProblem(ctx, StatusNotFound, "route not found")
	}
	r.MethodNotAllowed = func(ctx *RequestCtx) {
		writeProblem(ctx, StatusMethodNotAllowed, StatusText(StatusMethodNotAllowed))
	}
	r.PanicHandler = func(ctx *RequestCtx, v any) {
		panicked(ctx, v)
	}
	return r
}

// MatchedRoute is the route template that served ctx, e.g.
// /api/v1/bookings/{id}. Empty when no route matched.
func MatchedRoute(ctx *RequestCtx) string {
	if v, ok := ctx.UserValue(router.MatchedRoutePathParam).(string); ok {
		return v
	}
	return ""
}

func writeProblem(ctx *RequestCtx, status int, msg string) {
	b, _ := json.Marshal(struct {
		Error string `json:"error"`
	}{msg})
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.SetStatusCode(status)
	ctx.SetBody(b)
}
