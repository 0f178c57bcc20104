package xhttp

import (
	"net"
	"reflect"
	"runtime"
	"time"

	"github.com/home-express/finance-core/pkg/logger"
	"github.com/valyala/fasthttp"
)

type Server = fasthttp.Server

// ServerOption is the subset of fasthttp.Server knobs the finance api tunes.
// Finance payloads are small JSON documents, so the body limit stays low.
type ServerOption struct {
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	ReadBufferSize     int
	WriteBufferSize    int
	MaxRequestBodySize int
	Concurrency        int
	MaxConnsPerIP      int
	Name               string
}

var DefaultServerOption = ServerOption{
	ReadTimeout:        5 * time.Second,
	WriteTimeout:       5 * time.Second,
	IdleTimeout:        10 * time.Second,
	ReadBufferSize:     4 * 1024,
	WriteBufferSize:    4 * 1024,
	MaxRequestBodySize: 1 << 20,
	Concurrency:        10_000,
	MaxConnsPerIP:      1_000,
}

// Tuning overrides part of a ServerOption. Zero values keep what is there.
type Tuning struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ReadBufferSize  int
	WriteBufferSize int
}

// Tuned returns a copy of o with t applied. Buffers under 1KB are ignored
// since fasthttp would reject most request headers.
func (o ServerOption) Tuned(t Tuning) ServerOption {
	if t.ReadTimeout > 0 {
		o.ReadTimeout = t.ReadTimeout
	}
	if t.WriteTimeout > 0 {
		o.WriteTimeout = t.WriteTimeout
	}
	if t.ReadBufferSize >= 1024 {
		o.ReadBufferSize = t.ReadBufferSize
	}
	if t.WriteBufferSize >= 1024 {
		o.WriteBufferSize = t.WriteBufferSize
	}
	return o
}

// Engine glues a router, its middleware chain and a fasthttp server.
type Engine struct {
	*Router
	*Server
	middle []MiddlewareFunc
}

func NewServer(o ServerOption) *Engine {
	return &Engine{
		Router: CreateDefaultRouter(),
		Server: &fasthttp.Server{
			Name:                         o.Name,
			ReadTimeout:                  o.ReadTimeout,
			WriteTimeout:                 o.WriteTimeout,
			IdleTimeout:                  o.IdleTimeout,
			ReadBufferSize:               o.ReadBufferSize,
			WriteBufferSize:              o.WriteBufferSize,
			MaxRequestBodySize:           o.MaxRequestBodySize,
			Concurrency:                  o.Concurrency,
			MaxConnsPerIP:                o.MaxConnsPerIP,
			TCPKeepalive:                 true,
			DisablePreParseMultipartForm: true,
			NoDefaultServerHeader:        true,
			NoDefaultContentType:         true,
			CloseOnShutdown:              true,
			Logger:                       logger.GetLogger(),
			ErrorHandler: func(ctx *RequestCtx, err error) {
				logger.Warn("[xhttp] bad request", "error", err, "ip", ctx.RemoteIP().String())
				writeProblem(ctx, StatusBadRequest, StatusText(StatusBadRequest))
			},
		},
	}
}

// CreateServer returns an engine with default options, used for side
// listeners such as the metrics endpoint.
func CreateServer() *Engine {
	return NewServer(DefaultServerOption)
}

// Use appends a middleware. The first one registered is the outermost.
func (e *Engine) Use(m MiddlewareFunc) {
	e.middle = append(e.middle, m)
}

// DoRouting freezes the route table and wraps it with the middleware chain.
func (e *Engine) DoRouting() error {
	for method, paths := range e.Router.List() {
		for _, p := range paths {
			logger.Debug("[xhttp] route", "method", method, "path", p)
		}
	}
	h := e.Router.Handler
	for i := len(e.middle) - 1; i >= 0; i-- {
		h = e.middle[i](h)
		logger.Debug("[xhttp] middleware", "name", runtime.FuncForPC(reflect.ValueOf(e.middle[i]).Pointer()).Name())
	}
	e.Server.Handler = h
	return nil
}

func (e *Engine) ListenAndServe(addr string) error {
	if err := e.DoRouting(); err != nil {
		return err
	}
	logger.Info("[xhttp] listening", "addr", addr)
	return e.Server.ListenAndServe(addr)
}

// Serve runs the engine on an existing listener, e.g. fasthttputil.InmemoryListener in tests.
func (e *Engine) Serve(ln net.Listener) error {
	if err := e.DoRouting(); err != nil {
		return err
	}
	return e.Server.Serve(ln)
}

// Shutdown waits for in-flight requests and closes idle connections.
func (e *Engine) Shutdown() {
	logger.Info("[xhttp] shutting down")
	if err := e.Server.Shutdown(); err != nil {
		logger.Error("[xhttp] shutdown failed", "error", err)
	}
}
