package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	StatusAccepted = "ACCEPTED"
	StatusRejected = "REJECTED"
)

type BankAccount struct {
	BankCode      string `json:"bank_code"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number" binding:"required"`
	AccountHolder string `json:"account_holder"`
}

type PayoutRequest struct {
	PayoutID      int64        `json:"payout_id"`
	PayoutNumber  string       `json:"payout_number" binding:"required"`
	TransportID   int64        `json:"transport_id"`
	Amount        int64        `json:"amount" binding:"required,gt=0"`
	Currency      string       `json:"currency"`
	ItemCount     int          `json:"item_count"`
	BankAccount   *BankAccount `json:"bank_account" binding:"required"`
	CorrelationID string       `json:"correlation_id"`
}

type PayoutResponse struct {
	PayoutNumber   string `json:"payout_number"`
	Status         string `json:"status"`
	TransactionRef string `json:"transaction_ref,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Retryable      bool   `json:"retryable"`
}

type HealthResponse struct {
	Status      string    `json:"status"`
	BankID      string    `json:"bank_id"`
	Timestamp   time.Time `json:"timestamp"`
	SuccessRate float64   `json:"success_rate"`
}

// MockBank accepts payouts with a configurable success rate and remembers
// every payout number it has seen.
type MockBank struct {
	mu          sync.Mutex
	successRate float64
	outageRate  float64
	delay       time.Duration
	bankID      string
	rng         *rand.Rand
	seen        map[string]PayoutResponse
	callbackURL string
	client      *http.Client
}

func NewMockBank(successRate, outageRate float64, delay time.Duration, callbackURL string) *MockBank {
	return &MockBank{
		successRate: successRate,
		outageRate:  outageRate,
		delay:       delay,
		bankID:      "MOCK_BANK_" + uuid.New().String()[:8],
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		seen:        make(map[string]PayoutResponse),
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: 5 * time.Second},
	}
}

func (b *MockBank) roll() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng.Float64()
}

var rejections = map[string]bool{
	"ACCOUNT_CLOSED":        false,
	"INVALID_ACCOUNT":       false,
	"DAILY_LIMIT_EXCEEDED":  true,
	"BENEFICIARY_BANK_BUSY": true,
}

func (b *MockBank) randomRejection() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	codes := make([]string, 0, len(rejections))
	for c := range rejections {
		codes = append(codes, c)
	}
	code := codes[b.rng.Intn(len(codes))]
	return code, rejections[code]
}

// execute returns the stored answer for a known payout number, so the same
// payout is never paid twice.
func (b *MockBank) execute(req *PayoutRequest) (PayoutResponse, bool) {
	b.mu.Lock()
	if prev, ok := b.seen[req.PayoutNumber]; ok {
		b.mu.Unlock()
		return prev, true
	}
	b.mu.Unlock()

	time.Sleep(b.delay)

	resp := PayoutResponse{PayoutNumber: req.PayoutNumber}
	if b.roll() < b.successRate {
		resp.Status = StatusAccepted
		resp.TransactionRef = "TRX-" + uuid.New().String()[:12]
		log.Info().Str("payout_number", req.PayoutNumber).Int64("amount", req.Amount).Str("ref", resp.TransactionRef).Msg("payout accepted")
	} else {
		resp.Status = StatusRejected
		resp.Reason, resp.Retryable = b.randomRejection()
		log.Warn().Str("payout_number", req.PayoutNumber).Str("reason", resp.Reason).Bool("retryable", resp.Retryable).Msg("payout rejected")
	}

	b.mu.Lock()
	b.seen[req.PayoutNumber] = resp
	b.mu.Unlock()
	return resp, false
}

// settle reports the final outcome of an accepted payout back to the finance API.
func (b *MockBank) settle(req PayoutRequest, resp PayoutResponse) {
	if b.callbackURL == "" || req.PayoutID == 0 || resp.Status != StatusAccepted {
		return
	}
	body, _ := json.Marshal(map[string]any{
		"status":                "COMPLETED",
		"transaction_reference": resp.TransactionRef,
	})
	url := fmt.Sprintf("%s/api/v1/payouts/%d/status", b.callbackURL, req.PayoutID)
	httpReq, err := http.NewRequest(http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("building settlement callback")
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	res, err := b.client.Do(httpReq)
	if err != nil {
		log.Error().Err(err).Str("payout_number", req.PayoutNumber).Msg("settlement callback failed")
		return
	}
	_ = res.Body.Close()
	log.Info().Str("payout_number", req.PayoutNumber).Int("status", res.StatusCode).Msg("settlement callback sent")
}

type Handler struct {
	bank *MockBank
}

func NewHandler(bank *MockBank) *Handler {
	return &Handler{bank: bank}
}

func (h *Handler) CreatePayout(c *gin.Context) {
	var req PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, PayoutResponse{Status: StatusRejected, Reason: "invalid request: " + err.Error()})
		return
	}

	if h.bank.roll() < h.bank.outageRate {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "bank temporarily unavailable"})
		return
	}

	resp, duplicate := h.bank.execute(&req)
	switch {
	case duplicate:
		c.JSON(http.StatusConflict, resp)
	case resp.Status == StatusAccepted:
		c.JSON(http.StatusOK, resp)
		go h.bank.settle(req, resp)
	default:
		c.JSON(http.StatusUnprocessableEntity, resp)
	}
}

func (h *Handler) GetPayout(c *gin.Context) {
	h.bank.mu.Lock()
	resp, ok := h.bank.seen[c.Param("payout_number")]
	h.bank.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown payout"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		BankID:      h.bank.bankID,
		Timestamp:   time.Now(),
		SuccessRate: h.bank.successRate,
	})
}

func (h *Handler) UpdateConfig(c *gin.Context) {
	var cfg struct {
		SuccessRate *float64 `json:"success_rate"`
		OutageRate  *float64 `json:"outage_rate"`
	}
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	h.bank.mu.Lock()
	if cfg.SuccessRate != nil && *cfg.SuccessRate >= 0 && *cfg.SuccessRate <= 1 {
		h.bank.successRate = *cfg.SuccessRate
	}
	if cfg.OutageRate != nil && *cfg.OutageRate >= 0 && *cfg.OutageRate <= 1 {
		h.bank.outageRate = *cfg.OutageRate
	}
	success, outage := h.bank.successRate, h.bank.outageRate
	h.bank.mu.Unlock()

	log.Info().Float64("success_rate", success).Float64("outage_rate", outage).Msg("bank config updated")
	c.JSON(http.StatusOK, gin.H{"success_rate": success, "outage_rate": outage})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request processed")
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/payouts", handler.CreatePayout)
		v1.GET("/payouts/:payout_number", handler.GetPayout)
		v1.PUT("/config", handler.UpdateConfig)
	}
	router.GET("/health", handler.HealthCheck)
	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8091")
	successRate := getEnvFloat("SUCCESS_RATE", 0.95)
	outageRate := getEnvFloat("OUTAGE_RATE", 0)
	delay := getEnvDuration("DELAY", 200*time.Millisecond)
	callbackURL := getEnv("CALLBACK_URL", "")

	log.Info().
		Str("port", port).
		Float64("success_rate", successRate).
		Float64("outage_rate", outageRate).
		Dur("delay", delay).
		Str("callback_url", callbackURL).
		Msg("starting mock payout bank")

	router := SetupRouter(NewHandler(NewMockBank(successRate, outageRate, delay, callbackURL)))
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
