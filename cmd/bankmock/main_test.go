package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func samplePayout() PayoutRequest {
	return PayoutRequest{
		PayoutNumber: "PO-7-20261019083000",
		Amount:       1_300_000,
		BankAccount:  &BankAccount{AccountNumber: "0011"},
	}
}

func TestMockBank_AcceptsOnce(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := SetupRouter(NewHandler(NewMockBank(1, 0, 0, "")))

	first := serve(t, router, http.MethodPost, "/api/v1/payouts", samplePayout())
	require.Equal(t, http.StatusOK, first.Code)
	var accepted PayoutResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &accepted))
	assert.Equal(t, StatusAccepted, accepted.Status)
	assert.NotEmpty(t, accepted.TransactionRef)

	again := serve(t, router, http.MethodPost, "/api/v1/payouts", samplePayout())
	assert.Equal(t, http.StatusConflict, again.Code)
	var dup PayoutResponse
	require.NoError(t, json.Unmarshal(again.Body.Bytes(), &dup))
	assert.Equal(t, accepted.TransactionRef, dup.TransactionRef)

	status := serve(t, router, http.MethodGet, "/api/v1/payouts/PO-7-20261019083000", nil)
	assert.Equal(t, http.StatusOK, status.Code)
}

func TestMockBank_Rejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := SetupRouter(NewHandler(NewMockBank(0, 0, 0, "")))

	w := serve(t, router, http.MethodPost, "/api/v1/payouts", samplePayout())
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp PayoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, StatusRejected, resp.Status)
	assert.Contains(t, rejections, resp.Reason)
}

func TestMockBank_Outage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := SetupRouter(NewHandler(NewMockBank(1, 1, 0, "")))

	w := serve(t, router, http.MethodPost, "/api/v1/payouts", samplePayout())
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMockBank_InvalidRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := SetupRouter(NewHandler(NewMockBank(1, 0, 0, "")))

	w := serve(t, router, http.MethodPost, "/api/v1/payouts", map[string]any{"payout_number": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
