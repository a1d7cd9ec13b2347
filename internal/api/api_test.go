package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rguerramena-source/decision-api/internal/batch"
	"github.com/rguerramena-source/decision-api/internal/domain"
	"github.com/rguerramena-source/decision-api/internal/engine"
)

const testAPIKey = "test-key"

// createTestServer creates a server with an in-process engine for testing.
func createTestServer() *Server {
	cfg := domain.DefaultConfig()
	cfg.Server.Host = "localhost"
	cfg.Server.MaxBodyBytes = 2048
	cfg.Auth.APIKey = testAPIKey

	policies, _ := engine.NewPolicyEngine()
	orchestrator := batch.New(engine.NewWithPolicies(policies), 4)

	return NewServer(cfg, nil, nil, nil, policies, orchestrator, "test-v1")
}

func postDecide(server *Server, body []byte, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/decide", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(APIKeyHeader, apiKey)
	}

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestDecideEndpoint(t *testing.T) {
	server := createTestServer()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	t.Run("SuccessfulDecision", func(t *testing.T) {
		reqBody := DecideRequest{
			Loans: []*domain.Loan{
				{LoanID: "loan-micro", PaymentMethodBank: "BBVA", TotalOutstanding: 500, OverdueDays: 3},
				{LoanID: "loan-blocked", PaymentMethodBank: "Monterrey Regional", TotalOutstanding: 2500, OverdueDays: 30},
			},
			Transactions: []*domain.Transaction{},
			Now:          domain.NewTimestamp(now),
		}

		body, _ := json.Marshal(reqBody)
		rr := postDecide(server, body, testAPIKey)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp DecideResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if len(resp.Decisions) != 2 {
			t.Fatalf("expected 2 decisions, got %d", len(resp.Decisions))
		}

		micro := resp.Decisions[0]
		if micro.Action != domain.ActionRetry {
			t.Errorf("expected RETRY for micro debt, got %s", micro.Action)
		}
		if micro.Reason.Code != domain.ReasonMicroDebt {
			t.Errorf("expected reason micro_debt, got %s", micro.Reason.Code)
		}
		if micro.NextAttemptDate == nil {
			t.Error("expected next_attempt_date for RETRY")
		}

		blocked := resp.Decisions[1]
		if blocked.Action != domain.ActionStop {
			t.Errorf("expected STOP for kill-listed bank, got %s", blocked.Action)
		}
		if blocked.Reason.Code != domain.ReasonBankBlocked {
			t.Errorf("expected reason bank_blocked, got %s", blocked.Reason.Code)
		}
		if blocked.NextAttemptDate != nil {
			t.Error("expected no next_attempt_date for STOP")
		}

		if resp.Metadata.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Metadata.Version)
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
		if resp.Metadata.LoansEvaluated != 2 {
			t.Errorf("expected 2 loans evaluated, got %d", resp.Metadata.LoansEvaluated)
		}
	})

	t.Run("MissingAPIKey", func(t *testing.T) {
		rr := postDecide(server, []byte(`{"loans":[{"loan_id":"l1"}]}`), "")

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rr.Code)
		}
	})

	t.Run("WrongAPIKey", func(t *testing.T) {
		rr := postDecide(server, []byte(`{"loans":[{"loan_id":"l1"}]}`), "not-the-key")

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := postDecide(server, []byte("not-json"), testAPIKey)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("EmptyLoans", func(t *testing.T) {
		rr := postDecide(server, []byte(`{"loans":[]}`), testAPIKey)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("BlankLoanID", func(t *testing.T) {
		rr := postDecide(server, []byte(`{"loans":[{"loan_id":"   "}]}`), testAPIKey)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("OversizedBody", func(t *testing.T) {
		// Test server caps the body at 2048 bytes
		big := bytes.Repeat([]byte("x"), 4096)
		body := []byte(`{"loans":[{"loan_id":"` + string(big) + `"}]}`)
		rr := postDecide(server, body, testAPIKey)

		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("expected status 413, got %d", rr.Code)
		}
	})

	t.Run("ConfigOverride", func(t *testing.T) {
		// Empty kill list clears the Monterrey block
		reqBody := DecideRequest{
			Loans: []*domain.Loan{
				{LoanID: "loan-blocked", PaymentMethodBank: "Monterrey Regional", TotalOutstanding: 2500, OverdueDays: 30},
			},
			Transactions: []*domain.Transaction{},
			Config:       &domain.EngineOverrides{KillBanks: []string{"no-such-bank"}},
			Now:          domain.NewTimestamp(now),
		}

		body, _ := json.Marshal(reqBody)
		rr := postDecide(server, body, testAPIKey)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp DecideResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if len(resp.Decisions) != 1 || resp.Decisions[0].Action == domain.ActionStop {
			t.Errorf("expected non-STOP with overridden kill list, got %+v", resp.Decisions)
		}
	})

	t.Run("ResponseHeaders", func(t *testing.T) {
		body := []byte(`{"loans":[{"loan_id":"loan-1","overdue_days":3,"total_amount_outstanding":500}]}`)
		rr := postDecide(server, body, testAPIKey)

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header in response")
		}
		if rr.Header().Get("X-Trace-ID") == "" {
			t.Error("expected X-Trace-ID header in response")
		}
		if rr.Header().Get("Content-Type") != "application/json" {
			t.Error("expected Content-Type: application/json")
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer()

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestPolicyEndpoints(t *testing.T) {
	server := createTestServer()

	doJSON := func(method, path string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(APIKeyHeader, testAPIKey)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		return rr
	}

	t.Run("CreateValidPolicy", func(t *testing.T) {
		body := []byte(`{
			"id": "stop-huge-zombies",
			"name": "Stop huge zombie debts",
			"expression": "amount > 50000.0 && overdue_days > 365",
			"confidence": 0.9,
			"enabled": true
		}`)

		rr := doJSON(http.MethodPost, "/policies", body)

		if rr.Code != http.StatusCreated {
			t.Errorf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("CreateInvalidExpression", func(t *testing.T) {
		body := []byte(`{
			"id": "broken",
			"name": "Broken policy",
			"expression": "amount +",
			"enabled": true
		}`)

		rr := doJSON(http.MethodPost, "/policies", body)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("CreateMissingFields", func(t *testing.T) {
		rr := doJSON(http.MethodPost, "/policies", []byte(`{"id":"x"}`))

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ListPolicies", func(t *testing.T) {
		rr := doJSON(http.MethodGet, "/policies", nil)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]interface{}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if _, ok := resp["count"]; !ok {
			t.Error("expected count in response")
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("APIKeyMiddlewareRejectsMissingKey", func(t *testing.T) {
		handler := APIKeyMiddleware("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rr.Code)
		}
	})

	t.Run("APIKeyMiddlewareAcceptsKey", func(t *testing.T) {
		handler := APIKeyMiddleware("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(APIKeyHeader, "secret")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("APIKeyMiddlewareDisabledWhenEmpty", func(t *testing.T) {
		handler := APIKeyMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}
