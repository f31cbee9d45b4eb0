package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/mail-sentinel/internal/cleaning"
	"github.com/raaihank/mail-sentinel/internal/config"
	"github.com/raaihank/mail-sentinel/internal/embeddings"
	"github.com/raaihank/mail-sentinel/internal/logger"
	"github.com/raaihank/mail-sentinel/internal/scoring"
)

const (
	thanksEmail = "we really appreciate all the support you gave our team"
	otherEmail  = "quarterly budget review moved to second floor room"
)

func newTestServer(t *testing.T, withReference bool, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.GetDefaults()
	if mutate != nil {
		mutate(cfg)
	}

	cleaner, err := cleaning.New(cfg.Cleaning, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create cleaner: %v", err)
	}
	service, err := embeddings.NewHashEmbeddingService(&embeddings.ModelConfig{Dimensions: 384}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create embedding service: %v", err)
	}
	scorer := scoring.NewScorer(cleaner, service, cfg.Scoring.Threshold, zap.NewNop())

	if withReference {
		reference, _, err := scorer.Embed(context.Background(), cleaner.FullClean(thanksEmail))
		if err != nil {
			t.Fatalf("Failed to embed reference: %v", err)
		}
		if err := scorer.SetReference(reference); err != nil {
			t.Fatalf("Failed to set reference: %v", err)
		}
	}

	srv, err := New(cfg, logger.NewNop(), scorer)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return srv
}

func do(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestClassify(t *testing.T) {
	srv := newTestServer(t, true, nil)

	t.Run("HeaderContract", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(BodyHeader, thanksEmail)
		rec := do(t, srv, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if strings.TrimSpace(rec.Body.String()) != "1" {
			t.Errorf("Expected 1, got %s", rec.Body.String())
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Errorf("Expected a request ID header")
		}
	})

	t.Run("Body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(otherEmail))
		rec := do(t, srv, req)
		if strings.TrimSpace(rec.Body.String()) != "0" {
			t.Errorf("Expected 0, got %s", rec.Body.String())
		}
	})

	t.Run("Verbose", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/?verbose=1", strings.NewReader(thanksEmail))
		rec := do(t, srv, req)

		var resp ClassifyResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.Label != 1 || resp.Threshold != 0.4 {
			t.Errorf("Unexpected response: %+v", resp)
		}
	})

	t.Run("RFC822", func(t *testing.T) {
		msg := "From: Anna <anna@example.com>\r\nSubject: thanks\r\nContent-Type: text/plain\r\n\r\n" + thanksEmail + "\r\n"
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(msg))
		req.Header.Set("Content-Type", "message/rfc822")
		rec := do(t, srv, req)
		if strings.TrimSpace(rec.Body.String()) != "1" {
			t.Errorf("Expected 1, got %s", rec.Body.String())
		}
	})

	t.Run("NoReference", func(t *testing.T) {
		bare := newTestServer(t, false, nil)
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(thanksEmail))
		if rec := do(t, bare, req); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", rec.Code)
		}
	})
}

func TestScoringDisabled(t *testing.T) {
	srv := newTestServer(t, true, func(c *config.Config) { c.Scoring.Enabled = false })

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(thanksEmail))
	if rec := do(t, srv, req); rec.Code == http.StatusOK {
		t.Errorf("Classification should not be served when scoring is disabled")
	}

	body, _ := json.Marshal(CleanRequest{Text: thanksEmail})
	if rec := do(t, srv, httptest.NewRequest(http.MethodPost, "/clean", bytes.NewReader(body))); rec.Code != http.StatusOK {
		t.Errorf("Cleaning should still be served, got %d", rec.Code)
	}
}

func TestClean(t *testing.T) {
	srv := newTestServer(t, false, nil)
	cleaner := srv.Scorer().Cleaner()
	input := "Hi Anna,\n\nPlease review the attached report.pdf and let me know.\n\nBest regards,\nJohn"

	t.Run("JSON", func(t *testing.T) {
		body, _ := json.Marshal(CleanRequest{Text: input})
		rec := do(t, srv, httptest.NewRequest(http.MethodPost, "/clean", bytes.NewReader(body)))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp CleanResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.Cleaned != cleaner.FullClean(input) {
			t.Errorf("Expected %q, got %q", cleaner.FullClean(input), resp.Cleaned)
		}
		if len(resp.Findings) != 0 {
			t.Errorf("Findings should only be reported on request")
		}
	})

	t.Run("Report", func(t *testing.T) {
		body, _ := json.Marshal(CleanRequest{Text: input, Report: true})
		rec := do(t, srv, httptest.NewRequest(http.MethodPost, "/clean", bytes.NewReader(body)))

		var resp CleanResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		found := false
		for _, f := range resp.Findings {
			if f.Stage == "anonymize_files" {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected an anonymize_files finding, got %+v", resp.Findings)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rec := do(t, srv, httptest.NewRequest(http.MethodPost, "/clean", strings.NewReader("{")))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("BodyTooLarge", func(t *testing.T) {
		small := newTestServer(t, false, func(c *config.Config) { c.Server.MaxBodyBytes = 16 })
		body, _ := json.Marshal(CleanRequest{Text: input})
		rec := do(t, small, httptest.NewRequest(http.MethodPost, "/clean", bytes.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

func TestThread(t *testing.T) {
	srv := newTestServer(t, false, nil)
	shared := "This shared paragraph appears in every single email."

	body, _ := json.Marshal(ThreadRequest{Emails: []string{
		shared + "\n\nFirst email has its own opening paragraph here.",
		"Second email starts with a fresh paragraph of text.\n\n" + shared,
	}})
	rec := do(t, srv, httptest.NewRequest(http.MethodPost, "/thread", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ThreadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Paragraphs != 3 || strings.Count(resp.Text, shared) != 1 {
		t.Errorf("Unexpected thread: %+v", resp)
	}
	if !strings.Contains(resp.Text, "EMAIL_BREAK0") {
		t.Errorf("Expected the email delimiter kept, got %q", resp.Text)
	}

	t.Run("CleaningFailures", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		body, _ := json.Marshal(ThreadRequest{Emails: []string{"first email", "second email"}, Clean: true})
		req := httptest.NewRequest(http.MethodPost, "/thread", bytes.NewReader(body)).WithContext(ctx)
		rec := do(t, srv, req)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("Expected 422, got %d: %s", rec.Code, rec.Body.String())
		}

		var errResp ThreadErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if len(errResp.FailedIndices) != 2 || errResp.FailedIndices[0] != 0 || errResp.FailedIndices[1] != 1 {
			t.Errorf("Expected failed indices [0 1], got %v", errResp.FailedIndices)
		}
	})

	empty, _ := json.Marshal(ThreadRequest{})
	if rec := do(t, srv, httptest.NewRequest(http.MethodPost, "/thread", bytes.NewReader(empty))); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an empty thread, got %d", rec.Code)
	}
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t, true, nil)

	for _, path := range []string{"/health", "/info", "/dashboard", "/"} {
		rec := do(t, srv, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, rec.Code)
		}
	}

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Dashboard should be HTML, got %s", rec.Header().Get("Content-Type"))
	}

	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health["status"] != "healthy" || health["reference_loaded"] != true {
		t.Errorf("Unexpected health: %v", health)
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, true, func(c *config.Config) {
		c.RateLimit.RequestsPerSecond = 0.001
		c.RateLimit.Burst = 2
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(otherEmail))
		req.RemoteAddr = "192.0.2.10:4000"
		codes = append(codes, do(t, srv, req).Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected 200, 200, 429, got %v", codes)
	}

	other := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(otherEmail))
	other.RemoteAddr = "192.0.2.11:4000"
	if code := do(t, srv, other).Code; code != http.StatusOK {
		t.Errorf("Other clients should not be limited, got %d", code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerSecond: 1, Burst: 1})
	limiter.Allow("192.0.2.1")
	limiter.Allow("192.0.2.2")

	if removed := limiter.Cleanup(time.Hour); removed != 0 {
		t.Errorf("Recent clients should be kept, removed %d", removed)
	}
	if removed := limiter.Cleanup(-time.Second); removed != 2 {
		t.Errorf("Expected 2 idle clients removed, got %d", removed)
	}

	disabled := NewRateLimiter(config.RateLimitConfig{Enabled: false})
	for i := 0; i < 10; i++ {
		if !disabled.Allow("192.0.2.1") {
			t.Fatalf("Disabled limiter should allow everything")
		}
	}
}
