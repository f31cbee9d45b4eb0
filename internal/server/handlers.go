package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/mail-sentinel/internal/cleaning"
	"github.com/raaihank/mail-sentinel/internal/mailparse"
	"github.com/raaihank/mail-sentinel/internal/scoring"
	"github.com/raaihank/mail-sentinel/internal/websocket"
)

// BodyHeader carries the email body on classification requests
const BodyHeader = "email-body-text"

// CleanRequest is the JSON body of POST /clean
type CleanRequest struct {
	Text   string `json:"text"`
	Report bool   `json:"report"`
}

// CleanResponse is the JSON answer of POST /clean
type CleanResponse struct {
	Cleaned  string             `json:"cleaned"`
	Findings []cleaning.Finding `json:"findings,omitempty"`
}

// ThreadRequest is the JSON body of POST /thread
type ThreadRequest struct {
	Emails []string `json:"emails"`
	Clean  bool     `json:"clean"`
}

// ThreadResponse is the JSON answer of POST /thread
type ThreadResponse struct {
	Text string `json:"text"`
	// Paragraphs counts the kept paragraphs, delimiters excluded
	Paragraphs int `json:"paragraphs"`
}

// ThreadErrorResponse reports the emails of a thread that could not be cleaned
type ThreadErrorResponse struct {
	Error         string `json:"error"`
	FailedIndices []int  `json:"failed_indices"`
}

// ClassifyResponse is the verbose answer of POST /
type ClassifyResponse struct {
	Label     int     `json:"label"`
	Distance  float64 `json:"distance"`
	Threshold float64 `json:"threshold"`
}

// handleClassify scores one email and answers 1 (thank-you) or 0. The body comes
// from the email-body-text header when present, otherwise from the request body.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	text := r.Header.Get(BodyHeader)
	if text == "" {
		var err error
		if text, err = s.readEmail(w, r); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	start := time.Now()
	result, err := s.scorer.Score(r.Context(), text)
	if errors.Is(err, scoring.ErrNoReference) {
		writeError(w, http.StatusServiceUnavailable, "no reference vector loaded")
		return
	}
	if err != nil {
		log.Error("Scoring failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "scoring failed")
		return
	}

	log.LogClassification(len(text), len(result.Cleaned), result.Distance, result.Decision)
	s.wsHub.BroadcastClassification(websocket.ClassificationEvent{
		RequestID:     requestID,
		RawLength:     len(text),
		CleanedLength: len(result.Cleaned),
		Distance:      result.Distance,
		Threshold:     result.Threshold,
		Decision:      result.Decision,
		CacheHit:      result.CacheHit,
		ProcessingMS:  float64(time.Since(start).Microseconds()) / 1000,
	})

	if r.URL.Query().Get("verbose") != "" {
		writeJSON(w, http.StatusOK, ClassifyResponse{
			Label:     result.Decision,
			Distance:  result.Distance,
			Threshold: result.Threshold,
		})
		return
	}
	writeJSON(w, http.StatusOK, result.Decision)
}

// handleClean runs the full pipeline and returns the cleaned text
func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	var req CleanRequest
	if isRFC822(r) {
		text, err := s.readEmail(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Text = text
		req.Report = r.URL.Query().Get("report") != ""
	} else if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cleaner := s.scorer.Cleaner()
	if !req.Report {
		writeJSON(w, http.StatusOK, CleanResponse{Cleaned: cleaner.FullClean(req.Text)})
		return
	}
	result := cleaner.Clean(req.Text)
	writeJSON(w, http.StatusOK, CleanResponse{Cleaned: result.Cleaned, Findings: result.Findings})
}

// handleThread joins a thread's emails and drops repeated paragraphs
func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	var req ThreadRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Emails) == 0 {
		writeError(w, http.StatusBadRequest, "emails cannot be empty")
		return
	}

	cleaner := s.scorer.Cleaner()
	emails := req.Emails
	if req.Clean {
		var failures []cleaning.ItemError
		emails, failures = cleaning.CleanBatch(r.Context(), req.Emails, s.config.Batch.Workers, cleaner.FullClean)
		if len(failures) > 0 {
			s.logger.WithRequestID(getRequestID(r.Context())).Warn("Thread cleaning failed",
				zap.Int("failures", len(failures)),
				zap.Error(failures[0]))
			indices := make([]int, len(failures))
			for i, failure := range failures {
				indices[i] = failure.Index
			}
			writeJSON(w, http.StatusUnprocessableEntity, ThreadErrorResponse{
				Error:         fmt.Sprintf("cleaning failed for %d emails", len(failures)),
				FailedIndices: indices,
			})
			return
		}
	}

	thread := cleaner.Thread()
	text := thread.RemoveRepeatingParagraphs(thread.JoinThread(emails))
	paragraphs := 0
	if text != "" {
		for _, p := range strings.Split(text, "\n\n") {
			if !thread.IsDelimiter(p) {
				paragraphs++
			}
		}
	}
	writeJSON(w, http.StatusOK, ThreadResponse{Text: text, Paragraphs: paragraphs})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "healthy",
		"timestamp":        time.Now().Format(time.RFC3339),
		"reference_loaded": s.scorer.HasReference(),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":              "mail-sentinel",
		"version":           Version,
		"uptime":            time.Since(s.startedAt).Round(time.Second).String(),
		"scoring_enabled":   s.config.Scoring.Enabled,
		"threshold":         s.scorer.Threshold(),
		"stages":            len(s.scorer.Cleaner().Stages()),
		"embeddings":        s.config.Embeddings.Type,
		"cache_enabled":     s.config.Cache.Enabled,
		"websocket_enabled": s.config.WebSocket.Enabled,
		"websocket":         s.wsHub.GetStats(),
	})
}

// readEmail reads the request body, parsing it as an RFC 822 message when declared so
func (s *Server) readEmail(w http.ResponseWriter, r *http.Request) (string, error) {
	body := http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
	defer body.Close()

	if isRFC822(r) {
		msg, err := mailparse.Parse(body)
		if err != nil {
			return "", fmt.Errorf("invalid message: %w", err)
		}
		return msg.Text(), nil
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	return string(data), nil
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func isRFC822(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "message/rfc822"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
