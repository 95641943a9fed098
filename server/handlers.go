package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/poiesic/dossier"
	"github.com/poiesic/dossier/answer"
	"github.com/poiesic/dossier/ingestion"
	"github.com/poiesic/dossier/search"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 32 << 20

type queryRequest struct {
	Question      string            `json:"question"`
	K             int               `json:"k,omitempty"`
	LookbackHours float64           `json:"lookback_hours,omitempty"`
	Where         map[string]string `json:"where,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.metrics.observeQuery(outcomeInvalid, time.Since(start).Seconds())
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.metrics.observeQuery(outcomeInvalid, time.Since(start).Seconds())
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.K < 0 || req.LookbackHours < 0 {
		s.metrics.observeQuery(outcomeInvalid, time.Since(start).Seconds())
		writeError(w, http.StatusBadRequest, "k and lookback_hours must be non-negative")
		return
	}

	result, err := s.engine.Query(r.Context(), req.Question, dossier.QueryOptions{
		K:        req.K,
		Lookback: time.Duration(req.LookbackHours * float64(time.Hour)),
		Where:    req.Where,
	})
	if err != nil {
		status, outcome := classify(err)
		s.metrics.observeQuery(outcome, time.Since(start).Seconds())
		if status >= http.StatusInternalServerError {
			s.logger.Error("query failed", "err", err)
		}
		writeError(w, status, err.Error())
		return
	}

	outcome := outcomeAnswered
	if result.Degraded {
		outcome = outcomeDegraded
	}
	s.metrics.observeQuery(outcome, time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var payloads []ingestion.Payload
	if err := decodeJSON(w, r, &payloads); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(payloads) == 0 {
		writeError(w, http.StatusBadRequest, "at least one document is required")
		return
	}

	report, err := s.engine.Ingest(r.Context(), payloads)
	if err != nil {
		status, _ := classify(err)
		s.logger.Error("ingest failed", "count", len(payloads), "err", err)
		writeError(w, status, err.Error())
		return
	}

	s.metrics.observeIngest(report.Accepted, len(report.Rejected))
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

// classify maps an engine error to an HTTP status and a query outcome label.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, dossier.ErrBusy):
		return http.StatusServiceUnavailable, outcomeBusy
	case errors.Is(err, answer.ErrEmptyQuestion), errors.Is(err, search.ErrEmptyQuery):
		return http.StatusBadRequest, outcomeInvalid
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, outcomeError
	case errors.Is(err, dossier.ErrClosed):
		return http.StatusServiceUnavailable, outcomeError
	default:
		return http.StatusInternalServerError, outcomeError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := sonic.ConfigStd.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	sonic.ConfigStd.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
