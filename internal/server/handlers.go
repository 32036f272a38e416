package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/anonymizer"
	"github.com/raaihank/text-anonymizer/internal/audit"
	"github.com/raaihank/text-anonymizer/internal/cache"
	"github.com/raaihank/text-anonymizer/internal/logger"
	"github.com/raaihank/text-anonymizer/internal/websocket"
)

const (
	auditTimeout       = 5 * time.Second
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

type anonymizeRequest struct {
	Text     string `json:"text"`
	Strategy string `json:"strategy"`
	Language string `json:"language"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type infoResponse struct {
	Message             string   `json:"message"`
	SupportedStrategies []string `json:"supported_strategies"`
	SupportedLanguages  []string `json:"supported_languages"`
	DefaultStrategy     string   `json:"default_strategy"`
	DefaultLanguage     string   `json:"default_language"`
}

// handleAnonymize runs one anonymization session over the request text
func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	req, err := s.decodeRequest(w, r)
	if err != nil {
		log.Warn("Failed to read request body", zap.Error(err))
		writeDetail(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if req.Text == "" {
		writeDetail(w, http.StatusBadRequest, "No text provided")
		return
	}

	engine, err := s.newEngine(req, log)
	if err != nil {
		var cfgErr *anonymizer.ConfigError
		if errors.As(err, &cfgErr) {
			writeDetail(w, http.StatusBadRequest, cfgErr.Error())
			return
		}
		log.Error("Failed to create engine", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	result := engine.Anonymize(r.Context(), req.Text)

	s.totalRequests.Add(1)
	s.totalEntities.Add(int64(len(result.Explanations)))

	s.record(r.Context(), requestID, engine, result)

	if s.hub != nil {
		s.hub.BroadcastAnonymization(websocket.AnonymizationEvent{
			RequestID:    requestID,
			Source:       "http",
			Strategy:     string(engine.Strategy()),
			Language:     engine.Language(),
			InputLength:  len(req.Text),
			EntityCount:  len(result.Explanations),
			EntityTypes:  result.Types(),
			ProcessingMS: float64(time.Since(start).Microseconds()) / 1000,
		})
	}

	writeJSON(w, http.StatusOK, result)
}

// decodeRequest reads a JSON body, falling back to form data with the
// default strategy and language when the body is not JSON.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (anonymizeRequest, error) {
	req := anonymizeRequest{
		Strategy: s.config.Anonymizer.DefaultStrategy,
		Language: s.config.Anonymizer.DefaultLanguage,
	}

	if s.config.Server.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return req, err
	}

	if err := json.Unmarshal(body, &req); err == nil {
		if req.Strategy == "" {
			req.Strategy = s.config.Anonymizer.DefaultStrategy
		}
		if req.Language == "" {
			req.Language = s.config.Anonymizer.DefaultLanguage
		}
		return req, nil
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	return anonymizeRequest{
		Text:     r.FormValue("text"),
		Strategy: s.config.Anonymizer.DefaultStrategy,
		Language: s.config.Anonymizer.DefaultLanguage,
	}, nil
}

// newEngine builds a request-scoped engine limited to the strategies the
// deployment has enabled
func (s *Server) newEngine(req anonymizeRequest, log *logger.Logger) (*anonymizer.Engine, error) {
	return anonymizer.New(req.Strategy, req.Language, s.patterns, s.semantic,
		anonymizer.WithAllowedStrategies(s.config.Anonymizer.SupportedStrategies),
		anonymizer.WithLogger(log.WithComponent("anonymizer")),
	)
}

// record persists the audit trail without failing the request
func (s *Server) record(ctx context.Context, requestID string, engine *anonymizer.Engine, result anonymizer.Result) {
	if s.audit == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()

	rec := audit.NewRecord(requestID, string(engine.Strategy()), engine.Language(), result)
	if err := s.audit.Insert(ctx, rec); err != nil {
		s.logger.WithRequestID(requestID).Error("Failed to write audit record", zap.Error(err))
	}
}

// handleInfo describes the supported strategies, languages and defaults
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	languages := append([]string{anonymizer.LanguageAuto}, s.semantic.Languages()...)
	writeJSON(w, http.StatusOK, infoResponse{
		Message:             "Anonymization API is running",
		SupportedStrategies: s.config.Anonymizer.SupportedStrategies,
		SupportedLanguages:  languages,
		DefaultStrategy:     s.config.Anonymizer.DefaultStrategy,
		DefaultLanguage:     s.config.Anonymizer.DefaultLanguage,
	})
}

type statsResponse struct {
	System             websocket.SystemStatusEvent `json:"system"`
	WebSocket          *websocket.HubStats         `json:"websocket,omitempty"`
	Cache              *cache.Stats                `json:"cache,omitempty"`
	Audit              *audit.Stats                `json:"audit,omitempty"`
	RateLimitedClients int                         `json:"rate_limited_clients"`
}

// handleStats reports counters of the server and its backing stores.
// Store errors are logged and the section omitted.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		System:             s.systemStatus(),
		RateLimitedClients: s.limiter.Clients(),
	}

	if s.hub != nil {
		hubStats := s.hub.GetStats()
		resp.WebSocket = &hubStats
	}
	if s.cache != nil {
		stats, err := s.cache.GetStats(r.Context())
		if err != nil {
			s.logger.Warn("Failed to read cache stats", zap.Error(err))
		}
		resp.Cache = stats
	}
	if s.audit != nil {
		stats, err := s.audit.GetStats(r.Context())
		if err != nil {
			s.logger.Warn("Failed to read audit stats", zap.Error(err))
		} else {
			resp.Audit = stats
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleRecentAudit lists the latest audit records, newest first
func (s *Server) handleRecentAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeDetail(w, http.StatusNotFound, "Audit trail disabled")
		return
	}

	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeDetail(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	records, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to read audit records", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to read audit records")
		return
	}
	if records == nil {
		records = []*audit.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
