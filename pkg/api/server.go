// Package api implements the Gateway: HTTP ingress, signature
// verification, and request routing into pkg/core/engine. Grounded on
// the teacher's pkg/api (gorilla/mux router, rs/cors, respondJSON/
// respondError helpers) with the perpetuals-DEX routes replaced by
// spec.md §6's negotiation surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/auranet/aura-core/pkg/core/emitter"
	"github.com/auranet/aura-core/pkg/core/engine"
	"github.com/auranet/aura-core/pkg/core/hive"
)

// Server terminates HTTP, verifies request signatures, and proxies
// validated requests to the Core engine.
type Server struct {
	engine  *engine.Engine
	hub     *emitter.Hub
	router  *mux.Router
	log     *zap.SugaredLogger
	version string

	healthClient healthpb.HealthClient
	tolerance    int64
	clock        func() time.Time
}

// Deps bundles Server's construction-time dependencies.
type Deps struct {
	Engine       *engine.Engine
	Hub          *emitter.Hub
	Log          *zap.SugaredLogger
	Version      string
	HealthClient healthpb.HealthClient
	ToleranceSec int64
	Clock        func() time.Time
}

func NewServer(d Deps) *Server {
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}
	s := &Server{
		engine:       d.Engine,
		hub:          d.Hub,
		router:       mux.NewRouter(),
		log:          d.Log,
		version:      d.Version,
		healthClient: d.HealthClient,
		tolerance:    d.ToleranceSec,
		clock:        clock,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	signed := requireSignature(s.tolerance, s.clock)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Handle("/negotiate", signed(http.HandlerFunc(s.handleNegotiate))).Methods(http.MethodPost)
	v1.Handle("/search", signed(http.HandlerFunc(s.handleSearch))).Methods(http.MethodPost)
	v1.Handle("/system/status", signed(http.HandlerFunc(s.handleSystemStatus))).Methods(http.MethodGet)
	v1.Handle("/deals/{id}", signed(http.HandlerFunc(s.handleDealStatus))).Methods(http.MethodGet)

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/v1/stream", s.hub.ServeWS)

	s.router.Use(withRequestID)
}

// Handler returns the fully wrapped http.Handler (routes + CORS), for
// use with http.Server or httptest.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Agent-ID", "X-Timestamp", "X-Signature", "X-Request-Id"},
		AllowCredentials: false,
	})
	return c.Handler(s.router)
}

func (s *Server) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	var req NegotiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed_body", err.Error())
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	inbound := hive.InboundRequest{
		ItemID:    req.ItemID,
		BidAmount: req.BidAmount,
		AgentDID:  verifiedDID(r),
	}

	resp, err := s.engine.Negotiate(r.Context(), inbound, requestID(r))
	if err != nil {
		s.log.Warnw("negotiate failed", "request_id", requestID(r), "error", err)
		respondError(w, http.StatusInternalServerError, "negotiate_failed", "unable to process negotiation")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed_body", err.Error())
		return
	}
	if req.Limit <= 0 {
		req.Limit = 3
	}

	scored, err := s.engine.Search(r.Context(), req.Query, req.Limit, req.MinSimilarity)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "search_failed", "unable to search catalog")
		return
	}

	results := make([]SearchResult, 0, len(scored))
	for _, sc := range scored {
		results = append(results, SearchResult{
			ID:              sc.Item.ID,
			Name:            sc.Item.Name,
			BasePrice:       sc.Item.BasePrice,
			SimilarityScore: sc.Score,
		})
	}
	respondJSON(w, http.StatusOK, SearchResponse{Results: results})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	health := s.engine.GetSystemStatus(r.Context())
	respondJSON(w, http.StatusOK, SystemStatusResponse{
		Status:          string(health.Status),
		CPUUsagePercent: health.CPUPercent,
		MemoryUsageMB:   health.MemoryMB,
		Timestamp:       s.clock().Unix(),
		Cached:          health.Cached,
	})
}

func (s *Server) handleDealStatus(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	dealID, err := parseDealID(idStr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_deal_id", err.Error())
		return
	}

	result, err := s.engine.CheckDealStatus(r.Context(), dealID)
	if err != nil {
		if isDealNotFound(err) {
			respondJSON(w, http.StatusOK, DealStatusResponse{Status: "NOT_FOUND"})
			return
		}
		respondError(w, http.StatusInternalServerError, "deal_status_failed", "unable to resolve deal status")
		return
	}

	resp := DealStatusResponse{Status: string(result.Status), Secret: result.Secret}
	if result.Proof != nil {
		resp.Proof = result.Proof
	}
	if result.Instructions != nil {
		resp.PaymentInstructions = result.Instructions
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{Status: "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.healthClient == nil {
		respondJSON(w, http.StatusOK, ReadyzResponse{Status: "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp, err := s.healthClient.Check(ctx, &healthpb.HealthCheckRequest{Service: ""})
	if err != nil {
		respondJSONStatus(w, http.StatusServiceUnavailable, ReadyzResponse{
			Status:       "not_ready",
			Dependencies: map[string]string{"core_service": "timeout"},
		})
		return
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		respondJSONStatus(w, http.StatusServiceUnavailable, ReadyzResponse{
			Status:       "not_ready",
			Dependencies: map[string]string{"core_service": "error"},
		})
		return
	}
	respondJSON(w, http.StatusOK, ReadyzResponse{Status: "ready"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"gateway": "ok"}
	if s.healthClient != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if resp, err := s.healthClient.Check(ctx, &healthpb.HealthCheckRequest{Service: ""}); err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING {
			checks["core_service"] = "ok"
		} else {
			checks["core_service"] = "error"
		}
	}
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: s.clock().Unix(),
		Version:   s.version,
		Checks:    checks,
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, data)
}

func respondError(w http.ResponseWriter, status int, errCode, message string) {
	respondJSON(w, status, ErrorResponse{Error: errCode, Message: message})
}
