// Package api exposes the thin HTTP control surface described in the
// external interfaces design: quickDeploy, start/pause/stop, the
// read-through dashboard, and the optimiser trigger/poll/promote
// operations. It deliberately carries no authentication or persistence
// of its own; every handler is a validating wrapper over StateStore,
// BrokerClient and the Optimiser. Grounded on the teacher's
// Server.setupRoutes/gorilla-mux-plus-rs/cors wiring.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-tradeops/control-plane/internal/optimizer"
	"github.com/atlas-tradeops/control-plane/pkg/contracts"
	"github.com/atlas-tradeops/control-plane/pkg/types"
)

// Config tunes validation the control surface enforces independently of
// the Scheduler that eventually consumes what it writes.
type Config struct {
	Addr                   string
	MinCheckInterval       time.Duration
	DefaultCheckInterval   time.Duration
	DefaultPositionSizePct decimal.Decimal
	ShutdownTimeout        time.Duration
}

// DefaultConfig mirrors spec.md's documented quickDeploy defaults.
func DefaultConfig() Config {
	return Config{
		Addr:                   ":8080",
		MinCheckInterval:       60 * time.Second,
		DefaultCheckInterval:   300 * time.Second,
		DefaultPositionSizePct: decimal.NewFromFloat(0.02),
		ShutdownTimeout:        10 * time.Second,
	}
}

// Server is the HTTP control surface.
type Server struct {
	logger     *zap.Logger
	cfg        Config
	router     *mux.Router
	httpServer *http.Server
	store      contracts.StateStore
	broker     contracts.BrokerClient
	optimizer  *optimizer.Optimizer
	hub        *Hub
}

// NewServer wires the control-surface router over the given
// collaborators. hub may be nil, in which case /ws is not registered.
func NewServer(logger *zap.Logger, cfg Config, store contracts.StateStore, broker contracts.BrokerClient, opt *optimizer.Optimizer, hub *Hub) *Server {
	s := &Server{
		logger:    logger.Named("api"),
		cfg:       cfg,
		router:    mux.NewRouter(),
		store:     store,
		broker:    broker,
		optimizer: opt,
		hub:       hub,
	}
	s.setupRoutes()
	return s
}

// Router exposes the underlying mux.Router, mainly for tests that want
// to drive it through httptest.NewServer without going through Start.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/api/v1/live-strategies", s.handleQuickDeploy).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/live-strategies", s.handleListActiveStrategies).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/live-strategies/{id}/start", s.handleStartStrategy).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/live-strategies/{id}/pause", s.handlePauseStrategy).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/live-strategies/{id}/stop", s.handleStopStrategy).Methods(http.MethodPost)

	s.router.HandleFunc("/api/v1/dashboard", s.handleGetDashboard).Methods(http.MethodGet)

	s.router.HandleFunc("/api/v1/optimizations", s.handleRunOptimization).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/optimizations/{id}", s.handleGetOptimization).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/optimizations/{id}/execute-optimal", s.handleExecuteOptimal).Methods(http.MethodPost)

	if s.hub != nil {
		s.router.HandleFunc("/ws", s.hub.ServeHTTP)
	}
}

// Start begins serving. It blocks until the listener fails or Stop is
// called.
func (s *Server) Start() error {
	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: handler,
	}

	s.logger.Info("starting API server", zap.String("addr", s.cfg.Addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the HTTP server and any WebSocket hub.
func (s *Server) Stop(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// quickDeployRequest is the §6 quickDeploy payload.
type quickDeployRequest struct {
	Owner            string   `json:"owner"`
	StrategyID       string   `json:"strategyId"`
	Symbols          []string `json:"symbols"`
	Name             string   `json:"name"`
	CheckIntervalSec *int     `json:"checkInterval"`
	AutoExecute      *bool    `json:"autoExecute"`
	MaxPositions     *int     `json:"maxPositions"`
	PositionSizePct  *float64 `json:"positionSizePct"`
	MaxPositionSize  *float64 `json:"maxPositionSize"`
	DailyLossLimit   *float64 `json:"dailyLossLimit"`
}

func (s *Server) handleQuickDeploy(w http.ResponseWriter, r *http.Request) {
	var req quickDeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Owner == "" || req.StrategyID == "" || len(req.Symbols) == 0 {
		writeError(w, http.StatusBadRequest, "owner, strategyId and symbols are required")
		return
	}

	ctx := r.Context()
	strategy, err := s.store.GetStrategy(ctx, req.StrategyID)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("strategy %s not found", req.StrategyID))
		return
	}

	checkInterval := s.cfg.DefaultCheckInterval
	if req.CheckIntervalSec != nil {
		checkInterval = time.Duration(*req.CheckIntervalSec) * time.Second
	}
	if checkInterval < s.cfg.MinCheckInterval {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("checkInterval must be >= %s", s.cfg.MinCheckInterval))
		return
	}

	autoExecute := true
	if req.AutoExecute != nil {
		autoExecute = *req.AutoExecute
	}
	maxPositions := 5
	if req.MaxPositions != nil {
		maxPositions = *req.MaxPositions
	}
	positionSizePct := s.cfg.DefaultPositionSizePct
	if req.PositionSizePct != nil {
		positionSizePct = decimal.NewFromFloat(*req.PositionSizePct)
	}
	if positionSizePct.LessThanOrEqual(decimal.Zero) || positionSizePct.GreaterThan(decimal.NewFromInt(1)) {
		writeError(w, http.StatusBadRequest, "positionSizePct must be in (0, 1]")
		return
	}

	name := req.Name
	if name == "" {
		name = fmt.Sprintf("%s-%s", strategy.Name, req.Symbols[0])
	}

	ls := types.LiveStrategy{
		ID:              uuid.New().String(),
		Owner:           req.Owner,
		StrategyID:      req.StrategyID,
		Name:            name,
		Symbols:         req.Symbols,
		Status:          types.LiveStrategyStatusActive,
		CheckInterval:   checkInterval,
		AutoExecute:     autoExecute,
		MaxPositions:    maxPositions,
		PositionSizePct: positionSizePct,
	}
	if req.MaxPositionSize != nil {
		ls.MaxPositionSize = decimal.NewFromFloat(*req.MaxPositionSize)
	}
	if req.DailyLossLimit != nil {
		ls.DailyLossLimit = decimal.NewFromFloat(*req.DailyLossLimit)
	}

	if err := s.store.PutLiveStrategy(ctx, ls); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist live strategy")
		return
	}

	writeJSON(w, http.StatusCreated, ls)
}

func (s *Server) handleListActiveStrategies(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter is required")
		return
	}

	all, err := s.store.ListActiveLiveStrategies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list live strategies")
		return
	}

	owned := make([]types.LiveStrategy, 0, len(all))
	for _, ls := range all {
		if ls.Owner == owner {
			owned = append(owned, ls)
		}
	}
	writeJSON(w, http.StatusOK, owned)
}

// transitionStrategy loads a LiveStrategy, applies a transition function
// that returns the target status (or an error for an invalid
// transition), and persists the result. Transitions are idempotent: a
// strategy already in the target status keeps that status. Any
// transition to ACTIVE, including starting an already ACTIVE strategy,
// clears LastError.
func (s *Server) transitionStrategy(w http.ResponseWriter, r *http.Request, apply func(types.LiveStrategyStatus) (types.LiveStrategyStatus, error)) {
	id := mux.Vars(r)["id"]
	ctx := r.Context()

	ls, err := s.store.GetLiveStrategy(ctx, id)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("live strategy %s not found", id))
		return
	}

	next, err := apply(ls.Status)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	ls.Status = next
	if next == types.LiveStrategyStatusActive {
		ls.LastError = ""
	}
	if err := s.store.PutLiveStrategy(ctx, ls); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist live strategy")
		return
	}

	writeJSON(w, http.StatusOK, ls)
}

func (s *Server) handleStartStrategy(w http.ResponseWriter, r *http.Request) {
	s.transitionStrategy(w, r, func(current types.LiveStrategyStatus) (types.LiveStrategyStatus, error) {
		// ACTIVE<->PAUSED is an operator toggle; STOPPED/ERROR can also be
		// restarted by the operator, mirroring the quickDeploy -> stop ->
		// start round trip.
		return types.LiveStrategyStatusActive, nil
	})
}

func (s *Server) handlePauseStrategy(w http.ResponseWriter, r *http.Request) {
	s.transitionStrategy(w, r, func(current types.LiveStrategyStatus) (types.LiveStrategyStatus, error) {
		if current == types.LiveStrategyStatusPaused {
			return current, nil
		}
		if current != types.LiveStrategyStatusActive {
			return current, fmt.Errorf("cannot pause a live strategy in status %s", current)
		}
		return types.LiveStrategyStatusPaused, nil
	})
}

func (s *Server) handleStopStrategy(w http.ResponseWriter, r *http.Request) {
	s.transitionStrategy(w, r, func(current types.LiveStrategyStatus) (types.LiveStrategyStatus, error) {
		return types.LiveStrategyStatusStopped, nil
	})
}

// dashboard is the getDashboard(owner) read-through response.
type dashboard struct {
	Owner          string               `json:"owner"`
	Account        types.Account        `json:"account"`
	Positions      []types.Position     `json:"positions"`
	LiveStrategies []types.LiveStrategy `json:"liveStrategies"`
}

func (s *Server) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter is required")
		return
	}
	ctx := r.Context()

	account, err := s.broker.GetAccount(ctx)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to load account")
		return
	}
	positions, err := s.broker.ListPositions(ctx)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to load positions")
		return
	}
	all, err := s.store.ListActiveLiveStrategies(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list live strategies")
		return
	}
	owned := make([]types.LiveStrategy, 0, len(all))
	for _, ls := range all {
		if ls.Owner == owner {
			owned = append(owned, ls)
		}
	}

	writeJSON(w, http.StatusOK, dashboard{
		Owner:          owner,
		Account:        account,
		Positions:      positions,
		LiveStrategies: owned,
	})
}

// runOptimizationRequest is the §6 runOptimization payload.
type runOptimizationRequest struct {
	Owner          string    `json:"owner"`
	Symbols        []string  `json:"symbols"`
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
	InitialCapital float64   `json:"initialCapital"`
	StrategyIDs    []string  `json:"strategyIds"`
}

func (s *Server) handleRunOptimization(w http.ResponseWriter, r *http.Request) {
	var req runOptimizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Owner == "" || len(req.Symbols) == 0 || len(req.StrategyIDs) == 0 {
		writeError(w, http.StatusBadRequest, "owner, symbols and strategyIds are required")
		return
	}
	if !req.EndDate.After(req.StartDate) {
		writeError(w, http.StatusBadRequest, "endDate must be after startDate")
		return
	}

	ctx := r.Context()
	strategies := make([]types.Strategy, 0, len(req.StrategyIDs))
	for _, id := range req.StrategyIDs {
		st, err := s.store.GetStrategy(ctx, id)
		if err != nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("strategy %s not found", id))
			return
		}
		strategies = append(strategies, st)
	}

	job := types.OptimizationJob{
		ID:             uuid.New().String(),
		Owner:          req.Owner,
		Symbols:        req.Symbols,
		StrategyIDs:    req.StrategyIDs,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		InitialCapital: decimal.NewFromFloat(req.InitialCapital),
		Status:         types.OptimizationJobPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.PutOptimizationJob(ctx, job); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist optimization job")
		return
	}

	// RunJob mutates and persists the job itself as it progresses; the
	// handler only needs to hand off the PENDING snapshot it already
	// wrote and let the caller poll by id.
	go func(job types.OptimizationJob, strategies []types.Strategy) {
		s.optimizer.RunJob(context.Background(), job, strategies)
	}(job, strategies)

	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetOptimization(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := s.store.GetOptimizationJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("optimization job %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleExecuteOptimal(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	topN := 1
	if n := r.URL.Query().Get("top_n"); n != "" {
		fmt.Sscanf(n, "%d", &topN)
	}
	if topN < 1 {
		writeError(w, http.StatusBadRequest, "top_n must be >= 1")
		return
	}

	ctx := r.Context()
	job, err := s.store.GetOptimizationJob(ctx, id)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("optimization job %s not found", id))
		return
	}
	if job.Status != types.OptimizationJobCompleted {
		writeError(w, http.StatusConflict, fmt.Sprintf("optimization job %s is not completed (status %s)", id, job.Status))
		return
	}

	results := make([]types.RankedResult, len(job.Results))
	copy(results, job.Results)
	sort.Slice(results, func(i, j int) bool { return results[i].Rank < results[j].Rank })
	if topN > len(results) {
		topN = len(results)
	}

	deployed := make([]types.LiveStrategy, 0, topN)
	for _, res := range results[:topN] {
		ls := types.LiveStrategy{
			ID:              uuid.New().String(),
			Owner:           job.Owner,
			StrategyID:      res.StrategyID,
			Name:            fmt.Sprintf("%s-%s-optimal", res.StrategyID, res.Symbol),
			Symbols:         []string{res.Symbol},
			Status:          types.LiveStrategyStatusActive,
			CheckInterval:   s.cfg.DefaultCheckInterval,
			AutoExecute:     true,
			MaxPositions:    5,
			PositionSizePct: s.cfg.DefaultPositionSizePct,
		}
		if err := s.store.PutLiveStrategy(ctx, ls); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to persist live strategy")
			return
		}
		deployed = append(deployed, ls)
	}

	writeJSON(w, http.StatusCreated, deployed)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
