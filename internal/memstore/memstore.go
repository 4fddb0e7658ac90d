// Package memstore is a reference, in-memory implementation of
// pkg/contracts.StateStore for tests and the demo binary. It is
// grounded on the teacher's internal/data.Store (mutex-guarded maps,
// cache-first access pattern) minus the synthetic sample-data generator
// — callers build fixtures directly instead.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlas-tradeops/control-plane/pkg/contracts"
	"github.com/atlas-tradeops/control-plane/pkg/types"
)

// Store is a mutex-guarded, process-local StateStore.
type Store struct {
	mu sync.RWMutex

	logger *zap.Logger

	liveStrategies map[string]types.LiveStrategy
	strategies     map[string]types.Strategy
	riskRules      map[string][]types.RiskRule // keyed by owner
	orders         map[string]types.Order
	signals        map[string]types.Signal
	jobs           map[string]types.OptimizationJob
	auditLog       []types.TradeAuditLog
}

// New creates an empty Store.
func New(logger *zap.Logger) *Store {
	return &Store{
		logger:         logger.Named("memstore"),
		liveStrategies: make(map[string]types.LiveStrategy),
		strategies:     make(map[string]types.Strategy),
		riskRules:      make(map[string][]types.RiskRule),
		orders:         make(map[string]types.Order),
		signals:        make(map[string]types.Signal),
		jobs:           make(map[string]types.OptimizationJob),
	}
}

var _ contracts.StateStore = (*Store)(nil)

func (s *Store) ListActiveLiveStrategies(ctx context.Context) ([]types.LiveStrategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.LiveStrategy
	for _, ls := range s.liveStrategies {
		if ls.Status == types.LiveStrategyStatusActive {
			out = append(out, ls)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetLiveStrategy(ctx context.Context, id string) (types.LiveStrategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ls, ok := s.liveStrategies[id]
	if !ok {
		return types.LiveStrategy{}, fmt.Errorf("memstore: live strategy %q not found", id)
	}
	return ls, nil
}

func (s *Store) PutLiveStrategy(ctx context.Context, ls types.LiveStrategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ls.ID == "" {
		ls.ID = uuid.NewString()
	}
	s.liveStrategies[ls.ID] = ls
	return nil
}

func (s *Store) GetStrategy(ctx context.Context, id string) (types.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.strategies[id]
	if !ok {
		return types.Strategy{}, fmt.Errorf("memstore: strategy %q not found", id)
	}
	return st, nil
}

func (s *Store) ListStrategies(ctx context.Context, owner string) ([]types.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Strategy
	for _, st := range s.strategies {
		if st.Owner == owner {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) PutStrategy(ctx context.Context, st types.Strategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	s.strategies[st.ID] = st
	return nil
}

func (s *Store) PutSignal(ctx context.Context, sig types.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	s.signals[sig.ID] = sig
	return nil
}

func (s *Store) MarkSignalExecuted(ctx context.Context, signalID, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[signalID]
	if !ok {
		return fmt.Errorf("memstore: signal %q not found", signalID)
	}
	sig.Executed = true
	sig.OrderID = orderID
	s.signals[signalID] = sig
	return nil
}

func (s *Store) ListActiveRiskRules(ctx context.Context, owner, strategyID string) ([]types.RiskRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.RiskRule
	for _, r := range s.riskRules[owner] {
		if !r.IsActive {
			continue
		}
		if r.StrategyID == "" || r.StrategyID == strategyID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) RecordRuleBreach(ctx context.Context, ruleID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for owner, rules := range s.riskRules {
		for i, r := range rules {
			if r.ID == ruleID {
				r.BreachCount++
				r.LastBreachAt = &at
				s.riskRules[owner][i] = r
				return nil
			}
		}
	}
	return fmt.Errorf("memstore: risk rule %q not found", ruleID)
}

// AddRiskRule is a test/demo convenience not on the StateStore interface.
func (s *Store) AddRiskRule(rule types.RiskRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	s.riskRules[rule.Owner] = append(s.riskRules[rule.Owner], rule)
}

func (s *Store) PutOrder(ctx context.Context, o types.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	s.orders[o.ID] = o
	return nil
}

func (s *Store) PutOptimizationJob(ctx context.Context, job types.OptimizationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *Store) GetOptimizationJob(ctx context.Context, id string) (types.OptimizationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return types.OptimizationJob{}, fmt.Errorf("memstore: optimization job %q not found", id)
	}
	return job, nil
}

// RecordAuditAndUpdateCounters is the one transactional write the
// design calls for: the audit append and the LiveStrategy counter diff
// are applied under the same lock, so no reader observes one without
// the other.
func (s *Store) RecordAuditAndUpdateCounters(ctx context.Context, entry types.TradeAuditLog, liveStrategyID string, diff contracts.LiveStrategyDiff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ls, ok := s.liveStrategies[liveStrategyID]
	if !ok {
		return fmt.Errorf("memstore: live strategy %q not found", liveStrategyID)
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	s.auditLog = append(s.auditLog, entry)
	ls.TotalSignals += diff.TotalSignalsDelta
	ls.ExecutedTrades += diff.ExecutedTradesDelta
	ls.ErrorCount += diff.ErrorCountDelta
	if diff.ResetConsecutiveFailedTicks {
		ls.ConsecutiveFailedTicks = 0
	} else {
		ls.ConsecutiveFailedTicks += diff.ConsecutiveFailedTicksDelta
	}
	if diff.SetStatus != nil {
		ls.Status = *diff.SetStatus
	}
	if diff.SetLastCheck != nil {
		ls.LastCheck = diff.SetLastCheck
	}
	if diff.SetLastSignalAt != nil {
		ls.LastSignalAt = diff.SetLastSignalAt
	}
	if diff.SetLastTradeAt != nil {
		ls.LastTradeAt = diff.SetLastTradeAt
	}
	if diff.SetLastError != nil {
		ls.LastError = *diff.SetLastError
	}
	s.liveStrategies[liveStrategyID] = ls

	return nil
}

func (s *Store) ListAuditLog(ctx context.Context, owner string, from, to time.Time) ([]types.TradeAuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.TradeAuditLog
	for _, e := range s.auditLog {
		if e.Owner != owner {
			continue
		}
		if e.Timestamp.Before(from) || e.Timestamp.After(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
