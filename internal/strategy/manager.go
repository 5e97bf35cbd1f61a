package strategy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"dualinvest-core/internal/analysis"
	"dualinvest-core/internal/product"
)

// ErrUnknownStrategy is returned by administrative operations naming a
// strategy that is not registered.
var ErrUnknownStrategy = errors.New("unknown strategy")

type entry struct {
	strategy Strategy
	weight   float64
	active   bool
}

// registry is the immutable ensemble configuration. Readers load it once
// per evaluation; writers build a copy and swap it atomically, so an
// in-flight evaluation never sees a half-applied change.
type registry struct {
	entries       map[string]entry
	order         []string
	method        EnsembleMethod
	minConfidence float64
	timeout       time.Duration
}

func (r *registry) clone() *registry {
	next := &registry{
		entries:       make(map[string]entry, len(r.entries)),
		order:         append([]string(nil), r.order...),
		method:        r.method,
		minConfidence: r.minConfidence,
		timeout:       r.timeout,
	}
	for name, e := range r.entries {
		next.entries[name] = e
	}
	return next
}

// StrategyInfo describes one registered strategy for the admin surface.
type StrategyInfo struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Active bool    `json:"active"`
}

// Result bundles everything one product evaluation produced.
type Result struct {
	Symbol    string    `json:"symbol"`
	ProductID string    `json:"product_id"`
	Signals   []Signal  `json:"strategy_signals"`
	Ensemble  Signal    `json:"ensemble_signal"`
	Decision  Decision  `json:"investment_decision"`
	Timestamp time.Time `json:"timestamp"`
}

// Options configures a new Manager. Zero values fall back to defaults.
type Options struct {
	Method        EnsembleMethod // default weighted_average
	MinConfidence float64        // default 0.6
	Timeout       time.Duration  // per-strategy, default 10s
}

// Manager runs the registered strategies against products and combines
// their signals into investment decisions. Safe for concurrent use.
type Manager struct {
	mu  sync.Mutex // serializes writers; readers go through reg
	reg atomic.Pointer[registry]
}

// NewManager builds an empty manager.
func NewManager(opts Options) *Manager {
	if opts.Method == "" || !ValidMethod(opts.Method) {
		opts.Method = WeightedAverage
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = 0.6
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	m := &Manager{}
	m.reg.Store(&registry{
		entries:       map[string]entry{},
		method:        opts.Method,
		minConfidence: opts.MinConfidence,
		timeout:       opts.Timeout,
	})
	return m
}

// AddStrategy registers a strategy. Re-adding an existing name replaces it.
func (m *Manager) AddStrategy(s Strategy, weight float64) {
	if weight <= 0 {
		weight = 1.0
	}
	m.update(func(r *registry) error {
		if _, ok := r.entries[s.Name()]; !ok {
			r.order = append(r.order, s.Name())
		}
		r.entries[s.Name()] = entry{strategy: s, weight: weight, active: true}
		return nil
	})
	log.Printf("strategy manager: added %s with weight %.2f", s.Name(), weight)
}

// RemoveStrategy unregisters a strategy by name.
func (m *Manager) RemoveStrategy(name string) error {
	return m.update(func(r *registry) error {
		if _, ok := r.entries[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
		}
		delete(r.entries, name)
		for i, n := range r.order {
			if n == name {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
		return nil
	})
}

// SetWeight updates one strategy's ensemble weight.
func (m *Manager) SetWeight(name string, weight float64) error {
	if weight <= 0 {
		return fmt.Errorf("weight must be positive, got %v", weight)
	}
	return m.update(func(r *registry) error {
		e, ok := r.entries[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
		}
		e.weight = weight
		r.entries[name] = e
		return nil
	})
}

// SetActive toggles a strategy in or out of the ensemble without
// unregistering it.
func (m *Manager) SetActive(name string, active bool) error {
	return m.update(func(r *registry) error {
		e, ok := r.entries[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
		}
		e.active = active
		r.entries[name] = e
		return nil
	})
}

// SetMethod switches the ensemble combination method.
func (m *Manager) SetMethod(method EnsembleMethod) error {
	if !ValidMethod(method) {
		return fmt.Errorf("invalid ensemble method %q", method)
	}
	return m.update(func(r *registry) error {
		r.method = method
		return nil
	})
}

// SetMinConfidence adjusts the ensemble decision threshold.
func (m *Manager) SetMinConfidence(v float64) error {
	if v <= 0 || v > 1 {
		return fmt.Errorf("min confidence must be in (0, 1], got %v", v)
	}
	return m.update(func(r *registry) error {
		r.minConfidence = v
		return nil
	})
}

// Method returns the current ensemble method.
func (m *Manager) Method() EnsembleMethod { return m.reg.Load().method }

// MinConfidence returns the current decision threshold.
func (m *Manager) MinConfidence() float64 { return m.reg.Load().minConfidence }

// Strategies lists the registered strategies in registration order.
func (m *Manager) Strategies() []StrategyInfo {
	r := m.reg.Load()
	out := make([]StrategyInfo, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		out = append(out, StrategyInfo{Name: name, Weight: e.weight, Active: e.active})
	}
	return out
}

func (m *Manager) update(fn func(*registry) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.reg.Load().clone()
	if err := fn(next); err != nil {
		return err
	}
	m.reg.Store(next)
	return nil
}

// EvaluateProduct runs every active strategy against the product, combines
// the surviving signals and derives the final decision. A failing, slow or
// self-rejecting strategy is dropped from the ensemble; the batch never
// fails because of one strategy.
func (m *Manager) EvaluateProduct(ctx context.Context, symbol string, snap *analysis.Snapshot, p product.Product, pf Portfolio) *Result {
	r := m.reg.Load()

	var active []string
	for _, name := range r.order {
		if r.entries[name].active {
			active = append(active, name)
		}
	}

	if len(active) == 0 {
		ensemble := neutralSignal()
		return &Result{
			Symbol:    symbol,
			ProductID: p.ID,
			Ensemble:  *ensemble,
			Decision: Decision{
				ShouldInvest: false,
				ProductID:    p.ID,
				RiskScore:    1.0,
				Reasons:      []string{"no active strategies available"},
				Warnings:     []string{"strategy manager has no active strategies"},
			},
			Timestamp: time.Now().UTC(),
		}
	}

	signals := m.runStrategies(ctx, r, active, symbol, snap, p)

	var weighted []weightedSignal
	for _, name := range active {
		if sig, ok := signals[name]; ok {
			weighted = append(weighted, weightedSignal{signal: sig, weight: r.entries[name].weight})
		}
	}

	ensemble := combineSignals(r.method, weighted)
	decision := m.decide(r, active, ensemble, p, snap, pf)

	collected := make([]Signal, 0, len(weighted))
	for _, ws := range weighted {
		collected = append(collected, *ws.signal)
	}

	return &Result{
		Symbol:    symbol,
		ProductID: p.ID,
		Signals:   collected,
		Ensemble:  *ensemble,
		Decision:  decision,
		Timestamp: time.Now().UTC(),
	}
}

// runStrategies fans the analysis out across goroutines with a per-strategy
// timeout. A strategy that overruns keeps running on its own goroutine but
// its late result is discarded.
func (m *Manager) runStrategies(ctx context.Context, r *registry, active []string, symbol string, snap *analysis.Snapshot, p product.Product) map[string]*Signal {
	type outcome struct {
		name string
		sig  *Signal
		err  error
	}

	results := make(chan outcome, len(active))
	for _, name := range active {
		go func(name string, s Strategy) {
			sctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			done := make(chan outcome, 1)
			go func() {
				defer func() {
					if rec := recover(); rec != nil {
						done <- outcome{name: name, err: fmt.Errorf("strategy panic: %v", rec)}
					}
				}()
				sig, err := s.Analyze(sctx, symbol, snap, p)
				done <- outcome{name: name, sig: sig, err: err}
			}()

			select {
			case out := <-done:
				results <- out
			case <-sctx.Done():
				results <- outcome{name: name, err: sctx.Err()}
			}
		}(name, r.entries[name].strategy)
	}

	signals := make(map[string]*Signal, len(active))
	for range active {
		out := <-results
		switch {
		case out.err != nil:
			if errors.Is(out.err, ErrLowConfidence) {
				log.Printf("strategy manager: %s rejected its signal: %v", out.name, out.err)
			} else {
				log.Printf("strategy manager: %s failed: %v", out.name, out.err)
			}
		case out.sig != nil:
			signals[out.name] = out.sig
		}
	}
	return signals
}

// decide delegates to the first active strategy that knows how to turn the
// ensemble signal into a decision, with a plain threshold fallback.
func (m *Manager) decide(r *registry, active []string, ensemble *Signal, p product.Product, snap *analysis.Snapshot, pf Portfolio) Decision {
	for _, name := range active {
		if d, ok := r.entries[name].strategy.(Decider); ok {
			return d.Decide(ensemble, p, snap, pf, r.minConfidence)
		}
	}

	shouldInvest := ensemble.Strength >= Buy && ensemble.Confidence >= r.minConfidence
	reasons := append([]string(nil), ensemble.Reasons...)
	amount := 0.0
	if shouldInvest {
		amount = kellyPositionSize(ensemble.Confidence, signalExpectedReturn(ensemble), pf)
		if amount < p.MinAmount {
			shouldInvest = false
			reasons = append(reasons, fmt.Sprintf("position size %.2f below minimum %.2f", amount, p.MinAmount))
		}
	}
	return Decision{
		ShouldInvest:   shouldInvest,
		ProductID:      p.ID,
		Amount:         amount,
		ExpectedReturn: p.APY * float64(p.TermDays) / 365,
		RiskScore:      0.5,
		Score:          ensemble.Confidence,
		Reasons:        reasons,
		Metadata:       ensemble.Metadata,
	}
}
