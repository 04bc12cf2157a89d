package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultMaxWorkers bounds the dispatcher's hook execution pool.
const DefaultMaxWorkers = 5

// Execution is one entry of the dispatcher's append-only execution history.
type Execution struct {
	Point     Point     `json:"hook_type"`
	Context   Context   `json:"context"`
	Records   []Record  `json:"results"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary holds aggregate statistics over every record the dispatcher has
// produced. SuccessRate is Successes/Total, 0 when Total is 0.
type Summary struct {
	Total       int     `json:"total_executions"`
	Successes   int     `json:"successful_executions"`
	Failures    int     `json:"failed_executions"`
	SuccessRate float64 `json:"success_rate"`
}

// Dispatcher registers hooks per lifecycle point and runs all hooks bound to
// a firing point. Hooks are kept sorted by descending priority (registration
// order breaks ties), so higher-priority hooks' records appear first in Fire
// results and, when run sequentially, execute first.
//
// All methods are safe for concurrent use. One dispatcher instance owns its
// execution history for its whole lifetime; there is no package-level state.
type Dispatcher struct {
	mu         sync.RWMutex
	hooks      map[Point][]Hook
	history    []Execution
	maxWorkers int
	logger     *slog.Logger
}

// DispatcherOption is a functional option for configuring a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger configures the dispatcher to use the given structured logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMaxWorkers bounds the concurrent hook execution pool.
func WithMaxWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxWorkers = n
		}
	}
}

// NewDispatcher creates a dispatcher with no registered hooks.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		hooks:      make(map[Point][]Hook),
		maxWorkers: DefaultMaxWorkers,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "hook_dispatcher")
	return d
}

// Register adds a hook under its lifecycle point, keeping the point's hooks
// sorted by descending priority. Registration order breaks priority ties.
func (d *Dispatcher) Register(h Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()

	point := h.Point()
	d.hooks[point] = append(d.hooks[point], h)
	sort.SliceStable(d.hooks[point], func(i, j int) bool {
		return d.hooks[point][i].Priority() > d.hooks[point][j].Priority()
	})

	d.logger.Info("registered hook", "hook", h.Name(), "point", string(point), "priority", h.Priority())
}

// Unregister removes the hook with the given name from a lifecycle point.
// No-op if no such hook is registered.
func (d *Dispatcher) Unregister(name string, point Point) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.hooks[point][:0]
	for _, h := range d.hooks[point] {
		if h.Name() != name {
			kept = append(kept, h)
		}
	}
	d.hooks[point] = kept

	d.logger.Info("unregistered hook", "hook", name, "point", string(point))
}

// Fire runs every hook bound to the lifecycle point and returns their records
// in registration/priority order.
//
// Zero registered hooks is a no-op returning an empty sequence and recording
// no history entry. A single hook executes inline; multiple hooks run
// concurrently through the bounded worker pool. Each hook's fault is caught
// individually and converted to a record with status exception, so one hook
// never suppresses or cancels its siblings. Fire blocks until every hook for
// the point has completed.
func (d *Dispatcher) Fire(ctx context.Context, point Point, hctx Context) []Record {
	d.mu.RLock()
	registered := make([]Hook, len(d.hooks[point]))
	copy(registered, d.hooks[point])
	d.mu.RUnlock()

	if len(registered) == 0 {
		return nil
	}

	records := make([]Record, len(registered))

	if len(registered) == 1 {
		records[0] = d.runHook(ctx, registered[0], hctx)
	} else {
		sem := make(chan struct{}, d.maxWorkers)
		var wg sync.WaitGroup

		for i, h := range registered {
			wg.Add(1)
			sem <- struct{}{}

			go func(idx int, hook Hook) {
				defer wg.Done()
				defer func() { <-sem }()

				// Results are indexed by registration order, not completion order.
				records[idx] = d.runHook(ctx, hook, hctx)
			}(i, h)
		}

		wg.Wait()
	}

	d.mu.Lock()
	d.history = append(d.history, Execution{
		Point:     point,
		Context:   hctx,
		Records:   records,
		Timestamp: time.Now(),
	})
	d.mu.Unlock()

	return records
}

// runHook executes one hook, containing panics and dispatcher-level errors.
func (d *Dispatcher) runHook(ctx context.Context, h Hook, hctx Context) (rec Record) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("hook panicked", "hook", h.Name(), "panic", r)
			rec = Record{
				HookName: h.Name(),
				Status:   StatusException,
				Error:    fmt.Sprintf("hook panicked: %v", r),
			}
		}
		rec.Elapsed = time.Since(start)
		if rec.HookName == "" {
			rec.HookName = h.Name()
		}
	}()

	rec, err := h.Execute(ctx, hctx)
	if err != nil {
		d.logger.Error("hook execution failed", "hook", h.Name(), "error", err)
		return Record{
			HookName: h.Name(),
			Status:   StatusException,
			Error:    err.Error(),
		}
	}
	return rec
}

// History returns a copy of the dispatcher's execution history.
func (d *Dispatcher) History() []Execution {
	d.mu.RLock()
	defer d.mu.RUnlock()

	history := make([]Execution, len(d.history))
	copy(history, d.history)
	return history
}

// Count returns the number of hooks registered for a lifecycle point.
func (d *Dispatcher) Count(point Point) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.hooks[point])
}

// Summary computes aggregate statistics across all records in the execution
// history. A record counts as a success only with status success; every other
// status counts as a failure.
func (d *Dispatcher) Summary() Summary {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var s Summary
	for _, exec := range d.history {
		for _, rec := range exec.Records {
			s.Total++
			if rec.Status == StatusSuccess {
				s.Successes++
			} else {
				s.Failures++
			}
		}
	}

	if s.Total > 0 {
		s.SuccessRate = float64(s.Successes) / float64(s.Total)
	}
	return s
}
