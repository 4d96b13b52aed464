// Package health runs dependency checks in the background and serves their
// latest results on the liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

// CheckFunc reports why a dependency is unusable, or nil.
type CheckFunc func(ctx context.Context) error

// Kind selects the endpoint a check contributes to.
type Kind uint8

const (
	// Liveness checks are about the process itself. Failing them gets the
	// process restarted.
	Liveness Kind = iota
	// Readiness checks are about dependencies needed to serve orders.
	Readiness
)

const (
	defaultTimeout   = time.Second
	defaultFailAfter = 3
)

// Check is one registered health check.
type Check struct {
	Name    string
	Kind    Kind
	Run     CheckFunc
	Timeout time.Duration // default 1s
	// FailAfter is the number of consecutive failures before the check is
	// reported down. Default 3. One success brings it back up.
	FailAfter int
	// Details are reported with every result, e.g. the storage driver.
	Details map[string]string
}

type status string

const (
	statusPending status = "pending"
	statusOK      status = "ok"
	statusDown    status = "down"
)

type checkState struct {
	Check

	mu        sync.Mutex
	status    status
	fails     int
	lastErr   error
	checkedAt time.Time
}

func (s *checkState) record(err error, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastErr = err
	s.checkedAt = at
	if err == nil {
		s.fails = 0
		s.status = statusOK
		return
	}
	s.fails++
	if s.fails >= s.FailAfter {
		s.status = statusDown
	} else if s.status == statusPending {
		s.status = statusOK
	}
}

type result struct {
	name      string
	status    status
	err       error
	checkedAt time.Time
	details   map[string]string
}

func (s *checkState) result() result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return result{
		name:      s.Name,
		status:    s.status,
		err:       s.lastErr,
		checkedAt: s.checkedAt,
		details:   s.Details,
	}
}

// Health holds the registered checks and the manual readiness flag.
type Health struct {
	ready atomic.Bool
	now   func() time.Time

	mu     sync.RWMutex
	checks []*checkState
	stop   context.CancelFunc
	done   chan struct{}
}

// New returns a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{now: time.Now}
}

// Add registers c. Checks added after Start run from the next round on.
func (h *Health) Add(c Check) {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.FailAfter <= 0 {
		c.FailAfter = defaultFailAfter
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, &checkState{Check: c, status: statusPending})
}

// RunOnce runs every check concurrently, each under its own timeout, and
// records the results.
func (h *Health) RunOnce(ctx context.Context) {
	h.mu.RLock()
	checks := slices.Clone(h.checks)
	h.mu.RUnlock()

	var g errgroup.Group
	for _, c := range checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, c.Timeout)
			defer cancel()
			c.record(c.Run(checkCtx), h.now())
			return nil
		})
	}
	_ = g.Wait()
}

// Start runs one round before returning and then one round per interval
// until ctx is done or Stop is called.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	h.mu.Lock()
	h.stop = cancel
	h.done = done
	h.mu.Unlock()

	h.RunOnce(ctx)
	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.RunOnce(ctx)
			}
		}
	}()
}

// Stop ends the background rounds and waits for the running one. It may be
// called more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	stop, done := h.stop, h.done
	h.stop, h.done = nil, nil
	h.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
}

// SetReady flips the manual readiness flag, set once wiring is done and
// cleared when draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the manual flag combined with every readiness check.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, r := range h.results(Readiness) {
		if r.status == statusDown {
			return false
		}
	}
	return true
}

func (h *Health) results(kind Kind) []result {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []result
	for _, c := range h.checks {
		if c.Kind == kind {
			out = append(out, c.result())
		}
	}
	slices.SortFunc(out, func(a, b result) int {
		switch {
		case a.name < b.name:
			return -1
		case a.name > b.name:
			return 1
		}
		return 0
	})
	return out
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	results := h.results(Liveness)
	overall := statusOK
	for _, r := range results {
		if r.status == statusDown {
			overall = "unhealthy"
		}
	}
	writeResults(w, overall, results)
}

// ReadyEndpoint serves /readyz. While the manual flag is unset it answers
// 503 with status "not-ready", whatever the checks say.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	results := h.results(Readiness)
	overall := statusOK
	for _, r := range results {
		if r.status == statusDown {
			overall = "unhealthy"
		}
	}
	if !h.ready.Load() {
		overall = "not-ready"
	}
	writeResults(w, overall, results)
}

// writeResults renders
//
//	{"status":"ok","checks":{"orders":{"status":"ok","checked_at":"...","driver":"sqlite"}}}
func writeResults(w http.ResponseWriter, overall status, results []result) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(string(overall)) })
		if len(results) == 0 {
			return
		}
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, r := range results {
					e.Field(r.name, func(e *jx.Encoder) { encodeResult(e, r) })
				}
			})
		})
	})

	code := http.StatusOK
	if overall != statusOK {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

func encodeResult(e *jx.Encoder, r result) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(string(r.status)) })
		if r.err != nil {
			e.Field("error", func(e *jx.Encoder) { e.Str(r.err.Error()) })
		}
		if !r.checkedAt.IsZero() {
			e.Field("checked_at", func(e *jx.Encoder) { e.Str(r.checkedAt.UTC().Format(time.RFC3339)) })
		}
		keys := make([]string, 0, len(r.details))
		for k := range r.details {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			e.Field(k, func(e *jx.Encoder) { e.Str(r.details[k]) })
		}
	})
}
