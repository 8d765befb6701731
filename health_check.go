package mysequel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
)

// HealthStatus is the outcome of the most recent health sweep.
type HealthStatus struct {
	Healthy     bool          `json:"healthy"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration"`
	Probed      int           `json:"probed"`
	Errors      []error       `json:"-"`
}

// Err combines the sweep failures into one error, or returns nil.
func (s *HealthStatus) Err() error {
	if s == nil || len(s.Errors) == 0 {
		return nil
	}
	var merr *multierror.Error
	merr = multierror.Append(merr, s.Errors...)
	return merr.ErrorOrNil()
}

// Sweep pings every connection idle in pool at call time, one after the
// other in snapshot order. Healthy connections are released; connections
// whose ping fails or answers with rows other than opts.Ping.ExpectedResult
// are destroyed. Every failure is returned, in processing order, as a
// *PingError; an empty slice means the sweep found nothing wrong. Nothing is
// done when opts.Ping is nil.
func Sweep(ctx context.Context, pool Pool, exec Executor, opts Options) []error {
	h := &Handle{pool: &poolFacade{pool: pool}, exec: exec, opts: opts}
	h.inst.Store(&instrumentation{})
	_, failures := h.sweep(ctx)
	return failures
}

// Sweep runs one health sweep over the handle's pool on demand and records
// its outcome in HealthStatus. See the package-level Sweep. A call made
// while another sweep of this handle is running waits for it and shares its
// result instead of probing again.
func (h *Handle) Sweep(ctx context.Context) ([]error, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	return h.runSweep(ctx), nil
}

func (h *Handle) runSweep(ctx context.Context) []error {
	v, _, _ := h.sweeps.Do("sweep", func() (any, error) {
		start := time.Now()
		probed, failures := h.sweep(ctx)
		h.storeStatus(start, probed, failures)
		return failures, nil
	})
	return v.([]error)
}

// HealthStatus returns a copy of the last recorded sweep outcome, or nil if
// no sweep has run.
func (h *Handle) HealthStatus() *HealthStatus {
	s := h.lastSweep.Load()
	if s == nil {
		return nil
	}
	cp := *s
	cp.Errors = append([]error(nil), s.Errors...)
	return &cp
}

func (h *Handle) storeStatus(start time.Time, probed int, failures []error) {
	h.lastSweep.Store(&HealthStatus{
		Healthy:     len(failures) == 0,
		LastChecked: start,
		Duration:    time.Since(start),
		Probed:      probed,
		Errors:      failures,
	})
}

func (h *Handle) sweep(ctx context.Context) (int, []error) {
	failures := []error{}
	ping := h.opts.Ping
	if ping == nil {
		return 0, failures
	}
	idle := h.pool.pool.IdleConnections(ctx)
	if len(idle) == 0 {
		return 0, failures
	}

	sweepID := uuid.NewString()
	ctx, span := h.startSpan(ctx, "sweep", "",
		attribute.String("mysequel.sweep.id", sweepID),
		attribute.Int("mysequel.sweep.connections", len(idle)),
	)
	start := time.Now()
	for _, c := range idle {
		l := h.adopt(ctx, c)
		if err := h.probe(ctx, c, ping); err != nil {
			failures = append(failures, err)
			l.destroy(ctx)
			continue
		}
		l.release(ctx)
	}
	duration := time.Since(start)

	var spanErr error
	if len(failures) > 0 {
		spanErr = fmt.Errorf("%d of %d connections failed ping", len(failures), len(idle))
	}
	h.finishSpan(span, spanErr)
	h.logSweep(ctx, sweepID, len(idle), failures, duration)
	h.recordSweep(ctx, failures, duration)
	return len(idle), failures
}

// probe pings one connection and classifies the outcome.
func (h *Handle) probe(ctx context.Context, c Conn, ping *PingOptions) error {
	rows, err := h.execute(ctx, "ping", c, ping.Query, nil)
	if err != nil {
		return &PingError{Kind: PingTransportFailure, ConnID: c.ID(), Err: err}
	}
	if diff := diffRows(ping.ExpectedResult, rows); diff != "" {
		return &PingError{
			Kind:     PingAssertionFailure,
			ConnID:   c.ID(),
			Expected: ping.ExpectedResult,
			Actual:   rows,
			Err:      fmt.Errorf("%w (-expected +actual):\n%s", ErrPingMismatch, diff),
		}
	}
	return nil
}

// diffRows compares result sets by their logical content: column names,
// row order and the textual form of every value. Byte slices compare as
// strings, so a text-protocol "2" equals an int 2.
func diffRows(want, got Rows) string {
	return cmp.Diff(canonicalRows(want), canonicalRows(got))
}

func canonicalRows(rs Rows) []map[string]string {
	out := make([]map[string]string, 0, len(rs))
	for _, r := range rs {
		m := make(map[string]string, len(r))
		for k, v := range r {
			m[k] = canonicalValue(v)
		}
		out = append(out, m)
	}
	return out
}

func canonicalValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// HealthMonitor runs a health sweep on a fixed interval. Scheduled sweeps
// run on a single goroutine and never overlap with on-demand ones.
type HealthMonitor struct {
	handle   *Handle
	interval time.Duration

	runningMutex sync.Mutex
	running      bool
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewHealthMonitor creates a monitor for h. It does nothing until Start.
func NewHealthMonitor(h *Handle, interval time.Duration) *HealthMonitor {
	return &HealthMonitor{handle: h, interval: interval}
}

// Start begins scheduled sweeps. It reports false if the monitor is already
// running or the interval is not positive.
func (hm *HealthMonitor) Start() bool {
	hm.runningMutex.Lock()
	defer hm.runningMutex.Unlock()

	if hm.running || hm.interval <= 0 {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	hm.cancel = cancel
	hm.done = make(chan struct{})
	hm.running = true
	go hm.monitorLoop(ctx, hm.done)
	return true
}

// Stop ends scheduled sweeps and waits for an in-flight sweep to return.
func (hm *HealthMonitor) Stop() {
	hm.runningMutex.Lock()
	if !hm.running {
		hm.runningMutex.Unlock()
		return
	}
	hm.running = false
	hm.cancel()
	done := hm.done
	hm.runningMutex.Unlock()
	<-done
}

// IsRunning reports whether scheduled sweeps are active.
func (hm *HealthMonitor) IsRunning() bool {
	hm.runningMutex.Lock()
	defer hm.runningMutex.Unlock()
	return hm.running
}

func (hm *HealthMonitor) monitorLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(hm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hm.handle.runSweep(ctx)
		}
	}
}
