package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses an outbound call.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

const maxBackoff = 30 * time.Second

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// gauge value exported as outbound_breaker_state
func (s State) gauge() float64 {
	switch s {
	case Closed, Open, HalfOpen:
		return float64(s)
	default:
		return -1
	}
}

// outcomes is a fixed ring of the most recent call results.
type outcomes struct {
	buf      []bool
	next     int
	n        int
	failures int
}

func newOutcomes(size int) outcomes { return outcomes{buf: make([]bool, size)} }

func (o *outcomes) add(failed bool) {
	if o.n == len(o.buf) {
		if o.buf[o.next] {
			o.failures--
		}
	} else {
		o.n++
	}
	o.buf[o.next] = failed
	if failed {
		o.failures++
	}
	o.next = (o.next + 1) % len(o.buf)
}

func (o *outcomes) reset() {
	clear(o.buf)
	o.next, o.n, o.failures = 0, 0, 0
}

// Breaker guards one outbound dependency (messaging gateway, ledger). It opens
// when the failure ratio over the recent window reaches the threshold and,
// after the cooldown, admits a single probe.
type Breaker struct {
	mu           sync.Mutex
	state        State
	window       outcomes
	minRequests  int
	failureRatio float64
	cooldown     time.Duration
	openedAt     time.Time
	probeAt      time.Time
	target       string
	logger       zerolog.Logger
	now          func() time.Time
}

// NewBreaker returns a closed breaker. The ratio is only evaluated once
// minRequests outcomes are in the window, which holds twice that many.
func NewBreaker(minRequests int, failureRatio float64, cooldown time.Duration) *Breaker {
	if minRequests <= 0 {
		minRequests = 1
	}
	if failureRatio <= 0 || failureRatio > 1 {
		failureRatio = 0.5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		window:       newOutcomes(minRequests * 2),
		minRequests:  minRequests,
		failureRatio: failureRatio,
		cooldown:     cooldown,
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
}

// Allow reports whether a call may proceed. A nil breaker always allows.
func (b *Breaker) Allow(ctx context.Context) bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case Open:
		if now.Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.moveLocked(ctx, HalfOpen)
		b.probeAt = now
		return true
	case HalfOpen:
		// a probe that never reported gives up its slot after one cooldown
		if now.Sub(b.probeAt) >= b.cooldown {
			b.probeAt = now
			return true
		}
		return false
	default:
		return true
	}
}

// Report records the outcome of a call admitted by Allow.
func (b *Breaker) Report(ctx context.Context, success bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if success {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
		return
	}

	b.window.add(!success)
	if b.window.n < b.minRequests {
		return
	}
	if float64(b.window.failures)/float64(b.window.n) >= b.failureRatio {
		b.moveLocked(ctx, Open)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// WithTarget names the dependency for metric labels and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = strings.TrimSpace(target)
	BreakerState.WithLabelValues(b.label()).Set(b.state.gauge())
	return b
}

func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// WithClock replaces the time source.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now != nil {
		b.now = now
	}
	return b
}

func (b *Breaker) moveLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	if next == Open {
		b.openedAt = b.now()
	}
	b.window.reset()

	label := b.label()
	BreakerState.WithLabelValues(label).Set(next.gauge())
	BreakerTransitions.WithLabelValues(label, prev.String(), next.String()).Inc()
	if next == Open {
		BreakerOpenedTotal.WithLabelValues(label).Inc()
	}

	evt := b.logger.Warn()
	if next == Closed {
		evt = b.logger.Info()
	}
	evt = evt.Str("target", label).Str("from_state", prev.String()).Str("to_state", next.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) label() string {
	if b.target == "" {
		return "default"
	}
	return b.target
}

// Backoff returns the delay before retry attempt (1-based): base doubled per
// attempt, capped at 30s, spread by ±jitterPct of the delay.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	if jitterPct <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * float64(d) * jitterPct
	return d + time.Duration(delta)
}
