// Package resilience guards outbound calls to payment gateways with a
// circuit breaker and retry backoff so a flapping M-Pesa or Pesapal
// endpoint cannot stall checkout.
package resilience

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker is refusing traffic to a
// gateway that has been failing.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

var nopLogger = zerolog.Nop()

// State is the breaker's position in its lifecycle.
type State int

const (
	// Closed lets every call through while counting outcomes.
	Closed State = iota
	// Open short-circuits calls until the cool-off window passes.
	Open
	// HalfOpen admits a single probe call to test recovery.
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

// Breaker trips when the observed failure ratio crosses a threshold.
// The zero value is not usable; construct with NewBreaker.
type Breaker struct {
	mu       sync.Mutex
	state    State
	fails    int
	oks      int
	minCalls int
	tripAt   float64
	openedAt time.Time
	coolOff  time.Duration
	target   string
	logger   *zerolog.Logger
}

// NewBreaker builds a breaker that opens once minCalls outcomes have been
// seen and the failing fraction reaches tripAt. While open it rejects
// calls for coolOff before sampling the gateway again.
func NewBreaker(minCalls int, tripAt float64, coolOff time.Duration) *Breaker {
	if minCalls <= 0 {
		minCalls = 1
	}
	if tripAt <= 0 {
		tripAt = 0.5
	}
	if tripAt > 1 {
		tripAt = 1
	}
	if coolOff <= 0 {
		coolOff = 30 * time.Second
	}
	return &Breaker{
		state:    Closed,
		minCalls: minCalls,
		tripAt:   tripAt,
		coolOff:  coolOff,
	}
}

// WithTarget names the downstream gateway for metric labels and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = strings.TrimSpace(target)
	b.exportStateLocked()
	return b
}

// WithLogger sets the logger used when the breaker changes state.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = &logger
	return b
}

// Allow reports whether the caller may attempt the gateway right now. An
// open breaker admits one call after the cool-off has elapsed, moving to
// half-open so that single probe decides what happens next.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Open {
		return true
	}
	if time.Since(b.openedAt) >= b.coolOff {
		b.shiftLocked(ctx, HalfOpen)
		return true
	}
	return false
}

// Report feeds the outcome of a call back into the breaker.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		// A late report from before the trip carries no signal.
		return
	case HalfOpen:
		if success {
			b.shiftLocked(ctx, Closed)
		} else {
			b.shiftLocked(ctx, Open)
		}
		return
	}

	if success {
		b.oks++
	} else {
		b.fails++
	}

	seen := b.fails + b.oks
	if seen < b.minCalls {
		return
	}
	if float64(b.fails)/float64(seen) >= b.tripAt {
		b.shiftLocked(ctx, Open)
		return
	}
	if seen > b.minCalls*2 {
		// Halve the window so old traffic stops dominating the ratio.
		b.oks = (b.oks + 1) / 2
		b.fails = (b.fails + 1) / 2
	}
}

func (b *Breaker) shiftLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		b.exportStateLocked()
		return
	}
	b.state = next
	switch next {
	case Open:
		b.openedAt = time.Now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.fails = 0
	b.oks = 0
	b.exportStateLocked()
	b.announce(ctx, prev, next)
}

func (b *Breaker) exportStateLocked() {
	if BreakerState == nil {
		return
	}
	BreakerState.WithLabelValues(b.label()).Set(gaugeValue(b.state))
}

func (b *Breaker) announce(ctx context.Context, from, to State) {
	label := b.label()
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(label, from.String(), to.String()).Inc()
	}
	if to == Open && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(label).Inc()
	}
	evt := b.eventLogger(ctx).Info().
		Str("target", label).
		Str("from_state", from.String()).
		Str("to_state", to.String())
	if id := traceID(ctx); id != "" {
		evt = evt.Str("trace_id", id)
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) label() string {
	if b.target == "" {
		return "default"
	}
	return b.target
}

func (b *Breaker) eventLogger(ctx context.Context) *zerolog.Logger {
	if ctxLogger := zerolog.Ctx(ctx); ctxLogger != nil {
		logger := ctxLogger.With().Logger()
		return &logger
	}
	if b.logger == nil {
		return &nopLogger
	}
	return b.logger
}

func gaugeValue(s State) float64 {
	switch s {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	default:
		return -1
	}
}

func traceID(ctx context.Context) string {
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		return span.TraceID().String()
	}
	return ""
}

// Backoff computes the exponential retry delay for attempt, jittered by
// jitterPct (0.2 spreads the delay by up to 20% either way).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		attempt = 16
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << uint(attempt-1)
	if jitterPct <= 0 {
		return d
	}
	spread := float64(d) * jitterPct
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
