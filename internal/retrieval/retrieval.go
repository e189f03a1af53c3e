// Package retrieval wraps an infra.Transport with retry, exponential backoff,
// request pacing and a host circuit breaker.
//
// Transient transport failures (timeouts, refused or reset connections, TLS
// failures, truncated responses) are retried. A server that answered with a
// non-2xx status is not: that is a terminal answer, not a network problem.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/seenimoa/nportp/internal/infra"
)

// ErrCircuitOpen is returned while the breaker refuses requests after
// repeated exhausted fetches.
var ErrCircuitOpen = errors.New("retrieval: circuit open")

// Policy bounds one FetchWithRetry call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Delay returns the sleep before attempt k (1-indexed). Attempt 1 never waits;
// attempt k>=2 waits BaseDelay * 2^(k-2).
func (p Policy) Delay(k int) time.Duration {
	if k < 2 {
		return 0
	}
	return p.BaseDelay << uint(k-2)
}

// Attempt is the retry state of one FetchWithRetry call.
type Attempt struct {
	Attempts int
	Delays   []time.Duration
	LastKind ErrorKind
	LastErr  error
}

// Retries returns how many attempts followed the first one.
func (a Attempt) Retries() int {
	if a.Attempts == 0 {
		return 0
	}
	return a.Attempts - 1
}

// RetriesExhaustedError is returned when every attempt failed transiently.
type RetriesExhaustedError struct {
	URL      string
	Attempts int
	LastKind ErrorKind
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted for %s after %d attempts (last %s): %v", e.URL, e.Attempts, e.LastKind, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Last }

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BreakerConfig configures the host circuit breaker.
type BreakerConfig struct {
	Enabled             bool
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s Sleeper) Option {
	return func(r *Retrier) { r.sleep = s }
}

// WithPacer gates every attempt on p.
func WithPacer(p *infra.Pacer) Option {
	return func(r *Retrier) { r.pacer = p }
}

// WithLogger sets the logger used for retry events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Retrier) { r.logger = l }
}

// WithBreaker enables the circuit breaker.
func WithBreaker(cfg BreakerConfig) Option {
	return func(r *Retrier) { r.breakerCfg = cfg }
}

// Retrier issues GET requests with the retry policy described above.
// It is not safe for concurrent use; the run is sequential.
type Retrier struct {
	transport  infra.Transport
	pacer      *infra.Pacer
	sleep      Sleeper
	logger     *slog.Logger
	breakerCfg BreakerConfig
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// New creates a Retrier over transport.
func New(transport infra.Transport, opts ...Option) *Retrier {
	r := &Retrier{
		transport: transport,
		sleep:     sleepContext,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breakerCfg.Enabled {
		r.breaker = newBreaker(r.breakerCfg, r.logger)
	}
	return r
}

func newBreaker(cfg BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[[]byte] {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 3
	}
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "edgar",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Only an unreachable host counts against the breaker; a 404 means
		// the host is up.
		IsSuccessful: func(err error) bool {
			var exhausted *RetriesExhaustedError
			return !errors.As(err, &exhausted)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit_breaker_state_change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// FetchWithRetry fetches url, retrying transient failures per policy.
// The returned Attempt is populated on success and on failure.
func (r *Retrier) FetchWithRetry(ctx context.Context, url string, headers map[string]string, policy Policy) ([]byte, Attempt, error) {
	var state Attempt
	if r.breaker == nil {
		body, err := r.fetch(ctx, url, headers, policy, &state)
		return body, state, err
	}

	body, err := r.breaker.Execute(func() ([]byte, error) {
		return r.fetch(ctx, url, headers, policy, &state)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, state, fmt.Errorf("%w: %s: %w", ErrCircuitOpen, url, err)
	}
	return body, state, err
}

func (r *Retrier) fetch(ctx context.Context, url string, headers map[string]string, policy Policy, state *Attempt) ([]byte, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for k := 1; k <= maxAttempts; k++ {
		if k > 1 {
			wait := policy.Delay(k)
			r.logger.Warn("fetch_retry",
				"url", url,
				"attempt", k,
				"max_attempts", maxAttempts,
				"backoff_ms", wait.Milliseconds(),
				"kind", string(state.LastKind),
				"error", state.LastErr,
			)
			if err := r.sleep(ctx, wait); err != nil {
				return nil, err
			}
			state.Delays = append(state.Delays, wait)
		}
		if err := r.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		state.Attempts = k
		body, err := r.transport.Get(ctx, url, headers)
		if err == nil {
			return body, nil
		}

		// The caller gave up; do not dress that up as a network failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			state.LastKind, state.LastErr = KindCanceled, err
			return nil, ctxErr
		}

		kind, transient := Classify(err)
		state.LastKind, state.LastErr = kind, err
		if !transient {
			return nil, err
		}
	}

	return nil, &RetriesExhaustedError{
		URL:      url,
		Attempts: state.Attempts,
		LastKind: state.LastKind,
		Last:     state.LastErr,
	}
}
