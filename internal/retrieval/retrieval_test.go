package retrieval

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/nportp/internal/infra"
)

// scriptedTransport returns errs in order, then body forever.
type scriptedTransport struct {
	errs  []error
	body  []byte
	calls int
}

func (s *scriptedTransport) Get(_ context.Context, _ string, _ map[string]string) ([]byte, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return nil, s.errs[s.calls-1]
	}
	return s.body, nil
}

type recordingSleeper struct {
	slept []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return nil
}

func refused() error {
	return &url.Error{Op: "Get", URL: "https://data.sec.gov", Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRetrier(tr infra.Transport, s *recordingSleeper, opts ...Option) *Retrier {
	opts = append([]Option{WithSleeper(s.sleep), WithLogger(quietLogger())}, opts...)
	return New(tr, opts...)
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond}
	assert.Equal(t, time.Duration(0), p.Delay(1))
	assert.Equal(t, 100*time.Millisecond, p.Delay(2))
	assert.Equal(t, 200*time.Millisecond, p.Delay(3))
	assert.Equal(t, 400*time.Millisecond, p.Delay(4))
	assert.Equal(t, 800*time.Millisecond, p.Delay(5))
}

func TestFetchWithRetryTransientThenSuccess(t *testing.T) {
	for k := 0; k <= 3; k++ {
		t.Run(fmt.Sprintf("fail_%d", k), func(t *testing.T) {
			errs := make([]error, k)
			for i := range errs {
				errs[i] = refused()
			}
			tr := &scriptedTransport{errs: errs, body: []byte("ok")}
			s := &recordingSleeper{}
			r := newTestRetrier(tr, s)

			base := 10 * time.Millisecond
			body, attempt, err := r.FetchWithRetry(context.Background(), "https://example.test", nil, Policy{MaxAttempts: 5, BaseDelay: base})
			require.NoError(t, err)
			assert.Equal(t, "ok", string(body))
			assert.Equal(t, k+1, tr.calls)
			assert.Equal(t, k+1, attempt.Attempts)
			assert.Equal(t, k, attempt.Retries())

			var want []time.Duration
			for i := 0; i < k; i++ {
				want = append(want, base<<uint(i))
			}
			assert.Equal(t, want, s.slept)
			assert.Equal(t, want, attempt.Delays)
		})
	}
}

func TestFetchWithRetryHTTPStatusIsTerminal(t *testing.T) {
	tr := &scriptedTransport{errs: []error{&infra.HTTPStatusError{StatusCode: 404, Status: "404 Not Found"}}}
	s := &recordingSleeper{}
	r := newTestRetrier(tr, s)

	_, attempt, err := r.FetchWithRetry(context.Background(), "https://example.test", nil, Policy{MaxAttempts: 5, BaseDelay: time.Millisecond})
	var statusErr *infra.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 404, statusErr.StatusCode)
	assert.Equal(t, 1, tr.calls)
	assert.Equal(t, KindHTTPStatus, attempt.LastKind)
	assert.Empty(t, s.slept)
}

func TestFetchWithRetryRequestErrorIsTerminal(t *testing.T) {
	tr := &scriptedTransport{errs: []error{&url.Error{Op: "Get", URL: "htp://x", Err: errors.New("unsupported protocol scheme \"htp\"")}}}
	s := &recordingSleeper{}
	r := newTestRetrier(tr, s)

	_, attempt, err := r.FetchWithRetry(context.Background(), "htp://x", nil, Policy{MaxAttempts: 3, BaseDelay: time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, 1, tr.calls)
	assert.Equal(t, KindRequest, attempt.LastKind)
}

func TestFetchWithRetryExhausted(t *testing.T) {
	tr := &scriptedTransport{errs: []error{refused(), context.DeadlineExceeded, refused()}}
	s := &recordingSleeper{}
	r := newTestRetrier(tr, s)

	_, _, err := r.FetchWithRetry(context.Background(), "https://example.test", nil, Policy{MaxAttempts: 3, BaseDelay: time.Millisecond})
	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, KindConnection, exhausted.LastKind)
	assert.Equal(t, 3, tr.calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, s.slept)
}

func TestFetchWithRetryCancelledDuringBackoff(t *testing.T) {
	tr := &scriptedTransport{errs: []error{refused(), refused()}}
	r := New(tr, WithLogger(quietLogger()), WithSleeper(func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}))

	_, attempt, err := r.FetchWithRetry(context.Background(), "https://example.test", nil, Policy{MaxAttempts: 3, BaseDelay: time.Second})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempt.Attempts)
}

func TestBreakerOpensAfterConsecutiveExhaustion(t *testing.T) {
	errs := make([]error, 4)
	for i := range errs {
		errs[i] = refused()
	}
	tr := &scriptedTransport{errs: errs, body: []byte("ok")}
	s := &recordingSleeper{}
	r := newTestRetrier(tr, s, WithBreaker(BreakerConfig{Enabled: true, ConsecutiveFailures: 2, OpenTimeout: time.Hour}))
	policy := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}

	for i := 0; i < 2; i++ {
		_, _, err := r.FetchWithRetry(context.Background(), "https://example.test", nil, policy)
		var exhausted *RetriesExhaustedError
		require.ErrorAs(t, err, &exhausted)
	}

	_, attempt, err := r.FetchWithRetry(context.Background(), "https://example.test", nil, policy)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 0, attempt.Attempts)
	assert.Equal(t, 4, tr.calls, "open breaker must not reach the transport")
}

func TestBreakerIgnoresHTTPStatus(t *testing.T) {
	errs := make([]error, 5)
	for i := range errs {
		errs[i] = &infra.HTTPStatusError{StatusCode: 404}
	}
	tr := &scriptedTransport{errs: errs, body: []byte("ok")}
	s := &recordingSleeper{}
	r := newTestRetrier(tr, s, WithBreaker(BreakerConfig{Enabled: true, ConsecutiveFailures: 2, OpenTimeout: time.Hour}))

	for i := 0; i < 5; i++ {
		_, _, err := r.FetchWithRetry(context.Background(), "https://example.test", nil, Policy{MaxAttempts: 3})
		require.NotErrorIs(t, err, ErrCircuitOpen)
	}
	body, _, err := r.FetchWithRetry(context.Background(), "https://example.test", nil, Policy{MaxAttempts: 3})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      ErrorKind
		transient bool
	}{
		{"http status", &infra.HTTPStatusError{StatusCode: 503}, KindHTTPStatus, false},
		{"wrapped http status", fmt.Errorf("fetch: %w", &infra.HTTPStatusError{StatusCode: 500}), KindHTTPStatus, false},
		{"deadline", fmt.Errorf("HTTP GET x: %w", context.DeadlineExceeded), KindTimeout, true},
		{"canceled", context.Canceled, KindCanceled, false},
		{"refused", refused(), KindConnection, true},
		{"reset", &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}, KindConnection, true},
		{"dns", &net.DNSError{Err: "no such host", Name: "data.sec.gov"}, KindConnection, true},
		{"tls alert", fmt.Errorf("handshake: %w", tls.AlertError(40)), KindTLS, true},
		{"tls record", tls.RecordHeaderError{Msg: "first record does not look like a TLS handshake"}, KindTLS, true},
		{"eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), KindEOF, true},
		{"other", errors.New("net/http: invalid header field name"), KindRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, transient := Classify(tt.err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.transient, transient)
		})
	}
}
