// Package retry runs fallible operations with exponential backoff.
//
// A Handler never returns an error for an exhausted operation. Instead the
// caller inspects the Result, which either carries the value produced by the
// successful attempt or every error observed across all attempts, in order.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/multierr"
)

const (
	// DefaultMaxRetries is the number of retries made after the first attempt
	DefaultMaxRetries = 3
	// DefaultInitialDelay is the wait before the first retry
	DefaultInitialDelay = time.Second
	// DefaultBackoffMultiplier grows the delay between consecutive retries
	DefaultBackoffMultiplier = 2.0
	// DefaultMaxDelay caps a single wait
	DefaultMaxDelay = 5 * time.Minute
)

// Options configures a Handler
type Options struct {
	MaxRetries        int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration

	// OnRetry is called before each wait with the attempt that just failed,
	// its error and the delay that is about to be applied.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultOptions returns 3 retries with 1s, 2s and 4s waits
func DefaultOptions() Options {
	return Options{
		MaxRetries:        DefaultMaxRetries,
		InitialDelay:      DefaultInitialDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
		MaxDelay:          DefaultMaxDelay,
	}
}

// Sleeper waits for d or until ctx is done, whichever happens first
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleeper is the default Sleeper. It only blocks the calling goroutine.
func ContextSleeper(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// Handler executes operations according to its Options
type Handler struct {
	opts  Options
	sleep Sleeper
}

// HandlerOption customises a Handler
type HandlerOption func(*Handler)

// WithSleeper replaces the wait implementation, mostly for tests
func WithSleeper(s Sleeper) HandlerOption {
	return func(h *Handler) {
		h.sleep = s
	}
}

// New creates a Handler. A multiplier below 1 or a non-positive MaxDelay fall
// back to the defaults; a negative MaxRetries is treated as zero.
func New(opts Options, hopts ...HandlerOption) *Handler {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BackoffMultiplier < 1 {
		opts.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}

	h := &Handler{
		opts:  opts,
		sleep: ContextSleeper,
	}
	for _, o := range hopts {
		o(h)
	}
	return h
}

// Options returns the effective options of the handler
func (h *Handler) Options() Options {
	return h.opts
}

// Result is the outcome of Execute. Exactly one of two shapes is populated:
// on success Value holds the payload and Errors holds the failures that
// preceded it; on failure Value is the zero value and Errors holds every
// failure in attempt order.
type Result[T any] struct {
	Value    T
	Attempts int
	Errors   []error
	ok       bool
}

// Success reports whether one of the attempts succeeded
func (r Result[T]) Success() bool {
	return r.ok
}

// Err combines all recorded errors for a failed result, or returns nil on success
func (r Result[T]) Err() error {
	if r.ok {
		return nil
	}
	return multierr.Combine(r.Errors...)
}

// LastError returns the most recent error, if any
func (r Result[T]) LastError() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[len(r.Errors)-1]
}

// Delay returns the wait applied after the given failed attempt (1-based):
// initial * multiplier^(attempt-1).
func Delay(attempt int, initial time.Duration, multiplier float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt-1)))
}

// Execute runs op until it succeeds or MaxRetries retries have been made.
// Cancelling ctx stops the handler between attempts; a running attempt is never interrupted
// by the handler itself.
func Execute[T any](ctx context.Context, h *Handler, op func(ctx context.Context) (T, error)) Result[T] {
	var result Result[T]

	b := &backoff.ExponentialBackOff{
		InitialInterval:     h.opts.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          h.opts.BackoffMultiplier,
		MaxInterval:         h.opts.MaxDelay,
	}
	b.Reset()

	for {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, err)
			return result
		}

		result.Attempts++
		value, err := safeCall(ctx, op)
		if err == nil {
			result.Value = value
			result.ok = true
			return result
		}
		result.Errors = append(result.Errors, err)

		if result.Attempts > h.opts.MaxRetries {
			return result
		}

		delay := b.NextBackOff()
		if h.opts.OnRetry != nil {
			h.opts.OnRetry(result.Attempts, err, delay)
		}
		if err := h.sleep(ctx, delay); err != nil {
			result.Errors = append(result.Errors, err)
			return result
		}
	}
}

// Do is Execute for operations that only return an error
func (h *Handler) Do(ctx context.Context, op func(ctx context.Context) error) Result[struct{}] {
	return Execute(ctx, h, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
}

func safeCall[T any](ctx context.Context, op func(ctx context.Context) (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = fmt.Errorf("operation panicked: %w", rerr)
				return
			}
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return op(ctx)
}
