package modelclient

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"time"
)

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

// RetryPolicy configures bounded retry with exponential backoff.
type RetryPolicy struct {
	MaxRetries        int     // total retry attempts (not counting the initial)
	BaseDelay         float64 // initial delay in seconds
	MaxDelay          float64 // maximum delay between retries
	BackoffMultiplier float64 // exponential backoff factor
	Jitter            bool    // add random jitter to prevent thundering herd
	OnRetry           func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns the default transport retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         1.0,
		MaxDelay:          60.0,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Delay calculates the delay for attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := math.Min(p.BaseDelay*math.Pow(p.BackoffMultiplier, float64(attempt)), p.MaxDelay)
	if p.Jitter {
		// +/- 50% jitter
		delay = delay * (0.5 + rand.Float64())
	}
	return time.Duration(delay * float64(time.Second))
}

func (p RetryPolicy) wait(ctx context.Context, err error, attempt int) error {
	delay := p.Delay(attempt)
	if rl, ok := err.(*RateLimitError); ok && rl.RetryAfter != nil {
		retryDelay := time.Duration(*rl.RetryAfter * float64(time.Second))
		if retryDelay > time.Duration(p.MaxDelay*float64(time.Second)) {
			// Retry-After exceeds the cap; surface immediately.
			return err
		}
		delay = retryDelay
	}
	if p.OnRetry != nil {
		p.OnRetry(err, attempt+1, delay)
	}
	select {
	case <-ctx.Done():
		return &AbortError{ClientError: ClientError{Message: "request cancelled during retry", Cause: ctx.Err()}}
	case <-time.After(delay):
		return nil
	}
}

// StreamWithRetry opens a fragment stream, retrying transport failures with
// the given policy. Retries happen only while no fragment has reached the
// returned stream's consumer; once any fragment is delivered, a mid-stream
// failure surfaces without a silent retry.
func StreamWithRetry(ctx context.Context, client Client, req Request, policy RetryPolicy) *ResponseStream {
	out := NewResponseStream(64)

	go func() {
		var lastErr error
		for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
			if attempt > 0 {
				if err := policy.wait(ctx, lastErr, attempt-1); err != nil {
					out.Fail(err)
					return
				}
			}

			upstream, err := client.Stream(ctx, req)
			if err != nil {
				lastErr = err
				if !IsRetryable(err) {
					out.Fail(err)
					return
				}
				continue
			}

			delivered, err := pump(ctx, upstream, out)
			if err == nil {
				out.Finish()
				return
			}
			if delivered || !IsRetryable(err) {
				out.Fail(err)
				return
			}
			lastErr = err
		}
		out.Fail(lastErr)
	}()

	return out
}

// pump copies fragments from upstream to out until the upstream ends.
// It reports whether any fragment was delivered downstream.
func pump(ctx context.Context, upstream, out *ResponseStream) (bool, error) {
	delivered := false
	for {
		frag, err := upstream.Next(ctx)
		if err != nil {
			if isEOF(err) {
				return delivered, nil
			}
			return delivered, err
		}
		if !out.Push(*frag) {
			return delivered, &AbortError{ClientError: ClientError{Message: "stream consumer closed"}}
		}
		delivered = true
	}
}
