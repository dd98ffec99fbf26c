package ledger

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// retryPolicy bounds retries against the billing provider. Only transient
// failures (transport errors, 5xx) are retried; a definitive provider answer
// is never retried, so the admission controller's fail-closed contract is
// unaffected.
type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func newRetryPolicy(maxRetries int) retryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retryPolicy{
		maxRetries: maxRetries,
		baseDelay:  200 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

// doWithRetry performs an HTTP call with jittered backoff on transient
// failures. build is invoked per attempt so the request body can be rewound.
// The response body is fully read before returning.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error)) (int, []byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retry.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.retry.wait(ctx, attempt); err != nil {
				return 0, nil, err
			}
		}

		req, err := build()
		if err != nil {
			return 0, nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = &transientStatusError{status: resp.StatusCode}
			// Keep the last response around in case retries are exhausted.
			if attempt == c.retry.maxRetries {
				return resp.StatusCode, body, nil
			}
			continue
		}

		return resp.StatusCode, body, nil
	}

	return 0, nil, lastErr
}

// wait sleeps for an exponentially growing, jittered delay.
func (p retryPolicy) wait(ctx context.Context, attempt int) error {
	delay := p.baseDelay << (attempt - 1)
	if delay > p.maxDelay {
		delay = p.maxDelay
	}
	// Full jitter: anywhere between half and the full delay.
	jittered := delay/2 + time.Duration(rand.Int63n(int64(delay/2)+1))

	timer := time.NewTimer(jittered)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type transientStatusError struct {
	status int
}

func (e *transientStatusError) Error() string {
	return http.StatusText(e.status)
}
