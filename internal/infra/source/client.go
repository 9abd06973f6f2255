package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/minhngt/harvester/internal/harvest/metrics"
)

// PermanentError marks a fetch failure that must not be retried against the
// same endpoint (4xx responses).
type PermanentError struct {
	Endpoint string
	Status   int
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("endpoint %s returned permanent error %d", e.Endpoint, e.Status)
}

// TimelineClient fetches an author's timeline page from a mirror endpoint
// with bounded retries and exponential backoff on transient failures.
type TimelineClient struct {
	client     *http.Client
	retryCount uint64
	retryDelay time.Duration
}

// NewTimelineClient creates a timeline fetcher.
func NewTimelineClient(timeout time.Duration, retryCount int, retryDelay time.Duration) *TimelineClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if retryCount <= 0 {
		retryCount = 3
	}
	if retryDelay == 0 {
		retryDelay = 2 * time.Second
	}
	return &TimelineClient{
		client:     &http.Client{Timeout: timeout},
		retryCount: uint64(retryCount),
		retryDelay: retryDelay,
	}
}

// Fetch GETs <baseURL>/<username> and returns the raw page body.
// Timeouts, connection errors and 5xx responses are retried with backoff;
// a 4xx response is returned immediately as a PermanentError.
func (c *TimelineClient) Fetch(ctx context.Context, baseURL, username string) (string, error) {
	url := fmt.Sprintf("%s/%s", baseURL, username)

	var body string
	start := time.Now()
	backoff := retry.WithMaxRetries(c.retryCount, retry.NewExponential(c.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", probeUserAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			// fall through to read
		case resp.StatusCode >= http.StatusInternalServerError:
			return retry.RetryableError(fmt.Errorf("endpoint %s returned %s", baseURL, resp.Status))
		default:
			return &PermanentError{Endpoint: baseURL, Status: resp.StatusCode}
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		body = string(data)
		return nil
	})

	metrics.FetchLatency.WithLabelValues(baseURL).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FetchAttempts.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.FetchAttempts.WithLabelValues("ok").Inc()
	return body, nil
}
