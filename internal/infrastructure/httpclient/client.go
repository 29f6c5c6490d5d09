package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/davarch/devboard/internal/domain"
)

func New(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	}

	return &http.Client{Transport: tr, Timeout: timeout}
}

type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 300 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxRetries:      3,
	}
}

// Retry runs op until it succeeds, returns a permanent error, or the policy is exhausted.
// Exhausted transient failures are wrapped with domain.ErrTransientFetch.
func Retry(ctx context.Context, p RetryPolicy, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval
	bo.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, p.MaxRetries), ctx))
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransientFetch, ctx.Err())
	}

	for _, permanent := range []error{domain.ErrAuthentication, domain.ErrRejected, domain.ErrMalformedResponse} {
		if errors.Is(err, permanent) {
			return err
		}
	}

	return fmt.Errorf("%w: %w", domain.ErrTransientFetch, err)
}

// CheckResponse maps a non-2xx response to the error taxonomy. Auth failures and other
// client errors are permanent; 429 and 5xx are retried.
func CheckResponse(ctx context.Context, source string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return backoff.Permanent(fmt.Errorf("%s: %w: %s", source, domain.ErrAuthentication, resp.Status))
	case resp.StatusCode == http.StatusTooManyRequests:
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if sec, _ := strconv.Atoi(ra); sec > 0 {
				select {
				case <-time.After(time.Duration(sec) * time.Second):
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				}
			}
		}
		return fmt.Errorf("%s: throttled: %s", source, resp.Status)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s: %s", source, resp.Status)
	default:
		return backoff.Permanent(fmt.Errorf("%s: %w: %s: %s", source, domain.ErrRejected, resp.Status, detail))
	}
}
