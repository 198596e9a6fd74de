package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v4"
)

// get downloads a static file, retrying network errors and 5xx responses
// until maxElapsed. Other non-2xx statuses fail at once.
func (s *Source) get(ctx context.Context, url string) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = s.maxElapsed
	if s.initialInterval > 0 {
		bo.InitialInterval = s.initialInterval
	}

	var body []byte
	var lastErr error
	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			s.log.WithField("attempt", attempt).WithField("error", err.Error()).Warn("fetch attempt failed")
			return err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			lastErr = fmt.Errorf("read body: %w", err)
			return lastErr
		}
		switch {
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error: %s", resp.Status)
			s.log.WithField("attempt", attempt).WithField("status", resp.StatusCode).Warn("fetch attempt failed")
			return lastErr
		case resp.StatusCode >= 300:
			lastErr = fmt.Errorf("unexpected status: %s", resp.Status)
			return backoff.Permanent(lastErr)
		}
		if len(b) == 0 {
			lastErr = fmt.Errorf("empty body")
			return backoff.Permanent(lastErr)
		}
		body = b
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}
	return body, nil
}
