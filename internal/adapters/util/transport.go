package util

import (
	"log/slog"
	"net/http"
	"time"
)

// RetryTransport retries idempotent requests on transport errors and 5xx
// responses with a short linear backoff.
type RetryTransport struct {
	Base       http.RoundTripper
	MaxRetries int
	Backoff    time.Duration
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	retries := t.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := t.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var resp *http.Response
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			// Only GET and HEAD are safe to replay.
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				break
			}
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(time.Duration(attempt) * backoff):
			}
		}

		resp, err = base.RoundTrip(req)
		if err != nil {
			continue
		}
		if resp.StatusCode < 500 {
			return resp, nil
		}
		if attempt < retries {
			resp.Body.Close()
		}
	}
	return resp, err
}

// LoggingTransport logs outbound requests and response statuses at debug
// level.
type LoggingTransport struct {
	Base http.RoundTripper
	Log  *slog.Logger
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Log == nil || !t.Log.Enabled(req.Context(), slog.LevelDebug) {
		return base.RoundTrip(req)
	}

	start := time.Now()
	t.Log.Debug("outbound request", slog.String("method", req.Method), slog.String("url", req.URL.String()))

	resp, err := base.RoundTrip(req)
	if err != nil {
		t.Log.Debug("outbound request failed", slog.String("url", req.URL.String()), slog.Any("error", err))
		return resp, err
	}

	t.Log.Debug("outbound response",
		slog.Int("status", resp.StatusCode),
		slog.String("url", req.URL.String()),
		slog.Duration("elapsed", time.Since(start)))
	return resp, nil
}
