// Package notifier delivers JSON payloads to downstream HTTP sinks (the
// status-collection service and the analytics endpoint).
package notifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnexpectedStatus is returned by a strict notifier when the sink answers
// with a non-2xx status code.
var ErrUnexpectedStatus = errors.New("unexpected response status")

// maxResponseBody caps how much of a response body is kept for the caller.
const maxResponseBody = 1 << 20

// Response is what the sink answered.
type Response struct {
	StatusCode int
	Body       []byte
}

// Deliverer is the contract used by the pipeline to reach an external sink.
type Deliverer interface {
	Deliver(ctx context.Context, endpoint string, payload []byte) (*Response, error)
}

// HTTPNotifierConfig holds configuration for the HTTPNotifier.
type HTTPNotifierConfig struct {
	// Timeout bounds a single delivery, including reading the response.
	Timeout time.Duration
	// StrictStatus treats any non-2xx response as a failed delivery. When false
	// the notifier only fails on transport errors.
	StrictStatus bool
}

// HTTPNotifier POSTs payloads with Content-Type application/json. It never
// retries; retry policy belongs to the caller.
type HTTPNotifier struct {
	client *http.Client
	cfg    HTTPNotifierConfig
	logger zerolog.Logger
}

// NewHTTPNotifier creates a notifier. A nil client gets a fresh http.Client.
func NewHTTPNotifier(cfg HTTPNotifierConfig, client *http.Client, logger zerolog.Logger) *HTTPNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPNotifier{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "HTTPNotifier").Logger(),
	}
}

// Deliver sends payload to endpoint and blocks until the sink has answered or
// the delivery failed.
func (n *HTTPNotifier) Deliver(ctx context.Context, endpoint string, payload []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Delivery failed.")
		return nil, fmt.Errorf("failed to deliver to %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", endpoint, err)
	}
	out := &Response{StatusCode: resp.StatusCode, Body: body}

	if n.cfg.StrictStatus && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		n.logger.Error().Str("endpoint", endpoint).Int("status_code", resp.StatusCode).Msg("Sink rejected delivery.")
		return out, fmt.Errorf("%w from %s: %d", ErrUnexpectedStatus, endpoint, resp.StatusCode)
	}

	n.logger.Debug().Str("endpoint", endpoint).Int("status_code", resp.StatusCode).Int("payload_bytes", len(payload)).Msg("Payload delivered.")
	return out, nil
}
