// Package clients holds the transport shared by the HTTP clients of the
// external collaborators.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/erazemk/makerledger/internal/model"
	"github.com/erazemk/makerledger/internal/telemetry"
)

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 512

// Base is a JSON-over-HTTP client for one collaborator. Transport failures
// and unexpected statuses are reported as Unavailable carrying the cause.
type Base struct {
	BaseURL     string
	Token       string
	HTTPClient  *http.Client
	Unavailable *model.Error
}

// New returns a Base with its own http.Client bounded by timeout.
func New(baseURL, token string, timeout time.Duration, unavailable *model.Error) Base {
	return Base{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Token:       token,
		HTTPClient:  &http.Client{Timeout: timeout},
		Unavailable: unavailable,
	}
}

// Do sends a request with an optional JSON body and returns the response for
// the caller to interpret. The caller must close the body.
func (b Base) Do(ctx context.Context, method, path string, body any, header http.Header) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.BaseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.Token)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	telemetry.InjectHeaders(ctx, req.Header)

	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return nil, model.Wrap(b.Unavailable, Classify(err))
	}
	return resp, nil
}

// Classify labels a transport error. The original error stays in the chain so
// callers can still match context.DeadlineExceeded or net.Error.
func Classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("request canceled: %w", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("network timeout: %w", err)
		}
		return fmt.Errorf("network error: %w", err)
	}
	return err
}

// Decode reads a JSON response body into v.
func (b Base) Decode(resp *http.Response, v any) error {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return model.Wrap(b.Unavailable, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// Unexpected builds the error for a status the caller does not handle.
func (b Base) Unexpected(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return model.Wrap(b.Unavailable,
		fmt.Errorf("unexpected response %s: %s", resp.Status, strings.TrimSpace(string(msg))))
}
