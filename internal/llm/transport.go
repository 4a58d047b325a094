package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

// httpJSON posts a JSON body and decodes a JSON reply, mapping HTTP status
// codes onto the engine's error taxonomy. headers are applied verbatim.
func httpJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrProviderUnavailable, err)
	}

	if err := mapStatus(resp.StatusCode, payload); err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}
	return nil
}

// mapStatus converts a provider HTTP status into the error taxonomy.
func mapStatus(code int, body []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, truncateBody(body))
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", ErrAuthFailure, code, truncateBody(body))
	case code >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, code, truncateBody(body))
	default:
		return fmt.Errorf("%w: status %d: %s", ErrMalformedResponse, code, truncateBody(body))
	}
}

func truncateBody(b []byte) string {
	const max = 512
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
