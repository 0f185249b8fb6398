package qdrant

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

	"github.com/kirillkom/career-case-rag/internal/core/domain"
	"github.com/kirillkom/career-case-rag/internal/infrastructure/resilience"
)

// responseStatus carries non-retryable responses back to the caller, which decides
// whether 404 or 400 carry domain meaning.
type responseStatus struct {
	operation string
	code      int
	status    string
	body      string
}

func (s responseStatus) err() error {
	if s.body == "" {
		return fmt.Errorf("%s status: %s", s.operation, s.status)
	}
	return fmt.Errorf("%s status: %s: %s", s.operation, s.status, s.body)
}

type retryableStatusError struct {
	responseStatus
}

func (e *retryableStatusError) Error() string {
	return e.responseStatus.err().Error()
}

func (c *Client) call(ctx context.Context, operation, method, path string, payload, out any) (responseStatus, error) {
	var status responseStatus
	run := func(ctx context.Context) error {
		var err error
		status, err = c.do(ctx, operation, method, path, payload, out)
		return err
	}

	var err error
	if c.executor == nil {
		err = run(ctx)
	} else {
		err = c.executor.Execute(ctx, operation, run, classifyQdrantError)
	}
	if err == nil {
		return status, nil
	}
	if errors.Is(err, context.Canceled) || domain.IsKind(err, domain.ErrMalformedResponse) {
		return status, err
	}
	if resilience.IsCircuitOpen(err) || classifyQdrantError(err).Retryable {
		return status, domain.WrapError(domain.ErrUpstreamUnavailable, operation, err)
	}
	return status, err
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload, out any) (responseStatus, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return responseStatus{}, fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return responseStatus{}, fmt.Errorf("create %s request: %w", operation, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return responseStatus{}, fmt.Errorf("%s request: %w", operation, err)
	}
	defer resp.Body.Close()

	status := responseStatus{operation: operation, code: resp.StatusCode, status: resp.Status}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		status.body = strings.TrimSpace(string(raw))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return status, &retryableStatusError{responseStatus: status}
		}
		return status, nil
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return status, domain.WrapError(domain.ErrMalformedResponse, "decode "+operation+" response", err)
		}
	}
	return status, nil
}

func classifyQdrantError(err error) resilience.ErrorClassification {
	if err == nil || errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	if domain.IsKind(err, domain.ErrMalformedResponse) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}
	var statusErr *retryableStatusError
	if errors.As(err, &statusErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
