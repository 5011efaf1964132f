package checker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type httpChecker struct {
	client *http.Client
	logger *zap.Logger
}

func newHTTPChecker(timeout time.Duration, logger *zap.Logger) *httpChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &httpChecker{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (c *httpChecker) Check(ctx context.Context, target Target) CheckResult {
	start := time.Now()
	result := CheckResult{
		Target:    target,
		CheckedAt: start,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return c.down(result, start, fmt.Sprintf("creating request: %v", err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return c.down(result, start, err.Error())
	}
	// Drain so the connection can be reused by the next tick.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	result.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.down(result, start, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	result.Status = StatusUp
	result.ResponseTime = time.Since(start)
	return result
}

func (c *httpChecker) down(result CheckResult, start time.Time, reason string) CheckResult {
	result.Status = StatusDown
	result.Error = reason
	result.ResponseTime = time.Since(start)
	c.logger.Warn("probe failed",
		zap.String("url", result.Target.URL),
		zap.Int("status_code", result.StatusCode),
		zap.String("error", reason),
	)
	return result
}
