package checker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Checker performs a single reachability check against a target.
// Implementations never return errors: every failure is reported as StatusDown.
type Checker interface {
	Check(ctx context.Context, target Target) CheckResult
}

// New returns the HTTP checker used for all targets. Pass nil logger to discard logs.
func New(timeout time.Duration, logger *zap.Logger) Checker {
	return newHTTPChecker(timeout, logger)
}

// Targets converts a list of URLs into targets, preserving order.
func Targets(urls []string) []Target {
	targets := make([]Target, 0, len(urls))
	for _, u := range urls {
		targets = append(targets, Target{URL: u})
	}
	return targets
}
