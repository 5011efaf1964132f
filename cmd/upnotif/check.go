package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hazz-dev/upnotif/internal/checker"
	"github.com/hazz-dev/upnotif/internal/config"
)

func executeCheck(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) error {
	return runChecks(cmd.Context(), cmd.OutOrStdout(), cfg, checker.New(cfg.Timeout(), logger))
}

func runChecks(ctx context.Context, out io.Writer, cfg *config.Config, c checker.Checker) error {
	if ctx == nil {
		ctx = context.Background()
	}
	targets := checker.Targets(cfg.URLs)
	results := make([]checker.CheckResult, len(targets))

	limit := cfg.Concurrency
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, t := range targets {
		wg.Add(1)
		go func(i int, t checker.Target) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			probeCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
			defer cancel()
			results[i] = c.Check(probeCtx, t)
		}(i, t)
	}
	wg.Wait()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "URL\tSTATUS\tCODE\tRESPONSE\tERROR")
	down := 0
	for _, r := range results {
		code := "-"
		if r.StatusCode > 0 {
			code = fmt.Sprintf("%d", r.StatusCode)
		}
		resp := "-"
		if r.ResponseTime > 0 {
			resp = r.ResponseTime.Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Target.URL, r.Status, code, resp, r.Error)
		if r.Status != checker.StatusUp {
			down++
		}
	}
	w.Flush()

	if down > 0 {
		return fmt.Errorf("%d of %d targets are down", down, len(results))
	}
	return nil
}
