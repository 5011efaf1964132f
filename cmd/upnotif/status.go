package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/upnotif/internal/storage"
)

type statusStore interface {
	AllLatest(ctx context.Context) ([]storage.Check, error)
	LatestCheck(ctx context.Context, target string) (*storage.Check, error)
}

// executeStatus prints the latest check of every target, or of target alone
// when it is not empty.
func executeStatus(cmd *cobra.Command, db statusStore, target string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var checks []storage.Check
	if target != "" {
		c, err := db.LatestCheck(ctx, target)
		if err != nil {
			return fmt.Errorf("querying status of %q: %w", target, err)
		}
		if c == nil {
			fmt.Fprintf(out, "No check history for %s.\n", target)
			return nil
		}
		checks = []storage.Check{*c}
	} else {
		all, err := db.AllLatest(ctx)
		if err != nil {
			return fmt.Errorf("querying status: %w", err)
		}
		checks = all
	}

	if len(checks) == 0 {
		fmt.Fprintln(out, "No check history. Run 'upnotif serve' with a file-backed database first.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "URL\tSTATUS\tCODE\tRESPONSE\tLAST CHECKED\tERROR")
	for _, c := range checks {
		code := "-"
		if c.StatusCode > 0 {
			code = fmt.Sprintf("%d", c.StatusCode)
		}
		resp := "-"
		if c.ResponseMs > 0 {
			resp = (time.Duration(c.ResponseMs) * time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Target,
			c.Status,
			code,
			resp,
			c.CheckedAt.Local().Format("2006-01-02 15:04:05"),
			c.Error,
		)
	}
	w.Flush()
	return nil
}
