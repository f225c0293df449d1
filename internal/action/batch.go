package action

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/newthinker/glacier/internal/core"
	"github.com/newthinker/glacier/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Item is the outcome of one action in a batch.
type Item struct {
	Verb   Verb
	Target string
	Result Result
	Err    error
}

// Code is the error code of a failed item, or "" on success.
func (i Item) Code() string {
	return core.Code(i.Err)
}

// Report holds batch outcomes in input order.
type Report struct {
	Items []Item
}

// OK reports whether every item succeeded.
func (r *Report) OK() bool {
	return len(r.Failed()) == 0
}

func (r *Report) Succeeded() []Item {
	var out []Item
	for _, it := range r.Items {
		if it.Err == nil {
			out = append(out, it)
		}
	}
	return out
}

func (r *Report) Failed() []Item {
	var out []Item
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

// Write prints one line per item.
func (r *Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTION\tTARGET\tSTATUS\tDETAIL")
	for _, it := range r.Items {
		if it.Err != nil {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", it.Verb, it.Target, it.Code(), it.Err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\tOK\t%s\n", it.Verb, it.Target, it.Result)
	}
	fmt.Fprintf(tw, "\n%d succeeded, %d failed\n", len(r.Succeeded()), len(r.Failed()))
	return tw.Flush()
}

// Runner executes batches. The zero value runs sequentially without logging
// or metrics.
type Runner struct {
	Concurrency int
	Logger      *zap.Logger
	Metrics     *metrics.Registry
}

// Run executes every action. A failing action never stops the others.
func (r *Runner) Run(ctx context.Context, actions []Action) *Report {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := r.Concurrency
	if limit < 1 {
		limit = 1
	}

	items := make([]Item, len(actions))
	var g errgroup.Group
	g.SetLimit(limit)

	for i, a := range actions {
		g.Go(func() error {
			start := time.Now()
			res, err := a.Execute(ctx)
			items[i] = Item{Verb: a.Verb(), Target: a.Target(), Result: res, Err: err}

			status := "ok"
			if err != nil {
				status = core.Code(err)
				logger.Error("action failed",
					zap.String("verb", string(a.Verb())),
					zap.String("target", a.Target()),
					zap.String("code", status),
					zap.Error(err),
				)
			} else {
				logger.Info("action completed",
					zap.String("verb", string(a.Verb())),
					zap.String("target", a.Target()),
					zap.Duration("elapsed", time.Since(start)),
				)
			}
			r.Metrics.RecordAction(string(a.Verb()), status, time.Since(start).Seconds())
			return nil
		})
	}
	// Failures are recorded per item, so Wait never returns an error.
	g.Wait()

	return &Report{Items: items}
}
