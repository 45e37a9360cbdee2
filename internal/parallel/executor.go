// Package parallel implements the Parallel Executor: runs a set of
// Analyst Nodes concurrently against deep-copied state branches, bounded
// by a worker pool, each under its own timeout, then merges the branch
// results back into a single graph.Update. The worker pool is built on
// golang.org/x/sync/errgroup's SetLimit; each branch owns its copy
// outright, so the merge step is the only synchronization point.
package parallel

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/tradingagents/internal/graph"
	"github.com/seenimoa/tradingagents/internal/state"
)

const (
	// DefaultMaxWorkers bounds concurrently-running analyst branches.
	DefaultMaxWorkers = 4
	// DefaultAnalystTimeout is the per-branch deadline.
	DefaultAnalystTimeout = 300 * time.Second
)

// Options configures one parallel-executor run.
type Options struct {
	MaxWorkers     int
	AnalystTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = DefaultMaxWorkers
	}
	if o.AnalystTimeout <= 0 {
		o.AnalystTimeout = DefaultAnalystTimeout
	}
	return o
}

type branchResult struct {
	role     state.AnalystRole
	update   graph.Update
	err      error
	duration time.Duration
	finished time.Time
}

// Run executes nodes concurrently, one deep-copied state.AgentState
// branch per role, bounded by opts.MaxWorkers, each under
// opts.AnalystTimeout. It returns a single merged graph.Update: messages
// from every branch concatenated in completion order, each branch's
// report-slot field carried through (disjoint roles write disjoint
// fields, so "last-completing wins" in practice never collides), the
// latest-completing branch's Sender, and a ParallelPerformance diagnostic
// block. Run itself never returns an error — a branch's failure or
// timeout degrades that branch's contribution to the merge; the
// branch's error is recorded in the diagnostic block instead.
func Run(ctx context.Context, base *state.AgentState, nodes map[state.AnalystRole]graph.Node, opts Options) graph.Update {
	opts = opts.withDefaults()
	overallStart := time.Now()

	results := make(chan branchResult, len(nodes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxWorkers)
	for role, node := range nodes {
		role, node := role, node
		g.Go(func() error {
			results <- runBranch(gctx, base, role, node, opts.AnalystTimeout)
			return nil
		})
	}

	// g.Wait never returns an error: runBranch reports branch failure
	// inside branchResult rather than propagating, so errgroup here is
	// purely a bounded, cancellation-aware fan-out, not a fail-fast gate.
	_ = g.Wait()
	close(results)

	// Drain in completion order so the merge's "later-completing wins"
	// rule is well defined without extra bookkeeping.
	ordered := make([]branchResult, 0, len(nodes))
	for r := range results {
		ordered = append(ordered, r)
	}
	return merge(ordered, overallStart)
}

func runBranch(ctx context.Context, base *state.AgentState, role state.AnalystRole, node graph.Node, timeout time.Duration) branchResult {
	branchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	branch := base.Clone()
	start := time.Now()

	type outcome struct {
		update graph.Update
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		u, err := node(branchCtx, branch)
		done <- outcome{u, err}
	}()

	select {
	case <-branchCtx.Done():
		return branchResult{role: role, err: fmt.Errorf("analyst %s: %w", role, branchCtx.Err()), duration: timeout, finished: time.Now()}
	case o := <-done:
		return branchResult{role: role, update: o.update, err: o.err, duration: time.Since(start), finished: time.Now()}
	}
}

func merge(results []branchResult, overallStart time.Time) graph.Update {
	merged := graph.Update{
		ParallelPerformance: &state.ParallelPerformance{
			PerRole: make(map[state.AnalystRole]state.RolePerformance, len(results)),
		},
	}

	succeeded := 0
	for _, r := range results {
		if r.err == nil {
			merged.AppendMessages = append(merged.AppendMessages, r.update.AppendMessages...)
			if r.update.Sender != "" {
				merged.Sender = r.update.Sender
			}
			mergeReportField(&merged, r.update)
			succeeded++
		}

		perf := state.RolePerformance{Duration: r.duration, Success: r.err == nil}
		if r.err != nil {
			perf.Error = r.err.Error()
		} else {
			perf.ReportLength = len(reportFieldValue(r.update))
		}
		merged.ParallelPerformance.PerRole[r.role] = perf
	}

	total := len(results)
	rate := 1.0
	if total > 0 {
		rate = float64(succeeded) / float64(total)
	}
	merged.ParallelPerformance.Overall = state.OverallPerformance{
		Duration:    time.Since(overallStart),
		SuccessRate: rate,
	}
	return merged
}

func mergeReportField(dst *graph.Update, src graph.Update) {
	if src.MarketReport != nil {
		dst.MarketReport = src.MarketReport
	}
	if src.SentimentReport != nil {
		dst.SentimentReport = src.SentimentReport
	}
	if src.NewsReport != nil {
		dst.NewsReport = src.NewsReport
	}
	if src.FundamentalsReport != nil {
		dst.FundamentalsReport = src.FundamentalsReport
	}
}

func reportFieldValue(u graph.Update) string {
	for _, p := range []*string{u.MarketReport, u.SentimentReport, u.NewsReport, u.FundamentalsReport} {
		if p != nil {
			return *p
		}
	}
	return ""
}
