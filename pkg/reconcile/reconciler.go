package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
)

// TagSource reads the tag names of one repository. Implementations must
// return a fresh, point-in-time snapshot on every call; nothing is cached
// across reconciliation passes.
type TagSource interface {
	Tags(ctx context.Context) ([]string, error)
}

// Dispatcher requests one tag sync in a separate execution context.
type Dispatcher interface {
	Dispatch(ctx context.Context, tag string) error
}

// Plan is the outcome of diffing upstream against downstream tags.
type Plan struct {
	Missing    []string `json:"missing"`
	Excluded   []string `json:"excluded,omitempty"`
	Upstream   int      `json:"upstream_total"`
	Downstream int      `json:"downstream_total"`
}

// Reconciler finds upstream tags absent downstream and triggers a sync for
// each. It keeps no state between passes: every pass re-reads both tag sets,
// so a crash mid-pass only causes re-evaluation, never duplicate application
// of a tag already visible downstream.
type Reconciler struct {
	upstream   TagSource
	downstream TagSource
	dispatcher Dispatcher
	logger     *slog.Logger

	// Filter restricts mirroring to tags matching a semver constraint.
	// Tags that do not parse as semver are excluded when a filter is set.
	Filter *semver.Constraints

	// DryRun computes and logs the plan without dispatching anything.
	DryRun bool
}

func New(upstream, downstream TagSource, dispatcher Dispatcher, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		upstream:   upstream,
		downstream: downstream,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Plan reads both tag sets and computes the sorted set difference. A tag
// present downstream is skipped by name alone; target commits are never
// compared.
func (r *Reconciler) Plan(ctx context.Context) (*Plan, error) {
	up, err := r.upstream.Tags(ctx)
	if err != nil {
		return nil, fmt.Errorf("read upstream tags: %w", err)
	}
	down, err := r.downstream.Tags(ctx)
	if err != nil {
		return nil, fmt.Errorf("read downstream tags: %w", err)
	}

	have := make(map[string]bool, len(down))
	for _, name := range down {
		have[name] = true
	}

	plan := &Plan{Upstream: len(up), Downstream: len(down)}
	for _, name := range up {
		if have[name] {
			continue
		}
		if r.Filter != nil && !r.matches(name) {
			plan.Excluded = append(plan.Excluded, name)
			continue
		}
		plan.Missing = append(plan.Missing, name)
	}
	sort.Strings(plan.Missing)
	sort.Strings(plan.Excluded)
	return plan, nil
}

func (r *Reconciler) matches(tag string) bool {
	v, err := semver.NewVersion(tag)
	if err != nil {
		return false
	}
	return r.Filter.Check(v)
}

// Run executes one reconciliation pass: plan, then trigger a sync for every
// missing tag. A failed dispatch does not stop the loop; the pass reports an
// error if any trigger failed so the hosting scheduler marks the run failed
// and the next pass retries naturally.
func (r *Reconciler) Run(ctx context.Context) (*Plan, error) {
	plan, err := r.Plan(ctx)
	if err != nil {
		return nil, err
	}
	r.logger.Info("reconciliation plan",
		"upstream", plan.Upstream,
		"downstream", plan.Downstream,
		"missing", len(plan.Missing),
		"excluded", len(plan.Excluded))

	if r.DryRun {
		r.logger.Info("dry-run: no syncs dispatched")
		return plan, nil
	}

	failed := 0
	for _, tag := range plan.Missing {
		if err := r.dispatcher.Dispatch(ctx, tag); err != nil {
			r.logger.Error("trigger failed", "tag", tag, "error", err)
			failed++
			continue
		}
		r.logger.Info("sync triggered", "tag", tag)
	}
	if failed > 0 {
		return plan, fmt.Errorf("%d of %d sync triggers failed", failed, len(plan.Missing))
	}
	return plan, nil
}

// RunEvery runs a pass immediately and then once per interval until ctx is
// done. Pass failures are logged, not fatal: the next tick re-derives the
// diff from live state. Context cancellation is the normal shutdown path
// and returns nil.
func (r *Reconciler) RunEvery(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Run(ctx); err != nil {
			r.logger.Error("reconciliation pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.logger.Info("reconciliation loop stopping")
			return nil
		case <-ticker.C:
		}
	}
}
