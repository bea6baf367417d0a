package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	tags []string
	err  error
}

func (s *fakeSource) Tags(_ context.Context) ([]string, error) {
	return s.tags, s.err
}

type fakeDispatcher struct {
	dispatched []string
	failOn     map[string]error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, tag string) error {
	if err, ok := d.failOn[tag]; ok {
		return err
	}
	d.dispatched = append(d.dispatched, tag)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newReconciler(up, down []string, d *fakeDispatcher) *Reconciler {
	return New(&fakeSource{tags: up}, &fakeSource{tags: down}, d, discardLogger())
}

func TestRun_TriggersOnlyMissingTags(t *testing.T) {
	d := &fakeDispatcher{}
	r := newReconciler([]string{"v1", "v2"}, []string{"v1"}, d)

	plan, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, plan.Missing)
	assert.Equal(t, []string{"v2"}, d.dispatched)
}

func TestRun_EmptyUpstream(t *testing.T) {
	d := &fakeDispatcher{}
	r := newReconciler(nil, nil, d)

	plan, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plan.Missing)
	assert.Empty(t, d.dispatched)
}

func TestRun_DownstreamAlreadyEqual(t *testing.T) {
	d := &fakeDispatcher{}
	r := newReconciler([]string{"v1", "v2"}, []string{"v2", "v1"}, d)

	plan, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plan.Missing)
	assert.Empty(t, d.dispatched)
}

func TestRun_ConvergesToZeroTriggers(t *testing.T) {
	up := &fakeSource{tags: []string{"v1", "v2", "v3"}}
	down := &fakeSource{tags: []string{"v1"}}
	d := &fakeDispatcher{}
	r := New(up, down, d, discardLogger())

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"v2", "v3"}, d.dispatched)

	// Once the dispatched syncs land downstream, the next pass is a no-op.
	down.tags = []string{"v1", "v2", "v3"}
	_, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"v2", "v3"}, d.dispatched)
}

func TestRun_SkipsByNameNotCommit(t *testing.T) {
	// A tag present downstream is never re-diffed, even if it was rewritten
	// out of band; only the name is compared.
	d := &fakeDispatcher{}
	r := newReconciler([]string{"v1"}, []string{"v1"}, d)

	plan, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plan.Missing)
}

func TestRun_DispatchFailureDoesNotStopLoop(t *testing.T) {
	d := &fakeDispatcher{failOn: map[string]error{"v2": errors.New("boom")}}
	r := newReconciler([]string{"v1", "v2", "v3"}, nil, d)

	plan, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3")
	assert.Equal(t, []string{"v1", "v3"}, d.dispatched)
	assert.Equal(t, []string{"v1", "v2", "v3"}, plan.Missing)
}

func TestRun_DryRunDispatchesNothing(t *testing.T) {
	d := &fakeDispatcher{}
	r := newReconciler([]string{"v1"}, nil, d)
	r.DryRun = true

	plan, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, plan.Missing)
	assert.Empty(t, d.dispatched)
}

func TestPlan_SemverFilter(t *testing.T) {
	d := &fakeDispatcher{}
	r := newReconciler([]string{"v1.0.0", "v0.9.0", "nightly-2024-01-01"}, nil, d)
	constraint, err := semver.NewConstraint(">= 1.0.0")
	require.NoError(t, err)
	r.Filter = constraint

	plan, err := r.Plan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"v1.0.0"}, plan.Missing)
	assert.ElementsMatch(t, []string{"v0.9.0", "nightly-2024-01-01"}, plan.Excluded)
}

func TestPlan_SortedDeterministically(t *testing.T) {
	d := &fakeDispatcher{}
	r := newReconciler([]string{"v3", "v1", "v2"}, nil, d)

	plan, err := r.Plan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2", "v3"}, plan.Missing)
}

func TestRunEvery_CancellationIsCleanShutdown(t *testing.T) {
	d := &fakeDispatcher{}
	r := newReconciler([]string{"v1"}, nil, d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, r.RunEvery(ctx, time.Hour))
	assert.Equal(t, []string{"v1"}, d.dispatched, "the pass in flight still completes")
}

type deadlineSource struct {
	hadDeadline bool
	deadline    time.Time
}

func (s *deadlineSource) Tags(ctx context.Context) ([]string, error) {
	s.deadline, s.hadDeadline = ctx.Deadline()
	return nil, nil
}

func TestTimeoutSource_BoundsEachRead(t *testing.T) {
	inner := &deadlineSource{}
	src := &TimeoutSource{Source: inner, Timeout: time.Minute}

	_, err := src.Tags(context.Background())
	require.NoError(t, err)
	require.True(t, inner.hadDeadline, "a stalled remote must not block forever")
	assert.LessOrEqual(t, time.Until(inner.deadline), time.Minute)
}

func TestTimeoutSource_ZeroTimeoutPassesThrough(t *testing.T) {
	inner := &deadlineSource{}
	src := &TimeoutSource{Source: inner}

	_, err := src.Tags(context.Background())
	require.NoError(t, err)
	assert.False(t, inner.hadDeadline)
}

func TestPlan_UpstreamReadError(t *testing.T) {
	r := New(&fakeSource{err: errors.New("network down")}, &fakeSource{}, &fakeDispatcher{}, discardLogger())

	_, err := r.Plan(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream")
}
