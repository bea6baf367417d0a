package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/upstream-tag-mirror/pkg/config"
	"github.com/upstream-tag-mirror/pkg/gitrepo"
	"github.com/upstream-tag-mirror/pkg/vcs"
)

const remoteName = "downstream"

// Rewriter republishes one upstream tag on the downstream fork: the same
// tag name, pointing at a single new commit whose tree is the upstream tree
// with the injected file set overlaid. Downstream tags are intentionally
// disconnected from the upstream commit graph.
type Rewriter struct {
	cfg    *config.Config
	git    gitrepo.Client
	logger *slog.Logger
}

func New(cfg *config.Config, git gitrepo.Client, logger *slog.Logger) *Rewriter {
	return &Rewriter{cfg: cfg, git: git, logger: logger}
}

// Run executes one rewrite in an ephemeral workspace that is discarded on
// every path. The push is the only remote-mutating step and comes last, so
// a failure anywhere leaves no partial downstream state.
//
// Two outcomes are benign: an unchanged working tree after the overlay (the
// tag is published at the upstream tree as-is), and a downstream rejection
// because the tag already exists (proof a previous run published it; the
// existing tag is left untouched).
func (r *Rewriter) Run(ctx context.Context, tag string) error {
	ws, err := os.MkdirTemp("", "tagsync-*")
	if err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(ws)

	upstreamURL, err := vcs.ResolveCloneURL(r.cfg.Upstream)
	if err != nil {
		return err
	}
	downstreamURL, err := vcs.ResolvePushURL(r.cfg.Downstream, r.cfg.Token)
	if err != nil {
		return err
	}

	r.logger.Info("rewriting tag",
		"tag", tag,
		"upstream", gitrepo.Redact(upstreamURL),
		"downstream", gitrepo.Redact(downstreamURL))

	repo, err := r.cloneUpstream(ctx, upstreamURL, filepath.Join(ws, "src"))
	if err != nil {
		return err
	}

	// A missing tag means the reconciler saw a stale or racing tag list;
	// the next pass re-observes and re-triggers.
	if err := repo.CheckoutTag(ctx, tag); err != nil {
		return err
	}
	if err := repo.CreateBranch(ctx, "sync/"+tag); err != nil {
		return err
	}
	// The local tag blocks re-tagging the same name at a new commit.
	if err := repo.DeleteTag(ctx, tag); err != nil {
		return err
	}

	// The injected files come from the caller's own checkout, so every
	// rewritten tag carries the latest descriptors, not the versions
	// contemporaneous with the upstream tag.
	if err := repo.ApplyFiles(ctx, r.cfg.Inject.SourceDir, r.cfg.Inject.Paths); err != nil {
		return err
	}

	name, email := r.identity()
	if err := repo.Commit(ctx, r.cfg.Commit.Message, name, email); err != nil {
		var benign *gitrepo.NothingToCommitError
		if !errors.As(err, &benign) {
			return err
		}
		r.logger.Info("injected files already present, tagging upstream tree unchanged", "tag", tag)
	}

	if err := repo.CreateTag(ctx, tag, r.cfg.Commit.Message); err != nil {
		return err
	}

	if r.cfg.DryRun {
		r.logger.Info("dry-run: skipping push", "tag", tag)
		return nil
	}

	if err := repo.AddRemote(ctx, remoteName, downstreamURL); err != nil {
		return err
	}
	if err := r.pushTag(ctx, repo, tag); err != nil {
		var rejected *gitrepo.RemoteRejectedError
		if errors.As(err, &rejected) && rejected.AlreadyExists {
			r.logger.Info("tag already exists downstream, nothing to publish", "tag", tag)
			return nil
		}
		return err
	}

	r.logger.Info("tag published", "tag", tag)
	return nil
}

func (r *Rewriter) cloneUpstream(ctx context.Context, url, dir string) (gitrepo.Repo, error) {
	ctx, cancel := r.networkContext(ctx)
	defer cancel()
	return r.git.Clone(ctx, url, dir)
}

func (r *Rewriter) pushTag(ctx context.Context, repo gitrepo.Repo, tag string) error {
	ctx, cancel := r.networkContext(ctx)
	defer cancel()
	// No force: the remote's atomic "already exists" rejection is the
	// guard against a duplicate trigger republishing the tag.
	return repo.PushTag(ctx, remoteName, tag, false)
}

func (r *Rewriter) networkContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := time.Duration(r.cfg.GitTimeout); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func (r *Rewriter) identity() (name, email string) {
	name = r.cfg.Actor
	if name == "" {
		name = "tagsync"
	}
	email = r.cfg.Commit.Email
	if email == "" {
		email = name + "@users.noreply.github.com"
	}
	return name, email
}
