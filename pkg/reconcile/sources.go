package reconcile

import (
	"context"
	"time"

	"github.com/upstream-tag-mirror/pkg/gitrepo"
	"github.com/upstream-tag-mirror/pkg/vcs"
)

// GitTagSource lists tags by asking the remote directly (git ls-remote),
// which needs no clone and no API credentials for public repositories.
type GitTagSource struct {
	Client gitrepo.Client
	URL    string
}

func (s *GitTagSource) Tags(ctx context.Context) ([]string, error) {
	return s.Client.LsRemoteTags(ctx, s.URL)
}

// APITagSource lists tags through the GitHub REST API. Useful when the
// runner has an API token but no git binary, or when the repository is
// private and the token is the only credential available.
type APITagSource struct {
	Client *vcs.GitHubClient
	Owner  string
	Repo   string
}

func (s *APITagSource) Tags(ctx context.Context) ([]string, error) {
	return s.Client.ListTags(ctx, s.Owner, s.Repo)
}

// TimeoutSource bounds each tag read with a deadline so a stalled remote
// cannot hang the reconciliation loop.
type TimeoutSource struct {
	Source  TagSource
	Timeout time.Duration
}

func (s *TimeoutSource) Tags(ctx context.Context) ([]string, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	return s.Source.Tags(ctx)
}
