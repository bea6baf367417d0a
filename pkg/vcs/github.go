package vcs

import (
	"context"
	"fmt"

	"github.com/google/go-github/v60/github"
)

type GitHubClient struct {
	client *github.Client
}

func NewGitHubClient(client *github.Client) *GitHubClient {
	return &GitHubClient{client: client}
}

// ListTags returns all tag names of owner/repo via the REST API, following
// pagination. An empty result is valid for a repository with no tags.
func (g *GitHubClient) ListTags(ctx context.Context, owner, repo string) ([]string, error) {
	var names []string
	opts := &github.ListOptions{PerPage: 100}

	for {
		tags, resp, err := g.client.Repositories.ListTags(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list tags for %s/%s: %w", owner, repo, err)
		}
		for _, t := range tags {
			names = append(names, t.GetName())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return names, nil
}
