package vcs

import (
	"fmt"
	"strings"
)

// ParseRepo extracts owner and repo from a GitHub URL or an "owner/repo"
// slug.
func ParseRepo(s string) (owner, repo string, err error) {
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "git@github.com:")
	s = strings.TrimPrefix(s, "github.com/")
	s = strings.TrimSuffix(s, ".git")
	s = strings.TrimSuffix(s, "/")

	parts := strings.SplitN(s, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("cannot parse GitHub repo from %q", s)
	}
	return parts[0], parts[1], nil
}

// CloneURL returns the https clone URL for owner/repo.
func CloneURL(owner, repo string) string {
	return fmt.Sprintf("https://github.com/%s/%s.git", owner, repo)
}

// AuthenticatedURL returns an https clone URL with the token embedded as a
// password-style credential. Never log the result.
func AuthenticatedURL(owner, repo, token string) string {
	return fmt.Sprintf("https://x-access-token:%s@github.com/%s/%s.git", token, owner, repo)
}

// isURL reports whether s is already a usable git remote (full URL, ssh
// shorthand, or filesystem path) rather than an owner/repo slug.
func isURL(s string) bool {
	return strings.Contains(s, "://") ||
		strings.HasPrefix(s, "git@") ||
		strings.HasPrefix(s, "/") ||
		strings.HasPrefix(s, ".")
}

// ResolveCloneURL accepts a full git remote or an owner/repo slug and
// returns something git can clone from.
func ResolveCloneURL(s string) (string, error) {
	if isURL(s) {
		return s, nil
	}
	owner, repo, err := ParseRepo(s)
	if err != nil {
		return "", err
	}
	return CloneURL(owner, repo), nil
}

// ResolvePushURL is ResolveCloneURL with the token embedded for GitHub
// remotes. Non-GitHub remotes (and tokenless calls) are returned as-is and
// rely on ambient git authentication.
func ResolvePushURL(s, token string) (string, error) {
	if isURL(s) {
		return s, nil
	}
	owner, repo, err := ParseRepo(s)
	if err != nil {
		return "", err
	}
	if token == "" {
		return CloneURL(owner, repo), nil
	}
	return AuthenticatedURL(owner, repo, token), nil
}
