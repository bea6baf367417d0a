package gitrepo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	cp "github.com/otiai10/copy"
)

// Client creates local repositories and performs read-only remote queries.
type Client interface {
	// Clone clones url into dir with full history.
	Clone(ctx context.Context, url, dir string) (Repo, error)

	// LsRemoteTags lists the tag names of a remote repository without
	// cloning it. An empty result is valid for a repository with no tags.
	LsRemoteTags(ctx context.Context, url string) ([]string, error)
}

// Repo is a local checkout that can be mutated and published.
type Repo interface {
	Dir() string
	ListTags(ctx context.Context) ([]string, error)
	CheckoutTag(ctx context.Context, name string) error
	CreateBranch(ctx context.Context, name string) error
	DeleteTag(ctx context.Context, name string) error
	CreateTag(ctx context.Context, name, message string) error
	ApplyFiles(ctx context.Context, sourceDir string, paths []string) error
	Commit(ctx context.Context, message, authorName, authorEmail string) error
	AddRemote(ctx context.Context, name, url string) error
	PushTag(ctx context.Context, remote, tag string, force bool) error
}

// ShellClient implements Client by shelling out to the git command.
type ShellClient struct{}

func NewShellClient() *ShellClient {
	return &ShellClient{}
}

func (c *ShellClient) Clone(ctx context.Context, url, dir string) (Repo, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, &CloneError{URL: url, Err: err}
	}
	if out, err := git(ctx, "", "clone", url, dir); err != nil {
		return nil, &CloneError{URL: url, Err: fmt.Errorf("%w: %s", err, Redact(out))}
	}
	return &shellRepo{dir: dir}, nil
}

func (c *ShellClient) LsRemoteTags(ctx context.Context, url string) ([]string, error) {
	out, err := git(ctx, "", "ls-remote", "--tags", "--refs", url)
	if err != nil {
		return nil, fmt.Errorf("ls-remote %s: %w: %s", Redact(url), err, Redact(out))
	}
	var tags []string
	for _, line := range strings.Split(out, "\n") {
		_, ref, found := strings.Cut(line, "\t")
		if !found {
			continue
		}
		if name := strings.TrimPrefix(ref, "refs/tags/"); name != ref {
			tags = append(tags, name)
		}
	}
	return tags, nil
}

type shellRepo struct {
	dir string
}

// Open wraps an existing checkout, used by tests and by callers that already
// have a working tree on disk.
func Open(dir string) Repo {
	return &shellRepo{dir: dir}
}

func (r *shellRepo) Dir() string { return r.dir }

func (r *shellRepo) ListTags(ctx context.Context) ([]string, error) {
	out, err := git(ctx, r.dir, "tag", "--list")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w: %s", err, out)
	}
	var tags []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			tags = append(tags, line)
		}
	}
	return tags, nil
}

func (r *shellRepo) CheckoutTag(ctx context.Context, name string) error {
	if _, err := git(ctx, r.dir, "rev-parse", "-q", "--verify", "refs/tags/"+name); err != nil {
		return &RefNotFoundError{Ref: name}
	}
	if out, err := git(ctx, r.dir, "checkout", "--detach", "refs/tags/"+name); err != nil {
		return fmt.Errorf("checkout tag %q: %w: %s", name, err, out)
	}
	return nil
}

func (r *shellRepo) CreateBranch(ctx context.Context, name string) error {
	if _, err := git(ctx, r.dir, "rev-parse", "-q", "--verify", "refs/heads/"+name); err == nil {
		return &BranchExistsError{Name: name}
	}
	if out, err := git(ctx, r.dir, "checkout", "-b", name); err != nil {
		return fmt.Errorf("create branch %q: %w: %s", name, err, out)
	}
	return nil
}

func (r *shellRepo) DeleteTag(ctx context.Context, name string) error {
	if out, err := git(ctx, r.dir, "tag", "-d", name); err != nil {
		return fmt.Errorf("delete tag %q: %w: %s", name, err, out)
	}
	return nil
}

func (r *shellRepo) CreateTag(ctx context.Context, name, message string) error {
	args := []string{"tag", name}
	if message != "" {
		args = []string{"tag", "-a", name, "-m", message}
	}
	if out, err := git(ctx, r.dir, args...); err != nil {
		return fmt.Errorf("create tag %q: %w: %s", name, err, out)
	}
	return nil
}

// ApplyFiles overlays each named path from sourceDir onto the working tree.
// Existing files at those paths are overwritten; nothing outside the named
// paths is touched.
func (r *shellRepo) ApplyFiles(ctx context.Context, sourceDir string, paths []string) error {
	for _, p := range paths {
		src := filepath.Join(sourceDir, p)
		if _, err := os.Stat(src); err != nil {
			return fmt.Errorf("injected path %q: %w", p, err)
		}
		dst := filepath.Join(r.dir, p)
		if err := cp.Copy(src, dst); err != nil {
			return fmt.Errorf("copy %q into working tree: %w", p, err)
		}
	}
	return nil
}

func (r *shellRepo) Commit(ctx context.Context, message, authorName, authorEmail string) error {
	if out, err := git(ctx, r.dir, "add", "-A"); err != nil {
		return fmt.Errorf("stage changes: %w: %s", err, out)
	}
	// diff --cached exits 1 when there are staged changes.
	if _, err := git(ctx, r.dir, "diff", "--cached", "--quiet"); err == nil {
		return &NothingToCommitError{}
	}
	out, err := git(ctx, r.dir,
		"-c", "user.name="+authorName,
		"-c", "user.email="+authorEmail,
		"commit", "-m", message)
	if err != nil {
		return fmt.Errorf("commit: %w: %s", err, out)
	}
	return nil
}

func (r *shellRepo) AddRemote(ctx context.Context, name, url string) error {
	out, err := git(ctx, r.dir, "remote", "add", name, url)
	if err != nil && strings.Contains(out, "already exists") {
		out, err = git(ctx, r.dir, "remote", "set-url", name, url)
	}
	if err != nil {
		return fmt.Errorf("add remote %q: %w: %s", name, err, Redact(out))
	}
	return nil
}

func (r *shellRepo) PushTag(ctx context.Context, remote, tag string, force bool) error {
	args := []string{"push"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, remote, "refs/tags/"+tag)
	out, err := git(ctx, r.dir, args...)
	if err == nil {
		return nil
	}
	return classifyPushError(tag, Redact(out), err)
}

func classifyPushError(tag, out string, err error) error {
	switch {
	case strings.Contains(out, "already exists"):
		return &RemoteRejectedError{Tag: tag, AlreadyExists: true, Err: err}
	case strings.Contains(out, "Authentication failed"),
		strings.Contains(out, "could not read Username"),
		strings.Contains(out, "Permission denied"),
		strings.Contains(out, "403"):
		return &AuthError{Err: fmt.Errorf("%w: %s", err, out)}
	case strings.Contains(out, "[rejected]"),
		strings.Contains(out, "[remote rejected]"),
		strings.Contains(out, "failed to push"):
		return &RemoteRejectedError{Tag: tag, Err: fmt.Errorf("%w: %s", err, out)}
	default:
		return fmt.Errorf("push tag %q: %w: %s", tag, err, out)
	}
}

// git runs a git command, optionally inside dir, and returns its combined
// output. Prompting is disabled so a missing credential fails instead of
// hanging the calling scheduler.
func git(ctx context.Context, dir string, args ...string) (string, error) {
	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	return string(out), err
}

var credentialRe = regexp.MustCompile(`://[^@/\s]+@`)

// Redact strips embedded userinfo (tokens) from URLs so they never reach
// logs or error messages.
func Redact(s string) string {
	return credentialRe.ReplaceAllString(s, "://***@")
}
