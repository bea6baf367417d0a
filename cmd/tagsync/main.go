package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-github/v60/github"
	"github.com/spf13/cobra"

	"github.com/upstream-tag-mirror/pkg/config"
	"github.com/upstream-tag-mirror/pkg/dispatch"
	"github.com/upstream-tag-mirror/pkg/gitrepo"
	"github.com/upstream-tag-mirror/pkg/reconcile"
	"github.com/upstream-tag-mirror/pkg/reporter"
	"github.com/upstream-tag-mirror/pkg/rewrite"
	"github.com/upstream-tag-mirror/pkg/vcs"
)

var (
	version = "dev"
	commit  = "none"

	logLevel string
	interval time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
}

var rootCmd = &cobra.Command{
	Use:     "tagsync",
	Short:   "Mirror upstream release tags into a downstream fork",
	Long: `tagsync keeps a downstream fork's release tags in step with its upstream.

Every mirrored tag is republished under the identical name but a new commit
whose tree is the upstream tree plus a set of injected build descriptors, so
downstream tooling works on every release without patching upstream.`,
	Version:      fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage: true,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Diff upstream tags against downstream and trigger missing syncs",
	Long: `Reconcile reads the tag sets of the upstream and downstream repositories,
computes the tags missing downstream, and dispatches one sync workflow run
per missing tag. Dispatch is fire-and-forget; the dispatched run performs
the rewrite with its own credentials.

With --interval the diff-and-trigger pass repeats on a fixed ticker instead
of exiting after one pass.`,
	RunE: runReconcile,
}

var rewriteCmd = &cobra.Command{
	Use:   "rewrite <tag>",
	Short: "Republish one upstream tag downstream with injected files",
	Long: `Rewrite clones the upstream repository, checks out the named tag, overlays
the configured injected files, commits, re-tags under the same name, and
pushes the tag to the downstream repository. The push is the final step, so
a failure leaves no partial downstream state.`,
	Args: cobra.ExactArgs(1),
	RunE: runRewrite,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", ".tagsync.yml", "Path to config file")
	pf.String("upstream", "", "Upstream repository (URL or owner/repo)")
	pf.String("downstream", "", "Downstream repository (URL or owner/repo)")
	pf.String("github-token", os.Getenv("GITHUB_TOKEN"), "GitHub token for API access and pushes")
	pf.String("actor", os.Getenv("GITHUB_ACTOR"), "Identity recorded as commit author")
	pf.Bool("dry-run", false, "Report what would happen without dispatching or pushing")
	pf.StringVar(&logLevel, "log-level", "info", "Log level: debug | info | warn | error")

	rf := reconcileCmd.Flags()
	rf.String("workflow", "", "Workflow file dispatched per missing tag")
	rf.String("workflow-ref", "", "Ref the dispatched workflow runs on")
	rf.String("tags-via", "", "How to read tag lists: git | api")
	rf.String("tag-filter", "", "Semver constraint limiting which tags are mirrored")
	rf.String("output", "", "Plan output format: table | json")
	rf.DurationVar(&interval, "interval", 0, "Repeat the pass on this interval (0 = run once)")

	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(rewriteCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	downOwner, downRepo, err := vcs.ParseRepo(cfg.Downstream)
	if err != nil {
		return err
	}

	gh := github.NewClient(nil)
	if cfg.Token != "" {
		gh = gh.WithAuthToken(cfg.Token)
	}

	upstream, downstream, err := tagSources(cfg, gh)
	if err != nil {
		return err
	}

	dispatcher := dispatch.NewWorkflowDispatcher(gh, downOwner, downRepo, cfg.Workflow, cfg.WorkflowRef)
	rec := reconcile.New(upstream, downstream, dispatcher, logger)
	rec.DryRun = cfg.DryRun

	if cfg.TagFilter != "" {
		constraint, err := semver.NewConstraint(cfg.TagFilter)
		if err != nil {
			return fmt.Errorf("parse tag_filter %q: %w", cfg.TagFilter, err)
		}
		rec.Filter = constraint
	}

	if interval > 0 {
		logger.Info("starting reconciliation loop", "interval", interval)
		return rec.RunEvery(ctx, interval)
	}

	plan, runErr := rec.Run(ctx)
	if plan != nil {
		if err := reporter.New(cfg.Output, os.Stdout).Report(plan); err != nil {
			return err
		}
	}
	return runErr
}

func runRewrite(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Token == "" && !cfg.DryRun {
		return fmt.Errorf("a github token is required to push the rewritten tag")
	}
	if len(cfg.Inject.Paths) == 0 {
		return fmt.Errorf("no injected paths configured; set inject.paths in the config file")
	}

	rewriter := rewrite.New(cfg, gitrepo.NewShellClient(), logger)
	if err := rewriter.Run(ctx, args[0]); err != nil {
		logger.Error("tag sync failed", "tag", args[0], "error", err)
		return err
	}
	return nil
}

// tagSources builds the upstream and downstream tag listers according to
// tags_via: plain git ls-remote, or the GitHub REST API. Both are bounded
// by the configured git timeout so a stalled remote cannot hang a pass.
func tagSources(cfg *config.Config, gh *github.Client) (reconcile.TagSource, reconcile.TagSource, error) {
	var upstream, downstream reconcile.TagSource

	switch cfg.TagsVia {
	case "api":
		client := vcs.NewGitHubClient(gh)
		upOwner, upRepo, err := vcs.ParseRepo(cfg.Upstream)
		if err != nil {
			return nil, nil, err
		}
		downOwner, downRepo, err := vcs.ParseRepo(cfg.Downstream)
		if err != nil {
			return nil, nil, err
		}
		upstream = &reconcile.APITagSource{Client: client, Owner: upOwner, Repo: upRepo}
		downstream = &reconcile.APITagSource{Client: client, Owner: downOwner, Repo: downRepo}
	default:
		git := gitrepo.NewShellClient()
		up, err := vcs.ResolveCloneURL(cfg.Upstream)
		if err != nil {
			return nil, nil, err
		}
		down, err := vcs.ResolveCloneURL(cfg.Downstream)
		if err != nil {
			return nil, nil, err
		}
		upstream = &reconcile.GitTagSource{Client: git, URL: up}
		downstream = &reconcile.GitTagSource{Client: git, URL: down}
	}

	timeout := time.Duration(cfg.GitTimeout)
	return &reconcile.TimeoutSource{Source: upstream, Timeout: timeout},
		&reconcile.TimeoutSource{Source: downstream, Timeout: timeout}, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load config file: %v (using defaults)\n", err)
		cfg = config.Default()
	}
	cfg = config.MergeFlags(cfg, cmd.Flags())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
