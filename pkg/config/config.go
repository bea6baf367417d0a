package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Upstream    string   `yaml:"upstream"`
	Downstream  string   `yaml:"downstream"`
	Workflow    string   `yaml:"workflow"`
	WorkflowRef string   `yaml:"workflow_ref"`
	TagsVia     string   `yaml:"tags_via"`
	TagFilter   string   `yaml:"tag_filter"`
	Inject      Inject   `yaml:"inject"`
	Commit      Commit   `yaml:"commit"`
	GitTimeout  Duration `yaml:"git_timeout"`
	Token       string   `yaml:"-"`
	Actor       string   `yaml:"-"`
	DryRun      bool     `yaml:"-"`
	Output      string   `yaml:"-"`
}

type Inject struct {
	SourceDir string   `yaml:"source_dir"`
	Paths     []string `yaml:"paths"`
}

type Commit struct {
	Message string `yaml:"message"`
	Email   string `yaml:"email"`
}

// Duration wraps time.Duration so it can be written as "10m" in yaml.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func Default() *Config {
	return &Config{
		Workflow:    "sync-tag.yml",
		WorkflowRef: "main",
		TagsVia:     "git",
		Inject: Inject{
			SourceDir: ".",
		},
		Commit: Commit{
			Message: "Add build descriptors for downstream release",
		},
		GitTimeout: Duration(10 * time.Minute),
		Output:     "table",
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func MergeFlags(cfg *Config, flags *pflag.FlagSet) *Config {
	if v, err := flags.GetString("upstream"); err == nil && v != "" {
		cfg.Upstream = v
	}
	if v, err := flags.GetString("downstream"); err == nil && v != "" {
		cfg.Downstream = v
	}
	if v, err := flags.GetString("workflow"); err == nil && v != "" {
		cfg.Workflow = v
	}
	if v, err := flags.GetString("workflow-ref"); err == nil && v != "" {
		cfg.WorkflowRef = v
	}
	if v, err := flags.GetString("tags-via"); err == nil && v != "" {
		cfg.TagsVia = v
	}
	if v, err := flags.GetString("tag-filter"); err == nil && v != "" {
		cfg.TagFilter = v
	}
	if v, err := flags.GetString("github-token"); err == nil && v != "" {
		cfg.Token = v
	}
	if v, err := flags.GetString("actor"); err == nil && v != "" {
		cfg.Actor = v
	}
	if v, err := flags.GetBool("dry-run"); err == nil {
		cfg.DryRun = v
	}
	if v, err := flags.GetString("output"); err == nil && v != "" {
		cfg.Output = v
	}
	return cfg
}

func (c *Config) Validate() error {
	if c.Upstream == "" {
		return fmt.Errorf("upstream repository is required")
	}
	if c.Downstream == "" {
		return fmt.Errorf("downstream repository is required")
	}
	if c.TagsVia != "git" && c.TagsVia != "api" {
		return fmt.Errorf("tags_via must be %q or %q, got %q", "git", "api", c.TagsVia)
	}
	return nil
}
