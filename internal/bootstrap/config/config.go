package config

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"sentinel/internal/bootstrap/logging"
	"sentinel/internal/errs"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	GitHub     GitHubConfig     `mapstructure:"github"`
	Labels     LabelsConfig     `mapstructure:"labels"`
	Runner     RunnerConfig     `mapstructure:"runner"`
	Git        GitConfig        `mapstructure:"git"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type ServerConfig struct {
	Addr                   string `mapstructure:"addr"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// GitHubConfig selects authentication by what is present: a personal access
// token, or GitHub App installation credentials.
type GitHubConfig struct {
	Repo          string        `mapstructure:"repo"`
	Token         string        `mapstructure:"token"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	App           AppAuthConfig `mapstructure:"app"`
}

type AppAuthConfig struct {
	ID             int64  `mapstructure:"id"`
	InstallationID int64  `mapstructure:"installation_id"`
	PrivateKeyFile string `mapstructure:"private_key_file"`
}

func (a AppAuthConfig) Configured() bool {
	return a.ID != 0 && a.InstallationID != 0 && strings.TrimSpace(a.PrivateKeyFile) != ""
}

// LabelsConfig names the workflow stage labels on the tracker.
type LabelsConfig struct {
	Ready    string `mapstructure:"ready"`
	Proposal string `mapstructure:"proposal"`
	Approved string `mapstructure:"approved"`
	Working  string `mapstructure:"working"`
	Done     string `mapstructure:"done"`
	Rejected string `mapstructure:"rejected"`
}

type RunnerConfig struct {
	ProfileFile    string `mapstructure:"profile_file"`
	Program        string `mapstructure:"program"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type GitConfig struct {
	RepoDir      string `mapstructure:"repo_dir"`
	BaseBranch   string `mapstructure:"base_branch"`
	BranchPrefix string `mapstructure:"branch_prefix"`
	CommitPrefix string `mapstructure:"commit_prefix"`
}

type DispatcherConfig struct {
	MaxConcurrent      int `mapstructure:"max_concurrent"`
	TaskTimeoutSeconds int `mapstructure:"task_timeout_seconds"`
	DedupWindowMinutes int `mapstructure:"dedup_window_minutes"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			// Keep default and env-backed config when no file is provided.
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	if cfg.GitHub.WebhookSecret == "" {
		logging.Warn(logCtx, "webhook secret not configured, signature verification is permissive")
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("repo", cfg.GitHub.Repo),
	)

	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}

	repo := strings.TrimSpace(cfg.GitHub.Repo)
	if repo == "" {
		return errors.New("github.repo is required")
	}
	if parts := strings.Split(repo, "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return errors.New("github.repo must be owner/name")
	}

	if strings.TrimSpace(cfg.GitHub.Token) == "" && !cfg.GitHub.App.Configured() {
		return errors.New("github.token or github.app credentials are required")
	}

	if cfg.Dispatcher.MaxConcurrent < 1 {
		return errors.New("dispatcher.max_concurrent must be at least 1")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sentinel")
	v.SetDefault("app.env", "local")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout_seconds", 10)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "state/sentinel.sqlite")

	v.SetDefault("labels.ready", "ai-ready")
	v.SetDefault("labels.proposal", "ai-proposal-pending")
	v.SetDefault("labels.approved", "ai-approved")
	v.SetDefault("labels.working", "ai-working")
	v.SetDefault("labels.done", "ai-done")
	v.SetDefault("labels.rejected", "ai-rejected")

	v.SetDefault("runner.profile_file", "runner.toml")
	v.SetDefault("runner.program", "gemini")
	v.SetDefault("runner.timeout_seconds", 1800)

	v.SetDefault("git.repo_dir", ".")
	v.SetDefault("git.base_branch", "main")
	v.SetDefault("git.branch_prefix", "sentinel/issue-")
	v.SetDefault("git.commit_prefix", "feat: ")

	v.SetDefault("dispatcher.max_concurrent", 2)
	v.SetDefault("dispatcher.task_timeout_seconds", 2400)
	v.SetDefault("dispatcher.dedup_window_minutes", 60)
}
