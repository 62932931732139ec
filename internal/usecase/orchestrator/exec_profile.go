package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	"sentinel/internal/bootstrap/logging"
	"sentinel/internal/errs"
)

// ExecProfile is the command allow-list, loaded from a TOML file. Only the
// listed programs may run, restricted to their listed subcommands.
type ExecProfile struct {
	Programs map[string]ProgramPolicy `toml:"programs"`
	PassEnv  []string                 `toml:"pass_env"`
}

type ProgramPolicy struct {
	Subcommands    []string `toml:"subcommands"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	PassEnv        []string `toml:"pass_env"`
}

func LoadExecProfile(profileFile string) (ExecProfile, error) {
	path := strings.TrimSpace(profileFile)
	if path == "" {
		return ExecProfile{}, errors.New("executor profile file is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return ExecProfile{}, errs.Wrap(err, "read executor profile")
	}

	var profile ExecProfile
	if err := toml.Unmarshal(raw, &profile); err != nil {
		return ExecProfile{}, errs.Wrap(err, "parse executor profile")
	}
	if err := validateExecProfile(profile); err != nil {
		return ExecProfile{}, err
	}
	return profile, nil
}

func validateExecProfile(profile ExecProfile) error {
	if len(profile.Programs) == 0 {
		return errors.New("executor profile must allow at least one program")
	}
	for name, policy := range profile.Programs {
		if strings.TrimSpace(name) == "" {
			return errors.New("executor profile has a program with an empty name")
		}
		if policy.TimeoutSeconds < 0 {
			return errors.New("programs." + name + ".timeout_seconds must not be negative")
		}
	}
	return nil
}

// Watch reloads the profile whenever the file changes, until ctx is done.
// Editors often replace rather than write the file, so the parent directory
// is watched and events are filtered by name.
func (e *Executor) Watch(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if e.profileFile == "" {
		return errors.New("executor has no profile file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(err, "create profile watcher")
	}
	defer watcher.Close()

	dir := filepath.Dir(e.profileFile)
	if err := watcher.Add(dir); err != nil {
		return errs.Wrapf(err, "watch directory %q", dir)
	}

	target := filepath.Clean(e.profileFile)
	logCtx := logging.WithAttrs(ctx, slog.String("component", "orchestrator.executor"))
	logging.Info(logCtx, "watching executor profile", slog.String("file", target))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := e.Reload(logCtx); err != nil {
				logging.Error(logCtx, "executor profile reload failed", slog.Any("err", errs.Loggable(err)))
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn(logCtx, "profile watcher error", slog.Any("err", errs.Loggable(watchErr)))
		}
	}
}
