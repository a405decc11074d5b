package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// LoadConfig builds the configuration from defaults, the optional YAML file
// at path, and the environment, in that order of precedence (environment
// wins). An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("server config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("server config: parse yaml: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	return &cfg, nil
}

// WatchConfig reloads path whenever it is written and applies the result
// with SetConfig. It runs until ctx is cancelled.
//
// A reload that fails to parse or validate is logged and the previous config
// stays active. The listen port is fixed at startup; a changed port is
// logged and otherwise ignored until restart.
func WatchConfig(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("server config: watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("server config: watch %q: %w", path, err)
	}

	slog.Info("config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save by rename, which surfaces as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			reloadConfig(path)

			// Re-add in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

func reloadConfig(path string) {
	cfg, err := LoadConfig(path)
	if err != nil {
		slog.Error("config: reload failed, keeping previous config", "path", path, "err", err)
		return
	}

	previous := currentConfig()
	if cfg.Addr() != previous.Addr() {
		slog.Warn("config: port change requires a restart",
			"active", previous.Addr(), "configured", cfg.Addr())
		cfg.Port = previous.Port
	}

	SetConfig(cfg)
	slog.Info("config: reloaded", "path", path, "log_level", cfg.Log.Level)
}
