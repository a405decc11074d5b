package server

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/ssechat/internal/testhelpers"
)

var configEnvVars = []string{
	"PORT",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"ALLOWED_ORIGINS",
	"MAX_MESSAGE_SIZE",
	"RATE_LIMIT_BURST",
	"RATE_LIMIT_REFILL_INTERVAL",
	"WRITE_TIMEOUT",
	"SHUTDOWN_TIMEOUT",
}

// clearConfigEnv blanks every variable applyEnv reads; empty values are
// ignored.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, name := range configEnvVars {
		t.Setenv(name, "")
	}
	t.Cleanup(func() { SetConfig(nil) })
}

func writeConfigFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "ssechat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Zero(t, cfg.MaxMessageSize)
	assert.Zero(t, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestConfigAddr(t *testing.T) {
	assert.Equal(t, ":8080", Config{Port: "8080"}.Addr())
	assert.Equal(t, "127.0.0.1:0", Config{Port: "127.0.0.1:0"}.Addr())
	assert.Equal(t, ":0", Config{Port: ":0"}.Addr())
}

func TestNewConfigFromEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PORT", "8081")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "512")
	t.Setenv("RATE_LIMIT_BURST", "4")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "250ms")
	t.Setenv("WRITE_TIMEOUT", "5")
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")

	cfg := NewConfigFromEnv()

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(512), cfg.MaxMessageSize)
	assert.Equal(t, 4, cfg.RateLimit.Burst)
	assert.Equal(t, 250*time.Millisecond, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
}

func TestNewConfigFromEnvIgnoresInvalidNumbers(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("MAX_MESSAGE_SIZE", "-1")
	t.Setenv("RATE_LIMIT_BURST", "lots")

	cfg := NewConfigFromEnv()

	assert.Zero(t, cfg.MaxMessageSize)
	assert.Zero(t, cfg.RateLimit.Burst)
}

func TestSetConfigSanitizes(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	SetConfig(&Config{
		Log:            LogConfig{Level: "loud", Format: "xml"},
		MaxMessageSize: -5,
		RateLimit:      RateLimitConfig{Burst: -1},
		AllowedOrigins: []string{"HTTP://Example.com", "bogus"},
	})
	cfg := CurrentConfig()

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)
	assert.Zero(t, cfg.MaxMessageSize)
	assert.Zero(t, cfg.RateLimit.Burst)
	assert.Equal(t, DefaultRefillInterval, cfg.RateLimit.RefillInterval)
	assert.Equal(t, DefaultWriteTimeout, cfg.WriteTimeout)
	assert.Equal(t, []string{"http://example.com"}, cfg.AllowedOrigins)
}

func TestSetConfigAppliesLogLevel(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	SetConfig(&Config{Log: LogConfig{Level: "warn"}})
	assert.Equal(t, slog.LevelWarn, logLevel.Level())

	SetConfig(nil)
	assert.Equal(t, slog.LevelInfo, logLevel.Level())
}

func TestCurrentConfigReturnsCopy(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	SetConfig(&Config{AllowedOrigins: []string{"https://a.example"}})
	cfg := CurrentConfig()
	cfg.AllowedOrigins[0] = "https://mutated.example"

	assert.Equal(t, []string{"https://a.example"}, CurrentConfig().AllowedOrigins)
}

func TestLoadConfigWithoutFile(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, *NewConfig(), *cfg)
}

func TestLoadConfigFromYAML(t *testing.T) {
	clearConfigEnv(t)
	path := writeConfigFile(t, t.TempDir(), `
port: "8080"
log:
  level: debug
  format: text
allowed_origins:
  - https://a.example
max_message_size: 1024
rate_limit:
  burst: 5
  refill_interval: 2s
write_timeout: 3s
shutdown_timeout: 4s
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, LogConfig{Level: "debug", Format: "text"}, cfg.Log)
	assert.Equal(t, []string{"https://a.example"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(1024), cfg.MaxMessageSize)
	assert.Equal(t, RateLimitConfig{Burst: 5, RefillInterval: 2 * time.Second}, cfg.RateLimit)
	assert.Equal(t, 3*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 4*time.Second, cfg.ShutdownTimeout)
}

func TestLoadConfigPartialYAMLKeepsDefaults(t *testing.T) {
	clearConfigEnv(t)
	path := writeConfigFile(t, t.TempDir(), "max_message_size: 64\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, int64(64), cfg.MaxMessageSize)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultWriteTimeout, cfg.WriteTimeout)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	clearConfigEnv(t)
	path := writeConfigFile(t, t.TempDir(), "port: \"8080\"\nlog:\n  level: warn\n")
	t.Setenv("PORT", "9090")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfigErrors(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()

	tests := []struct {
		name string
		body string
	}{
		{"invalid yaml", "port: [unterminated\n"},
		{"wrong type", "max_message_size: lots\n"},
		{"non-numeric port", "port: abc\n"},
		{"port out of range", "port: \"70000\"\n"},
		{"unknown level", "log:\n  level: loud\n"},
		{"unknown format", "log:\n  format: xml\n"},
		{"negative size", "max_message_size: -1\n"},
		{"negative burst", "rate_limit:\n  burst: -3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, dir, tt.body)
			_, err := LoadConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "server config:")
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(dir, "absent.yaml"))
		require.Error(t, err)
	})
}

func TestReloadConfig(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	SetConfig(&Config{Port: "3000", Log: LogConfig{Level: "info"}})

	t.Run("applies changes but keeps the port", func(t *testing.T) {
		path := writeConfigFile(t, dir, "port: \"4000\"\nrate_limit:\n  burst: 7\nallowed_origins: [\"https://new.example\"]\n")
		reloadConfig(path)

		cfg := CurrentConfig()
		assert.Equal(t, "3000", cfg.Port)
		assert.Equal(t, 7, cfg.RateLimit.Burst)
		assert.Equal(t, []string{"https://new.example"}, cfg.AllowedOrigins)
	})

	t.Run("invalid file keeps previous config", func(t *testing.T) {
		path := writeConfigFile(t, dir, "rate_limit: [\n")
		reloadConfig(path)

		assert.Equal(t, 7, CurrentConfig().RateLimit.Burst)
	})
}

func TestWatchConfig(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "log:\n  level: info\n")
	SetConfig(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- WatchConfig(ctx, path) }()

	// The watcher may not be registered yet, so keep rewriting until a reload lands.
	testhelpers.WaitFor(t, "config reload", func() bool {
		if err := os.WriteFile(path, []byte("log:\n  level: debug\nmax_message_size: 99\n"), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
		return CurrentConfig().MaxMessageSize == 99
	})

	assert.Equal(t, "debug", CurrentConfig().Log.Level)
	assert.Equal(t, slog.LevelDebug, logLevel.Level())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(testhelpers.DefaultTimeout):
		t.Fatal("WatchConfig did not stop after cancel")
	}
}

func TestWatchConfigMissingFile(t *testing.T) {
	err := WatchConfig(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
