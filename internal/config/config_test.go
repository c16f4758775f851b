package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at a temp dir and clears every TODOTREE_* variable.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{EnvConfig, EnvDB, EnvListen, EnvServer, EnvLogLevel, EnvLogUseCases} {
		t.Setenv(k, "")
	}
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".todotree", "todotree.db"), cfg.DBPath)
	assert.Equal(t, "127.0.0.1:7878", cfg.Listen)
	assert.False(t, cfg.Remote())
	assert.False(t, cfg.LogUseCases)
}

func TestLoad_FileThenEnv(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, ".todotree", "config.yaml"), `
db: /data/todos.db
listen: ":9000"
log_level: debug
log_use_cases: true
`)
	t.Setenv(EnvListen, ":9100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/data/todos.db", cfg.DBPath)
	assert.Equal(t, ":9100", cfg.Listen)
	assert.True(t, cfg.LogUseCases)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	home := isolate(t)
	t.Setenv(EnvConfig, filepath.Join(home, "nope.yaml"))

	_, err := Load()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_ExplicitFile(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "elsewhere.yaml")
	writeFile(t, path, "server: http://hub:7878\n")
	t.Setenv(EnvConfig, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Remote())
	assert.Equal(t, "http://hub:7878", cfg.Server)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	isolate(t)
	t.Setenv(EnvLogUseCases, "sometimes")
	_, err := Load()
	assert.Error(t, err)

	isolate(t)
	t.Setenv(EnvLogLevel, "loud")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, ".todotree", "config.yaml"), "db: [unterminated\n")

	_, err := Load()
	assert.Error(t, err)
}

func TestBindFlags_OverrideOnlyWhenSet(t *testing.T) {
	cfg := Config{DBPath: "/from/file.db", Listen: ":1", LogLevel: "info"}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, &cfg)

	require.NoError(t, fs.Parse([]string{"--listen", ":2", "--log-use-cases"}))
	assert.Equal(t, "/from/file.db", cfg.DBPath)
	assert.Equal(t, ":2", cfg.Listen)
	assert.True(t, cfg.LogUseCases)
}

func TestConfig_Marshal(t *testing.T) {
	out, err := Config{DBPath: "x.db", Listen: ":1", LogLevel: "warn"}.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(out), "db: x.db")
	assert.Contains(t, string(out), "log_level: warn")
}
