package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bastiangx/pickserve/pkg/pattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfigCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")

	cfg, err := InitConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.FileExists(t, path)

	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
max_limit = 10
check_duplicates = false

[engine]
history_size = 5
debounce_ms = 30
case_sensitive = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Server.MaxLimit)
	assert.False(t, cfg.Server.CheckDuplicates)
	assert.Equal(t, 256, cfg.Server.MaxQuery, "unset keys keep defaults")
	assert.Equal(t, 5, cfg.Engine.HistorySize)
	assert.Equal(t, 30*time.Millisecond, cfg.Debounce())
	assert.True(t, cfg.Engine.CamelCase)
}

func TestLoadConfigPartialRecovery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
max_limit = "lots"
max_query = 99

[dict]
max_words = 1000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.MaxLimit, cfg.Server.MaxLimit)
	assert.Equal(t, 99, cfg.Server.MaxQuery)
	assert.Equal(t, 1000, cfg.Dict.MaxWords)
}

func TestLoadConfigGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[[not toml"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestPatternOptions(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, pattern.DefaultOptions(), cfg.PatternOptions())

	cfg.Engine.Substring = false
	cfg.Engine.Wildcard = false
	cfg.Engine.CaseSensitive = true
	opts := cfg.PatternOptions()
	assert.Equal(t, pattern.ModeExact|pattern.ModeCamelCase, opts.Modes)
	assert.True(t, opts.CaseSensitive)
}

func TestLoadConfigWithPriorityCustomPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte("[cli]\ndefault_limit = 7\n"), 0o644))

	cfg, used, err := LoadConfigWithPriority(path)
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, 7, cfg.CLI.DefaultLimit)
}

func TestRebuildConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[cli]\ndefault_limit = 7\n"), 0o644))

	written, err := RebuildConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, written)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
