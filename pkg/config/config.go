/*
Package config manages TOML config for PickServe services.
*/
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bastiangx/pickserve/internal/utils"
	"github.com/bastiangx/pickserve/pkg/pattern"
	"github.com/charmbracelet/log"
)

// Config holds the entire config structure
type Config struct {
	Server ServerConfig `toml:"server"`
	Engine EngineConfig `toml:"engine"`
	Dict   DictConfig   `toml:"dict"`
	CLI    CliConfig    `toml:"cli"`
}

// ServerConfig has server related options.
type ServerConfig struct {
	MaxLimit        int  `toml:"max_limit"`
	MaxQuery        int  `toml:"max_query"`
	CheckDuplicates bool `toml:"check_duplicates"`
}

// EngineConfig controls query compilation and the search worker.
type EngineConfig struct {
	HistorySize   int  `toml:"history_size"`
	DebounceMS    int  `toml:"debounce_ms"`
	CaseSensitive bool `toml:"case_sensitive"`
	CamelCase     bool `toml:"camel_case"`
	Wildcard      bool `toml:"wildcard"`
	Substring     bool `toml:"substring"`
}

// DictConfig holds dictionary options.
type DictConfig struct {
	MaxWords  int `toml:"max_words"`
	ChunkSize int `toml:"chunk_size"`
}

// CliConfig holds cli interface options.
type CliConfig struct {
	DefaultLimit int `toml:"default_limit"`
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/
// 2. ~/Library/Application Support/ (macOS)
// 3. Current executable dir
// 4. builtin defaults
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		execDir, execErr := utils.GetExecutableDir()
		if execErr != nil {
			return "", execErr
		}
		return execDir, nil
	}
	primaryPath := filepath.Join(homeDir, ".config", "pickserve")
	if result := utils.CheckDirStatus(primaryPath); result.Writable {
		return primaryPath, nil
	}
	// Not conventional, fallback from ~/.config if not writable
	macOSPath := filepath.Join(homeDir, "Library", "Application Support", "pickserve")
	if result := utils.CheckDirStatus(macOSPath); result.Writable {
		return macOSPath, nil
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from -config flag
// 2. Default path: [UserConfigDir]/pickserve/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err := LoadConfig(customConfigPath)
			if err != nil {
				log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
			} else {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}

	config, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			MaxLimit:        64,
			MaxQuery:        256,
			CheckDuplicates: true,
		},
		Engine: EngineConfig{
			HistorySize:   60,
			DebounceMS:    0,
			CaseSensitive: false,
			CamelCase:     true,
			Wildcard:      true,
			Substring:     true,
		},
		Dict: DictConfig{
			MaxWords:  50000,
			ChunkSize: 10000,
		},
		CLI: CliConfig{
			DefaultLimit: 24,
		},
	}
}

// PatternOptions maps the engine section onto query compilation options.
func (c *Config) PatternOptions() pattern.Options {
	modes := pattern.ModeExact
	if c.Engine.Wildcard {
		modes |= pattern.ModeWildcard
	}
	if c.Engine.CamelCase {
		modes |= pattern.ModeCamelCase
	}
	if c.Engine.Substring {
		modes |= pattern.ModeSubstring
	}
	return pattern.Options{Modes: modes, CaseSensitive: c.Engine.CaseSensitive}
}

// Debounce returns the configured search debounce delay.
func (c *Config) Debounce() time.Duration {
	if c.Engine.DebounceMS <= 0 {
		return 0
	}
	return time.Duration(c.Engine.DebounceMS) * time.Millisecond
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config from %s: %v. Using built-in defaults...", configPath, err)
		return DefaultConfig(), nil
	}
	return config, nil
}

// LoadConfig loads from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		return tryPartialParse(configPath)
	}
	return config, nil
}

// tryPartialParse keeps every value of the right type and defaults the rest
func tryPartialParse(configPath string) (*Config, error) {
	config := DefaultConfig()

	tempConfig, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return config, nil
	}

	if serverSection, ok := utils.ExtractSection(tempConfig, "server"); ok {
		extractServerConfig(serverSection, &config.Server)
	}
	if engineSection, ok := utils.ExtractSection(tempConfig, "engine"); ok {
		extractEngineConfig(engineSection, &config.Engine)
	}
	if dictSection, ok := utils.ExtractSection(tempConfig, "dict"); ok {
		extractDictConfig(dictSection, &config.Dict)
	}
	if cliSection, ok := utils.ExtractSection(tempConfig, "cli"); ok {
		extractCliConfig(cliSection, &config.CLI)
	}
	return config, nil
}

// extractServerConfig extracts server configuration from a map
func extractServerConfig(data map[string]any, server *ServerConfig) {
	if val, ok := utils.ExtractInt64(data, "max_limit"); ok {
		server.MaxLimit = val
	}
	if val, ok := utils.ExtractInt64(data, "max_query"); ok {
		server.MaxQuery = val
	}
	if val, ok := utils.ExtractBool(data, "check_duplicates"); ok {
		server.CheckDuplicates = val
	}
}

func extractEngineConfig(data map[string]any, engine *EngineConfig) {
	if val, ok := utils.ExtractInt64(data, "history_size"); ok {
		engine.HistorySize = val
	}
	if val, ok := utils.ExtractInt64(data, "debounce_ms"); ok {
		engine.DebounceMS = val
	}
	if val, ok := utils.ExtractBool(data, "case_sensitive"); ok {
		engine.CaseSensitive = val
	}
	if val, ok := utils.ExtractBool(data, "camel_case"); ok {
		engine.CamelCase = val
	}
	if val, ok := utils.ExtractBool(data, "wildcard"); ok {
		engine.Wildcard = val
	}
	if val, ok := utils.ExtractBool(data, "substring"); ok {
		engine.Substring = val
	}
}

// extractDictConfig extracts dictionary configuration from a map
func extractDictConfig(data map[string]any, dict *DictConfig) {
	if val, ok := utils.ExtractInt64(data, "max_words"); ok {
		dict.MaxWords = val
	}
	if val, ok := utils.ExtractInt64(data, "chunk_size"); ok {
		dict.ChunkSize = val
	}
}

// extractCliConfig extracts CLI config from a map
func extractCliConfig(data map[string]any, cli *CliConfig) {
	if val, ok := utils.ExtractInt64(data, "default_limit"); ok {
		cli.DefaultLimit = val
	}
}

// RebuildConfigFile force creates a new config.toml at path, or at the
// default location when path is empty.
func RebuildConfigFile(path string) (string, error) {
	if path == "" {
		defaultPath, err := GetDefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return "", err
	}
	return path, utils.SaveTOMLFile(DefaultConfig(), path)
}

// GetActiveConfigPath returns the absolute path of loaded config file
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		return "builtin defaults"
	}
	return utils.GetAbsolutePath(configPath)
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}
