// Package config provides configuration loading and discovery for livepush.
//
// Configuration is loaded from multiple sources with the following priority
// (highest to lowest):
//  1. CLI flags (passed in as an overrides map)
//  2. Environment variables (LIVEPUSH_* prefix)
//  3. Config file (closest livepush.toml or .livepush.toml)
//  4. Built-in defaults
//
// Config file discovery walks up the filesystem from the build context
// root until a config file is found. The closest config wins (no merging).
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigFileNames defines the config file names to search for, in priority order.
var ConfigFileNames = []string{"livepush.toml", ".livepush.toml"}

// EnvPrefix is the prefix for environment variables.
const EnvPrefix = "LIVEPUSH_"

// Config represents the complete livepush configuration.
type Config struct {
	// Runtime names the containers and images a run operates against.
	Runtime RuntimeConfig `koanf:"runtime"`

	// BuildArgs are passed as K=V environment entries to every exec, per
	// setBuildArguments.
	BuildArgs map[string]string `koanf:"build-args"`

	// Restart controls the terminal-container restart behavior.
	Restart RestartConfig `koanf:"restart"`

	// ConfigFile is the path to the config file that was loaded (if any).
	// This is metadata, not loaded from config.
	ConfigFile string `koanf:"-"`
}

// RuntimeConfig names the containers and images a run operates against.
type RuntimeConfig struct {
	// ContextRoot is the build-context root on the host.
	ContextRoot string `koanf:"context-root"`

	// TerminalContainerID is the identifier of the user's already-running
	// container, adopted as the final stage's container.
	TerminalContainerID string `koanf:"terminal-container-id"`

	// StageImages lists one pre-built image identifier per non-terminal
	// stage, in stage order, used to start helper containers.
	StageImages []string `koanf:"stage-images"`
}

// RestartConfig controls container restart behavior.
type RestartConfig struct {
	// SkipContainerRestart suppresses the terminal-container restart that
	// would otherwise follow a run applying a restart=true group.
	// Default: false.
	SkipContainerRestart bool `koanf:"skip-container-restart"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		BuildArgs: map[string]string{},
		Restart: RestartConfig{
			SkipContainerRestart: false,
		},
	}
}

// Load loads configuration for a build context root, discovering the
// closest config file and applying environment variable overrides.
func Load(contextRoot string) (*Config, error) {
	return LoadWithOverrides(contextRoot, nil)
}

// LoadFromFile loads configuration from a specific config file path.
// Unlike Load, it does not perform config discovery.
func LoadFromFile(configPath string, overrides map[string]any) (*Config, error) {
	return loadWithConfigPathAndOverrides(configPath, overrides)
}

// LoadWithOverrides loads configuration for a build context root with CLI
// flag values applied as the highest-precedence source.
//
// Overrides use the same nested shape as the TOML config file, e.g.:
//
//	overrides := map[string]any{
//	  "restart": map[string]any{"skip-container-restart": true},
//	}
func LoadWithOverrides(contextRoot string, overrides map[string]any) (*Config, error) {
	return loadWithConfigPathAndOverrides(Discover(contextRoot), overrides)
}

func loadWithConfigPathAndOverrides(configPath string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults.
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, err
	}

	// 2. Load config file if one was found.
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, err
		}
	}

	// 3. Load environment variables (LIVEPUSH_* prefix).
	// LIVEPUSH_RESTART_SKIP_CONTAINER_RESTART -> restart.skip-container-restart
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKeyTransform,
	}), nil); err != nil {
		return nil, err
	}

	// 4. Apply CLI-flag overrides, highest precedence.
	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, ""), nil); err != nil {
			return nil, err
		}
	}

	// 5. Unmarshal into config struct.
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	cfg.ConfigFile = configPath
	return cfg, nil
}

// knownHyphenatedKeys maps dot-separated environment key fragments to their
// hyphenated TOML equivalents. Add new entries here when adding config
// fields with hyphenated names.
var knownHyphenatedKeys = map[string]string{
	"context.root":           "context-root",
	"terminal.container.id":  "terminal-container-id",
	"stage.images":           "stage-images",
	"build.args":             "build-args",
	"skip.container.restart": "skip-container-restart",
}

// envKeyTransform converts environment variable names to config keys.
// LIVEPUSH_RUNTIME_TERMINAL_CONTAINER_ID -> runtime.terminal-container-id
func envKeyTransform(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", ".")
	for pattern, replacement := range knownHyphenatedKeys {
		s = strings.ReplaceAll(s, pattern, replacement)
	}
	return s
}

// Discover finds the closest config file for a build context root.
// It walks up the directory tree from the root, checking for config files
// at each level. Returns empty string if no config file is found.
func Discover(contextRoot string) string {
	absPath, err := filepath.Abs(contextRoot)
	if err != nil {
		return ""
	}

	dir := absPath
	if info, statErr := os.Stat(absPath); statErr == nil && !info.IsDir() {
		dir = filepath.Dir(absPath)
	}

	for {
		for _, name := range ConfigFileNames {
			configPath := filepath.Join(dir, name)
			if fileExists(configPath) {
				return configPath
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
