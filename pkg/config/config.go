// Package config loads stencil's layered configuration: built-in
// defaults, then a TOML or YAML config file, then STENCIL_-prefixed
// environment variables. Every layer merge re-validates the template
// settings it may have touched.
package config

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/arthur-debert/stencil/pkg/errors"
	"github.com/arthur-debert/stencil/pkg/logging"
	"github.com/arthur-debert/stencil/pkg/paths"
	"github.com/arthur-debert/stencil/pkg/types"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// STENCIL_SOURCE_DIR.
const EnvPrefix = "STENCIL_"

// Config is the validated result of loading all configuration layers.
type Config struct {
	// SourceDir is the directory discovery walks for deployable files.
	SourceDir string
	// KnownFilesPath is where the known-files store persists.
	KnownFilesPath string
	// Settings are the template syntax defaults before any header runs.
	Settings types.Settings
	// Bindings is the [bindings] table: the base name-value layer every
	// rendering starts from.
	Bindings types.Bindings
}

// DefaultLocations returns the config file paths tried in order when no
// explicit path is given.
func DefaultLocations() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(xdg.ConfigHome, "stencil", "config.toml"),
		filepath.Join(xdg.ConfigHome, "stencil", "config.yaml"),
		filepath.Join(home, ".stencil.toml"),
	}
}

// Load reads the configuration. An explicit path that cannot be loaded
// is fatal; with no explicit path the default locations are tried and a
// run without any config file falls back to defaults plus environment.
func Load(path string) (*Config, error) {
	logger := logging.GetLogger("config")

	k := koanf.New(".")

	defaults := map[string]interface{}{
		"source_dir":            "",
		"known_files":           filepath.Join(xdg.DataHome, "stencil", "known-files.json"),
		"statement_prefix":      types.DefaultStatementPrefix,
		"expression_delimiters": []string{types.DefaultExprOpen, types.DefaultExprClose},
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "could not load defaults")
	}

	if path != "" {
		if err := loadFile(k, path); err != nil {
			return nil, err
		}
	} else {
		for _, candidate := range DefaultLocations() {
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			if err := loadFile(k, candidate); err != nil {
				return nil, err
			}
			logger.Debug().Str("path", candidate).Msg("config file loaded")
			break
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "could not load environment overrides")
	}

	return fromKoanf(k)
}

func loadFile(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return errors.Wrapf(err, errors.ErrConfigLoad, "could not load config file %s", path)
	}
	return nil
}

// fromKoanf validates the merged layers into a typed Config. This is the
// outermost layer-merge boundary; header scripts revalidate later.
func fromKoanf(k *koanf.Koanf) (*Config, error) {
	bindings := types.Bindings{
		types.KeyStatementPrefix:      k.String("statement_prefix"),
		types.KeyExpressionDelimiters: k.Strings("expression_delimiters"),
	}

	for key, value := range k.Cut("bindings").All() {
		bindings[key] = value
	}

	// Environment facts every rendering can rely on.
	if u, err := user.Current(); err == nil {
		bindings["user"] = u.Username
	}
	if host, err := os.Hostname(); err == nil {
		bindings["host"] = host
	}

	settings, err := types.SettingsFromBindings(bindings)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "invalid template settings")
	}

	return &Config{
		SourceDir:      paths.ExpandHome(k.String("source_dir")),
		KnownFilesPath: paths.ExpandHome(k.String("known_files")),
		Settings:       settings,
		Bindings:       bindings,
	}, nil
}
