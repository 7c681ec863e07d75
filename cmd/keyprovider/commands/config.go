package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/keyprovider/internal/app"
)

// envPrefix is stripped from environment variables during config loading (e.g., KEYPROVIDER_LOCK__TIMEOUT → lock.timeout)
const envPrefix = "KEYPROVIDER_"

// configSource says where the configuration comes from.
type configSource struct {
	// path of an explicit --config file; a missing file is an error
	path string
	// fallback is loaded when path is empty, if it exists
	fallback string
	environ  func() []string
	flags    map[string]any
}

// loadConfig loads application configuration from various sources with precedence:
// config file → environment variables → CLI flags → defaults
func loadConfig(src configSource) (*app.Config, error) {
	k := koanf.New(".")

	// 1. Load from config file, the explicit one or the per-user one
	path := src.path
	if path == "" && src.fallback != "" {
		if _, err := os.Stat(src.fallback); err == nil {
			path = src.fallback
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("checking config file: %w", err)
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// 2. Load from environment variables
	if src.environ != nil {
		envProvider := env.Provider(".", env.Opt{
			Prefix: envPrefix,
			TransformFunc: func(key, value string) (string, any) {
				stripped := strings.TrimPrefix(key, envPrefix)
				return strings.ToLower(strings.ReplaceAll(stripped, "__", ".")), value
			},
			EnvironFunc: src.environ,
		})
		if err := k.Load(envProvider, nil); err != nil {
			return nil, fmt.Errorf("loading environment variables: %w", err)
		}
	}

	// 3. Load from CLI flags
	if len(src.flags) > 0 {
		if err := k.Load(confmap.Provider(src.flags, "."), nil); err != nil {
			return nil, fmt.Errorf("loading CLI flags: %w", err)
		}
	}

	config := &app.Config{}
	if err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// defaultConfigPath returns $XDG_CONFIG_HOME/keyprovider/config.toml, or the
// platform equivalent. Empty when no config directory is known.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "keyprovider", "config.toml")
}

// configFlagValues transforms the set configuration flags into config keys.
// Only flags listed in configFlags take part, so command options such
// as --scheme-key never reach the configuration.
// Examples: --store--static-dir → store.static_dir, --log-level → log_level
func configFlagValues(cmd *cli.Command) map[string]any {
	values := make(map[string]any)

	// FlagNames() includes flags from parent commands (via lineage)
	for _, name := range cmd.FlagNames() {
		if !configFlags[name] || !cmd.IsSet(name) {
			continue
		}

		if value := cmd.Value(name); value != nil {
			key := strings.ReplaceAll(name, "--", ".")
			key = strings.ReplaceAll(key, "-", "_")
			values[key] = value
		}
	}

	return values
}
