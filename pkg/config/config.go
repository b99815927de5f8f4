// Package config resolves the connection settings used by every d365odata command.
//
// Precedence, lowest to highest:
//
//  1. built-in defaults
//  2. the active (or explicitly named) configuration in the config store
//  3. environment variables with the DYNAMICS_ prefix, including those read from .env
//  4. command-line flags that were explicitly set
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"d365odata/pkg/dynamics"
)

const (
	EnvPrefix       = "DYNAMICS_"
	DefaultFileName = ".d365odata.yaml"
	DefaultDotEnv   = ".env"
)

// envAliases keeps the variable names used by earlier integrations working.
var envAliases = map[string]string{
	"api_base_url": "url",
	"tenant_id":    "tenant",
}

// flagKeys maps connection flags onto config keys. Other flags are ignored by Load.
var flagKeys = map[string]string{
	"tenant":        "tenant",
	"url":           "url",
	"system-url":    "system_url",
	"client-id":     "client_id",
	"client-secret": "client_secret",
	"token":         "token",
	"authority":     "authority",
	"timeout":       "timeout",
	"verbose":       "verbose",
}

// Config holds the resolved settings for one invocation.
type Config struct {
	Tenant       string        `koanf:"tenant"`
	URL          string        `koanf:"url"`
	SystemURL    string        `koanf:"system_url"`
	ClientID     string        `koanf:"client_id"`
	ClientSecret string        `koanf:"client_secret"`
	Token        string        `koanf:"token"`
	Authority    string        `koanf:"authority"`
	Timeout      time.Duration `koanf:"timeout"`
	Verbose      bool          `koanf:"verbose"`

	// ConfigName is the stored configuration that was applied, if any.
	ConfigName string `koanf:"-"`
}

// Connection converts the config into the dynamics connection context.
func (c *Config) Connection() dynamics.ConnectionContext {
	return dynamics.ConnectionContext{
		TenantID:     c.Tenant,
		BaseURL:      c.URL,
		SystemURL:    c.SystemURL,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Token:        c.Token,
	}
}

// LoadOptions tells Load where to look.
type LoadOptions struct {
	// StorePath is the config store file. Empty means DefaultPath().
	StorePath string
	// DotEnv is the .env file to read. Empty means DefaultDotEnv; a missing file is not an error.
	DotEnv string
	// ConfigName selects a stored configuration instead of the active one.
	ConfigName string
	Flags      *pflag.FlagSet
}

// DefaultPath is $HOME/.d365odata.yaml, or the file name alone if no home directory is known.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return DefaultFileName
	}
	return home + string(os.PathSeparator) + DefaultFileName
}

// Load resolves the configuration for one invocation.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"authority": dynamics.DefaultAuthority,
		"timeout":   dynamics.DefaultTimeout,
		"verbose":   false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Stored configuration
	storePath := opts.StorePath
	if storePath == "" {
		storePath = DefaultPath()
	}
	name, err := mergeStored(k, storePath, opts.ConfigName)
	if err != nil {
		return nil, err
	}

	// 3. Environment, .env first so real variables still win
	dotenv := opts.DotEnv
	if dotenv == "" {
		dotenv = DefaultDotEnv
	}
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading %s file: %w", dotenv, err)
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		return envKey(key), value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ConfigName = name
	return &cfg, nil
}

// mergeStored merges the selected stored configuration into k and returns its name.
func mergeStored(k *koanf.Koanf, path, name string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if name != "" {
				return "", fmt.Errorf("no configuration named %q: %s does not exist", name, path)
			}
			return "", nil
		}
		return "", fmt.Errorf("error reading config file %s: %w", path, err)
	}

	stored := koanf.New(".")
	if err := stored.Load(file.Provider(path), yaml.Parser()); err != nil {
		return "", fmt.Errorf("error reading config file %s: %w", path, err)
	}

	if name == "" {
		name = stored.String("active")
		if name == "" {
			return "", nil
		}
	}
	prefix := "configs." + name
	if !stored.Exists(prefix) {
		return "", fmt.Errorf("no configuration named %q in %s", name, path)
	}
	if err := k.Merge(stored.Cut(prefix)); err != nil {
		return "", fmt.Errorf("failed to apply configuration %q: %w", name, err)
	}
	return name, nil
}

// envKey turns DYNAMICS_CLIENT_ID into client_id. Unknown variables are dropped.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if alias, ok := envAliases[key]; ok {
		return alias
	}
	for _, known := range flagKeys {
		if key == known {
			return key
		}
	}
	return ""
}
