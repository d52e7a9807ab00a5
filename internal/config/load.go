package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
)

// Decode parses a TOML config file onto the defaults. Unknown keys are
// fatal with "did you mean?" suggestions. The result is not validated.
func Decode(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, "config", fmt.Errorf("parsing config file %s: %w", path, err))
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, fault.Wrap(fault.Configuration, "config", err)
	}

	return cfg, nil
}

// DecodeOrDefault decodes path if it exists, otherwise returns the
// defaults. An empty path also yields the defaults.
func DecodeOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Decode(path)
}

// Load decodes path and validates the result, without environment or CLI
// overrides.
func Load(path string) (*Config, error) {
	cfg, err := Decode(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ResolvePath picks the config file path: CLI, then environment, then the
// platform default.
func ResolvePath(cli CLIOverrides, lookup LookupFunc) string {
	if cli.ConfigPath != "" {
		return cli.ConfigPath
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookup(EnvConfig); ok && v != "" {
		return v
	}

	return DefaultConfigPath()
}

// Resolve applies the override chain: defaults, config file, environment,
// CLI flags. The result is not validated so that commands such as
// "config show" work on incomplete configurations; callers run Validate.
func Resolve(cli CLIOverrides, lookup LookupFunc) (*Config, string, error) {
	path := ResolvePath(cli, lookup)

	cfg, err := DecodeOrDefault(path)
	if err != nil {
		return nil, path, err
	}

	if err := ApplyEnv(cfg, lookup); err != nil {
		return nil, path, fault.Wrap(fault.Configuration, "config", err)
	}

	applyCLI(cfg, cli)

	return cfg, path, nil
}

func applyCLI(cfg *Config, cli CLIOverrides) {
	if cli.Mode != nil {
		cfg.Server.Mode = *cli.Mode
	}

	if cli.Port != nil {
		cfg.Server.Port = *cli.Port
	}

	if cli.APIURL != nil {
		cfg.Proxy.APIURL = *cli.APIURL
	}

	if cli.APIToken != nil {
		cfg.Proxy.APIToken = *cli.APIToken
	}

	if cli.CertPath != nil {
		cfg.SharePoint.CertPath = *cli.CertPath
	}
}
