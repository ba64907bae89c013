package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rusamer/envgod/internal/environ"
)

// File is the on-disk configuration at ~/.envgod/config.yaml. It holds
// non-secret defaults; runtime_key is meant for secret references such as
// op://vault/item/field rather than literal keys.
type File struct {
	APIURL      string `yaml:"api_url"`
	RuntimeKey  string `yaml:"runtime_key"`
	Org         string `yaml:"org"`
	Project     string `yaml:"project"`
	Environment string `yaml:"environment"`
	Service     string `yaml:"service"`
	TimeoutMS   int    `yaml:"timeout_ms"`
}

// Dir returns the path to ~/.envgod, relative to home when given.
func Dir(home string) string {
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", ".envgod")
		}
	}
	return filepath.Join(home, ".envgod")
}

// loadFile reads the config file. An explicitly named file must exist;
// the default location is optional.
func loadFile(explicit string, env environ.Source, home string) (File, error) {
	var f File

	path := explicit
	if path == "" {
		path = lookup(env, EnvConfigFile)
	}
	required := path != ""
	if path == "" {
		path = filepath.Join(Dir(home), "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return f, nil
		}
		return f, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return f, nil
}
