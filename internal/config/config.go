// Package config resolves the envgod client configuration from explicit
// overrides, environment variables, and an optional YAML file.
package config

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rusamer/envgod/internal/environ"
)

// Environment variables read as configuration defaults.
const (
	EnvAPIURL      = "ENVGOD_API_URL"
	EnvRuntimeKey  = "ENVGOD_RUNTIME_KEY"
	EnvOrg         = "ENVGOD_ORG"
	EnvProject     = "ENVGOD_PROJECT"
	EnvEnvironment = "ENVGOD_ENV"
	EnvService     = "ENVGOD_SERVICE"
	EnvTimeoutMS   = "ENVGOD_TIMEOUT_MS"
	EnvConfigFile  = "ENVGOD_CONFIG"
)

// DefaultTimeout bounds each control plane request.
const DefaultTimeout = 5 * time.Second

// keyPrefixLen is how much of the runtime key goes into a fingerprint.
const keyPrefixLen = 8

// fingerprintSep joins fingerprint and store-key components.
const fingerprintSep = "|"

// Config is a resolved, validated client configuration. Treat it as
// immutable once returned from Resolve.
type Config struct {
	APIURL string

	// RuntimeKey is the explicit credential, if any. It may be empty when
	// the key is resolved later, or a secret reference such as op://...
	RuntimeKey string

	Org         string // optional
	Project     string
	Environment string
	Service     string

	Timeout time.Duration
}

// Overrides are caller-supplied values. Non-zero fields win over every
// other source.
type Overrides struct {
	APIURL      string
	RuntimeKey  string
	Org         string
	Project     string
	Environment string
	Service     string
	Timeout     time.Duration

	// ConfigFile overrides ENVGOD_CONFIG and the default file location.
	ConfigFile string
}

type options struct {
	keyResolvable bool
	keyOptional   bool
	homeDir       string
}

// Option adjusts how Resolve validates and locates files.
type Option func(*options)

// WithKeyResolvable tells Resolve that a missing runtime key can still be
// found later in a secret store such as the OS keychain. The store is
// searched by StoreKey, which needs the API URL, so without one the key is
// still reported missing.
func WithKeyResolvable(ok bool) Option {
	return func(o *options) { o.keyResolvable = ok }
}

// WithKeyOptional skips the runtime key check entirely, for callers that
// only need the scope (e.g. storing a key).
func WithKeyOptional() Option {
	return func(o *options) { o.keyOptional = true }
}

// WithHomeDir sets the directory used to locate the default config file.
func WithHomeDir(dir string) Option {
	return func(o *options) { o.homeDir = dir }
}

// Resolve builds a Config. Precedence per field: override, then
// environment variable, then config file, then built-in default.
// All missing mandatory fields are reported together.
func Resolve(o Overrides, env environ.Source, opts ...Option) (*Config, error) {
	var ro options
	for _, opt := range opts {
		opt(&ro)
	}
	if env == nil {
		env = environ.OS{}
	}

	file, err := loadFile(o.ConfigFile, env, ro.homeDir)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIURL:      strings.TrimRight(pick(o.APIURL, lookup(env, EnvAPIURL), file.APIURL), "/"),
		RuntimeKey:  pick(o.RuntimeKey, lookup(env, EnvRuntimeKey), file.RuntimeKey),
		Org:         pick(o.Org, lookup(env, EnvOrg), file.Org),
		Project:     pick(o.Project, lookup(env, EnvProject), file.Project),
		Environment: pick(o.Environment, lookup(env, EnvEnvironment), file.Environment),
		Service:     pick(o.Service, lookup(env, EnvService), file.Service),
		Timeout:     DefaultTimeout,
	}

	var invalid []error
	switch {
	case o.Timeout > 0:
		cfg.Timeout = o.Timeout
	case lookup(env, EnvTimeoutMS) != "":
		raw := lookup(env, EnvTimeoutMS)
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			invalid = append(invalid, &InvalidFieldError{Field: FieldTimeout, Value: raw, Reason: "must be a positive integer of milliseconds"})
		} else {
			cfg.Timeout = time.Duration(ms) * time.Millisecond
		}
	case file.TimeoutMS > 0:
		cfg.Timeout = time.Duration(file.TimeoutMS) * time.Millisecond
	}

	if cfg.APIURL != "" {
		if u, err := url.Parse(cfg.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			invalid = append(invalid, &InvalidFieldError{Field: FieldAPIURL, Value: cfg.APIURL, Reason: "must be an absolute http(s) URL"})
		}
	}

	if err := cfg.validate(ro, invalid); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate(ro options, invalid []error) error {
	var missing []Field
	if c.APIURL == "" {
		missing = append(missing, FieldAPIURL)
	}
	keyResolvable := ro.keyOptional || (ro.keyResolvable && c.APIURL != "")
	if c.RuntimeKey == "" && !keyResolvable {
		missing = append(missing, FieldRuntimeKey)
	}
	if c.Project == "" {
		missing = append(missing, FieldProject)
	}
	if c.Environment == "" {
		missing = append(missing, FieldEnvironment)
	}
	if c.Service == "" {
		missing = append(missing, FieldService)
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, &MissingFieldsError{Fields: missing})
	}
	errs = append(errs, invalid...)
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}

// Fingerprint identifies the authentication scope of c. Two configs that
// authenticate against the same backend scope fingerprint identically.
// Only a short prefix of the runtime key is included. A key found later in
// a secret store is not part of the fingerprint, so rotating a stored key
// takes effect when the cached token expires or on Reset.
func (c *Config) Fingerprint() string {
	return strings.Join([]string{
		c.APIURL,
		keyPrefix(c.RuntimeKey),
		c.Org,
		c.Project,
		c.Environment,
		c.Service,
	}, fingerprintSep)
}

// StoreKey is the composite key used to look up a runtime key in an
// external secret store. It never includes the key itself.
func (c *Config) StoreKey() string {
	return strings.Join([]string{
		c.APIURL,
		c.Org,
		c.Project,
		c.Environment,
		c.Service,
	}, fingerprintSep)
}

// keyPrefix never returns the whole key, however short.
func keyPrefix(key string) string {
	return key[:min(keyPrefixLen, len(key)/2)]
}

func lookup(env environ.Source, key string) string {
	v, _ := env.Lookup(key)
	return strings.TrimSpace(v)
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
