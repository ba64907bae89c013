// Package credential resolves the runtime key used to authenticate the
// token exchange.
//
// Resolution order:
//  1. the explicit key in the resolved configuration
//  2. the ENVGOD_RUNTIME_KEY environment variable
//  3. a best-effort lookup in an optional Store (e.g. the OS keychain),
//     keyed by the configuration's StoreKey
//
// A value from any source may be a secret reference (op://, awssm://,
// keyring://), which is dereferenced before use.
package credential

import (
	"context"
	"fmt"

	"github.com/rusamer/envgod/internal/config"
	"github.com/rusamer/envgod/internal/environ"
	"github.com/rusamer/envgod/internal/log"
	"github.com/rusamer/envgod/internal/secrets"
)

// Source records where a runtime key came from.
type Source string

const (
	SourceExplicit    Source = "explicit"
	SourceEnvironment Source = "environment"
	SourceStore       Source = "store"
)

// Store is an optional external secret store. Lookup errors are never
// fatal to resolution.
type Store interface {
	Name() string
	Lookup(ctx context.Context, key string) (string, error)
}

// Resolver finds the runtime key for a configuration.
type Resolver struct {
	Env   environ.Source // nil uses the process environment
	Store Store          // optional
}

// Resolve returns the runtime key and where it came from.
func (r *Resolver) Resolve(ctx context.Context, cfg *config.Config) (string, Source, error) {
	key, source := r.find(ctx, cfg)
	if key == "" {
		return "", "", &NotFoundError{StoreKey: cfg.StoreKey(), StoreName: r.storeName()}
	}

	if secrets.IsReference(key) {
		resolved, err := secrets.Resolve(ctx, key)
		if err != nil {
			return "", "", fmt.Errorf("resolving runtime key reference from %s: %w", source, err)
		}
		if resolved == "" {
			return "", "", fmt.Errorf("runtime key reference from %s resolved to an empty value", source)
		}
		key = resolved
	}
	return key, source, nil
}

func (r *Resolver) find(ctx context.Context, cfg *config.Config) (string, Source) {
	if cfg.RuntimeKey != "" {
		return cfg.RuntimeKey, SourceExplicit
	}

	env := r.Env
	if env == nil {
		env = environ.OS{}
	}
	if v, ok := env.Lookup(config.EnvRuntimeKey); ok && v != "" {
		return v, SourceEnvironment
	}

	if r.Store == nil {
		return "", ""
	}
	v, err := r.Store.Lookup(ctx, cfg.StoreKey())
	if err != nil {
		log.Debug("runtime key store lookup failed", "store", r.Store.Name(), "error", err)
		return "", ""
	}
	return v, SourceStore
}

func (r *Resolver) storeName() string {
	if r.Store == nil {
		return ""
	}
	return r.Store.Name()
}
