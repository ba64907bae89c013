// Package loader orchestrates a load: resolve configuration, reuse or
// refresh the cached token, reuse or fetch the bundle, retry once on an
// unauthorized fetch, and apply the bundle to the environment sink.
//
// All loads in a Loader pass through one single-flight gate regardless of
// configuration, so at most one exchange or fetch is in flight at a time
// and concurrent callers share one outcome. Two different configurations
// therefore cannot load in parallel within one Loader.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/rusamer/envgod/internal/cache"
	"github.com/rusamer/envgod/internal/config"
	"github.com/rusamer/envgod/internal/controlplane"
	"github.com/rusamer/envgod/internal/credential"
	"github.com/rusamer/envgod/internal/environ"
	"github.com/rusamer/envgod/internal/id"
	"github.com/rusamer/envgod/internal/log"
	"github.com/rusamer/envgod/internal/metrics"
)

// TokenSkew is subtracted from a token's expiry when deciding whether it
// can still be used, so it does not expire mid-request.
const TokenSkew = 30 * time.Second

// flightKey is the single process-wide single-flight key.
const flightKey = "load"

// ErrBrowserEnvironment is returned when built for a browser-like host.
// The runtime key must never reach client-side code.
var ErrBrowserEnvironment = errors.New("envgod: refusing to load secrets in a browser environment; envgod is server-only")

// API is the control plane as seen by the loader.
type API interface {
	Exchange(ctx context.Context, runtimeKey string, scope controlplane.Scope) (*oauth2.Token, error)
	FetchBundle(ctx context.Context, token *oauth2.Token) (map[string]string, error)
}

// Options configures a Loader. Zero values use the process environment,
// the real control plane client and no secret store.
type Options struct {
	// Env supplies configuration defaults and the ambient runtime key.
	Env environ.Source
	// Sink receives every bundle variable on each successful load.
	Sink environ.Sink
	// Store is the optional best-effort runtime key store.
	Store credential.Store
	// HTTPClient is used by the default control plane client.
	HTTPClient *http.Client
	// UserAgent is sent by the default control plane client.
	UserAgent string
	// NewAPI overrides control plane client construction.
	NewAPI func(cfg *config.Config) API
	// Metrics records load outcomes; nil records nothing.
	Metrics *metrics.Metrics
	// HomeDir locates the default config file; empty uses the user's home.
	HomeDir string
	// Now overrides the clock used for token validity.
	Now func() time.Time
}

// Loader owns a cache store and a single-flight gate.
type Loader struct {
	env       environ.Source
	sink      environ.Sink
	store     credential.Store
	creds     *credential.Resolver
	cache     *cache.Store
	group     singleflight.Group
	newAPI    func(cfg *config.Config) API
	metrics   *metrics.Metrics
	homeDir   string
	now       func() time.Time
	inBrowser func() bool
}

// New returns a Loader with an empty cache.
func New(opts Options) *Loader {
	l := &Loader{
		env:       opts.Env,
		sink:      opts.Sink,
		store:     opts.Store,
		cache:     cache.New(),
		newAPI:    opts.NewAPI,
		metrics:   opts.Metrics,
		homeDir:   opts.HomeDir,
		now:       opts.Now,
		inBrowser: func() bool { return inBrowser },
	}
	if l.env == nil {
		l.env = environ.OS{}
	}
	if l.sink == nil {
		l.sink = environ.OS{}
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.newAPI == nil {
		httpClient, userAgent := opts.HTTPClient, opts.UserAgent
		l.newAPI = func(cfg *config.Config) API {
			return &controlplane.Client{
				BaseURL:    cfg.APIURL,
				HTTPClient: httpClient,
				Timeout:    cfg.Timeout,
				UserAgent:  userAgent,
			}
		}
	}
	l.creds = &credential.Resolver{Env: l.env, Store: l.store}
	return l
}

// Load returns the secret bundle for the configuration described by o and
// the environment, writing every variable to the sink.
//
// If a load is already in flight, Load waits for it and returns its
// result, even if that load is for a different configuration. The shared
// computation is not canceled when ctx ends; ctx only bounds how long this
// caller waits.
func (l *Loader) Load(ctx context.Context, o config.Overrides) (map[string]string, error) {
	if l.inBrowser() {
		return nil, ErrBrowserEnvironment
	}

	cfg, err := l.ResolveConfig(o)
	if err != nil {
		return nil, err
	}

	shared := context.WithoutCancel(ctx)
	ch := l.group.DoChan(flightKey, func() (any, error) {
		return l.load(shared, cfg)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return maps.Clone(res.Val.(map[string]string)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ResolveConfig resolves and validates the configuration for o without
// touching the network.
func (l *Loader) ResolveConfig(o config.Overrides) (*config.Config, error) {
	return config.Resolve(o, l.env,
		config.WithKeyResolvable(l.store != nil),
		config.WithHomeDir(l.homeDir),
	)
}

// ResolveKey runs runtime key resolution for cfg.
func (l *Loader) ResolveKey(ctx context.Context, cfg *config.Config) (string, credential.Source, error) {
	return l.creds.Resolve(ctx, cfg)
}

// Reset clears every cache entry and forgets any pending load, so the next
// call starts fresh. Intended for tests.
func (l *Loader) Reset() {
	l.cache.Reset()
	l.group.Forget(flightKey)
}

func (l *Loader) load(ctx context.Context, cfg *config.Config) (map[string]string, error) {
	logger := log.With("load_id", id.New("load"), "fingerprint", cfg.Fingerprint())
	start := l.now()
	bundle, err := l.run(ctx, cfg, logger)
	d := l.now().Sub(start)
	l.metrics.ObserveLoad(outcome(err), d)
	if err != nil {
		logger.Debug("load failed", "duration", d, "error", err)
	}
	return bundle, err
}

func (l *Loader) run(ctx context.Context, cfg *config.Config, logger *slog.Logger) (map[string]string, error) {
	entry := l.cache.Entry(cfg.Fingerprint())
	api := l.newAPI(cfg)

	tokenWasValid := entry.TokenValid(l.now(), TokenSkew)
	if tokenWasValid {
		if bundle, ok := entry.Bundle(); ok {
			logger.Debug("serving bundle from cache", "vars", len(bundle))
			l.metrics.CacheHit()
			return l.apply(entry, bundle)
		}
	} else if err := l.exchange(ctx, cfg, api, entry, logger); err != nil {
		return nil, err
	}

	bundle, err := l.fetch(ctx, api, entry)
	if errors.Is(err, controlplane.ErrUnauthorized) {
		logger.Warn("bundle fetch unauthorized, refreshing token once")
		l.metrics.Retry()
		entry.Clear()
		if err := l.exchange(ctx, cfg, api, entry, logger); err != nil {
			return nil, fmt.Errorf("retrying after unauthorized bundle fetch: %w", err)
		}
		bundle, err = l.fetch(ctx, api, entry)
		if err != nil {
			return nil, fmt.Errorf("retrying after unauthorized bundle fetch: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	logger.Debug("fetched bundle", "vars", len(bundle))
	return l.apply(entry, bundle)
}

// exchange is the only writer of an entry's token.
func (l *Loader) exchange(ctx context.Context, cfg *config.Config, api API, entry *cache.Entry, logger *slog.Logger) error {
	key, source, err := l.creds.Resolve(ctx, cfg)
	if err != nil {
		return err
	}

	token, err := api.Exchange(ctx, key, controlplane.Scope{
		Org:         cfg.Org,
		Project:     cfg.Project,
		Environment: cfg.Environment,
		Service:     cfg.Service,
	})
	l.metrics.ObserveExchange(outcome(err))
	if err != nil {
		return err
	}

	entry.SetToken(token)
	logger.Debug("exchanged runtime key for token", "key_source", source, "expires_at", token.Expiry)
	return nil
}

func (l *Loader) fetch(ctx context.Context, api API, entry *cache.Entry) (map[string]string, error) {
	bundle, err := api.FetchBundle(ctx, entry.Token())
	l.metrics.ObserveFetch(outcome(err))
	return bundle, err
}

// apply writes every variable of bundle to the sink, or none of them: all
// pairs are validated first, and a failed write restores the prior values.
// The bundle is cached only once the sink has accepted it.
func (l *Loader) apply(entry *cache.Entry, bundle map[string]string) (map[string]string, error) {
	keys := slices.Sorted(maps.Keys(bundle))
	for _, k := range keys {
		if err := environ.Validate(k, bundle[k]); err != nil {
			return nil, fmt.Errorf("applying bundle to environment: %w", err)
		}
	}

	checkpoint := environ.Capture(l.sink, keys)
	for _, k := range keys {
		if err := l.sink.Set(k, bundle[k]); err != nil {
			if rerr := checkpoint.Restore(); rerr != nil {
				err = errors.Join(err, fmt.Errorf("restoring environment: %w", rerr))
			}
			return nil, fmt.Errorf("applying %s to environment: %w", k, err)
		}
	}

	entry.SetBundle(bundle)
	return maps.Clone(bundle), nil
}

func outcome(err error) string {
	var timeoutErr *controlplane.TimeoutError
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, controlplane.ErrUnauthorized):
		return metrics.OutcomeUnauthorized
	case errors.As(err, &timeoutErr):
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeError
	}
}
