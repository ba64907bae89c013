package envgod

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rusamer/envgod/internal/credential"
	"github.com/rusamer/envgod/internal/environ"
	"github.com/rusamer/envgod/internal/loader"
	"github.com/rusamer/envgod/internal/metrics"
)

// Version is reported in the User-Agent header.
var Version = "dev"

// Client loads bundles and owns their cache. All loads through one Client
// are serialized; callers that arrive while a load is running share its
// result.
type Client struct {
	loader *loader.Loader
}

// Source supplies configuration values by environment variable name.
type Source = environ.Source

// Sink receives loaded variables.
type Sink = environ.Sink

// KeyStore is an optional fallback for the runtime key, looked up by a
// composite key of the API URL and scope.
type KeyStore = credential.Store

type clientOptions struct {
	loader   loader.Options
	registry prometheus.Registerer
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

// WithEnv reads configuration from src instead of the process environment.
func WithEnv(src Source) ClientOption {
	return func(o *clientOptions) { o.loader.Env = src }
}

// WithSink writes loaded variables to sink instead of the process
// environment.
func WithSink(sink Sink) ClientOption {
	return func(o *clientOptions) { o.loader.Sink = sink }
}

// WithStore enables runtime key lookup in store when no key is configured.
func WithStore(store KeyStore) ClientOption {
	return func(o *clientOptions) { o.loader.Store = store }
}

// WithHTTPClient sets the HTTP client used for control plane requests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) { o.loader.HTTPClient = c }
}

// WithRegisterer registers load metrics with reg.
func WithRegisterer(reg prometheus.Registerer) ClientOption {
	return func(o *clientOptions) { o.registry = reg }
}

// WithHomeDir locates the default config file under dir/.envgod.
func WithHomeDir(dir string) ClientOption {
	return func(o *clientOptions) { o.loader.HomeDir = dir }
}

// New returns a Client with an empty cache.
func New(opts ...ClientOption) *Client {
	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	o.loader.UserAgent = "envgod-go/" + Version
	if o.registry != nil {
		o.loader.Metrics = metrics.New(o.registry)
	}
	return &Client{loader: loader.New(o.loader)}
}

// LoadEnv returns the secret bundle and writes each variable to the
// client's sink.
//
// Within the token's validity window (its expiry minus 30 seconds) a repeat
// load for the same configuration makes no network calls. A bundle request
// rejected as unauthorized is retried once with a fresh token.
//
// ctx bounds how long this caller waits. A load already shared with other
// callers keeps running when ctx ends.
func (c *Client) LoadEnv(ctx context.Context, opts Options) (map[string]string, error) {
	return c.loader.Load(ctx, opts)
}

// Reset clears the cache and forgets any pending load.
func (c *Client) Reset() {
	c.loader.Reset()
}
