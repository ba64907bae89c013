// Package envgod loads secret environment variables from the envgod
// control plane into a server-side Go process.
//
// A load exchanges a long-lived runtime key for a short-lived access token,
// fetches the secret bundle for the configured project, environment and
// service, and writes every variable into the process environment. Tokens
// and bundles are cached per configuration, so repeated loads are free
// until the token nears expiry:
//
//	vars, err := envgod.LoadEnv(ctx, envgod.Options{})
//	if err != nil {
//		return err
//	}
//	db := os.Getenv("DATABASE_URL")
//
// Configuration not passed in Options is read from ENVGOD_API_URL,
// ENVGOD_RUNTIME_KEY, ENVGOD_ORG, ENVGOD_PROJECT, ENVGOD_ENV,
// ENVGOD_SERVICE and ENVGOD_TIMEOUT_MS, then from ~/.envgod/config.yaml.
package envgod

import (
	"context"
	"sync"

	"github.com/rusamer/envgod/internal/config"
	"github.com/rusamer/envgod/internal/controlplane"
	"github.com/rusamer/envgod/internal/credential"
	"github.com/rusamer/envgod/internal/credential/keyring"
	"github.com/rusamer/envgod/internal/loader"
)

// Options overrides configuration for a single load. Empty fields fall back
// to the environment and the config file.
type Options = config.Overrides

// Error types returned by LoadEnv. Match them with errors.As.
type (
	// ConfigError lists every missing mandatory setting.
	ConfigError = config.MissingFieldsError
	// InvalidConfigError reports a malformed setting.
	InvalidConfigError = config.InvalidFieldError
	// CredentialError reports that no runtime key could be found.
	CredentialError = credential.NotFoundError
	// StatusError reports a non-success control plane response.
	StatusError = controlplane.StatusError
	// TimeoutError reports a control plane request that exceeded the timeout.
	TimeoutError = controlplane.TimeoutError
)

var (
	// ErrUnauthorized is returned when the bundle fetch is rejected even
	// after one token refresh.
	ErrUnauthorized = controlplane.ErrUnauthorized
	// ErrBrowserEnvironment is returned when built for a browser host.
	ErrBrowserEnvironment = loader.ErrBrowserEnvironment
)

var (
	defaultOnce   sync.Once
	defaultClient *Client
)

// Default returns the process-wide client used by LoadEnv. It writes to the
// process environment and falls back to the OS keychain for the runtime key.
func Default() *Client {
	defaultOnce.Do(func() {
		defaultClient = New(WithStore(keyring.New()))
	})
	return defaultClient
}

// LoadEnv loads the bundle with the default client. See Client.LoadEnv.
func LoadEnv(ctx context.Context, opts Options) (map[string]string, error) {
	return Default().LoadEnv(ctx, opts)
}

// ResetForTesting clears the default client's cache and forgets any pending
// load.
func ResetForTesting() {
	Default().Reset()
}
