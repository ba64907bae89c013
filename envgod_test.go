package envgod_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/rusamer/envgod"
	"github.com/rusamer/envgod/internal/environ"
)

type controlPlane struct {
	*httptest.Server
	exchanges atomic.Int32
	fetches   atomic.Int32
}

// newControlPlane issues "t-<n>" tokens and answers bundle requests with
// respond.
func newControlPlane(t *testing.T, respond func(w http.ResponseWriter, token string)) *controlPlane {
	t.Helper()
	cp := &controlPlane{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/exchange", func(w http.ResponseWriter, r *http.Request) {
		n := cp.exchanges.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"token":     map[int32]string{1: "t-old", 2: "t-new"}[min(n, 2)],
			"expiresAt": time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	})
	mux.HandleFunc("GET /v1/bundle", func(w http.ResponseWriter, r *http.Request) {
		cp.fetches.Add(1)
		respond(w, r.Header.Get("Authorization"))
	})
	cp.Server = httptest.NewServer(mux)
	t.Cleanup(cp.Close)
	return cp
}

func writeValues(w http.ResponseWriter, values map[string]string) {
	_ = json.NewEncoder(w).Encode(map[string]any{"values": values})
}

func TestClient_LoadEnv(t *testing.T) {
	cp := newControlPlane(t, func(w http.ResponseWriter, _ string) {
		writeValues(w, map[string]string{"FOO": "bar"})
	})
	sink := environ.NewMap(nil)
	reg := prometheus.NewPedanticRegistry()
	c := envgod.New(
		envgod.WithEnv(environ.NewMap(nil)),
		envgod.WithSink(sink),
		envgod.WithHomeDir(t.TempDir()),
		envgod.WithRegisterer(reg),
	)

	opts := envgod.Options{
		APIURL:      cp.URL,
		RuntimeKey:  "k1",
		Project:     "proj",
		Environment: "prod",
		Service:     "billing",
	}
	vars, err := c.LoadEnv(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"FOO": "bar"}, vars)
	assert.Equal(t, "bar", sink.Get("FOO"))

	_, err = c.LoadEnv(context.Background(), opts)
	require.NoError(t, err)

	assert.EqualValues(t, 1, cp.exchanges.Load())
	assert.EqualValues(t, 1, cp.fetches.Load())

	n, err := testutil.GatherAndCount(reg, "envgod_loads_total", "envgod_cache_hits_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestClient_LoadEnv_RecoversFromUnauthorized(t *testing.T) {
	cp := newControlPlane(t, func(w http.ResponseWriter, auth string) {
		if auth != "Bearer t-new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeValues(w, map[string]string{"RECOVERED": "true"})
	})
	sink := environ.NewMap(nil)
	c := envgod.New(
		envgod.WithEnv(environ.NewMap(map[string]string{
			"ENVGOD_API_URL":     cp.URL,
			"ENVGOD_RUNTIME_KEY": "k1",
			"ENVGOD_PROJECT":     "proj",
			"ENVGOD_ENV":         "prod",
			"ENVGOD_SERVICE":     "billing",
		})),
		envgod.WithSink(sink),
		envgod.WithHomeDir(t.TempDir()),
	)

	vars, err := c.LoadEnv(context.Background(), envgod.Options{})
	require.NoError(t, err)
	assert.Equal(t, "true", vars["RECOVERED"])
	assert.Equal(t, "true", sink.Get("RECOVERED"))
	assert.EqualValues(t, 2, cp.exchanges.Load())
	assert.EqualValues(t, 2, cp.fetches.Load())
}

func TestClient_LoadEnv_Errors(t *testing.T) {
	cp := newControlPlane(t, func(w http.ResponseWriter, _ string) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	tests := []struct {
		name  string
		opts  envgod.Options
		check func(t *testing.T, err error)
	}{
		{
			name: "missing url and key",
			opts: envgod.Options{Project: "p", Environment: "e", Service: "s"},
			check: func(t *testing.T, err error) {
				var cfgErr *envgod.ConfigError
				require.True(t, errors.As(err, &cfgErr))
				assert.Contains(t, err.Error(), "ENVGOD_API_URL")
				assert.Contains(t, err.Error(), "ENVGOD_RUNTIME_KEY")
			},
		},
		{
			name: "unauthorized twice",
			opts: envgod.Options{APIURL: cp.URL, RuntimeKey: "k1", Project: "p", Environment: "e", Service: "s"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, envgod.ErrUnauthorized)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := envgod.New(
				envgod.WithEnv(environ.NewMap(nil)),
				envgod.WithSink(environ.NewMap(nil)),
				envgod.WithHomeDir(t.TempDir()),
			)
			_, err := c.LoadEnv(context.Background(), tt.opts)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestLoadEnv_DefaultClient(t *testing.T) {
	keyring.MockInit()
	t.Cleanup(envgod.ResetForTesting)

	cp := newControlPlane(t, func(w http.ResponseWriter, _ string) {
		writeValues(w, map[string]string{"ENVGOD_TEST_LOADED": "yes"})
	})
	t.Cleanup(func() { os.Unsetenv("ENVGOD_TEST_LOADED") })

	t.Setenv("HOME", t.TempDir())
	t.Setenv("ENVGOD_API_URL", cp.URL)
	t.Setenv("ENVGOD_RUNTIME_KEY", "k1")
	t.Setenv("ENVGOD_PROJECT", "proj")
	t.Setenv("ENVGOD_ENV", "prod")
	t.Setenv("ENVGOD_SERVICE", "billing")

	_, err := envgod.LoadEnv(context.Background(), envgod.Options{})
	require.NoError(t, err)
	assert.Equal(t, "yes", os.Getenv("ENVGOD_TEST_LOADED"))

	envgod.ResetForTesting()
	_, err = envgod.LoadEnv(context.Background(), envgod.Options{})
	require.NoError(t, err)

	assert.EqualValues(t, 2, cp.exchanges.Load(), "reset forces a fresh exchange")
}

func TestLoadEnv_DefaultClientNamesMissingURLAndKey(t *testing.T) {
	keyring.MockInit()
	t.Cleanup(envgod.ResetForTesting)

	t.Setenv("HOME", t.TempDir())
	t.Setenv("ENVGOD_CONFIG", "")
	t.Setenv("ENVGOD_API_URL", "")
	t.Setenv("ENVGOD_RUNTIME_KEY", "")
	t.Setenv("ENVGOD_PROJECT", "proj")
	t.Setenv("ENVGOD_ENV", "prod")
	t.Setenv("ENVGOD_SERVICE", "billing")

	_, err := envgod.LoadEnv(context.Background(), envgod.Options{})

	var cfgErr *envgod.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "ENVGOD_API_URL")
	assert.Contains(t, err.Error(), "ENVGOD_RUNTIME_KEY")
}
