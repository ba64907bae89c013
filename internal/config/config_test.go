package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusamer/envgod/internal/environ"
)

func fullEnv() map[string]string {
	return map[string]string{
		EnvAPIURL:      "http://api.test",
		EnvRuntimeKey:  "rk_live_abcdef123456",
		EnvProject:     "proj",
		EnvEnvironment: "prod",
		EnvService:     "billing",
	}
}

func TestResolve_FromEnvironment(t *testing.T) {
	cfg, err := Resolve(Overrides{}, environ.NewMap(fullEnv()), WithHomeDir(t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, "http://api.test", cfg.APIURL)
	assert.Equal(t, "rk_live_abcdef123456", cfg.RuntimeKey)
	assert.Equal(t, "proj", cfg.Project)
	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, "billing", cfg.Service)
	assert.Empty(t, cfg.Org)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
}

func TestResolve_OverridesWin(t *testing.T) {
	env := fullEnv()
	env[EnvOrg] = "env-org"

	cfg, err := Resolve(Overrides{
		APIURL:  "https://override.test/",
		Org:     "acme",
		Service: "web",
		Timeout: 250 * time.Millisecond,
	}, environ.NewMap(env), WithHomeDir(t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, "https://override.test", cfg.APIURL, "trailing slash is trimmed")
	assert.Equal(t, "acme", cfg.Org)
	assert.Equal(t, "web", cfg.Service)
	assert.Equal(t, "proj", cfg.Project)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
}

func TestResolve_ReportsAllMissingFields(t *testing.T) {
	_, err := Resolve(Overrides{}, environ.NewMap(nil), WithHomeDir(t.TempDir()))
	require.Error(t, err)

	var missing *MissingFieldsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []Field{FieldAPIURL, FieldRuntimeKey, FieldProject, FieldEnvironment, FieldService}, missing.Fields)
	for _, name := range []string{EnvAPIURL, EnvRuntimeKey, EnvProject, EnvEnvironment, EnvService} {
		assert.Contains(t, err.Error(), name)
	}
}

func TestResolve_MissingURLAndKeyOnly(t *testing.T) {
	env := fullEnv()
	delete(env, EnvAPIURL)
	delete(env, EnvRuntimeKey)

	_, err := Resolve(Overrides{}, environ.NewMap(env), WithHomeDir(t.TempDir()))

	var missing *MissingFieldsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []Field{FieldAPIURL, FieldRuntimeKey}, missing.Fields)
}

func TestResolve_KeyResolvableSkipsKey(t *testing.T) {
	env := fullEnv()
	delete(env, EnvRuntimeKey)

	cfg, err := Resolve(Overrides{}, environ.NewMap(env), WithHomeDir(t.TempDir()), WithKeyResolvable(true))
	require.NoError(t, err)
	assert.Empty(t, cfg.RuntimeKey)
}

func TestResolve_KeyResolvableNeedsURL(t *testing.T) {
	env := fullEnv()
	delete(env, EnvAPIURL)
	delete(env, EnvRuntimeKey)

	_, err := Resolve(Overrides{}, environ.NewMap(env), WithHomeDir(t.TempDir()), WithKeyResolvable(true))

	var missing *MissingFieldsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []Field{FieldAPIURL, FieldRuntimeKey}, missing.Fields)
}

func TestResolve_KeyOptional(t *testing.T) {
	env := fullEnv()
	delete(env, EnvAPIURL)
	delete(env, EnvRuntimeKey)

	_, err := Resolve(Overrides{}, environ.NewMap(env), WithHomeDir(t.TempDir()), WithKeyOptional())

	var missing *MissingFieldsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []Field{FieldAPIURL}, missing.Fields)
}

func TestResolve_InvalidTimeoutAndMissingTogether(t *testing.T) {
	env := fullEnv()
	delete(env, EnvProject)
	env[EnvTimeoutMS] = "soon"

	_, err := Resolve(Overrides{}, environ.NewMap(env), WithHomeDir(t.TempDir()))
	require.Error(t, err)

	var missing *MissingFieldsError
	assert.True(t, errors.As(err, &missing))
	assert.True(t, missing.Has(FieldProject))

	var invalid *InvalidFieldError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, FieldTimeout, invalid.Field)
}

func TestResolve_TimeoutFromEnv(t *testing.T) {
	env := fullEnv()
	env[EnvTimeoutMS] = "1500"

	cfg, err := Resolve(Overrides{}, environ.NewMap(env), WithHomeDir(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, cfg.Timeout)
}

func TestResolve_RejectsNonHTTPURL(t *testing.T) {
	env := fullEnv()
	env[EnvAPIURL] = "ftp://api.test"

	_, err := Resolve(Overrides{}, environ.NewMap(env), WithHomeDir(t.TempDir()))

	var invalid *InvalidFieldError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, FieldAPIURL, invalid.Field)
}

func TestResolve_DefaultConfigFile(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".envgod"), 0o700))
	content := `
api_url: http://file.test
project: file-proj
environment: staging
service: worker
timeout_ms: 800
`
	require.NoError(t, os.WriteFile(filepath.Join(home, ".envgod", "config.yaml"), []byte(content), 0o600))

	env := environ.NewMap(map[string]string{
		EnvRuntimeKey: "k1",
		EnvService:    "api",
	})
	cfg, err := Resolve(Overrides{}, env, WithHomeDir(home))
	require.NoError(t, err)

	assert.Equal(t, "http://file.test", cfg.APIURL)
	assert.Equal(t, "file-proj", cfg.Project)
	assert.Equal(t, "api", cfg.Service, "environment beats file")
	assert.Equal(t, 800*time.Millisecond, cfg.Timeout)
}

func TestResolve_ExplicitConfigFileMustExist(t *testing.T) {
	_, err := Resolve(Overrides{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")}, environ.NewMap(fullEnv()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestResolve_MalformedConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_url: [unterminated"), 0o600))

	env := fullEnv()
	env[EnvConfigFile] = path
	_, err := Resolve(Overrides{}, environ.NewMap(env))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestFingerprint(t *testing.T) {
	base := Config{
		APIURL:      "http://api.test",
		RuntimeKey:  "rk_live_abcdef123456",
		Project:     "proj",
		Environment: "prod",
		Service:     "billing",
	}

	t.Run("stable for equal scope", func(t *testing.T) {
		other := base
		other.Timeout = time.Minute
		assert.Equal(t, base.Fingerprint(), other.Fingerprint())
	})

	t.Run("never contains the full key", func(t *testing.T) {
		assert.NotContains(t, base.Fingerprint(), base.RuntimeKey)
		assert.Contains(t, base.Fingerprint(), "rk_live_")

		short := base
		short.RuntimeKey = "k1"
		assert.NotContains(t, short.Fingerprint(), "k1")
	})

	t.Run("rotated key changes fingerprint", func(t *testing.T) {
		rotated := base
		rotated.RuntimeKey = "rk_test_zzzzzz"
		assert.NotEqual(t, base.Fingerprint(), rotated.Fingerprint())
	})

	t.Run("scope changes fingerprint", func(t *testing.T) {
		other := base
		other.Environment = "staging"
		assert.NotEqual(t, base.Fingerprint(), other.Fingerprint())
	})

	t.Run("store-sourced key leaves prefix empty", func(t *testing.T) {
		stored := base
		stored.RuntimeKey = ""
		assert.Equal(t, "http://api.test|||proj|prod|billing", stored.Fingerprint())
	})

	t.Run("joined with fixed delimiter", func(t *testing.T) {
		assert.Equal(t, 5, strings.Count(base.Fingerprint(), "|"))
	})
}

func TestStoreKey_ExcludesKey(t *testing.T) {
	cfg := Config{APIURL: "http://api.test", RuntimeKey: "secret-key", Org: "o", Project: "p", Environment: "e", Service: "s"}
	assert.Equal(t, "http://api.test|o|p|e|s", cfg.StoreKey())
}
