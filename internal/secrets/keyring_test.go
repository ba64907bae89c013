package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringResolver(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyring.Set("envgod", "prod", "rk_keychain"))

	r := &KeyringResolver{}

	val, err := r.Resolve(context.Background(), "keyring://envgod/prod")
	require.NoError(t, err)
	assert.Equal(t, "rk_keychain", val)

	_, err = r.Resolve(context.Background(), "keyring://envgod/missing")
	var notFound *NotFoundError
	assert.True(t, errors.As(err, &notFound))

	_, err = r.Resolve(context.Background(), "keyring://envgod")
	var invalid *InvalidReferenceError
	assert.True(t, errors.As(err, &invalid))
}

func TestKeyringResolver_Unavailable(t *testing.T) {
	keyring.MockInitWithError(keyring.ErrUnsupportedPlatform)
	t.Cleanup(keyring.MockInit)

	_, err := (&KeyringResolver{}).Resolve(context.Background(), "keyring://envgod/prod")

	var backendErr *BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.ErrorIs(t, err, keyring.ErrUnsupportedPlatform)
}
