package secrets

import (
	"context"
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

const keyringBackend = "system keychain"

// KeyringResolver resolves keyring://service/account references from the
// OS keychain.
type KeyringResolver struct{}

// Scheme returns "keyring".
func (r *KeyringResolver) Scheme() string {
	return "keyring"
}

// Resolve reads the keychain item named by reference.
func (r *KeyringResolver) Resolve(ctx context.Context, reference string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	service, account, ok := strings.Cut(strings.TrimPrefix(reference, "keyring://"), "/")
	if !ok || service == "" || account == "" {
		return "", &InvalidReferenceError{Reference: reference, Reason: "expected keyring://service/account"}
	}

	value, err := keyring.Get(service, account)
	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, keyring.ErrNotFound):
		return "", &NotFoundError{Reference: reference, Backend: keyringBackend}
	case errors.Is(err, keyring.ErrUnsupportedPlatform):
		return "", &BackendError{
			Backend:   keyringBackend,
			Reference: reference,
			Reason:    "no keychain on this platform",
			Fix:       "On Linux install a Secret Service provider (gnome-keyring, KeePassXC) or use op:// or awssm:// instead.",
			Err:       err,
		}
	}
	return "", &BackendError{
		Backend:   keyringBackend,
		Reference: reference,
		Reason:    err.Error(),
		Err:       err,
	}
}

func init() {
	Register(&KeyringResolver{})
}
