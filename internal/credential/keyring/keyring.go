// Package keyring stores envgod runtime keys in the OS keychain.
//
// Platform requirements:
//   - macOS: Keychain (works out of the box)
//   - Linux: a Secret Service provider such as gnome-keyring or KeePassXC
//   - Windows: Credential Manager (works out of the box)
//
// Items are stored under the service name (default "envgod", overridable
// with ENVGOD_KEYRING_SERVICE for test isolation) with the configuration's
// store key as the account.
package keyring

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

// ServiceName is the default keychain service identifier.
const ServiceName = "envgod"

// ErrNotFound is returned when no key is stored for an account.
var ErrNotFound = keyring.ErrNotFound

// ErrUnavailable is returned when the platform has no usable keychain.
var ErrUnavailable = errors.New("system keychain unavailable")

// serviceName returns the keychain service, checking the environment first.
func serviceName() string {
	if name := os.Getenv("ENVGOD_KEYRING_SERVICE"); name != "" {
		return name
	}
	return ServiceName
}

// Store is a keychain-backed runtime key store.
type Store struct {
	// Service overrides the keychain service name.
	Service string
}

// New returns a Store using the default service name.
func New() *Store {
	return &Store{}
}

func (s *Store) service() string {
	if s.Service != "" {
		return s.Service
	}
	return serviceName()
}

// Name describes the backend for error messages.
func (s *Store) Name() string {
	return "system keychain"
}

// Lookup returns the runtime key stored for account.
func (s *Store) Lookup(ctx context.Context, account string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := keyring.Get(s.service(), account)
	if err != nil {
		return "", wrap("get", err)
	}
	return v, nil
}

// Save stores key for account, replacing any previous value.
func (s *Store) Save(account, key string) error {
	if key == "" {
		return fmt.Errorf("refusing to store an empty runtime key")
	}
	if err := keyring.Set(s.service(), account, key); err != nil {
		return wrap("set", err)
	}
	return nil
}

// Delete removes the key stored for account. Deleting a missing key is
// not an error.
func (s *Store) Delete(account string) error {
	err := keyring.Delete(s.service(), account)
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return wrap("delete", err)
}

// Available reports whether the keychain can be reached, by probing for
// an item that does not exist.
func (s *Store) Available() error {
	_, err := keyring.Get(s.service(), "envgod-availability-check")
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return wrap("availability check", err)
}

func wrap(op string, err error) error {
	if errors.Is(err, keyring.ErrUnsupportedPlatform) {
		return fmt.Errorf("keychain %s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("keychain %s: %w", op, err)
}
