package credential

import (
	"fmt"

	"github.com/rusamer/envgod/internal/config"
)

// NotFoundError is returned when no resolution path yields a runtime key.
type NotFoundError struct {
	StoreKey  string
	StoreName string // empty when no store is configured
}

func (e *NotFoundError) Error() string {
	store := "secret store lookup (no store configured)"
	if e.StoreName != "" {
		store = fmt.Sprintf("%s entry for %q", e.StoreName, e.StoreKey)
	}
	return fmt.Sprintf("envgod: no runtime key found. Tried:\n"+
		"  1. explicit runtime key (RuntimeKey option or --runtime-key)\n"+
		"  2. %s environment variable\n"+
		"  3. %s\n\n"+
		"  Set %s, pass the key explicitly, or store it with: envgod key set",
		config.EnvRuntimeKey, store, config.EnvRuntimeKey)
}
