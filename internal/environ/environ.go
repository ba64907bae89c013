// Package environ abstracts the process environment as a source of
// configuration defaults and as a sink for loaded secret values.
package environ

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"
	"sync"
)

// Source reads environment-style variables.
type Source interface {
	Lookup(key string) (string, bool)
}

// Sink receives loaded variables. Set overwrites any existing value.
type Sink interface {
	Set(key, value string) error
}

// Env is both a Source and a Sink.
type Env interface {
	Source
	Sink
}

// Unsetter is implemented by sinks that can remove a variable.
type Unsetter interface {
	Unset(key string) error
}

// OS is the real process environment.
type OS struct{}

// Lookup implements Source using os.LookupEnv.
func (OS) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Set implements Sink using os.Setenv.
func (OS) Set(key, value string) error {
	return os.Setenv(key, value)
}

// Unset removes key using os.Unsetenv.
func (OS) Unset(key string) error {
	return os.Unsetenv(key)
}

// Map is an in-memory Env safe for concurrent use.
type Map struct {
	mu   sync.RWMutex
	vars map[string]string
}

// NewMap returns a Map seeded with a copy of vars.
func NewMap(vars map[string]string) *Map {
	m := &Map{vars: make(map[string]string, len(vars))}
	maps.Copy(m.vars, vars)
	return m
}

// Lookup returns the value for key.
func (m *Map) Lookup(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vars[key]
	return v, ok
}

// Set stores value under key.
func (m *Map) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vars == nil {
		m.vars = make(map[string]string)
	}
	m.vars[key] = value
	return nil
}

// Snapshot returns a copy of all variables.
func (m *Map) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.vars)
}

// Get returns the value for key, or "" if unset.
func (m *Map) Get(key string) string {
	v, _ := m.Lookup(key)
	return v
}

// Unset removes key.
func (m *Map) Unset(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vars, key)
	return nil
}

// InvalidVarError reports a variable the process environment cannot hold.
type InvalidVarError struct {
	Key    string
	Reason string
}

func (e *InvalidVarError) Error() string {
	return fmt.Sprintf("invalid environment variable %q: %s", e.Key, e.Reason)
}

// Validate applies the rules os.Setenv enforces: a non-empty name without
// '=' or NUL, and a value without NUL.
func Validate(key, value string) error {
	switch {
	case key == "":
		return &InvalidVarError{Key: key, Reason: "empty name"}
	case strings.ContainsAny(key, "=\x00"):
		return &InvalidVarError{Key: key, Reason: "name contains '=' or NUL"}
	case strings.ContainsRune(value, 0):
		return &InvalidVarError{Key: key, Reason: "value contains NUL"}
	}
	return nil
}

type saved struct {
	value   string
	present bool
}

// Checkpoint holds the prior values of a set of keys in a sink.
type Checkpoint struct {
	sink Sink
	prev map[string]saved
}

// Capture records the current values of keys in sink. Sinks that cannot
// be read yield a checkpoint whose Restore does nothing.
func Capture(sink Sink, keys []string) *Checkpoint {
	src, ok := sink.(Source)
	if !ok {
		return &Checkpoint{}
	}
	c := &Checkpoint{sink: sink, prev: make(map[string]saved, len(keys))}
	for _, k := range keys {
		v, present := src.Lookup(k)
		c.prev[k] = saved{value: v, present: present}
	}
	return c
}

// Restore writes the captured values back, unsetting keys that were absent
// when the sink supports it.
func (c *Checkpoint) Restore() error {
	var errs []error
	for k, s := range c.prev {
		switch {
		case s.present:
			errs = append(errs, c.sink.Set(k, s.value))
		default:
			if u, ok := c.sink.(Unsetter); ok {
				errs = append(errs, u.Unset(k))
			}
		}
	}
	return errors.Join(errs...)
}
