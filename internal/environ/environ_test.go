package environ

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_SetOverwrites(t *testing.T) {
	m := NewMap(map[string]string{"FOO": "old"})

	require.NoError(t, m.Set("FOO", "new"))
	require.NoError(t, m.Set("BAR", "baz"))

	assert.Equal(t, map[string]string{"FOO": "new", "BAR": "baz"}, m.Snapshot())
}

func TestMap_NewMapCopiesInput(t *testing.T) {
	seed := map[string]string{"A": "1"}
	m := NewMap(seed)
	seed["A"] = "2"

	assert.Equal(t, "1", m.Get("A"))
}

func TestMap_ZeroValueUsable(t *testing.T) {
	var m Map
	_, ok := m.Lookup("X")
	assert.False(t, ok)

	require.NoError(t, m.Set("X", "y"))
	assert.Equal(t, "y", m.Get("X"))
}

func TestOS_SetAndLookup(t *testing.T) {
	t.Setenv("ENVGOD_ENVIRON_TEST", "")

	var env OS
	require.NoError(t, env.Set("ENVGOD_ENVIRON_TEST", "value"))

	v, ok := env.Lookup("ENVGOD_ENVIRON_TEST")
	assert.True(t, ok)
	assert.Equal(t, "value", v)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr bool
	}{
		{name: "plain", key: "FOO", value: "bar"},
		{name: "empty value", key: "FOO", value: ""},
		{name: "equals in value", key: "FOO", value: "a=b"},
		{name: "empty name", key: "", value: "x", wantErr: true},
		{name: "equals in name", key: "B=C", value: "x", wantErr: true},
		{name: "nul in name", key: "B\x00", value: "x", wantErr: true},
		{name: "nul in value", key: "FOO", value: "a\x00b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.key, tt.value)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var invalid *InvalidVarError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.key, invalid.Key)
		})
	}
}

func TestCheckpoint_Restore(t *testing.T) {
	m := NewMap(map[string]string{"KEEP": "old", "OTHER": "untouched"})

	cp := Capture(m, []string{"KEEP", "NEW"})
	require.NoError(t, m.Set("KEEP", "changed"))
	require.NoError(t, m.Set("NEW", "added"))

	require.NoError(t, cp.Restore())
	assert.Equal(t, map[string]string{"KEEP": "old", "OTHER": "untouched"}, m.Snapshot())
}

type writeOnly struct{ m *Map }

func (w writeOnly) Set(key, value string) error { return w.m.Set(key, value) }

func TestCheckpoint_WriteOnlySink(t *testing.T) {
	m := NewMap(nil)
	cp := Capture(writeOnly{m}, []string{"A"})
	require.NoError(t, m.Set("A", "1"))

	assert.NoError(t, cp.Restore())
	assert.Equal(t, "1", m.Get("A"))
}

func TestOS_Unset(t *testing.T) {
	t.Setenv("ENVGOD_ENVIRON_UNSET", "value")

	require.NoError(t, OS{}.Unset("ENVGOD_ENVIRON_UNSET"))
	_, ok := OS{}.Lookup("ENVGOD_ENVIRON_UNSET")
	assert.False(t, ok)
}
