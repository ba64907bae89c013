package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureNotices(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetWriter(&buf)
	SetColorEnabled(false)
	t.Cleanup(func() { SetWriter(nil) })
	return &buf
}

func TestNotices(t *testing.T) {
	tests := []struct {
		name string
		emit func()
		want string
	}{
		{"warn", func() { Warnf("key %q not in keychain", "prod") }, "Warning: key \"prod\" not in keychain\n"},
		{"error", func() { Errorf("exchange failed: %s", "timeout") }, "Error: exchange failed: timeout\n"},
		{"info", func() { Infof("stored %d key", 1) }, "stored 1 key\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureNotices(t)
			tt.emit()
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestStyles(t *testing.T) {
	SetColorEnabled(true)
	t.Cleanup(func() { SetColorEnabled(false) })

	assert.Equal(t, "\033[1mtitle\033[0m", Bold("title"))
	assert.Equal(t, "\033[32m✓\033[0m", OKTag())

	SetColorEnabled(false)
	assert.Equal(t, "title", Bold("title"))
	assert.Equal(t, "✗", FailTag())
}

func TestSection(t *testing.T) {
	SetColorEnabled(false)

	var buf bytes.Buffer
	Section(&buf, "Keychain")
	assert.Equal(t, "Keychain\n────────\n", buf.String())
}
