//go:build !js

package loader

const inBrowser = false
