//go:build js

package loader

// Built for a JavaScript host (browser or wasm runtime).
const inBrowser = true
