// Package hostfuncs implements the host side of the plugin API boundary.
// Handlers are plain Go functions keyed by method name; they have no
// dependency on a particular transport and are shared by the in-process
// simulator and the WebAssembly host launcher.
package hostfuncs
