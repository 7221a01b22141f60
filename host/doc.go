// Package host runs a WebAssembly notebook kernel that talks to the widget
// plugin API.
//
// It wraps the wazero engine, instantiates the grist_host module from a
// hostfuncs.HandlerRegistry, and handles the low-level ABI of the guest
// (memory allocation, packed pointer and length pairs).
package host
