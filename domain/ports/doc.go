// Package ports defines interfaces for infrastructure operations.
// These ports enable dependency inversion - the bridge depends on abstractions
// of the cross-context transport and the host display surface, and
// infrastructure adapters implement these interfaces.
package ports
