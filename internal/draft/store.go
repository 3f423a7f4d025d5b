// Package draft persists in-progress answer sets so an attempt survives a
// client crash or restart. Entries are keyed by module id; one active
// attempt per module per client is assumed, so last-write-wins is fine.
package draft

import "context"

// Store is the draft persistence surface.
type Store interface {
	// Get returns the stored draft bytes for a module, or ok=false when no
	// draft exists. Corrupt payloads are returned as-is; deciding whether
	// they parse is the caller's concern.
	Get(ctx context.Context, moduleID string) (data []byte, ok bool, err error)

	// Set overwrites the draft for a module.
	Set(ctx context.Context, moduleID string, data []byte) error

	// Clear removes the draft for a module. Clearing an absent draft is not
	// an error.
	Clear(ctx context.Context, moduleID string) error

	// Close releases backend resources.
	Close() error
}
