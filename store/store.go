// Package store persists the feature index between sessions. Every
// backend satisfies the same contract: Load of an absent snapshot yields
// an empty index, Save atomically replaces the previous snapshot, and
// Load(Save(x)) reproduces x exactly.
package store

import (
	"fmt"

	"imagesearch/types"
)

// Store is the persistence contract for a feature index.
type Store interface {
	// Load deserializes the persisted index. Absent backing data yields
	// an empty index and no error; unreadable or corrupt data yields a
	// *PersistenceError so the caller can decide to degrade.
	Load() (types.Index, error)

	// Save atomically persists the index, replacing any prior snapshot.
	Save(idx types.Index) error

	Close() error
}

// PersistenceError reports an unreadable or unwritable index snapshot.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("index %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func validateEntry(id string, entry types.IndexEntry) error {
	if !entry.Feature.Valid() {
		return fmt.Errorf("entry %s has a %dx%d feature with %d pixel bytes",
			id, entry.Feature.Width, entry.Feature.Height, len(entry.Feature.Pix))
	}
	return nil
}
