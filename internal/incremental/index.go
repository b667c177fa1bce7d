// Package incremental tracks per-tile content hashes across runs so a
// re-slice only regenerates tiles whose source geometry actually changed,
// and prunes tiles that no longer exist.
package incremental

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/pspoerri/mesh3dtiles/internal/blobstore"
)

const indexFile = "index.json"

// Entry records one tile's last-known content hash.
type Entry struct {
	Key          string `json:"key"`
	Hash         string `json:"hash"`          // full 32-byte SHA-256 digest, hex-encoded
	ShortHash    string `json:"short_hash"`     // first 16 hex chars of Hash, for compact logs/diffs
	TriangleCount int   `json:"triangle_count"`
}

// TileIndex is the persisted record of every tile produced by the last run.
type TileIndex struct {
	Entries map[string]Entry `json:"entries"`
}

// NewTileIndex returns an empty index, as used on a non-incremental
// (from-scratch) run.
func NewTileIndex() *TileIndex {
	return &TileIndex{Entries: make(map[string]Entry)}
}

// LoadTileIndex reads index.json from store. A missing index.json is not
// an error — it simply means this is the first run.
func LoadTileIndex(ctx context.Context, store blobstore.Store) (*TileIndex, error) {
	data, err := store.Get(ctx, indexFile)
	if err != nil {
		if _, ok := err.(*blobstore.NotFoundError); ok {
			return NewTileIndex(), nil
		}
		return nil, fmt.Errorf("incremental: loading %s: %w", indexFile, err)
	}

	var idx TileIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("incremental: parsing %s: %w", indexFile, err)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]Entry)
	}
	return &idx, nil
}

// Persist writes the index back to store as index.json.
func (idx *TileIndex) Persist(ctx context.Context, store blobstore.Store) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("incremental: marshaling %s: %w", indexFile, err)
	}
	if err := store.Put(ctx, indexFile, data); err != nil {
		return fmt.Errorf("incremental: writing %s: %w", indexFile, err)
	}
	return nil
}

// HashTile computes an Entry's hash fields for a tile's encoded bytes.
func HashTile(key string, data []byte, triangleCount int) Entry {
	sum := sha256.Sum256(data)
	full := hex.EncodeToString(sum[:])
	return Entry{
		Key:           key,
		Hash:          full,
		ShortHash:     full[:16],
		TriangleCount: triangleCount,
	}
}

// Unchanged reports whether newEntry's content hash matches what the index
// already recorded for the same key.
func (idx *TileIndex) Unchanged(newEntry Entry) bool {
	old, ok := idx.Entries[newEntry.Key]
	return ok && old.Hash == newEntry.Hash
}

// Exists reports whether key has a prior entry, used to classify a newly
// encoded tile as added (no prior entry) or updated (prior entry, changed
// hash) before Update overwrites it.
func (idx *TileIndex) Exists(key string) bool {
	_, ok := idx.Entries[key]
	return ok
}

// Update records newEntry, replacing any prior entry for the same key.
func (idx *TileIndex) Update(e Entry) {
	idx.Entries[e.Key] = e
}

// Remove deletes a key's entry, e.g. once its tile has been swept.
func (idx *TileIndex) Remove(key string) {
	delete(idx.Entries, key)
}

// Keys returns every key currently tracked, for diffing against a fresh run.
func (idx *TileIndex) Keys() []string {
	out := make([]string, 0, len(idx.Entries))
	for k := range idx.Entries {
		out = append(out, k)
	}
	return out
}
