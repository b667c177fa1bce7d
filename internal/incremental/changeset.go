package incremental

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pspoerri/mesh3dtiles/internal/blobstore"
)

// DeltaEntry names one tile's key and content hash, as recorded in the
// added and updated lists of a ChangeSet.
type DeltaEntry struct {
	Key  string `json:"key"`
	Hash string `json:"hash"`
}

// ChangeSet is the delta recorded by one incremental run, per spec.md §6:
// tiles newly present (Added), tiles that existed before but whose content
// hash changed (Updated), and previously-tracked keys this run did not
// (re)produce and therefore swept from the store (Deleted). A no-op rerun
// on unchanged input yields a ChangeSet with all three lists empty.
type ChangeSet struct {
	Added   []DeltaEntry `json:"added"`
	Updated []DeltaEntry `json:"updated"`
	Deleted []string     `json:"deleted"`
}

// Compute assembles a ChangeSet from the added/updated entries classified
// while encoding tiles (see pipeline.encodeTile) and the obsolete keys
// identified by ObsoleteKeys.
func Compute(added, updated []Entry, obsolete []string) ChangeSet {
	cs := ChangeSet{Deleted: append([]string{}, obsolete...)}
	for _, e := range added {
		cs.Added = append(cs.Added, DeltaEntry{Key: e.Key, Hash: e.Hash})
	}
	for _, e := range updated {
		cs.Updated = append(cs.Updated, DeltaEntry{Key: e.Key, Hash: e.Hash})
	}
	return cs
}

// ObsoleteKeys returns every key tracked in prev that touched does not
// contain: tiles this run did not (re)produce, whether because their level
// fell outside this run's max_level (scenario 5) or their tile-triangle
// query came back empty this time.
func ObsoleteKeys(prev *TileIndex, touched map[string]struct{}) []string {
	var obsolete []string
	for key := range prev.Entries {
		if _, ok := touched[key]; ok {
			continue
		}
		obsolete = append(obsolete, key)
	}
	return obsolete
}

// Sweep deletes every key in obsolete from store and removes it from idx,
// returning the number of keys actually deleted.
func Sweep(ctx context.Context, store blobstore.Store, idx *TileIndex, obsolete []string) (int, error) {
	n := 0
	for _, key := range obsolete {
		if err := store.Delete(ctx, key); err != nil {
			return n, fmt.Errorf("incremental: sweeping %s: %w", key, err)
		}
		idx.Remove(key)
		n++
	}
	return n, nil
}

// WriteDelta persists cs as incremental_index.json.
func WriteDelta(ctx context.Context, store blobstore.Store, cs ChangeSet) error {
	data, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		return fmt.Errorf("incremental: marshaling incremental_index.json: %w", err)
	}
	if err := store.Put(ctx, "incremental_index.json", data); err != nil {
		return fmt.Errorf("incremental: writing incremental_index.json: %w", err)
	}
	return nil
}
