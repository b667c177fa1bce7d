package incremental

import (
	"bytes"
	"context"
	"testing"

	"github.com/pspoerri/mesh3dtiles/internal/blobstore"
)

func TestHashTileDeterministic(t *testing.T) {
	a := HashTile("0/0/0.b3dm", []byte("payload"), 10)
	b := HashTile("0/0/0.b3dm", []byte("payload"), 10)
	if a.Hash != b.Hash {
		t.Errorf("HashTile() not deterministic: %s != %s", a.Hash, b.Hash)
	}
	if len(a.ShortHash) != 16 {
		t.Errorf("ShortHash length = %d, want 16", len(a.ShortHash))
	}
	if !bytes.HasPrefix([]byte(a.Hash), []byte(a.ShortHash)) {
		t.Errorf("ShortHash %q is not a prefix of Hash %q", a.ShortHash, a.Hash)
	}
}

func TestTileIndexUnchanged(t *testing.T) {
	idx := NewTileIndex()
	e := HashTile("0/0/0.b3dm", []byte("v1"), 5)
	idx.Update(e)

	if !idx.Unchanged(e) {
		t.Error("Unchanged() = false for identical entry, want true")
	}

	changed := HashTile("0/0/0.b3dm", []byte("v2"), 5)
	if idx.Unchanged(changed) {
		t.Error("Unchanged() = true for differing content, want false")
	}
}

func TestLoadPersistRoundTrip(t *testing.T) {
	store, _ := blobstore.NewLocalFS(t.TempDir())
	ctx := context.Background()

	idx := NewTileIndex()
	idx.Update(HashTile("0/0/0.b3dm", []byte("a"), 1))
	if err := idx.Persist(ctx, store); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	loaded, err := LoadTileIndex(ctx, store)
	if err != nil {
		t.Fatalf("LoadTileIndex() error = %v", err)
	}
	if len(loaded.Entries) != 1 {
		t.Fatalf("loaded %d entries, want 1", len(loaded.Entries))
	}
}

func TestLoadTileIndexMissingIsEmpty(t *testing.T) {
	store, _ := blobstore.NewLocalFS(t.TempDir())
	idx, err := LoadTileIndex(context.Background(), store)
	if err != nil {
		t.Fatalf("LoadTileIndex() error = %v", err)
	}
	if len(idx.Entries) != 0 {
		t.Errorf("entries = %d, want 0 on first run", len(idx.Entries))
	}
}

func TestObsoleteKeys(t *testing.T) {
	prev := NewTileIndex()
	prev.Update(Entry{Key: "0/0/0/0.b3dm"})
	prev.Update(Entry{Key: "1/0/0/0.b3dm"})
	prev.Update(Entry{Key: "5/0/0/0.b3dm"})

	touched := map[string]struct{}{"0/0/0/0.b3dm": {}}

	obsolete := ObsoleteKeys(prev, touched)
	if len(obsolete) != 2 {
		t.Fatalf("ObsoleteKeys() = %v, want 2 entries", obsolete)
	}
	want := map[string]bool{"1/0/0/0.b3dm": true, "5/0/0/0.b3dm": true}
	for _, k := range obsolete {
		if !want[k] {
			t.Errorf("ObsoleteKeys() returned unexpected key %q", k)
		}
	}
}

func TestComputeChangeSetExcludesUnchanged(t *testing.T) {
	added := []Entry{{Key: "0/0/0/0.b3dm", Hash: "h1"}}
	updated := []Entry{{Key: "0/1/0/0.b3dm", Hash: "h2"}}

	cs := Compute(added, updated, nil)

	if len(cs.Added) != 1 || cs.Added[0].Key != "0/0/0/0.b3dm" {
		t.Errorf("Added = %v, want [0/0/0/0.b3dm]", cs.Added)
	}
	if len(cs.Updated) != 1 || cs.Updated[0].Key != "0/1/0/0.b3dm" {
		t.Errorf("Updated = %v, want [0/1/0/0.b3dm]", cs.Updated)
	}
	if len(cs.Deleted) != 0 {
		t.Errorf("Deleted = %v, want empty", cs.Deleted)
	}
}

func TestComputeChangeSetNoOpIsEmpty(t *testing.T) {
	cs := Compute(nil, nil, nil)
	if len(cs.Added) != 0 || len(cs.Updated) != 0 || len(cs.Deleted) != 0 {
		t.Errorf("Compute(nil, nil, nil) = %+v, want an entirely empty ChangeSet", cs)
	}
}

func TestSweepDeletesObsoleteTiles(t *testing.T) {
	store, _ := blobstore.NewLocalFS(t.TempDir())
	ctx := context.Background()
	store.Put(ctx, "1/0/0/0.b3dm", []byte("stale"))

	idx := NewTileIndex()
	idx.Update(Entry{Key: "1/0/0/0.b3dm"})

	n, err := Sweep(ctx, store, idx, []string{"1/0/0/0.b3dm"})
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Sweep() deleted %d, want 1", n)
	}
	if _, err := store.Get(ctx, "1/0/0/0.b3dm"); err == nil {
		t.Error("tile still present after Sweep()")
	}
	if _, ok := idx.Entries["1/0/0/0.b3dm"]; ok {
		t.Error("index still tracks swept tile")
	}
}

func TestTileIndexExists(t *testing.T) {
	idx := NewTileIndex()
	if idx.Exists("0/0/0/0.b3dm") {
		t.Error("Exists() = true on empty index, want false")
	}
	idx.Update(Entry{Key: "0/0/0/0.b3dm"})
	if !idx.Exists("0/0/0/0.b3dm") {
		t.Error("Exists() = false after Update, want true")
	}
}
