// Command tileinfo inspects a tileset produced by slice: it prints the
// tileset.json hierarchy summary and, if present, the incremental index's
// tile count and last change set.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/pspoerri/mesh3dtiles/internal/blobstore"
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tileinfo <tileset-dir>\n")
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return 1
	}
	dir := flag.Arg(0)

	store, err := blobstore.NewLocalFS(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tileinfo: opening %s: %v\n", dir, err)
		return 1
	}
	ctx := context.Background()

	raw, err := store.Get(ctx, "tileset.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "tileinfo: reading tileset.json: %v\n", err)
		return 1
	}

	var doc struct {
		Asset          struct{ Version string } `json:"asset"`
		GeometricError float64                  `json:"geometricError"`
		Root           tileNode                 `json:"root"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		fmt.Fprintf(os.Stderr, "tileinfo: parsing tileset.json: %v\n", err)
		return 1
	}

	fmt.Printf("tileset.json (asset version %s)\n", doc.Asset.Version)
	fmt.Printf("  root geometricError: %v\n", doc.GeometricError)

	total, maxDepth := summarize(doc.Root, 0)
	fmt.Printf("  tiles: %d\n", total)
	fmt.Printf("  depth: %d\n", maxDepth)

	if indexRaw, err := store.Get(ctx, "index.json"); err == nil {
		var idx struct {
			Entries map[string]json.RawMessage `json:"entries"`
		}
		if err := json.Unmarshal(indexRaw, &idx); err == nil {
			fmt.Printf("index.json: %d tracked tiles\n", len(idx.Entries))
		}
	}

	if deltaRaw, err := store.Get(ctx, "incremental_index.json"); err == nil {
		var cs struct {
			Added   []json.RawMessage `json:"added"`
			Updated []json.RawMessage `json:"updated"`
			Deleted []string          `json:"deleted"`
		}
		if err := json.Unmarshal(deltaRaw, &cs); err == nil {
			fmt.Printf("incremental_index.json: %d added, %d updated, %d deleted\n",
				len(cs.Added), len(cs.Updated), len(cs.Deleted))
		}
	}

	return 0
}

type tileNode struct {
	Content *struct {
		URI string `json:"uri"`
	} `json:"content,omitempty"`
	Children []tileNode `json:"children,omitempty"`
}

func summarize(n tileNode, depth int) (count, maxDepth int) {
	count = 1
	maxDepth = depth
	for _, c := range n.Children {
		childCount, childDepth := summarize(c, depth+1)
		count += childCount
		if childDepth > maxDepth {
			maxDepth = childDepth
		}
	}
	return
}
