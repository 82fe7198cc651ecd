// Inspect a B+-tree index file, walking it from the header page and
// printing every node. Usage: go run ./cmd/inspect_idx <path-to-index-file>
package main

import (
	"bytes"
	"fmt"
	"os"

	"coredb/bplustree"
	"coredb/buffer"
	"coredb/dbconfig"
	"coredb/diskmanager"
	"coredb/page"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <index-file>\n", os.Args[0])
		os.Exit(1)
	}

	cfg := dbconfig.DefaultConfig()
	disk, err := diskmanager.Open(os.Args[1], cfg.PageSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		os.Exit(1)
	}
	defer disk.Close()

	bpm := buffer.NewManager(cfg.PoolSize, cfg.ReplacerK, disk, cfg.PageSize)
	tree, err := bplustree.Open(bpm, page.ID(0), cfg.LeafMaxSize, cfg.InternalMaxSize, bytes.Compare)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open tree: %v\n", err)
		os.Exit(1)
	}

	if err := tree.Dump(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "dump: %v\n", err)
		os.Exit(1)
	}
}
