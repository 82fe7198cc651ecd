// Seed populates a fresh index file with sample keys, exercising a
// transaction and the lock manager around the inserts. Run: go run
// ./cmd/seed, then inspect with ./cmd/inspect_idx coredb.data.
package main

import (
	"bytes"
	"fmt"
	"os"

	"coredb/bplustree"
	"coredb/buffer"
	"coredb/dbconfig"
	"coredb/diskmanager"
	"coredb/lockmanager"
	"coredb/txn"
)

const dbPath = "coredb.data"
const table lockmanager.TableID = "default"

func main() {
	os.Remove(dbPath)

	cfg := dbconfig.DefaultConfig()
	disk, err := diskmanager.Open(dbPath, cfg.PageSize)
	if err != nil {
		fmt.Println("open:", err)
		os.Exit(1)
	}
	defer disk.Close()

	bpm := buffer.NewManager(cfg.PoolSize, cfg.ReplacerK, disk, cfg.PageSize)
	tree, err := bplustree.New(bpm, cfg.LeafMaxSize, cfg.InternalMaxSize, bytes.Compare)
	if err != nil {
		fmt.Println("tree:", err)
		os.Exit(1)
	}

	locks := lockmanager.New(cfg)
	txns := txn.NewManager(locks)

	samples := map[string]string{
		"alice": "20",
		"bob":   "21",
		"carol": "19",
		"dave":  "22",
		"erin":  "23",
	}

	t := txns.Begin(cfg.IsolationLevel)
	if err := locks.LockTable(t, lockmanager.Exclusive, table); err != nil {
		fmt.Println("lock:", err)
		os.Exit(1)
	}
	for k, v := range samples {
		ok, err := tree.Insert([]byte(k), []byte(v))
		if err != nil {
			fmt.Printf("insert %s: %v\n", k, err)
			continue
		}
		fmt.Printf("insert %s=%s ok=%v\n", k, v, ok)
	}
	if err := txns.Commit(t); err != nil {
		fmt.Println("commit:", err)
		os.Exit(1)
	}

	if err := bpm.FlushAll(); err != nil {
		fmt.Println("flush:", err)
		os.Exit(1)
	}

	fmt.Println("done, wrote", dbPath)
}
