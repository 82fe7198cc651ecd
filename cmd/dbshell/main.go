// dbshell is an interactive console exercising the storage engine end to
// end: disk manager -> buffer pool -> B+-tree index, guarded by the lock
// manager and transaction manager. There is no SQL layer (out of scope);
// commands operate directly on one index under a single table name.
//
// Grounded on the teacher's main.go REPL (bufio.Scanner read-eval loop)
// upgraded to github.com/chzyer/readline, the only pack repo that builds
// an interactive DB console (yamoyamoto-GarakutaDB's test/select.go).
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"coredb/bplustree"
	"coredb/buffer"
	"coredb/dbconfig"
	"coredb/diskmanager"
	"coredb/lockmanager"
	"coredb/page"
	"coredb/txn"
)

const table lockmanager.TableID = "default"

func main() {
	dbPath := flag.String("db", "coredb.data", "backing file for the index")
	flag.Parse()

	fresh := true
	if stat, err := os.Stat(*dbPath); err == nil && stat.Size() > 0 {
		fresh = false
	}

	cfg := dbconfig.DefaultConfig()
	disk, err := diskmanager.Open(*dbPath, cfg.PageSize)
	if err != nil {
		fmt.Println("open:", err)
		return
	}
	defer disk.Close()

	bpm := buffer.NewManager(cfg.PoolSize, cfg.ReplacerK, disk, cfg.PageSize)

	var tree *bplustree.BPlusTree
	if fresh {
		tree, err = bplustree.New(bpm, cfg.LeafMaxSize, cfg.InternalMaxSize, bytes.Compare)
	} else {
		tree, err = bplustree.Open(bpm, page.ID(0), cfg.LeafMaxSize, cfg.InternalMaxSize, bytes.Compare)
	}
	if err != nil {
		fmt.Println("tree:", err)
		return
	}

	locks := lockmanager.New(cfg)
	locks.StartDeadlockDetection()
	defer locks.StopDeadlockDetection()
	txns := txn.NewManager(locks)

	var current *txn.Transaction

	rl, err := readline.New("coredb> ")
	if err != nil {
		fmt.Println("readline:", err)
		return
	}
	defer rl.Close()

	fmt.Println("coredb shell. Commands: begin, commit, abort, insert <k> <v>, get <k>, remove <k>, scan, dump, exit")
	for {
		line, err := rl.Readline()
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd := fields[0]

		switch cmd {
		case "exit", "quit":
			bpm.FlushAll()
			return

		case "begin":
			if current != nil {
				fmt.Println("a transaction is already active")
				continue
			}
			current = txns.Begin(cfg.IsolationLevel)
			fmt.Printf("txn %d started (%s)\n", current.ID(), cfg.IsolationLevel)

		case "commit":
			if current == nil {
				fmt.Println("no active transaction")
				continue
			}
			if err := txns.Commit(current); err != nil {
				fmt.Println("commit:", err)
			}
			current = nil

		case "abort":
			if current == nil {
				fmt.Println("no active transaction")
				continue
			}
			if err := txns.Abort(current); err != nil {
				fmt.Println("abort:", err)
			}
			current = nil

		case "insert":
			if len(fields) != 3 {
				fmt.Println("usage: insert <key> <value>")
				continue
			}
			runWithLock(current, locks, txns, cfg, lockmanager.Exclusive, func() {
				ok, err := tree.Insert([]byte(fields[1]), []byte(fields[2]))
				report(ok, err)
			})

		case "remove":
			if len(fields) != 2 {
				fmt.Println("usage: remove <key>")
				continue
			}
			runWithLock(current, locks, txns, cfg, lockmanager.Exclusive, func() {
				err := tree.Remove([]byte(fields[1]))
				report(true, err)
			})

		case "get":
			if len(fields) != 2 {
				fmt.Println("usage: get <key>")
				continue
			}
			runWithLock(current, locks, txns, cfg, lockmanager.Shared, func() {
				val, found, err := tree.GetValue([]byte(fields[1]))
				if err != nil {
					fmt.Println("error:", err)
					return
				}
				if !found {
					fmt.Println("(not found)")
					return
				}
				fmt.Println(string(val))
			})

		case "scan":
			runWithLock(current, locks, txns, cfg, lockmanager.Shared, func() {
				it := tree.Begin()
				defer it.Close()
				n := 0
				for it.Valid() {
					fmt.Printf("%s -> %s\n", it.Key(), it.Value())
					n++
					it.Next()
				}
				fmt.Println(strconv.Itoa(n) + " entries")
			})

		case "dump":
			if err := tree.Dump(rl.Stdout()); err != nil {
				fmt.Println("dump:", err)
			}

		default:
			fmt.Println("unknown command:", cmd)
		}
	}
	fmt.Println("bye")
}

// runWithLock acquires mode on the single demo table for the active
// transaction, or a throwaway auto-committed one if none is open, then
// runs fn.
func runWithLock(current *txn.Transaction, locks *lockmanager.Manager, txns *txn.Manager, cfg dbconfig.Config, mode lockmanager.LockMode, fn func()) {
	t := current
	autoTxn := t == nil
	if autoTxn {
		t = txns.Begin(cfg.IsolationLevel)
	}
	if err := locks.LockTable(t, mode, table); err != nil {
		fmt.Println("lock:", err)
		if autoTxn {
			txns.Abort(t)
		}
		return
	}
	fn()
	if autoTxn {
		txns.Commit(t)
	}
}

func report(ok bool, err error) {
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(ok)
}
