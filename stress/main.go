// Stress harness for the sqlite3 package.
//
// Multiple workers hammer one database file through independent connections
// while a checkpoint loop cycles the WAL and an integrity loop verifies the
// file. Lock contention is absorbed by per-connection busy handlers; every
// retry shows up in the stats.
//
// Configuration comes from the environment: DB_PATH, NUM_WORKERS,
// CHECKPOINT_INTERVAL_MS and INTEGRITY_INTERVAL_MS.

package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/atomic"

	"github.com/nativesql/sqlite3"
)

type stats struct {
	inserts     atomic.Int64
	updates     atomic.Int64
	deletes     atomic.Int64
	selects     atomic.Int64
	busyRetries atomic.Int64
	checkpoints atomic.Int64
	errors      atomic.Int64
}

var (
	st stats
	// pauseMu pauses the write load during integrity checks. Workers and the
	// checkpoint loop hold the read side, the integrity loop the write side.
	pauseMu sync.RWMutex
)

func main() {
	dbPath := envStr("DB_PATH", "stress.db")
	numWorkers := envInt("NUM_WORKERS", 10)
	checkpointEvery := time.Duration(envInt("CHECKPOINT_INTERVAL_MS", 1000)) * time.Millisecond
	integrityEvery := time.Duration(envInt("INTEGRITY_INTERVAL_MS", 30000)) * time.Millisecond

	version, err := sqlite3.Version()
	if err != nil {
		log.Fatalf("Failed to load the sqlite3 library: %v", err)
	}
	log.Printf("Engine %s, database %s, %d workers", version, dbPath, numWorkers)

	setup, err := sqlite3.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	if err := setup.Execute("PRAGMA journal_mode=WAL"); err != nil {
		log.Fatalf("Failed to enable WAL: %v", err)
	}
	err = setup.Execute("CREATE TABLE IF NOT EXISTS records (id INTEGER PRIMARY KEY, name TEXT, value INTEGER, data BLOB)")
	if err != nil {
		log.Fatalf("Failed to create table: %v", err)
	}
	if err := setup.Close(); err != nil {
		log.Fatalf("Failed to close setup connection: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go checkpointLoop(ctx, &wg, dbPath, checkpointEvery)
	go integrityLoop(ctx, &wg, dbPath, integrityEvery)
	go statsLoop(ctx, &wg)
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go worker(ctx, &wg, i, dbPath)
	}
	wg.Wait()

	if err := runIntegrityCheck(dbPath); err != nil {
		log.Fatalf("Final integrity check failed: %v", err)
	}
	log.Printf("Final integrity check passed")
	reportStats()
}

func worker(ctx context.Context, wg *sync.WaitGroup, id int, dbPath string) {
	defer wg.Done()

	conn, err := sqlite3.Open(dbPath)
	if err != nil {
		log.Printf("[worker-%d] open failed: %v", id, err)
		st.errors.Inc()
		return
	}
	defer conn.Close()
	err = conn.SetBusyHandler(func(retries int) bool {
		st.busyRetries.Inc()
		if retries > 1000 {
			return false
		}
		time.Sleep(time.Millisecond)
		return true
	})
	if err != nil {
		log.Printf("[worker-%d] busy handler failed: %v", id, err)
		st.errors.Inc()
		return
	}

	ins, err := conn.Prepare("INSERT INTO records (name, value, data) VALUES (?, ?, ?)")
	if err != nil {
		log.Printf("[worker-%d] prepare failed: %v", id, err)
		st.errors.Inc()
		return
	}
	defer ins.Close()
	upd, err := conn.Prepare("UPDATE records SET value = ? WHERE id = ?")
	if err != nil {
		log.Printf("[worker-%d] prepare failed: %v", id, err)
		st.errors.Inc()
		return
	}
	defer upd.Close()
	del, err := conn.Prepare("DELETE FROM records WHERE id = ?")
	if err != nil {
		log.Printf("[worker-%d] prepare failed: %v", id, err)
		st.errors.Inc()
		return
	}
	defer del.Close()
	sel, err := conn.Prepare("SELECT value FROM records WHERE id = ?")
	if err != nil {
		log.Printf("[worker-%d] prepare failed: %v", id, err)
		st.errors.Inc()
		return
	}
	defer sel.Close()

	rng := rand.New(rand.NewSource(int64(id) + time.Now().UnixNano()))
	data := make([]byte, 64)
	for ctx.Err() == nil {
		pauseMu.RLock()
		op := rng.Intn(100)
		switch {
		case op < 50:
			rng.Read(data)
			step(ins, &st.inserts,
				ins.Bind(1, fmt.Sprintf("record_%d_%d", id, rng.Int63())),
				ins.Bind(2, rng.Intn(10000)),
				ins.Bind(3, data))
		case op < 70:
			step(upd, &st.updates,
				upd.Bind(1, rng.Intn(10000)),
				upd.Bind(2, rng.Intn(100000)+1))
		case op < 80:
			step(del, &st.deletes,
				del.Bind(1, rng.Intn(100000)+1))
		default:
			step(sel, &st.selects,
				sel.Bind(1, rng.Intn(100000)+1))
		}
		pauseMu.RUnlock()
		time.Sleep(time.Duration(1+rng.Intn(10)) * time.Millisecond)
	}
}

// step drives one statement run to completion and resets it, counting the
// outcome. Bind errors are passed in so call sites stay flat.
func step(stmt *sqlite3.Statement, counter *atomic.Int64, bindErrs ...error) {
	for _, err := range bindErrs {
		if err != nil {
			st.errors.Inc()
			return
		}
	}
	defer stmt.Reset()
	for {
		state, err := stmt.Step()
		if err != nil {
			st.errors.Inc()
			return
		}
		if state == sqlite3.DONE {
			counter.Inc()
			return
		}
	}
}

func checkpointLoop(ctx context.Context, wg *sync.WaitGroup, dbPath string, interval time.Duration) {
	defer wg.Done()

	conn, err := sqlite3.Open(dbPath)
	if err != nil {
		log.Printf("[checkpoint] open failed: %v", err)
		st.errors.Inc()
		return
	}
	defer conn.Close()
	if err := conn.BusyTimeout(5 * time.Second); err != nil {
		log.Printf("[checkpoint] busy timeout failed: %v", err)
		st.errors.Inc()
		return
	}

	modes := []string{"PASSIVE", "FULL", "RESTART", "TRUNCATE"}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pauseMu.RLock()
			mode := modes[rand.Intn(len(modes))]
			err := conn.Execute("PRAGMA wal_checkpoint(" + mode + ")")
			pauseMu.RUnlock()
			if err != nil {
				log.Printf("[checkpoint] %s failed: %v", mode, err)
				st.errors.Inc()
			} else {
				st.checkpoints.Inc()
			}
		}
	}
}

func integrityLoop(ctx context.Context, wg *sync.WaitGroup, dbPath string, interval time.Duration) {
	defer wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Println("[integrity] Pausing load for integrity check...")
			pauseMu.Lock()
			err := runIntegrityCheck(dbPath)
			pauseMu.Unlock()
			if err != nil {
				log.Fatalf("[integrity] DATABASE CORRUPTION DETECTED: %v", err)
			}
			log.Println("[integrity] Check passed, resuming load")
		}
	}
}

func runIntegrityCheck(dbPath string) error {
	conn, err := sqlite3.Open(dbPath, sqlite3.OPEN_READWRITE)
	if err != nil {
		return err
	}
	defer conn.Close()
	stmt, err := conn.Prepare("PRAGMA integrity_check")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for {
		state, err := stmt.Step()
		if err != nil {
			return err
		}
		if state == sqlite3.DONE {
			return nil
		}
		line, err := stmt.ColumnText(0)
		if err != nil {
			return err
		}
		if line != "ok" {
			return fmt.Errorf("integrity_check reported: %s", line)
		}
	}
}

func statsLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reportStats()
		}
	}
}

func reportStats() {
	log.Printf("Stats - Inserts: %d, Updates: %d, Deletes: %d, Selects: %d, BusyRetries: %d, Checkpoints: %d, Errors: %d",
		st.inserts.Load(),
		st.updates.Load(),
		st.deletes.Load(),
		st.selects.Load(),
		st.busyRetries.Load(),
		st.checkpoints.Load(),
		st.errors.Load(),
	)
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
