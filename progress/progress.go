// Package progress persists the indexer's four durable counters to the
// progress.txt sidecar file (spec §3 "Global progress record", §5
// "Recovery policy"). It is the only durable control state outside the
// store, and is written only by the ingest task.
package progress

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"github.com/chainindex/evmindexer/storage"
)

// Counters is the four newline-separated decimal counters written after
// each committed batch (spec §3).
type Counters struct {
	HighestBlock       uint64
	HighestTokenTx      uint64
	HighestContractCode uint64
	HighestInternalTx   uint64
}

// Tracker owns progress.txt and the inter-process file lock that
// guarantees only one ingest task writes it at a time, across restarts.
type Tracker struct {
	path string
	lock *flock.Flock
}

// Open locates progress.txt under dataDir, acquiring the exclusive
// inter-process lock. Callers must call Close when the ingest task exits.
func Open(dataDir string) (*Tracker, error) {
	path := filepath.Join(dataDir, storage.ProgressFileName)
	lock := flock.New(path + ".lock")

	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("progress: acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("progress: another process already holds the writer lock on %s", path)
	}

	return &Tracker{path: path, lock: lock}, nil
}

// Close releases the inter-process lock.
func (t *Tracker) Close() error {
	return t.lock.Unlock()
}

// Read loads the four counters from progress.txt. A missing file is not an
// error: it yields zero counters, the state of a fresh deployment (spec §5
// "on restart, the ingest task reads the progress file and resumes at the
// next block").
func (t *Tracker) Read() (Counters, error) {
	f, err := os.Open(t.path)
	if os.IsNotExist(err) {
		return Counters{}, nil
	}
	if err != nil {
		return Counters{}, fmt.Errorf("progress: open %s: %w", t.path, err)
	}
	defer f.Close()

	var values [4]uint64
	scanner := bufio.NewScanner(f)
	for i := 0; i < 4 && scanner.Scan(); i++ {
		line := strings.TrimSpace(scanner.Text())
		v, err := strconv.ParseUint(line, 10, 64)
		if err != nil {
			return Counters{}, fmt.Errorf("progress: parse line %d (%q): %w", i, line, err)
		}
		values[i] = v
	}
	if err := scanner.Err(); err != nil {
		return Counters{}, fmt.Errorf("progress: read %s: %w", t.path, err)
	}

	return Counters{
		HighestBlock:        values[0],
		HighestTokenTx:       values[1],
		HighestContractCode:  values[2],
		HighestInternalTx:    values[3],
	}, nil
}

// Commit writes the four counters atomically (write to a temp file, fsync,
// rename) so a crash mid-write never leaves progress.txt corrupt or
// half-updated (spec §4.4 step 13: "Update the progress file with all four
// counters").
func (t *Tracker) Commit(c Counters) error {
	tmp := t.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("progress: create temp file: %w", err)
	}

	body := fmt.Sprintf("%d\n%d\n%d\n%d\n",
		c.HighestBlock, c.HighestTokenTx, c.HighestContractCode, c.HighestInternalTx)
	if _, err := f.WriteString(body); err != nil {
		f.Close()
		return fmt.Errorf("progress: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("progress: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("progress: close temp file: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("progress: rename temp file: %w", err)
	}
	return nil
}
