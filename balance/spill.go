// Package balance implements the Balance Gatherer (spec §4.5): an
// append-only spill file of addresses touched during structural ingest,
// and the post-ingest balance phase that resolves current balances via
// batched eth_getBalance and writes them back through the store's
// single-writer discipline.
package balance

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/chainindex/evmindexer/storage"
)

// Spill is the addresses.txt accumulator described in spec §3 "Global
// progress record" / §6 "Persisted layout": one address per line,
// append-only, periodically deduplicated with an external sort.
type Spill struct {
	path string
}

// OpenSpill locates addresses.txt under dataDir. The file need not exist
// yet; Append creates it on first use.
func OpenSpill(dataDir string) *Spill {
	return &Spill{path: filepath.Join(dataDir, storage.SpillFileName)}
}

// Append adds addresses to the spill file, one per line (spec §4.4 step
// 12 "Append them to a plain text spill file").
func (s *Spill) Append(addresses []string) error {
	if len(addresses) == 0 {
		return nil
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("balance: open spill file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, addr := range addresses {
		if _, err := w.WriteString(addr); err != nil {
			return fmt.Errorf("balance: write spill file: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("balance: write spill file: %w", err)
		}
	}
	return w.Flush()
}

// Dedup runs an external sort-unique pass over the spill file to bound its
// size (spec §4.4 step 12 "run an external sort-unique pass on the file").
// A missing file is not an error: nothing has been spilled yet.
func (s *Spill) Dedup() error {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}

	tmp := s.path + ".sorted"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("balance: create sorted spill file: %w", err)
	}
	defer out.Close()

	cmd := exec.Command("sort", "-u", s.path)
	cmd.Stdout = out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("balance: external sort -u failed: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("balance: close sorted spill file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("balance: replace spill file with sorted copy: %w", err)
	}
	return nil
}

// ReadChunks reads the spill file and invokes fn with successive chunks of
// at most chunkSize unique-enough addresses (the file may not yet be fully
// deduplicated; callers tolerate duplicate resolution of the same
// address). A missing file yields no chunks.
func (s *Spill) ReadChunks(chunkSize int, fn func(chunk []string) error) error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("balance: open spill file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	chunk := make([]string, 0, chunkSize)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		chunk = append(chunk, line)
		if len(chunk) == chunkSize {
			if err := fn(chunk); err != nil {
				return err
			}
			chunk = chunk[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("balance: read spill file: %w", err)
	}
	if len(chunk) > 0 {
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the spill file at the end of a balance phase (spec §4.4
// "Delete the spill file at the end").
func (s *Spill) Delete() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("balance: delete spill file: %w", err)
	}
	return nil
}

// Path returns the spill file's location, for diagnostics.
func (s *Spill) Path() string { return s.path }
