package credstore

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/dantte-lp/pufacs/internal/mac"
	"github.com/dantte-lp/pufacs/internal/pufcrypto"
)

// csvColumns is the fixed column count of a credential-store row:
// current_mac, base_mac, A (base64), counter.
const csvColumns = 4

// Fetch loads entries from the CSV file at path (PUF-ACS design document
// Section 4.4: "fetch(url)"). A missing file is not an error; it yields an
// empty store, matching the documented "out-of-band" persistence contract.
func (s *Store) Fetch(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.load(nil)
			s.log.Info("credential store resource absent, starting empty", "path", path)
			return nil
		}
		return wrapErr("Fetch", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = csvColumns
	records, err := r.ReadAll()
	if err != nil {
		return wrapErr("Fetch", err)
	}

	entries := make([]Entry, 0, len(records))
	for i, row := range records {
		e, err := decodeRow(row)
		if err != nil {
			return wrapErr("Fetch", fmt.Errorf("row %d: %w", i, err))
		}
		entries = append(entries, e)
	}
	s.load(entries)
	s.log.Info("credential store loaded", "path", path, "entries", len(entries))
	return nil
}

// Sync atomically persists current entries to the CSV file at path
// (PUF-ACS design document Section 4.4: "sync(url)", "must be durable on
// return"). It writes to a temporary file in the same directory and
// renames over the target, so a concurrent reader never observes a
// partial write.
func (s *Store) Sync(path string) error {
	tmp, err := os.CreateTemp(fileDir(path), "credstore-*.tmp")
	if err != nil {
		return wrapErr("Sync", err)
	}
	tmpName := tmp.Name()

	w := csv.NewWriter(tmp)
	for _, e := range s.snapshot() {
		if err := w.Write(encodeRow(e)); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return wrapErr("Sync", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return wrapErr("Sync", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return wrapErr("Sync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return wrapErr("Sync", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return wrapErr("Sync", err)
	}
	s.log.Debug("credential store synced", "path", path)
	return nil
}

func encodeRow(e Entry) []string {
	aB64, err := e.A.Base64()
	if err != nil {
		// The identity point never occurs for a registered long-term key;
		// encode as empty and let decodeRow reject it on reload.
		aB64 = ""
	}
	return []string{
		e.CurrentMAC.Hex(),
		e.BaseMAC.Hex(),
		aB64,
		strconv.Itoa(e.Counter),
	}
}

func decodeRow(row []string) (Entry, error) {
	current, err := mac.ParseHex(row[0])
	if err != nil {
		return Entry{}, err
	}
	base, err := mac.ParseHex(row[1])
	if err != nil {
		return Entry{}, err
	}
	a, err := pufcrypto.PointFromBase64(row[2])
	if err != nil {
		return Entry{}, err
	}
	counter, err := strconv.Atoi(row[3])
	if err != nil {
		return Entry{}, err
	}
	return Entry{CurrentMAC: current, BaseMAC: base, A: a, Counter: counter}, nil
}

// fileDir returns the directory portion of path, or "." if path has none.
func fileDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
