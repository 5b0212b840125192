// Package credstore implements the PUF-ACS credential store (C4): a
// persistent mapping from the current hashed-chain MAC to a supplicant's
// base identity, long-term public point, and remaining authentication
// counter (PUF-ACS design document Section 4.4).
package credstore

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dantte-lp/pufacs/internal/mac"
	"github.com/dantte-lp/pufacs/internal/pufcrypto"
)

// DefaultCounter is the authentication budget assigned to a fresh entry
// when StoreEntry is called with counter <= 0.
const DefaultCounter = 100

// Sentinel errors for Store operations.
var (
	// ErrNotFound indicates no entry exists for the queried MAC.
	ErrNotFound = errors.New("credstore: entry not found")

	// ErrDuplicateCurrentMAC names a current_mac collision between two
	// entries. No Store method returns it: StoreEntry overwrites an
	// existing entry with the same current_mac.
	ErrDuplicateCurrentMAC = errors.New("credstore: current_mac already present")
)

// Entry is one credential-store record.
//
// Ephemerals c, d, t are never persisted here; they exist only within one
// handshake attempt, at the engine layer.
type Entry struct {
	// CurrentMAC is the hashed-chain MAC expected on the next PUF_CON.
	CurrentMAC mac.MAC

	// BaseMAC is the original PUF-derived identity.
	BaseMAC mac.MAC

	// A is the supplicant's long-term public point (A = G*a). A never
	// mutates after registration.
	A pufcrypto.Point

	// Counter is the number of remaining allowed authentications.
	Counter int
}

// QueryResult is what Query returns on a hit.
type QueryResult struct {
	BaseMAC mac.MAC
	A       pufcrypto.Point
	Valid   bool
}

// Store is the in-memory credential store, indexed by current_mac. It is
// safe for concurrent use. Persistence is handled separately by the Fetch
// and Sync methods in csv.go (PUF-ACS design document Section 4.4:
// "fetch"/"sync").
type Store struct {
	mu      sync.RWMutex
	entries map[mac.MAC]*Entry
	log     *slog.Logger
}

// Option configures a Store at construction.
type Option func(*Store)

// WithLogger attaches a structured logger; entries are otherwise silent.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.log = logger
	}
}

// New builds an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[mac.MAC]*Entry),
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StoreEntry inserts or overwrites an entry, keyed by hashedMAC
// (PUF-ACS design document Section 4.4: "store(base_mac, A, hashed_mac,
// counter=100)"). A counter <= 0 is normalized to DefaultCounter.
func (s *Store) StoreEntry(baseMAC mac.MAC, a pufcrypto.Point, hashedMAC mac.MAC, counter int) {
	if counter <= 0 {
		counter = DefaultCounter
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[hashedMAC] = &Entry{
		CurrentMAC: hashedMAC,
		BaseMAC:    baseMAC,
		A:          a,
		Counter:    counter,
	}
	s.log.Debug("credential stored", "base_mac", baseMAC, "current_mac", hashedMAC, "counter", counter)
}

// Query looks up m. On a hit with decrement=true it advances
// current_mac <- hash^1(current_mac) and decrements Counter; if the
// resulting Counter reaches zero the entry is removed. With
// decrement=false the entry is returned unchanged (read-only
// introspection). On a miss it returns a zero QueryResult with Valid=false
// (PUF-ACS design document Section 4.4: "query" is the single point of
// hash-chain advance on the Authenticator side).
func (s *Store) Query(m mac.MAC, decrement bool) QueryResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[m]
	if !ok {
		return QueryResult{}
	}

	result := QueryResult{BaseMAC: entry.BaseMAC, A: entry.A, Valid: true}
	if !decrement {
		return result
	}

	delete(s.entries, m)
	entry.Counter--
	if entry.Counter <= 0 {
		s.log.Info("credential counter exhausted, entry removed", "base_mac", entry.BaseMAC, "current_mac", m)
		return result
	}
	entry.CurrentMAC = entry.CurrentMAC.Hashed(1)
	s.entries[entry.CurrentMAC] = entry
	s.log.Debug("credential advanced", "base_mac", entry.BaseMAC, "next_mac", entry.CurrentMAC, "counter", entry.Counter)
	return result
}

// Len returns the number of entries currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// snapshot returns a defensive copy of all entries, for Sync.
func (s *Store) snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

// Snapshot returns a defensive copy of all entries without perturbing any
// of them (unlike Query, it never advances a hash chain or decrements a
// counter). Intended for monitoring and introspection call sites, such as
// the status endpoint in internal/server, that must not affect the
// credential store's protocol state.
func (s *Store) Snapshot() []Entry {
	return s.snapshot()
}

// load replaces the store's contents wholesale, for Fetch.
func (s *Store) load(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[mac.MAC]*Entry, len(entries))
	for i := range entries {
		e := entries[i]
		s.entries[e.CurrentMAC] = &e
	}
}

// errPrefix is the common error prefix for Store method failures.
const errPrefix = "credstore"

func wrapErr(op string, err error) error {
	return fmt.Errorf("%s: %s: %w", errPrefix, op, err)
}
