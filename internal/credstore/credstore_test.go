package credstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dantte-lp/pufacs/internal/mac"
	"github.com/dantte-lp/pufacs/internal/pufcrypto"
)

func testEntry(t *testing.T, seed string, counter int) (mac.MAC, pufcrypto.Point, mac.MAC) {
	t.Helper()
	ctx := pufcrypto.NewDeterministicCryptoContext([]byte(seed))
	s, _ := ctx.RandScalar()
	a := pufcrypto.Generator().Mul(s)
	base, _ := mac.FromBytes([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06})
	current := base.Hashed(1)
	return base, a, current
}

func TestQueryMissReturnsInvalid(t *testing.T) {
	st := New()
	m, _ := mac.FromBytes([]byte{1, 2, 3, 4, 5, 6})
	res := st.Query(m, true)
	if res.Valid {
		t.Fatal("expected miss on empty store")
	}
}

func TestQueryAdvancesChainAndDecrementsCounter(t *testing.T) {
	st := New()
	base, a, current := testEntry(t, "cs-1", 3)
	st.StoreEntry(base, a, current, 3)

	res := st.Query(current, true)
	if !res.Valid || !res.BaseMAC.Equal(base) || !res.A.Equal(a) {
		t.Fatal("expected hit matching stored entry")
	}
	// The old current_mac must no longer resolve.
	if st.Query(current, true).Valid {
		t.Fatal("stale current_mac must not validate twice")
	}
	next := current.Hashed(1)
	res2 := st.Query(next, false)
	if !res2.Valid {
		t.Fatal("expected the advanced current_mac to be present")
	}
}

func TestCounterExhaustionRemovesEntry(t *testing.T) {
	st := New()
	base, a, current := testEntry(t, "cs-2", 1)
	st.StoreEntry(base, a, current, 1)

	res := st.Query(current, true)
	if !res.Valid {
		t.Fatal("expected one final successful query before exhaustion")
	}
	next := current.Hashed(1)
	if st.Query(next, true).Valid {
		t.Fatal("entry must be removed once counter reaches zero")
	}
	if st.Len() != 0 {
		t.Fatalf("expected empty store after exhaustion, got %d entries", st.Len())
	}
}

func TestQueryWithoutDecrementLeavesEntryUnchanged(t *testing.T) {
	st := New()
	base, a, current := testEntry(t, "cs-3", 5)
	st.StoreEntry(base, a, current, 5)

	st.Query(current, false)
	st.Query(current, false)
	res := st.Query(current, false)
	if !res.Valid {
		t.Fatal("read-only query must not advance or remove the entry")
	}
}

func TestSnapshotDoesNotPerturbStore(t *testing.T) {
	st := New()
	base, a, current := testEntry(t, "cs-4", 5)
	st.StoreEntry(base, a, current, 5)

	entries := st.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("Snapshot() returned %d entries, want 1", len(entries))
	}
	if entries[0].CurrentMAC != current || entries[0].Counter != 5 {
		t.Fatalf("Snapshot() entry = %+v, want current_mac=%v counter=5", entries[0], current)
	}

	res := st.Query(current, false)
	if !res.Valid || res.BaseMAC != base {
		t.Fatal("Snapshot must not advance or remove the entry it copied")
	}
}

func TestFetchMissingFileIsEmptyNotError(t *testing.T) {
	st := New()
	dir := t.TempDir()
	if err := st.Fetch(filepath.Join(dir, "absent.csv")); err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if st.Len() != 0 {
		t.Fatal("expected empty store")
	}
}

func TestSyncFetchRoundTrip(t *testing.T) {
	st := New()
	base, a, current := testEntry(t, "cs-4", 7)
	st.StoreEntry(base, a, current, 7)

	dir := t.TempDir()
	path := filepath.Join(dir, "Supplicant.csv")
	if err := st.Sync(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}

	reloaded := New()
	if err := reloaded.Fetch(path); err != nil {
		t.Fatal(err)
	}
	if reloaded.Len() != 1 {
		t.Fatalf("expected 1 entry after reload, got %d", reloaded.Len())
	}
	res := reloaded.Query(current, false)
	if !res.Valid || !res.BaseMAC.Equal(base) || !res.A.Equal(a) {
		t.Fatal("reloaded entry does not match what was synced")
	}
}
