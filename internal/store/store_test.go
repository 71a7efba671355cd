package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestSQLiteStore_RoundTrip tests set, get, overwrite and delete
func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testSQLite(t)

	if err := s.Set(ctx, "k1", []byte("v1")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	got, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("Get() = %q, want v1", got)
	}

	if err := s.Set(ctx, "k1", []byte("v2")); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}
	got, _ = s.Get(ctx, "k1")
	if string(got) != "v2" {
		t.Errorf("Get() after overwrite = %q, want v2", got)
	}

	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := s.Get(ctx, "k1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete = %v, want ErrNotFound", err)
	}
}

// TestSQLiteStore_Missing tests ErrNotFound for unknown keys
func TestSQLiteStore_Missing(t *testing.T) {
	s := testSQLite(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(nope) = %v, want ErrNotFound", err)
	}
}

// TestSQLiteStore_SurvivesReopen tests durability across close and reopen
func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	if err := s.Set(ctx, "k1", []byte("persisted")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() after reopen failed: %v", err)
	}
	if string(got) != "persisted" {
		t.Errorf("Get() after reopen = %q, want persisted", got)
	}
}

// TestSnapshotStore_RoundTrip tests set, get and delete on the fast store
func TestSnapshotStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSnapshot(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("OpenSnapshot() failed: %v", err)
	}

	if err := s.Set(ctx, "app-storage", []byte(`{"state":{}}`)); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	got, err := s.Get(ctx, "app-storage")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if string(got) != `{"state":{}}` {
		t.Errorf("Get() = %q", got)
	}

	if err := s.Delete(ctx, "app-storage"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := s.Get(ctx, "app-storage"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete = %v, want ErrNotFound", err)
	}

	// Deleting a missing key is a no-op.
	if err := s.Delete(ctx, "app-storage"); err != nil {
		t.Errorf("Delete() of missing key failed: %v", err)
	}
}

// TestSnapshotStore_UnusualKeys tests keys containing path separators
func TestSnapshotStore_UnusualKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := OpenSnapshot(dir, 0)
	if err != nil {
		t.Fatalf("OpenSnapshot() failed: %v", err)
	}

	keys := []string{"a/b/c", "with space", "app-storage_ts", "emoji-✓"}
	for _, key := range keys {
		if err := s.Set(ctx, key, []byte(key)); err != nil {
			t.Fatalf("Set(%q) failed: %v", key, err)
		}
	}
	for _, key := range keys {
		got, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get(%q) failed: %v", key, err)
		}
		if string(got) != key {
			t.Errorf("Get(%q) = %q", key, got)
		}
	}

	// Nothing escaped the store directory.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			t.Errorf("Key escaped into subdirectory %s", e.Name())
		}
	}
}

// TestSnapshotStore_Quota tests quota enforcement and replacement accounting
func TestSnapshotStore_Quota(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSnapshot(t.TempDir(), 100)
	if err != nil {
		t.Fatalf("OpenSnapshot() failed: %v", err)
	}

	if err := s.Set(ctx, "a", make([]byte, 60)); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := s.Set(ctx, "b", make([]byte, 60)); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("Over-quota write = %v, want ErrQuotaExceeded", err)
	}

	// Replacing an existing key does not double-count its old size.
	if err := s.Set(ctx, "a", make([]byte, 90)); err != nil {
		t.Errorf("Replacement within quota failed: %v", err)
	}

	// The rejected key was never created.
	if _, err := s.Get(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Rejected key exists: %v", err)
	}
}

// TestSnapshotStore_ReplaceKeepsOldOnFailure tests that a replaced value stays whole
func TestSnapshotStore_ReplaceKeepsOldOnFailure(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSnapshot(t.TempDir(), 50)
	if err != nil {
		t.Fatalf("OpenSnapshot() failed: %v", err)
	}

	if err := s.Set(ctx, "k", []byte("original")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := s.Set(ctx, "k", make([]byte, 100)); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Oversized replacement = %v, want ErrQuotaExceeded", err)
	}

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if string(got) != "original" {
		t.Errorf("Old value lost after failed replacement: %q", got)
	}
}

// TestFreshnessKey tests the companion-key convention
func TestFreshnessKey(t *testing.T) {
	if got := FreshnessKey("app-storage"); got != "app-storage_ts" {
		t.Errorf("FreshnessKey() = %q, want app-storage_ts", got)
	}
}
