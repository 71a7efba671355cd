package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SnapshotStore is Store B: one flat file per key, written synchronously
// via temp-file-and-rename so a crash can only ever leave the previous
// complete value behind. Total capacity is bounded; writes that would
// exceed it fail with ErrQuotaExceeded.
type SnapshotStore struct {
	dir      string
	maxBytes int64
}

// DefaultSnapshotQuota bounds the fast store at 8 MiB, in the spirit of
// a browser localStorage budget.
const DefaultSnapshotQuota = 8 << 20

// OpenSnapshot opens the fast store rooted at dir. maxBytes <= 0 applies
// DefaultSnapshotQuota.
func OpenSnapshot(dir string, maxBytes int64) (*SnapshotStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultSnapshotQuota
	}
	return &SnapshotStore{dir: dir, maxBytes: maxBytes}, nil
}

// keyPath maps a key to a filename. Keys are opaque strings that may
// contain separators, so anything outside a safe set is hex-escaped.
func (s *SnapshotStore) keyPath(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteString("%" + hex.EncodeToString([]byte(string(r))))
		}
	}
	return filepath.Join(s.dir, b.String()+".json")
}

// Get implements KV.
func (s *SnapshotStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.keyPath(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return data, nil
}

// Set implements KV. The write is synchronous: once Set returns the value
// is on disk under its final name.
func (s *SnapshotStore) Set(_ context.Context, key string, value []byte) error {
	if err := s.checkQuota(key, int64(len(value))); err != nil {
		return err
	}

	path := s.keyPath(key)
	tmp, err := os.CreateTemp(s.dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync key %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to install key %s: %w", key, err)
	}
	return nil
}

// Delete implements KV.
func (s *SnapshotStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.keyPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Close implements KV. SnapshotStore holds no open handles.
func (s *SnapshotStore) Close() error { return nil }

// checkQuota rejects a write that would push total usage past maxBytes.
// The key's current size is excluded since the write replaces it.
func (s *SnapshotStore) checkQuota(key string, incoming int64) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to scan snapshot directory: %w", err)
	}

	replacing := filepath.Base(s.keyPath(key))
	var used int64
	for _, e := range entries {
		if e.IsDir() || e.Name() == replacing {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		used += info.Size()
	}

	if used+incoming > s.maxBytes {
		return fmt.Errorf("%w: %d + %d exceeds %d bytes", ErrQuotaExceeded, used, incoming, s.maxBytes)
	}
	return nil
}
