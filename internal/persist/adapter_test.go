package persist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xdeelord24/ar-task-generator-sub000/internal/remote"
	"github.com/xdeelord24/ar-task-generator-sub000/internal/schema"
	"github.com/xdeelord24/ar-task-generator-sub000/internal/store"
)

func testStores(t *testing.T) (store.KV, store.KV) {
	t.Helper()
	dir := t.TempDir()
	durable, err := store.OpenSQLite(filepath.Join(dir, "store.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { _ = durable.Close() })
	fast, err := store.OpenSnapshot(filepath.Join(dir, "snapshot"), 0)
	if err != nil {
		t.Fatalf("OpenSnapshot() failed: %v", err)
	}
	return durable, fast
}

func quietConfig() *Config {
	return &Config{
		RootKey: "app-storage",
		Logger:  log.New(io.Discard, "", 0),
	}
}

func testEnvelope(name string, version int) *schema.Envelope {
	s := schema.NewState()
	s.Tasks["t1"] = &schema.Task{
		ID: "t1", Name: name, SpaceID: "s1", Status: "TO DO", Priority: "low",
		UpdatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	return &schema.Envelope{State: s, Version: version}
}

// TestAdapter_SaveLoadRoundTrip tests the basic save/load cycle with no server
func TestAdapter_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	durable, fast := testStores(t)
	a := New(durable, fast, nil, quietConfig())
	defer a.Close()

	if err := a.Save(ctx, "app-storage", testEnvelope("hello", 1)); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	a.Flush()

	env, err := a.Load(ctx, "app-storage")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if env == nil || env.State.Tasks["t1"].Name != "hello" {
		t.Fatalf("Load() = %+v", env)
	}
	if env.Version != 1 {
		t.Errorf("Version = %d, want 1", env.Version)
	}

	// Both stores hold the value plus its freshness record.
	for _, kv := range []store.KV{durable, fast} {
		if _, err := kv.Get(ctx, "app-storage"); err != nil {
			t.Errorf("Store missing value: %v", err)
		}
		if _, err := kv.Get(ctx, store.FreshnessKey("app-storage")); err != nil {
			t.Errorf("Store missing freshness record: %v", err)
		}
	}
}

// TestAdapter_LoadEmpty tests that a fully empty adapter yields (nil, nil)
func TestAdapter_LoadEmpty(t *testing.T) {
	durable, fast := testStores(t)
	a := New(durable, fast, nil, quietConfig())
	defer a.Close()

	env, err := a.Load(context.Background(), "app-storage")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if env != nil {
		t.Errorf("Load() on empty stores = %+v, want nil", env)
	}
}

// TestAdapter_FastFresherWins tests freshness arbitration and durable self-heal
func TestAdapter_FastFresherWins(t *testing.T) {
	ctx := context.Background()
	durable, fast := testStores(t)

	stale, _ := json.Marshal(testEnvelope("stale", 1))
	fresh, _ := json.Marshal(testEnvelope("fresh", 2))
	if err := writeSide(ctx, durable, "app-storage", stale, 100); err != nil {
		t.Fatalf("Seeding durable failed: %v", err)
	}
	if err := writeSide(ctx, fast, "app-storage", fresh, 200); err != nil {
		t.Fatalf("Seeding fast failed: %v", err)
	}

	a := New(durable, fast, nil, quietConfig())
	defer a.Close()

	env, err := a.Load(ctx, "app-storage")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if env.State.Tasks["t1"].Name != "fresh" {
		t.Errorf("Load() picked %q, want fresh", env.State.Tasks["t1"].Name)
	}

	// The durable store heals to the fast store's copy in the background.
	a.Flush()
	healed, err := durable.Get(ctx, "app-storage")
	if err != nil {
		t.Fatalf("Durable read after heal failed: %v", err)
	}
	if string(healed) != string(fresh) {
		t.Error("Durable store not healed to the fresher copy")
	}
}

// TestAdapter_DurableFresherWins tests that a stale fast copy is ignored
func TestAdapter_DurableFresherWins(t *testing.T) {
	ctx := context.Background()
	durable, fast := testStores(t)

	fresh, _ := json.Marshal(testEnvelope("durable-fresh", 3))
	stale, _ := json.Marshal(testEnvelope("fast-stale", 1))
	if err := writeSide(ctx, durable, "app-storage", fresh, 300); err != nil {
		t.Fatalf("Seeding durable failed: %v", err)
	}
	if err := writeSide(ctx, fast, "app-storage", stale, 100); err != nil {
		t.Fatalf("Seeding fast failed: %v", err)
	}

	a := New(durable, fast, nil, quietConfig())
	defer a.Close()

	env, err := a.Load(ctx, "app-storage")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if env.State.Tasks["t1"].Name != "durable-fresh" {
		t.Errorf("Load() picked %q, want durable-fresh", env.State.Tasks["t1"].Name)
	}
}

// TestAdapter_EqualFreshnessPrefersDurable tests the tie in arbitration
func TestAdapter_EqualFreshnessPrefersDurable(t *testing.T) {
	ctx := context.Background()
	durable, fast := testStores(t)

	d, _ := json.Marshal(testEnvelope("from-durable", 1))
	f, _ := json.Marshal(testEnvelope("from-fast", 1))
	writeSide(ctx, durable, "app-storage", d, 500)
	writeSide(ctx, fast, "app-storage", f, 500)

	a := New(durable, fast, nil, quietConfig())
	defer a.Close()

	env, _ := a.Load(ctx, "app-storage")
	if env.State.Tasks["t1"].Name != "from-durable" {
		t.Errorf("Tie picked %q, want from-durable", env.State.Tasks["t1"].Name)
	}
}

// TestAdapter_RemoteMerge tests merging the server copy and shared listing on load
func TestAdapter_RemoteMerge(t *testing.T) {
	ctx := context.Background()
	old := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)

	serverState := schema.NewState()
	serverState.Tasks["t1"] = &schema.Task{ID: "t1", Name: "server-newer", SpaceID: "s1", UpdatedAt: newer}
	serverEnv := &schema.Envelope{State: serverState, Version: 9}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/storage/app-storage":
			json.NewEncoder(w).Encode(serverEnv)
		case r.Method == http.MethodGet && r.URL.Path == "/api/shared":
			w.Write([]byte(`{"spaces":[{"id":"sh1","name":"Theirs","isShared":true,"ownerId":"u2","updatedAt":"2026-08-01T09:00:00Z"}],"folders":[],"lists":[],"tasks":[]}`))
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	durable, fast := testStores(t)
	localEnv := &schema.Envelope{State: schema.NewState(), Version: 2}
	localEnv.State.Tasks["t1"] = &schema.Task{ID: "t1", Name: "local-old", SpaceID: "s1", UpdatedAt: old}
	localEnv.State.Tasks["t2"] = &schema.Task{ID: "t2", Name: "local-only", SpaceID: "s1", UpdatedAt: old}
	seed, _ := json.Marshal(localEnv)
	writeSide(ctx, durable, "app-storage", seed, 100)

	rc := remote.NewClient(srv.URL, "tok", nil)
	a := New(durable, fast, rc, quietConfig())
	defer a.Close()

	env, err := a.Load(ctx, "app-storage")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if env.State.Tasks["t1"].Name != "server-newer" {
		t.Errorf("t1 = %q, want server-newer", env.State.Tasks["t1"].Name)
	}
	if _, ok := env.State.Tasks["t2"]; !ok {
		t.Error("Local-only task lost in merge")
	}
	if len(env.State.Spaces) != 1 || env.State.Spaces[0].ID != "sh1" {
		t.Errorf("Shared space not merged: %+v", env.State.Spaces)
	}
	if env.Version != 9 {
		t.Errorf("Version = %d, want 9", env.Version)
	}
}

// TestAdapter_RemoteDownSoftFails tests that an unreachable server degrades to local data
func TestAdapter_RemoteDownSoftFails(t *testing.T) {
	ctx := context.Background()
	durable, fast := testStores(t)

	seed, _ := json.Marshal(testEnvelope("local", 1))
	writeSide(ctx, durable, "app-storage", seed, 100)

	rc := remote.NewClient("http://127.0.0.1:1", "tok", &http.Client{Timeout: 200 * time.Millisecond})
	a := New(durable, fast, rc, quietConfig())
	defer a.Close()

	env, err := a.Load(ctx, "app-storage")
	if err != nil {
		t.Fatalf("Load() failed with server down: %v", err)
	}
	if env == nil || env.State.Tasks["t1"].Name != "local" {
		t.Errorf("Load() = %+v, want local data", env)
	}
}

// TestAdapter_UploadStripsDeviceLocal tests that uploads omit per-device fields
func TestAdapter_UploadStripsDeviceLocal(t *testing.T) {
	ctx := context.Background()
	uploaded := make(chan map[string]json.RawMessage, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var body struct {
				State map[string]json.RawMessage `json:"state"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			select {
			case uploaded <- body.State:
			default:
			}
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	durable, fast := testStores(t)
	rc := remote.NewClient(srv.URL, "tok", nil)
	a := New(durable, fast, rc, quietConfig())
	defer a.Close()

	env := testEnvelope("task", 1)
	env.State.Theme = "dark"
	env.State.CurrentSpaceID = "s1"
	env.State.SidebarCollapsed = true
	if err := a.Save(ctx, "app-storage", env); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	a.Flush()

	select {
	case state := <-uploaded:
		for _, field := range schema.DeviceLocalFields() {
			if _, ok := state[field]; ok {
				t.Errorf("Upload contains device-local field %q", field)
			}
		}
		if _, ok := state["tasks"]; !ok {
			t.Error("Upload missing tasks collection")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Upload never arrived")
	}
}

// TestAdapter_LegacyMigration tests one-time adoption of a pre-store state file
func TestAdapter_LegacyMigration(t *testing.T) {
	ctx := context.Background()
	durable, fast := testStores(t)

	legacy := filepath.Join(t.TempDir(), "state.json")
	data, _ := json.Marshal(testEnvelope("legacy", 1))
	if err := os.WriteFile(legacy, data, 0644); err != nil {
		t.Fatalf("Failed to write legacy file: %v", err)
	}

	config := quietConfig()
	config.LegacyPath = legacy
	a := New(durable, fast, nil, config)
	defer a.Close()

	env, err := a.Load(ctx, "app-storage")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if env == nil || env.State.Tasks["t1"].Name != "legacy" {
		t.Fatalf("Legacy state not adopted: %+v", env)
	}

	// The file is renamed aside so adoption happens at most once.
	if _, err := os.Stat(legacy); !os.IsNotExist(err) {
		t.Error("Legacy file still present after adoption")
	}
	if _, err := os.Stat(legacy + ".migrated"); err != nil {
		t.Errorf("Renamed legacy file missing: %v", err)
	}
}

// TestAdapter_Delete tests removal from both stores including freshness records
func TestAdapter_Delete(t *testing.T) {
	ctx := context.Background()
	durable, fast := testStores(t)
	a := New(durable, fast, nil, quietConfig())
	defer a.Close()

	if err := a.Save(ctx, "app-storage", testEnvelope("gone", 1)); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	a.Flush()

	if err := a.Delete(ctx, "app-storage"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	a.Flush()

	for _, kv := range []store.KV{durable, fast} {
		if _, err := kv.Get(ctx, "app-storage"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Value survived delete: %v", err)
		}
		if _, err := kv.Get(ctx, store.FreshnessKey("app-storage")); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Freshness record survived delete: %v", err)
		}
	}
}

// TestListingByCollection tests conversion of the shared listing
func TestListingByCollection(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	listing := ListingByCollection(&remote.SharedListing{
		Spaces: []*schema.Space{{ID: "s1", UpdatedAt: now}},
		Lists:  []*schema.List{{ID: "l1", SpaceID: "s1", UpdatedAt: now}},
		Tasks:  []*schema.Task{{ID: "t1", SpaceID: "s1", UpdatedAt: now}},
	})

	if len(listing["spaces"]) != 1 || len(listing["lists"]) != 1 || len(listing["tasks"]) != 1 {
		t.Errorf("Listing = %+v", listing)
	}
	if len(listing["folders"]) != 0 {
		t.Errorf("Unexpected folders: %+v", listing["folders"])
	}
	if ListingByCollection(nil) != nil {
		t.Error("nil listing did not map to nil")
	}
}
