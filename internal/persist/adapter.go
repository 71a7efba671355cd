// Package persist implements the persistence adapter: the single
// chokepoint through which state reaches the two local stores and the
// sync server.
//
// The adapter arbitrates freshness between the durable store (Store A)
// and the fast store (Store B), merges the server's copy and the shared
// listing into local state on load, self-heals whichever store fell
// behind, and re-uploads merged state in the background. All remote and
// Store A work runs on one ordered background worker so writes land in
// call order; Store B is always written synchronously before control
// returns to the caller.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/xdeelord24/ar-task-generator-sub000/internal/merge"
	"github.com/xdeelord24/ar-task-generator-sub000/internal/remote"
	"github.com/xdeelord24/ar-task-generator-sub000/internal/schema"
	"github.com/xdeelord24/ar-task-generator-sub000/internal/store"
)

// Config holds adapter configuration.
type Config struct {
	// RootKey is the key denoting the root application state. Loading
	// the root key additionally merges the shared-resource listing.
	RootKey string

	// LegacyPath optionally names a pre-store single-file state dump.
	// When both local stores are empty it is adopted once and renamed
	// aside.
	LegacyPath string

	// Logger for adapter activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RootKey: "app-storage",
		Logger:  log.New(os.Stderr, "[persist] ", log.LstdFlags),
	}
}

// Adapter implements load/save/delete against both local stores and the
// remote server.
type Adapter struct {
	durable store.KV       // Store A
	fast    store.KV       // Store B
	remote  *remote.Client // may be nil or credential-less
	config  *Config

	jobs    chan func()
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

// New creates an adapter over the two local stores and an optional
// remote client, and starts its background worker.
func New(durable, fast store.KV, rc *remote.Client, config *Config) *Adapter {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[persist] ", log.LstdFlags)
	}
	if config.RootKey == "" {
		config.RootKey = "app-storage"
	}

	a := &Adapter{
		durable: durable,
		fast:    fast,
		remote:  rc,
		config:  config,
		jobs:    make(chan func(), 256),
	}
	a.wg.Add(1)
	go a.worker()
	return a
}

// worker drains background jobs in submission order.
func (a *Adapter) worker() {
	defer a.wg.Done()
	for job := range a.jobs {
		job()
	}
}

// enqueue submits a background job, dropping it if the adapter has been
// closed or the queue is saturated.
func (a *Adapter) enqueue(job func()) {
	a.closeMu.Lock()
	defer a.closeMu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.jobs <- job:
	default:
		a.config.Logger.Println("Warning: background queue full, dropping job")
	}
}

// Close stops the background worker after draining queued jobs.
func (a *Adapter) Close() {
	a.closeMu.Lock()
	if a.closed {
		a.closeMu.Unlock()
		return
	}
	a.closed = true
	close(a.jobs)
	a.closeMu.Unlock()
	a.wg.Wait()
}

// Flush blocks until every job queued before the call has run. Test
// hook and shutdown aid.
func (a *Adapter) Flush() {
	done := make(chan struct{})
	a.enqueue(func() { close(done) })
	select {
	case <-done:
	case <-time.After(10 * time.Second):
	}
}

// side is one local store's view of a key: raw value plus the companion
// freshness timestamp in integer milliseconds.
type side struct {
	value []byte
	ts    int64
}

// readSide fetches a key and its freshness record from one store.
// Failures degrade to an empty side; the other store covers for it.
func (a *Adapter) readSide(ctx context.Context, kv store.KV, key string) side {
	var out side
	value, err := kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.config.Logger.Printf("Local read of %s failed: %v", key, err)
		}
		return out
	}
	out.value = value

	tsRaw, err := kv.Get(ctx, store.FreshnessKey(key))
	if err == nil {
		if ms, perr := strconv.ParseInt(string(tsRaw), 10, 64); perr == nil {
			out.ts = ms
		}
	}
	return out
}

// writeSide stores a value plus a freshness record into one store.
func writeSide(ctx context.Context, kv store.KV, key string, value []byte, ts int64) error {
	if err := kv.Set(ctx, key, value); err != nil {
		return err
	}
	return kv.Set(ctx, store.FreshnessKey(key), []byte(strconv.FormatInt(ts, 10)))
}

// Load reads key from both stores and the server, merges, persists the
// merged result, and returns it. Returns (nil, nil) when no source has
// a value. Load never fails as long as at least one source produced
// data; individual source failures are logged and absorbed.
func (a *Adapter) Load(ctx context.Context, key string) (*schema.Envelope, error) {
	var fastSide, durableSide side
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		durableSide = a.readSide(ctx, a.durable, key)
	}()
	go func() {
		defer wg.Done()
		fastSide = a.readSide(ctx, a.fast, key)
	}()
	wg.Wait()

	// Freshness arbitration: the fast store wins only when strictly
	// fresher, and the durable store is healed to match in the
	// background.
	local := durableSide.value
	if fastSide.value != nil && fastSide.ts > durableSide.ts {
		local = fastSide.value
		healTS := fastSide.ts
		healValue := fastSide.value
		a.enqueue(func() {
			if err := writeSide(context.Background(), a.durable, key, healValue, healTS); err != nil {
				a.config.Logger.Printf("Self-heal of durable store failed for %s: %v", key, err)
			}
		})
	} else if local == nil {
		local = fastSide.value
	}

	if local == nil {
		local = a.adoptLegacy(ctx, key)
	}

	var localEnv *schema.Envelope
	if local != nil {
		env, err := schema.DecodeEnvelope(local)
		if err != nil {
			a.config.Logger.Printf("Discarding unparseable local envelope for %s: %v", key, err)
		} else {
			localEnv = env
		}
	}

	remoteEnv := a.loadRemote(ctx, key)

	switch {
	case localEnv != nil && remoteEnv != nil:
		merge.States(localEnv.State, remoteEnv.State)
		if remoteEnv.Version > localEnv.Version {
			localEnv.Version = remoteEnv.Version
		}
		a.persistMerged(ctx, key, localEnv)
		return localEnv, nil

	case localEnv == nil && remoteEnv != nil:
		// Nothing local: adopt the server's copy outright.
		a.persistMerged(ctx, key, remoteEnv)
		return remoteEnv, nil

	case localEnv != nil:
		return localEnv, nil

	default:
		return nil, nil
	}
}

// loadRemote fetches the server envelope for key and, for the root key,
// pre-merges the shared-resource listing into it. Any failure degrades
// to nil: the caller proceeds with local data only.
func (a *Adapter) loadRemote(ctx context.Context, key string) *schema.Envelope {
	if !a.remote.Available() {
		return nil
	}

	env, err := a.remote.GetEnvelope(ctx, key)
	if err != nil {
		a.config.Logger.Printf("Remote fetch of %s failed: %v", key, err)
		return nil
	}

	if key != a.config.RootKey {
		return env
	}

	listing, err := a.remote.FetchShared(ctx)
	if err != nil {
		a.config.Logger.Printf("Shared listing fetch failed: %v", err)
		return env
	}

	if env == nil || env.State == nil {
		env = &schema.Envelope{State: schema.NewState()}
	}
	merge.SharedIntoState(env.State, ListingByCollection(listing))
	return env
}

// persistMerged writes the merged envelope back to both stores with a
// fresh freshness timestamp and re-uploads it in the background, so
// data the server was missing propagates outward without blocking the
// load.
func (a *Adapter) persistMerged(ctx context.Context, key string, env *schema.Envelope) {
	data, err := encodeEnvelope(env)
	if err != nil {
		a.config.Logger.Printf("Failed to encode merged envelope for %s: %v", key, err)
		return
	}
	now := time.Now().UnixMilli()

	if err := writeSide(ctx, a.fast, key, data, now); err != nil && !errors.Is(err, store.ErrQuotaExceeded) {
		a.config.Logger.Printf("Fast store write of %s failed: %v", key, err)
	}
	a.enqueue(func() {
		if err := writeSide(context.Background(), a.durable, key, data, now); err != nil {
			a.config.Logger.Printf("Durable store write of %s failed: %v", key, err)
		}
	})
	a.uploadAsync(key, env)
}

// Save writes the envelope to the fast store synchronously, then to the
// durable store and the server in the background. After Save returns
// the mutation is crash-safe.
func (a *Adapter) Save(ctx context.Context, key string, env *schema.Envelope) error {
	data, err := encodeEnvelope(env)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()

	// Fast store first, synchronously. Quota exhaustion is tolerated:
	// the durable store still receives the write.
	if err := writeSide(ctx, a.fast, key, data, now); err != nil && !errors.Is(err, store.ErrQuotaExceeded) {
		a.config.Logger.Printf("Fast store write of %s failed: %v", key, err)
	}

	a.enqueue(func() {
		if err := writeSide(context.Background(), a.durable, key, data, now); err != nil {
			a.config.Logger.Printf("Durable store write of %s failed: %v", key, err)
		}
	})

	a.uploadAsync(key, env)
	return nil
}

// Delete removes the key and its freshness record from both stores.
func (a *Adapter) Delete(ctx context.Context, key string) error {
	if err := a.fast.Delete(ctx, key); err != nil {
		a.config.Logger.Printf("Fast store delete of %s failed: %v", key, err)
	}
	if err := a.fast.Delete(ctx, store.FreshnessKey(key)); err != nil {
		a.config.Logger.Printf("Fast store delete of %s freshness failed: %v", key, err)
	}
	a.enqueue(func() {
		ctx := context.Background()
		if err := a.durable.Delete(ctx, key); err != nil {
			a.config.Logger.Printf("Durable store delete of %s failed: %v", key, err)
		}
		if err := a.durable.Delete(ctx, store.FreshnessKey(key)); err != nil {
			a.config.Logger.Printf("Durable store delete of %s freshness failed: %v", key, err)
		}
	})
	return nil
}

// uploadAsync queues a background upload of the envelope with the
// device-local fields stripped. Failures are logged, never retried; the
// next save re-uploads the full current state anyway.
func (a *Adapter) uploadAsync(key string, env *schema.Envelope) {
	if !a.remote.Available() {
		return
	}
	cleaned, err := env.StripDeviceLocal()
	if err != nil {
		a.config.Logger.Printf("Failed to strip device-local fields for %s: %v", key, err)
		return
	}
	a.enqueue(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.remote.PutEnvelope(ctx, key, cleaned); err != nil {
			a.config.Logger.Printf("Upload of %s failed (saved locally): %v", key, err)
		}
	})
}

// adoptLegacy migrates a pre-store single-file dump into the stores.
// Runs at most once: the file is renamed aside after adoption.
func (a *Adapter) adoptLegacy(ctx context.Context, key string) []byte {
	if a.config.LegacyPath == "" || key != a.config.RootKey {
		return nil
	}
	data, err := os.ReadFile(a.config.LegacyPath)
	if err != nil {
		return nil
	}
	if _, err := schema.DecodeEnvelope(data); err != nil {
		a.config.Logger.Printf("Ignoring unparseable legacy state at %s: %v", a.config.LegacyPath, err)
		return nil
	}

	a.config.Logger.Printf("Migrating legacy state from %s", a.config.LegacyPath)
	now := time.Now().UnixMilli()
	if err := writeSide(ctx, a.fast, key, data, now); err != nil && !errors.Is(err, store.ErrQuotaExceeded) {
		a.config.Logger.Printf("Legacy migration into fast store failed: %v", err)
	}
	a.enqueue(func() {
		if err := writeSide(context.Background(), a.durable, key, data, now); err != nil {
			a.config.Logger.Printf("Legacy migration into durable store failed: %v", err)
		}
	})
	if err := os.Rename(a.config.LegacyPath, a.config.LegacyPath+".migrated"); err != nil {
		a.config.Logger.Printf("Failed to rename legacy state file: %v", err)
	}
	return data
}

// ListingByCollection converts a shared listing into the per-collection
// shape the merge layer consumes.
func ListingByCollection(l *remote.SharedListing) merge.Listing {
	if l == nil {
		return nil
	}
	out := merge.Listing{}
	for _, s := range l.Spaces {
		out["spaces"] = append(out["spaces"], s)
	}
	for _, f := range l.Folders {
		out["folders"] = append(out["folders"], f)
	}
	for _, li := range l.Lists {
		out["lists"] = append(out["lists"], li)
	}
	for _, t := range l.Tasks {
		out["tasks"] = append(out["tasks"], t)
	}
	return out
}

func encodeEnvelope(env *schema.Envelope) ([]byte, error) {
	return json.Marshal(env)
}
