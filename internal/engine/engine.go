// Package engine implements the mutation propagation layer.
//
// Every state-changing operation follows the same template: stamp the
// entity's updatedAt with the current time, apply it to in-memory state
// immediately, broadcast it on the realtime channel scoped to the owning
// space, push it to the resource owner's namespace when the resource is
// shared, and hand the whole state tree to the persistence adapter. The
// optimistic apply is never unwound: a network failure in the broadcast
// or propagation legs is logged and dropped, so the caller always sees
// its own last action even with degraded connectivity.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xdeelord24/ar-task-generator-sub000/internal/remote"
	"github.com/xdeelord24/ar-task-generator-sub000/internal/schema"
)

// ErrNotFound is returned when a mutation names an id that does not
// exist in the state tree.
var ErrNotFound = errors.New("entity not found")

// Persister is the slice of the persistence adapter the engine uses.
type Persister interface {
	Load(ctx context.Context, key string) (*schema.Envelope, error)
	Save(ctx context.Context, key string, env *schema.Envelope) error
	Delete(ctx context.Context, key string) error
}

// Broadcaster is the slice of the realtime channel the engine uses. The
// channel is injected here rather than reached through a package-level
// connection, so tests run against a fake.
type Broadcaster interface {
	Broadcast(eventType, spaceID string, data any)
	BroadcastDelete(entityType, spaceID, id string)
}

// Identity names the local user.
type Identity struct {
	UserID   string
	UserName string
}

// Config holds engine configuration.
type Config struct {
	// RootKey is the persistence key of the application state.
	RootKey string

	// Logger for engine activity.
	Logger *log.Logger

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RootKey: "app-storage",
		Logger:  log.New(os.Stderr, "[engine] ", log.LstdFlags),
		Now:     time.Now,
		NewID:   uuid.NewString,
	}
}

// Engine owns the in-memory state tree and every mutation on it.
// Mutations are serialized by the engine lock, so from a caller's
// perspective each one is atomic.
type Engine struct {
	mu      sync.Mutex
	state   *schema.State
	version int
	saveSeq uint64

	saveMu   sync.Mutex
	savedSeq uint64

	persister Persister
	conn      Broadcaster    // may be nil when no channel is up
	remote    *remote.Client // may be nil or credential-less
	outbox    *Outbox
	me        Identity
	config    *Config
}

// New wires an engine. conn may be nil; SetBroadcaster can attach one
// later once the channel is connected.
func New(persister Persister, rc *remote.Client, me Identity, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	if config.RootKey == "" {
		config.RootKey = "app-storage"
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}
	return &Engine{
		state:     schema.NewState(),
		persister: persister,
		remote:    rc,
		outbox:    NewOutbox(config.Logger),
		me:        me,
		config:    config,
	}
}

// SetBroadcaster attaches the realtime channel.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	e.mu.Lock()
	e.conn = b
	e.mu.Unlock()
}

// Close drains the outbox.
func (e *Engine) Close() {
	e.outbox.Close()
}

// Load populates the in-memory state from the persistence adapter,
// seeding a default tree on first run. This is the only call that
// blocks on I/O; everything after it is optimistic.
func (e *Engine) Load(ctx context.Context) error {
	env, err := e.persister.Load(ctx, e.config.RootKey)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if env == nil || env.State == nil {
		e.state = schema.DefaultState(e.config.Now())
		e.version = 0
		return nil
	}
	if env.State.Tasks == nil {
		env.State.Tasks = make(map[string]*schema.Task)
	}
	e.state = env.State
	e.version = env.Version
	return nil
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() *schema.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// SharedRooms lists the ids of every known shared resource, used by the
// realtime channel to rebuild room subscriptions on reconnect.
func (e *Engine) SharedRooms() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var rooms []string
	for _, col := range schema.Collections {
		for _, ent := range col.Get(e.state) {
			if ent.Shared().IsShared {
				rooms = append(rooms, ent.EntityID())
			}
		}
	}
	return rooms
}

// mutate applies fn to the state under the engine lock, then persists
// the whole tree. The persistence adapter writes the fast store before
// returning, so once mutate returns the mutation is crash-safe.
//
// Each snapshot carries a sequence number taken at apply time, and
// saves run serialized in that order: a snapshot that lost the race to
// a newer one is skipped, never written over it.
func (e *Engine) mutate(ctx context.Context, fn func(s *schema.State)) error {
	e.mu.Lock()
	fn(e.state)
	e.saveSeq++
	seq := e.saveSeq
	env := &schema.Envelope{State: e.state.Clone(), Version: e.version}
	e.mu.Unlock()

	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	if seq <= e.savedSeq {
		return nil
	}
	if err := e.persister.Save(ctx, e.config.RootKey, env); err != nil {
		// The optimistic apply stands even when persistence misfires.
		e.config.Logger.Printf("Persist after mutation failed: %v", err)
		return nil
	}
	e.savedSeq = seq
	return nil
}

// broadcast publishes a live update without blocking the mutation.
func (e *Engine) broadcast(eventType, spaceID string, data any) {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return
	}
	conn.Broadcast(eventType, spaceID, data)
}

// broadcastDelete publishes a deletion tombstone.
func (e *Engine) broadcastDelete(entityType, spaceID, id string) {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return
	}
	conn.BroadcastDelete(entityType, spaceID, id)
}

// ownerFor resolves the owning account of an entity: the entity's own
// sharing metadata wins, falling back to its space's. The second return
// is false for resources owned by this user.
func (e *Engine) ownerFor(meta schema.SharedMeta, spaceID string) (string, bool) {
	if meta.IsShared && meta.OwnerID != "" {
		return meta.OwnerID, true
	}
	if spaceID == "" {
		return "", false
	}
	for _, sp := range e.state.Spaces {
		if sp.ID == spaceID && sp.IsShared && sp.OwnerID != "" {
			return sp.OwnerID, true
		}
	}
	return "", false
}

// propagate pushes the full updated entity to the owning account's
// namespace via the outbox, so the owner's own state converges even
// when they are not a live room member.
func (e *Engine) propagate(ownerID, entityType string, data any) {
	if !e.remote.Available() {
		return
	}
	rc := e.remote
	e.outbox.Submit(Job{
		Name: "propagate " + entityType,
		Run: func(ctx context.Context) error {
			return rc.Propagate(ctx, ownerID, entityType, data)
		},
	})
}

// LeaveShared abandons membership of a shared resource: the server is
// told via the outbox and the resource (with its children) disappears
// from local state immediately.
func (e *Engine) LeaveShared(ctx context.Context, resourceType, resourceID string) error {
	if e.remote.Available() {
		rc := e.remote
		rt, rid := resourceType, resourceID
		e.outbox.Submit(Job{
			Name: "leave " + resourceType,
			Run: func(ctx context.Context) error {
				return rc.LeaveShared(ctx, rt, rid)
			},
		})
	}
	return e.mutate(ctx, func(s *schema.State) {
		removeResourceCascade(s, resourceID)
	})
}

// Flush drains all pending background work. Shutdown and test aid.
func (e *Engine) Flush() {
	e.outbox.Flush()
}
