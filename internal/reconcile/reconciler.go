// Package reconcile implements the pull-based reconciliation engine.
//
// Reconciliation is the backstop behind every other sync path: the
// realtime channel and the owner push are best-effort hints, while the
// periodic pull here eventually converges anything they missed. Each
// pass fetches the shared-resource listing, pending invitations, and
// notifications in parallel, prunes shared resources whose access has
// been revoked, and merges the rest into local state.
package reconcile

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/xdeelord24/ar-task-generator-sub000/internal/merge"
	"github.com/xdeelord24/ar-task-generator-sub000/internal/persist"
	"github.com/xdeelord24/ar-task-generator-sub000/internal/remote"
	"github.com/xdeelord24/ar-task-generator-sub000/internal/schema"
)

// Applier is the slice of the engine the reconciler drives.
type Applier interface {
	ApplySharedListing(ctx context.Context, listing merge.Listing) error
	ApplyInvitations(ctx context.Context, fetched []schema.Invitation) error
	ApplyNotifications(ctx context.Context, fetched []schema.Notification) error
}

// Config holds reconciler configuration.
type Config struct {
	// Interval between periodic passes.
	Interval time.Duration

	// Logger for reconciler activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval: 30 * time.Second,
		Logger:   log.New(os.Stderr, "[reconcile] ", log.LstdFlags),
	}
}

// Reconciler periodically pulls shared data and merges it into local
// state via the engine.
type Reconciler struct {
	applier Applier
	remote  *remote.Client
	config  *Config

	kick   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a reconciler. Start must be called to begin the loop.
func New(applier Applier, rc *remote.Client, config *Config) *Reconciler {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[reconcile] ", log.LstdFlags)
	}
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		applier: applier,
		remote:  rc,
		config:  config,
		kick:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start runs an immediate pass, then one per interval until Stop.
func (r *Reconciler) Start() {
	r.wg.Add(1)
	go r.loop()
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (r *Reconciler) Stop() {
	r.cancel()
	r.wg.Wait()
}

// Kick requests an immediate pass without waiting for the interval.
// Used by the realtime channel after every inbound event. Coalesces:
// multiple kicks during one pass collapse into a single follow-up.
func (r *Reconciler) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

func (r *Reconciler) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.runOnce()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.runOnce()
		case <-r.kick:
			r.runOnce()
		}
	}
}

func (r *Reconciler) runOnce() {
	if err := r.Reconcile(r.ctx); err != nil {
		r.config.Logger.Printf("Pass failed: %v", err)
	}
}

// Reconcile performs one full pass. Individual fetch failures are
// logged and skipped; whatever did arrive is still merged.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	if !r.remote.Available() {
		return nil
	}

	var (
		wg      sync.WaitGroup
		listing *remote.SharedListing
		invites []schema.Invitation
		notes   []schema.Notification
		listErr error
		invErr  error
		noteErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		listing, listErr = r.remote.FetchShared(ctx)
	}()
	go func() {
		defer wg.Done()
		invites, invErr = r.remote.Invitations(ctx)
	}()
	go func() {
		defer wg.Done()
		notes, noteErr = r.remote.Notifications(ctx)
	}()
	wg.Wait()

	if listErr != nil {
		r.config.Logger.Printf("Shared listing fetch failed: %v", listErr)
	} else if listing != nil {
		if err := r.applier.ApplySharedListing(ctx, persist.ListingByCollection(listing)); err != nil {
			r.config.Logger.Printf("Shared merge failed: %v", err)
		}
	}

	if invErr != nil {
		r.config.Logger.Printf("Invitations fetch failed: %v", invErr)
	} else if err := r.applier.ApplyInvitations(ctx, invites); err != nil {
		r.config.Logger.Printf("Invitation merge failed: %v", err)
	}

	if noteErr != nil {
		r.config.Logger.Printf("Notifications fetch failed: %v", noteErr)
	} else if err := r.applier.ApplyNotifications(ctx, notes); err != nil {
		r.config.Logger.Printf("Notification merge failed: %v", err)
	}

	return nil
}
