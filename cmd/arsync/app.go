package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/xdeelord24/ar-task-generator-sub000/internal/engine"
	"github.com/xdeelord24/ar-task-generator-sub000/internal/persist"
	"github.com/xdeelord24/ar-task-generator-sub000/internal/remote"
	"github.com/xdeelord24/ar-task-generator-sub000/internal/store"
)

// app bundles the wired sync components shared by the CLI commands.
type app struct {
	durable *store.SQLiteStore
	fast    *store.SnapshotStore
	remote  *remote.Client
	adapter *persist.Adapter
	engine  *engine.Engine
	rootKey string
}

// openApp wires stores, remote client, adapter and engine from the
// current configuration and loads state into memory.
func openApp(ctx context.Context) (*app, error) {
	dir := dataDir()

	durable, err := store.OpenSQLite(filepath.Join(dir, "store.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open durable store: %w", err)
	}
	fast, err := store.OpenSnapshot(filepath.Join(dir, "snapshot"), 0)
	if err != nil {
		_ = durable.Close()
		return nil, fmt.Errorf("failed to open fast store: %w", err)
	}

	rc := remote.NewClient(viper.GetString("server.url"), viper.GetString("server.token"), nil)
	rootKey := viper.GetString("storage.key")

	adapter := persist.New(durable, fast, rc, &persist.Config{
		RootKey:    rootKey,
		LegacyPath: filepath.Join(dir, "state.json"),
		Logger:     newLogger("[persist] "),
	})

	engineConfig := engine.DefaultConfig()
	engineConfig.RootKey = rootKey
	engineConfig.Logger = newLogger("[engine] ")
	eng := engine.New(adapter, rc, engine.Identity{
		UserID:   viper.GetString("user.id"),
		UserName: viper.GetString("user.name"),
	}, engineConfig)

	if err := eng.Load(ctx); err != nil {
		adapter.Close()
		_ = durable.Close()
		return nil, err
	}

	return &app{
		durable: durable,
		fast:    fast,
		remote:  rc,
		adapter: adapter,
		engine:  eng,
		rootKey: rootKey,
	}, nil
}

// close flushes background work and releases the stores.
func (a *app) close() {
	a.engine.Flush()
	a.engine.Close()
	a.adapter.Flush()
	a.adapter.Close()
	_ = a.durable.Close()
	_ = a.fast.Close()
}
