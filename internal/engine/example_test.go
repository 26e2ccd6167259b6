package engine_test

import (
	"context"
	"log"

	"github.com/driftsync/drift/internal/cache"
	"github.com/driftsync/drift/internal/engine"
	"github.com/driftsync/drift/internal/intent"
	"github.com/driftsync/drift/internal/netmon"
	"github.com/driftsync/drift/internal/notify"
	"github.com/driftsync/drift/internal/remote"
	"github.com/driftsync/drift/internal/store"
)

// This example demonstrates wiring the engine for background sync.
// Note: This is for documentation only and won't run as a test.
func ExampleNew() {
	db, err := store.Open("drift.db")
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	if err := db.InitSchema(); err != nil {
		log.Fatal(err)
	}

	queue := intent.NewQueue(db, nil)
	stateCache := cache.New()
	monitor := netmon.New(&netmon.Config{
		Prober: netmon.NewHTTPProber(""),
	})

	client, err := remote.NewClient(&remote.Config{
		BaseURL: "https://api.example.com/v1",
	})
	if err != nil {
		log.Fatal(err)
	}

	eng := engine.New(db, queue, stateCache, monitor, client, notify.Discard, nil)

	ctx := context.Background()
	monitor.Start(ctx)
	eng.Start(ctx)
	defer eng.Stop()
	defer monitor.Stop()

	// Queued intents now sync automatically; force a pass when the user
	// asks for one.
	eng.ForceSync(ctx)
}
