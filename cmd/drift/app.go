package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/driftsync/drift/internal/cache"
	"github.com/driftsync/drift/internal/config"
	"github.com/driftsync/drift/internal/engine"
	"github.com/driftsync/drift/internal/intent"
	"github.com/driftsync/drift/internal/netmon"
	"github.com/driftsync/drift/internal/notify"
	"github.com/driftsync/drift/internal/remote"
	"github.com/driftsync/drift/internal/store"
	"github.com/driftsync/drift/internal/todo"
)

// app wires the shared collaborators behind every command: store, queue,
// cache, monitor and service. Engine construction is separate because
// only sync-capable commands need a remote.
type app struct {
	cfg     *config.Config
	db      *store.DB
	queue   *intent.Queue
	cache   *cache.Cache
	monitor *netmon.Monitor
	service *todo.Service
	logger  *log.Logger
}

// openApp opens the database and restores the optimistic view. Logging
// goes to logger, or a quiet stderr logger when nil.
func openApp(ctx context.Context, logger *log.Logger) (*app, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.InitSchemaContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	queue := intent.NewQueue(db, &intent.Config{
		MaxRetries: cfg.Sync.MaxRetries,
		Logger:     logger,
	})
	stateCache := cache.New()

	policy := netmon.DefaultPolicy()
	if cfg.Network.PolicyFile != "" {
		policy, err = netmon.LoadPolicy(cfg.Network.PolicyFile)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to load network policy: %w", err)
		}
	}
	monitor := netmon.New(&netmon.Config{
		Policy:       policy,
		WifiOnly:     cfg.Sync.WifiOnly,
		Prober:       netmon.NewHTTPProber(""),
		PollInterval: cfg.Network.PollInterval,
		Logger:       logger,
	})

	service, err := todo.NewService(db, queue, stateCache, &todo.Config{
		UserID: cfg.UserID,
		Logger: logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := service.Restore(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		db:      db,
		queue:   queue,
		cache:   stateCache,
		monitor: monitor,
		service: service,
		logger:  logger,
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Printf("Failed to close database: %v", err)
	}
}

// newEngine builds a sync engine over the configured remote.
func (a *app) newEngine(notifier notify.Notifier) (*engine.Engine, error) {
	if a.cfg.Remote.BaseURL == "" {
		return nil, fmt.Errorf("remote.base_url is not configured; set it in the config file or DRIFT_REMOTE_BASE_URL")
	}
	client, err := remote.NewClient(&remote.Config{
		BaseURL:   a.cfg.Remote.BaseURL,
		AuthToken: a.cfg.Remote.AuthToken,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, err
	}

	return engine.New(a.db, a.queue, a.cache, a.monitor, client, notifier, &engine.Config{
		AutoSyncInterval: a.cfg.Sync.AutoSyncInterval,
		BaseBackoff:      a.cfg.Sync.BaseBackoff,
		MaxBackoff:       a.cfg.Sync.MaxBackoff,
		SyncTimeout:      a.cfg.Sync.SyncTimeout,
		PoorSyncTimeout:  a.cfg.Sync.PoorSyncTimeout,
		Logger:           a.logger,
	}), nil
}

// probeOnce feeds the monitor a single observation so one-shot commands
// have a network state to act on.
func (a *app) probeOnce(ctx context.Context) {
	link, err := netmon.NewHTTPProber("").Probe(ctx)
	if err != nil {
		a.logger.Printf("Probe failed: %v", err)
		return
	}
	a.monitor.SetLink(link)
}

// resolveID matches a full or unambiguous prefix ID against the visible
// todos.
func (a *app) resolveID(arg string) (string, error) {
	if _, err := a.service.Get(arg); err == nil {
		return arg, nil
	}

	var matches []string
	for _, entry := range a.service.List() {
		if strings.HasPrefix(entry.Todo.ID, arg) {
			matches = append(matches, entry.Todo.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no todo matches %q", arg)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q is ambiguous (%d matches)", arg, len(matches))
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
