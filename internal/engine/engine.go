package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/driftsync/drift/internal/cache"
	"github.com/driftsync/drift/internal/intent"
	"github.com/driftsync/drift/internal/netmon"
	"github.com/driftsync/drift/internal/notify"
	"github.com/driftsync/drift/internal/store"
)

// Config holds engine configuration.
type Config struct {
	// Table is the entity collection synced by this engine
	Table string

	// AutoSyncInterval is the cadence of background passes (default: 5m)
	AutoSyncInterval time.Duration

	// BaseBackoff seeds the pass-level retry delay (default: 2s)
	BaseBackoff time.Duration

	// MaxBackoff caps the pass-level retry delay (default: 5m)
	MaxBackoff time.Duration

	// SyncTimeout bounds each remote call (default: 30s)
	SyncTimeout time.Duration

	// PoorSyncTimeout bounds remote calls under poor quality (default: 10s)
	PoorSyncTimeout time.Duration

	// Clock drives waits; tests substitute a fake (default: wall clock)
	Clock Clock

	// Logger for engine activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Table:            "todos",
		AutoSyncInterval: 5 * time.Minute,
		BaseBackoff:      2 * time.Second,
		MaxBackoff:       5 * time.Minute,
		SyncTimeout:      30 * time.Second,
		PoorSyncTimeout:  10 * time.Second,
		Clock:            RealClock(),
		Logger:           log.New(os.Stderr, "[engine] ", log.LstdFlags),
	}
}

// SyncStatus is the engine's observable state surface.
type SyncStatus struct {
	LastSyncTime      *time.Time `json:"last_sync_time"`
	PendingActions    int        `json:"pending_actions"`
	IsSyncing         bool       `json:"is_syncing"`
	LastError         string     `json:"last_error,omitempty"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
}

// Engine drains the intent queue against the remote authority.
//
// At most one sync pass runs at a time, no matter how many triggers race
// (timer, reconnect, manual force). Passes are gated on network quality
// unless forced, and pass-level failures schedule a delayed retry with
// exponential backoff.
type Engine struct {
	store    EntityStore
	queue    *intent.Queue
	cache    *cache.Cache
	monitor  Monitor
	remote   Remote
	notifier notify.Notifier

	table           string
	baseBackoff     time.Duration
	maxBackoff      time.Duration
	syncTimeout     time.Duration
	poorSyncTimeout time.Duration
	clock           Clock
	logger          *log.Logger

	mu                sync.Mutex
	syncing           bool
	lastSync          *time.Time
	lastError         string
	consecutiveErrors int
	autoInterval      time.Duration

	trigger     chan struct{}
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()
}

// New creates a sync engine. All collaborators are passed explicitly; the
// engine owns no global state.
func New(entityStore EntityStore, queue *intent.Queue, stateCache *cache.Cache,
	monitor Monitor, remote Remote, notifier notify.Notifier, config *Config) *Engine {

	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Table == "" {
		config.Table = defaults.Table
	}
	if config.AutoSyncInterval <= 0 {
		config.AutoSyncInterval = defaults.AutoSyncInterval
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = defaults.BaseBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.SyncTimeout <= 0 {
		config.SyncTimeout = defaults.SyncTimeout
	}
	if config.PoorSyncTimeout <= 0 {
		config.PoorSyncTimeout = defaults.PoorSyncTimeout
	}
	if config.Clock == nil {
		config.Clock = RealClock()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	if notifier == nil {
		notifier = notify.Discard
	}

	return &Engine{
		store:           entityStore,
		queue:           queue,
		cache:           stateCache,
		monitor:         monitor,
		remote:          remote,
		notifier:        notifier,
		table:           config.Table,
		baseBackoff:     config.BaseBackoff,
		maxBackoff:      config.MaxBackoff,
		syncTimeout:     config.SyncTimeout,
		poorSyncTimeout: config.PoorSyncTimeout,
		clock:           config.Clock,
		logger:          config.Logger,
		autoInterval:    config.AutoSyncInterval,
		trigger:         make(chan struct{}, 1),
	}
}

// Start begins the auto-sync loop and the reconnect subscription.
// Returns immediately; use Stop to shut down.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	// Reconnect trigger: when the link comes back with work queued,
	// start a pass without waiting for the timer. The monitor may fan
	// out from more than one goroutine, so the edge state is locked.
	var (
		subMu sync.Mutex
		prev  netmon.NetworkState
		first = true
	)
	e.unsubscribe = e.monitor.Subscribe(func(state netmon.NetworkState) {
		subMu.Lock()
		cameOnline := !first && !prev.Connected && state.Connected
		first = false
		prev = state
		subMu.Unlock()
		if !cameOnline {
			return
		}

		if n, err := e.queue.Len(ctx); err == nil && n > 0 {
			e.logger.Printf("Reconnected with %d pending intents, triggering sync", n)
			e.wake()
		}
	})

	e.wg.Add(1)
	go e.loop(ctx)

	e.logger.Printf("Engine started (auto-sync every %v)", e.autoInterval)
}

// Stop shuts down the auto-sync loop and waits for it to finish.
// Does not interrupt an in-flight pass started via ForceSync.
func (e *Engine) Stop() {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.logger.Printf("Engine stopped")
}

// SetAutoSyncInterval retunes the background cadence at runtime (config
// hot reload). The new interval takes effect on the next wait.
func (e *Engine) SetAutoSyncInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	e.mu.Lock()
	e.autoInterval = interval
	e.mu.Unlock()
	e.wake()
}

// ForceSync attempts a pass immediately, bypassing the network-quality
// gate and preempting any backoff wait. Returns false if a pass is
// already in flight; the concurrent attempt alters nothing.
func (e *Engine) ForceSync(ctx context.Context) bool {
	ran, err := e.SyncPass(ctx, true)
	if err != nil {
		e.logger.Printf("Forced sync pass failed: %v", err)
	}
	return ran
}

// Status returns a snapshot of the engine's observable state.
func (e *Engine) Status(ctx context.Context) SyncStatus {
	pending, err := e.queue.Len(ctx)
	if err != nil {
		pending = 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return SyncStatus{
		LastSyncTime:      e.lastSync,
		PendingActions:    pending,
		IsSyncing:         e.syncing,
		LastError:         e.lastError,
		ConsecutiveErrors: e.consecutiveErrors,
	}
}

// wake nudges the auto-sync loop out of its current wait.
func (e *Engine) wake() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// loop alternates between waiting (auto-sync interval, or backoff after a
// failed pass) and running a pass. The wait is preempted by wake().
func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()

	for {
		e.mu.Lock()
		delay := e.autoInterval
		if e.consecutiveErrors > 0 {
			delay = backoffDelay(e.baseBackoff, e.maxBackoff, e.consecutiveErrors)
		}
		e.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-e.clock.After(delay):
		case <-e.trigger:
		}

		if _, err := e.SyncPass(ctx, false); err != nil {
			e.logger.Printf("Sync pass error: %v", err)
		}
	}
}

// SyncPass runs one complete drain attempt.
//
// Returns (false, nil) without touching the queue when another pass is in
// flight, or when the network is not optimal and force is false; neither
// consumes retry budget. Returns (true, err) when a pass actually ran.
// The syncing flag is cleared on every exit path.
func (e *Engine) SyncPass(ctx context.Context, force bool) (bool, error) {
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return false, nil
	}
	if !force && !e.monitor.OptimalForSync() {
		e.mu.Unlock()
		return false, nil
	}
	e.syncing = true
	e.mu.Unlock()

	var (
		passErr   error
		successes int
		failures  int
	)

	defer func() {
		now := e.clock.Now()
		e.mu.Lock()
		e.syncing = false
		e.lastSync = &now
		switch {
		case passErr != nil:
			e.lastError = passErr.Error()
			e.consecutiveErrors++
		case failures > 0:
			e.lastError = fmt.Sprintf("%d intents failed", failures)
			e.consecutiveErrors++
		default:
			e.lastError = ""
			e.consecutiveErrors = 0
		}
		e.mu.Unlock()
	}()

	intents, err := e.queue.Pending(ctx)
	if err != nil {
		passErr = fmt.Errorf("failed to read queue: %w", err)
		return true, passErr
	}
	if len(intents) == 0 {
		return true, nil
	}

	e.logger.Printf("Sync pass: %d pending intents", len(intents))

	// Temp IDs renamed by creates confirmed in this pass. Later intents
	// in the slice were retargeted in the queue but the in-memory copies
	// still carry the temp ID.
	renames := make(map[string]string)

	for _, in := range intents {
		select {
		case <-ctx.Done():
			passErr = ctx.Err()
			return true, passErr
		default:
		}

		target := in.EntityID()
		if in.Op != intent.OpCreate {
			if authoritative, ok := renames[target]; ok {
				target = authoritative
			}
			if strings.HasPrefix(target, store.TempIDPrefix) {
				// The create for this entity hasn't confirmed; sending
				// the dependent intent out of order would be a
				// correctness bug. Leave it queued, budget untouched.
				e.logger.Printf("Deferring %s intent %s: entity %s unconfirmed", in.Op, in.ID, target)
				continue
			}
		}

		result := e.dispatch(ctx, in, target)
		switch result.Outcome {
		case OutcomeSuccess:
			if err := e.applySuccess(ctx, in, target, result, renames); err != nil {
				passErr = err
				return true, passErr
			}
			successes++

		case OutcomeTransient:
			failures++
			exhausted, err := e.queue.MarkFailed(ctx, in.ID)
			if err != nil {
				passErr = err
				return true, passErr
			}
			if exhausted {
				e.abandon(ctx, in, target)
				e.notifier.Notify(notify.KindError, "Sync failed",
					fmt.Sprintf("Change to %s could not be synced after %d attempts and was rolled back", target, e.queue.MaxRetries()))
			}

		case OutcomePermanent:
			// Client error: retrying is pointless, revert now.
			failures++
			if err := e.queue.Remove(ctx, in.ID); err != nil {
				passErr = err
				return true, passErr
			}
			e.abandon(ctx, in, target)
			e.notifier.Notify(notify.KindError, "Change rejected",
				fmt.Sprintf("Server rejected change to %s (status %d); the change was rolled back", target, result.StatusCode))
		}
	}

	if successes > 0 && failures == 0 {
		e.notifier.Notify(notify.KindSuccess, "Sync complete",
			fmt.Sprintf("%d changes synced", successes))
	}

	e.logger.Printf("Sync pass done: %d synced, %d failed", successes, failures)
	return true, nil
}

// dispatch sends one intent to the remote with a quality-scaled timeout.
func (e *Engine) dispatch(ctx context.Context, in *intent.Intent, target string) Result {
	timeout := e.syncTimeout
	if e.monitor.State().Quality == netmon.QualityPoor {
		timeout = e.poorSyncTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch in.Op {
	case intent.OpCreate:
		return e.remote.Create(callCtx, in.Table, in.Create.Todo)
	case intent.OpUpdate:
		return e.remote.Update(callCtx, in.Table, target, in.Update.Patch)
	case intent.OpDelete:
		return e.remote.Delete(callCtx, in.Table, target)
	}
	return Result{Outcome: OutcomePermanent, Err: fmt.Errorf("unknown op %q", in.Op)}
}

// applySuccess reconciles a confirmed intent into the store and cache.
func (e *Engine) applySuccess(ctx context.Context, in *intent.Intent, target string, result Result, renames map[string]string) error {
	if err := e.queue.Remove(ctx, in.ID); err != nil {
		return err
	}

	switch in.Op {
	case intent.OpCreate:
		if result.Todo == nil {
			return fmt.Errorf("remote confirmed create of %s without an entity body", target)
		}
		authoritative := result.Todo
		if err := e.store.ReplaceTodoIDContext(ctx, target, authoritative.ID); err != nil {
			// The row may have been deleted locally while the create was
			// in flight; the delete intent behind it gets retargeted all
			// the same.
			e.logger.Printf("WARNING: could not replace id %s -> %s: %v", target, authoritative.ID, err)
		}
		if err := e.queue.RewriteEntityID(ctx, target, authoritative.ID); err != nil {
			return err
		}
		renames[target] = authoritative.ID
		e.cache.Confirm(target, authoritative)
		e.logger.Printf("Confirmed create: %s -> %s", target, authoritative.ID)

	case intent.OpUpdate:
		if err := e.store.MarkSyncedContext(ctx, target); err != nil {
			return err
		}
		confirmed := result.Todo
		if confirmed == nil {
			entry, ok := e.cache.Get(target)
			if !ok {
				return nil
			}
			confirmed = entry.Todo
		}
		e.cache.Confirm(target, confirmed)
		e.logger.Printf("Confirmed update: %s", target)

	case intent.OpDelete:
		e.cache.ConfirmDelete(target)
		e.logger.Printf("Confirmed delete: %s", target)
	}
	return nil
}

// abandon rolls back the optimistic state behind an intent that will
// never be retried, and reconciles the durable store with the reverted
// view. Only an abandoned create removes the entity: an abandoned update
// or delete leaves it in place with the reverted value written back.
func (e *Engine) abandon(ctx context.Context, in *intent.Intent, target string) {
	e.cache.Revert(target)

	switch in.Op {
	case intent.OpCreate:
		// The entity never existed remotely; drop it along with the
		// dependent intents stranded behind its temp ID.
		if err := e.store.DeleteTodoContext(ctx, target); err != nil {
			e.logger.Printf("WARNING: failed to remove abandoned todo %s: %v", target, err)
		}
		if _, err := e.queue.PurgeEntity(ctx, target); err != nil {
			e.logger.Printf("WARNING: failed to purge intents for %s: %v", target, err)
		}

	default:
		if entry, ok := e.cache.Get(target); ok {
			if err := e.store.PutTodoContext(ctx, entry.Todo); err != nil {
				e.logger.Printf("WARNING: failed to write reverted todo %s: %v", target, err)
			}
		}
	}

	e.logger.Printf("Reverted %s intent %s for %s", in.Op, in.ID, target)
}
