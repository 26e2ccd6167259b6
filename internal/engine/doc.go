// Package engine drains the durable intent queue against a remote
// authority and reconciles the outcomes into the local store and the
// optimistic state cache.
//
// The engine runs at most one sync pass at a time. A pass walks the
// queue in FIFO order, sends each intent to the remote, and classifies
// every outcome as success, transient failure, or permanent failure:
//
//   - Success removes the intent and confirms the optimistic entry.
//     A confirmed create additionally swaps the temporary entity ID for
//     the server-assigned one, in the store, the cache, and any queued
//     intents that still reference it.
//   - Transient failures (timeouts, 5xx, rate limits) consume one unit
//     of the intent's retry budget and leave it queued. When the budget
//     is exhausted the intent is dropped and its optimistic change is
//     rolled back.
//   - Permanent failures (4xx other than 408/429) drop the intent and
//     roll back immediately; retrying cannot help.
//
// Intents that depend on an unconfirmed create (updates or deletes that
// still target a temporary ID) are deferred without consuming retries.
//
// Passes are triggered by a background interval, by the network monitor
// reporting a reconnect while work is queued, or manually via ForceSync.
// Failed passes back off exponentially; ForceSync preempts the backoff.
//
// All collaborators (store, queue, cache, monitor, remote, notifier,
// clock) are injected, so tests drive the engine entirely on fakes and
// virtual time.
package engine
