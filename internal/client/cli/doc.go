// Package cli provides the interactive zelebiz command-line client.
//
// It wires configuration, the local store, the mutation queue, the
// synchronizer and the session, and runs a REPL that keeps working offline.
// Changes are queued locally and reach the server once it is reachable.
//
// Key features:
//   - register / login / logout / passwd
//   - create, update, delete entities (queued, coalesced)
//   - queue, failed, discard, resubmit: inspect and fix the sync queue
//   - get: read an entity through the cache
//   - sync, purge: foreground drain and housekeeping
//   - status, darkmode, module: app settings
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
