// Package internal contains the implementation packages for modloader.
//
// # Package Organization
//
//   - types: module descriptors, states, snapshots and preload tasks
//   - registry: the sealed catalog of module descriptors
//   - loader: request coalescing, the per-module state machine and metrics
//   - preload: strategies and the bounded background scheduler
//   - gate: route to module resolution for navigations
//   - fetch: file and HTTP transports that produce module handles
//   - signal: network and idle conditions, static or watched from a file
//   - events: load observers, the event bus and the log observer
//   - app: assembles the above from a config and runs bootstrap
//   - config, logging, errors, version: ambient support
//   - renderer, websocket, server: the development server
//   - watcher: debounced fsnotify watching
//
// # Flow
//
// A navigation reaches the gate, which maps the route to a module key and
// asks the loader for it. The loader hands back a future: a cached handle,
// the load already in flight, or a new load. The scheduler feeds the same
// loader from the strategy's candidate list, so a preloaded module is a
// cache hit for the navigation that follows. Every transition is reported
// to observers, which the server streams to WebSocket clients.
//
// # Concurrency
//
// The loader guards its records with one mutex and never calls a load
// function while holding it. Waiters block on a channel closed exactly once
// per load, and cancelling a wait never cancels the load.
package internal
