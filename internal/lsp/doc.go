// Package lsp manages one language-server connection per workspace folder.
//
// The Manager is the single owner of all per-folder state: the connection
// table, the in-flight start guard, each folder's diagnostic cache, and
// each folder's watcher set. It guarantees:
//
//   - at most one connection per folder at any instant
//   - at most one start attempt in flight per folder, even under
//     concurrent triggers (the guard is claimed under the mutex before
//     any collaborator call)
//   - one folder's failure never affects another folder's state
//   - a folder's watchers are disposed exactly when its connection is
//     removed, whether by stop or by cleanup after a failed start
//
// # Collaborators
//
// The Manager is constructed with a Host, which supplies everything it
// needs from the outside world: the connection factory, the enablement
// predicate, folder and document enumeration, the language filter, and
// the logging, error, and status sinks. The Host's CreateConnection may
// resolve to (nil, nil), which means "nothing to start" and is not an
// error.
//
// # Connections
//
// Conn is the production Connection: it spawns the configured server
// executable, speaks JSON-RPC 2.0 over the child's stdio, performs the
// initialize/shutdown handshakes, and routes publishDiagnostics pushes
// to the handler the Manager installs. The Manager itself depends only
// on the Connection interface, so tests substitute fakes.
//
// # Lifecycle
//
//	host := ... // implements Host
//	mgr := lsp.NewManager(host)
//	mgr.StartAll(ctx)
//	defer mgr.StopAll(context.Background())
//
// A successful start replaces the folder's diagnostic cache with a fresh
// instance and replays didOpen for every visible, supported document the
// folder owns. Diagnostic pushes from the server land in the current
// cache and trigger the host's status callback.
package lsp
