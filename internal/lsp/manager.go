package lsp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Connection is one started language-server session bound to a single
// workspace folder. The Manager owns a connection exclusively once it is
// registered; no two folders ever share one.
type Connection interface {
	// Start performs the startup handshake. The connection must be fully
	// usable when Start returns nil.
	Start(ctx context.Context) error

	// Stop performs the shutdown handshake and releases the session's
	// resources.
	Stop(ctx context.Context) error

	// SendNotification sends a protocol notification to the server.
	SendNotification(ctx context.Context, method string, params any) error

	// OnDiagnostics registers the handler for diagnostic pushes.
	OnDiagnostics(handler func(uri DocumentURI, diagnostics []Diagnostic))
}

// Host supplies the collaborators the Manager is constructed with. The
// Manager calls out through this interface and never reaches into ambient
// state.
type Host interface {
	// Log receives fire-and-forget diagnostic output.
	Log(message string)

	// CreateConnection decides whether a connection should exist for the
	// folder and, if so, produces one that has not been started yet.
	// (nil, nil) means there is legitimately nothing to start.
	CreateConnection(ctx context.Context, folder WorkspaceFolder) (Connection, error)

	// EnabledForFolder reports whether the folder wants a server at all.
	// It may perform I/O; an error is treated like any other start failure.
	EnabledForFolder(ctx context.Context, folder WorkspaceFolder) (bool, error)

	// OnStartFailure is invoked exactly once per failed start attempt.
	OnStartFailure(ctx context.Context, message string, folder WorkspaceFolder)

	// OnStatusUpdate is invoked after every successful start and after
	// every diagnostic write.
	OnStatusUpdate()

	// SupportedLanguage filters which documents participate in open
	// replay and open notifications.
	SupportedLanguage(languageID string) bool

	// WorkspaceFolders enumerates the currently known folders.
	WorkspaceFolders() []WorkspaceFolder

	// VisibleDocuments enumerates documents currently visible in the host.
	VisibleDocuments() []TextDocument
}

// Manager starts, tracks, and tears down at most one Connection per
// workspace folder, and keeps each folder's diagnostic cache and watcher
// set consistent with its connection's lifetime.
//
// Start attempts are single-flight per folder: the pending set is mutated
// under the mutex before any collaborator call, so a concurrent start for
// the same folder observes the guard and returns immediately. One folder's
// failure never touches another folder's state.
type Manager struct {
	host Host

	mu       sync.Mutex
	conns    map[DocumentURI]*folderEntry
	pending  map[DocumentURI]struct{}
	caches   map[DocumentURI]*DiagnosticCache
	watchers map[DocumentURI][]Disposable
}

// folderEntry pairs a registered connection with its folder metadata.
type folderEntry struct {
	folder WorkspaceFolder
	conn   Connection
}

// NewManager creates a manager with the given host. The host owns
// composition; the manager holds no global state.
func NewManager(host Host) *Manager {
	return &Manager{
		host:     host,
		conns:    make(map[DocumentURI]*folderEntry),
		pending:  make(map[DocumentURI]struct{}),
		caches:   make(map[DocumentURI]*DiagnosticCache),
		watchers: make(map[DocumentURI][]Disposable),
	}
}

// StartFolder starts a connection for the folder if none exists and no
// attempt is in flight. Failures are reported through the host's
// OnStartFailure callback, never returned; a failed attempt leaves no
// trace in the connection table.
func (m *Manager) StartFolder(ctx context.Context, folder WorkspaceFolder) {
	key := folder.URI

	m.mu.Lock()
	if _, ok := m.conns[key]; ok {
		m.mu.Unlock()
		return
	}
	if _, ok := m.pending[key]; ok {
		m.mu.Unlock()
		return
	}
	// Claim the attempt before any blocking call; this closes the window
	// where two concurrent starts both observe an empty table.
	m.pending[key] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pending, key)
		m.mu.Unlock()
	}()

	enabled, err := m.host.EnabledForFolder(ctx, folder)
	if err != nil {
		m.failStart(ctx, folder, fmt.Errorf("enablement check: %w", err))
		return
	}
	if !enabled {
		m.host.Log("lsp: server disabled for folder " + folder.Name)
		return
	}

	conn, err := m.host.CreateConnection(ctx, folder)
	if err != nil {
		m.failStart(ctx, folder, err)
		return
	}
	if conn == nil {
		// Nothing to start for this folder; not an error.
		return
	}

	// Register before the handshake so a concurrent observer sees the
	// folder occupied while the handshake is still outstanding.
	m.mu.Lock()
	m.conns[key] = &folderEntry{folder: folder, conn: conn}
	m.mu.Unlock()

	// Diagnostic pushes land in whatever cache is current for the folder,
	// so a restarted connection writes into its own fresh cache.
	conn.OnDiagnostics(func(uri DocumentURI, diagnostics []Diagnostic) {
		m.DiagnosticCacheForFolder(folder).Set(uri, diagnostics)
		m.host.OnStatusUpdate()
	})

	if err := conn.Start(ctx); err != nil {
		m.failStart(ctx, folder, err)
		return
	}

	m.mu.Lock()
	m.caches[key] = NewDiagnosticCache()
	m.mu.Unlock()

	if err := m.replayOpenDocuments(ctx, folder, conn); err != nil {
		m.failStart(ctx, folder, err)
		return
	}

	m.host.Log("lsp: server started for folder " + folder.Name)
	m.host.OnStatusUpdate()
}

// replayOpenDocuments tells a fresh connection about every visible,
// supported document owned by the folder. This is how documents opened
// before the connection existed get registered without the host resending
// a full open lifecycle.
func (m *Manager) replayOpenDocuments(ctx context.Context, folder WorkspaceFolder, conn Connection) error {
	cache := m.DiagnosticCacheForFolder(folder)

	for _, doc := range m.host.VisibleDocuments() {
		if !m.host.SupportedLanguage(doc.LanguageID) {
			continue
		}
		if m.folderKeyFor(doc.URI) != folder.URI {
			continue
		}
		if cache.Has(doc.URI) {
			continue
		}
		if err := conn.SendNotification(ctx, "textDocument/didOpen", DidOpenParams(doc)); err != nil {
			return fmt.Errorf("replay open %s: %w", doc.URI, err)
		}
	}
	return nil
}

// failStart rolls back a failed attempt: the folder's registration is
// removed, its watchers disposed, and the host notified exactly once.
func (m *Manager) failStart(ctx context.Context, folder WorkspaceFolder, err error) {
	key := folder.URI

	m.mu.Lock()
	delete(m.conns, key)
	handles := m.watchers[key]
	delete(m.watchers, key)
	m.mu.Unlock()

	disposeAll(handles, m.host.Log)

	wrapped := &FolderError{Folder: folder.Name, Err: err}
	m.host.Log("lsp: start failed: " + wrapped.Error())
	m.host.OnStartFailure(ctx, fmt.Sprintf("failed to start language server for %s: %v", folder.Name, err), folder)
}

// StopFolder stops the folder's connection if one is registered. The
// folder's registration, diagnostic cache, and watcher set are removed
// even when the shutdown handshake fails; the handshake error is returned
// after cleanup so callers can surface it.
func (m *Manager) StopFolder(ctx context.Context, folder WorkspaceFolder) error {
	key := folder.URI

	m.mu.Lock()
	entry, ok := m.conns[key]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	m.host.Log("lsp: stopping server for folder " + folder.Name)
	err := entry.conn.Stop(ctx)

	m.mu.Lock()
	delete(m.conns, key)
	delete(m.caches, key)
	handles := m.watchers[key]
	delete(m.watchers, key)
	m.mu.Unlock()

	disposeAll(handles, m.host.Log)

	if err != nil {
		return &FolderError{Folder: folder.Name, Err: err}
	}
	return nil
}

// StartAll starts a connection for every known folder, strictly one after
// another. A failure in one folder is reported via the host callback and
// never prevents later folders from being attempted.
func (m *Manager) StartAll(ctx context.Context) {
	for _, folder := range m.host.WorkspaceFolders() {
		m.StartFolder(ctx, folder)
	}
}

// StopAll stops every registered connection and clears all per-folder
// state. The key set is snapshotted first since registrations are removed
// during the walk; one folder's stop failure never aborts the pass.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	entries := make([]*folderEntry, 0, len(m.conns))
	for _, e := range m.conns {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].folder.URI < entries[j].folder.URI })

	var errs []error
	for _, e := range entries {
		if err := m.StopFolder(ctx, e.folder); err != nil {
			m.host.Log("lsp: " + err.Error())
			errs = append(errs, err)
		}
	}

	// Caches and watcher sets can exist without a connection (created
	// lazily by readers, or registered before a start failed); sweep them.
	m.mu.Lock()
	m.caches = make(map[DocumentURI]*DiagnosticCache)
	remaining := m.watchers
	m.watchers = make(map[DocumentURI][]Disposable)
	m.mu.Unlock()

	for _, handles := range remaining {
		disposeAll(handles, m.host.Log)
	}

	return errors.Join(errs...)
}

// RestartAll stops every connection, then starts connections for all known
// folders. The stop phase completes fully before the start phase begins.
func (m *Manager) RestartAll(ctx context.Context) error {
	err := m.StopAll(ctx)
	m.StartAll(ctx)
	return err
}

// HandleFoldersChanged reacts to one batched folder-change notification.
// All removals are processed before any addition, so a folder removed and
// re-added in the same batch is fully torn down before it is recreated.
func (m *Manager) HandleFoldersChanged(ctx context.Context, removed, added []WorkspaceFolder) {
	for _, folder := range removed {
		if err := m.StopFolder(ctx, folder); err != nil {
			m.host.Log("lsp: " + err.Error())
		}
	}
	for _, folder := range added {
		m.StartFolder(ctx, folder)
	}
}

// RegisterWatchers replaces the folder's watcher set. The manager does not
// create watchers itself; it owns only their disposal timing.
func (m *Manager) RegisterWatchers(folder WorkspaceFolder, handles []Disposable) {
	m.mu.Lock()
	m.watchers[folder.URI] = handles
	m.mu.Unlock()
}

// DiagnosticCacheForFolder returns the folder's cache, creating an empty
// one on first access. Repeated calls return the same instance until a
// successful start replaces it or a stop deletes it.
func (m *Manager) DiagnosticCacheForFolder(folder WorkspaceFolder) *DiagnosticCache {
	m.mu.Lock()
	defer m.mu.Unlock()

	cache, ok := m.caches[folder.URI]
	if !ok {
		cache = NewDiagnosticCache()
		m.caches[folder.URI] = cache
	}
	return cache
}

// NotifyDocumentOpened sends a didOpen for a newly visible document when
// its folder has a running connection that has never been told about it.
// Unsupported languages, untracked documents, and folders without a
// connection are silently ignored.
func (m *Manager) NotifyDocumentOpened(ctx context.Context, doc TextDocument) error {
	if !m.host.SupportedLanguage(doc.LanguageID) {
		return nil
	}

	key := m.folderKeyFor(doc.URI)
	if key == "" {
		return nil
	}

	m.mu.Lock()
	entry, ok := m.conns[key]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	cache := m.caches[key]
	if cache == nil {
		cache = NewDiagnosticCache()
		m.caches[key] = cache
	}
	m.mu.Unlock()

	if cache.Has(doc.URI) {
		return nil
	}
	return entry.conn.SendNotification(ctx, "textDocument/didOpen", DidOpenParams(doc))
}

// Client returns the registered connection for a folder.
func (m *Manager) Client(folder WorkspaceFolder) (Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.conns[folder.URI]
	if !ok {
		return nil, false
	}
	return entry.conn, true
}

// ClientForDocument returns the connection of the folder owning the
// document, or nil when the document is untracked or its folder has none.
func (m *Manager) ClientForDocument(doc TextDocument) Connection {
	key := m.folderKeyFor(doc.URI)
	if key == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.conns[key]
	if !ok {
		return nil
	}
	return entry.conn
}

// FirstClient returns any one registered connection, or nil when there is
// none. It exists for callers that have not adopted per-folder addressing.
func (m *Manager) FirstClient() Connection {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]DocumentURI, 0, len(m.conns))
	for key := range m.conns {
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return m.conns[keys[0]].conn
}

// Len returns the number of registered connections.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Folders returns the folders with registered connections, sorted by URI.
func (m *Manager) Folders() []WorkspaceFolder {
	m.mu.Lock()
	defer m.mu.Unlock()

	folders := make([]WorkspaceFolder, 0, len(m.conns))
	for _, entry := range m.conns {
		folders = append(folders, entry.folder)
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].URI < folders[j].URI })
	return folders
}

// folderKeyFor resolves the owning folder of a document URI by longest
// matching folder prefix among the host's known folders. Empty means the
// document belongs to no tracked folder.
func (m *Manager) folderKeyFor(uri DocumentURI) DocumentURI {
	var best DocumentURI
	for _, folder := range m.host.WorkspaceFolders() {
		prefix := strings.TrimSuffix(string(folder.URI), "/")
		u := string(uri)
		if u != prefix && !strings.HasPrefix(u, prefix+"/") {
			continue
		}
		if len(prefix) > len(string(best)) {
			best = folder.URI
		}
	}
	return best
}
