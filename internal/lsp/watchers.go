package lsp

// Disposable is an external resource whose lifetime the Manager owns.
// Watch handles registered for a folder are disposed exactly when that
// folder's connection is removed.
type Disposable interface {
	Dispose() error
}

// DisposeFunc adapts a function to the Disposable interface.
type DisposeFunc func() error

// Dispose implements Disposable.
func (f DisposeFunc) Dispose() error {
	return f()
}

// disposeAll disposes every handle, logging failures instead of aborting so
// one bad handle never leaves the rest dangling.
func disposeAll(handles []Disposable, log func(string)) {
	for _, h := range handles {
		if h == nil {
			continue
		}
		if err := h.Dispose(); err != nil && log != nil {
			log("lsp: dispose watcher: " + err.Error())
		}
	}
}
