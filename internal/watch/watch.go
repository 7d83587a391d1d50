// Package watch creates filesystem watch handles for workspace folders.
//
// A Handle watches one folder tree and reports changes to files whose
// base name matches one of the configured globs. Handles implement the
// manager's Disposable interface, so their lifetime is owned by the
// folder's connection: registered after a successful start, disposed
// when the connection is removed.
package watch

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/rootlsp/internal/pathutil"
)

// Handle is one active watch over a folder tree.
type Handle struct {
	fw       *fsnotify.Watcher
	globs    []string
	onChange func(path string)

	done      chan struct{}
	closeOnce sync.Once
}

// New starts watching dir and its subdirectories. onChange is called with
// the changed file's path for every write, create, remove, or rename that
// matches one of the globs. Dot directories are skipped.
func New(dir string, globs []string, onChange func(path string)) (*Handle, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	h := &Handle{
		fw:       fw,
		globs:    globs,
		onChange: onChange,
		done:     make(chan struct{}),
	}

	if err := h.addTree(dir); err != nil {
		fw.Close()
		return nil, err
	}

	go h.loop()
	return h, nil
}

// Dispose stops the watch and releases its resources. Safe to call more
// than once.
func (h *Handle) Dispose() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.done)
		err = h.fw.Close()
	})
	return err
}

// addTree registers dir and every non-hidden subdirectory.
func (h *Handle) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if p != dir && len(name) > 0 && name[0] == '.' {
			return filepath.SkipDir
		}
		return h.fw.Add(p)
	})
}

func (h *Handle) loop() {
	for {
		select {
		case <-h.done:
			return
		case ev, ok := <-h.fw.Events:
			if !ok {
				return
			}
			h.handleEvent(ev)
		case _, ok := <-h.fw.Errors:
			if !ok {
				return
			}
			// Watch errors are transient; the handle keeps running.
		}
	}
}

func (h *Handle) handleEvent(ev fsnotify.Event) {
	// New directories join the watch so nested changes keep arriving.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			h.fw.Add(ev.Name)
			return
		}
	}

	if Matches(h.globs, ev.Name) && h.onChange != nil {
		h.onChange(ev.Name)
	}
}

// Matches reports whether the file's base name matches any of the globs.
// Paths are normalized to forward slashes first so Windows separators
// never break the match.
func Matches(globs []string, name string) bool {
	base := path.Base(pathutil.Normalize(name))
	for _, glob := range globs {
		if ok, err := path.Match(glob, base); err == nil && ok {
			return true
		}
	}
	return false
}
