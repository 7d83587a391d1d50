package lsp

import (
	"sort"
	"sync"
)

// DiagnosticCache holds the last-known diagnostics per document for one
// workspace folder. The Manager replaces the whole cache with a fresh
// instance every time a connection successfully starts for that folder, so
// entry presence means "this connection instance has been told about the
// document" — including entries with zero diagnostics.
type DiagnosticCache struct {
	mu   sync.RWMutex
	docs map[DocumentURI][]Diagnostic
}

// NewDiagnosticCache creates an empty cache.
func NewDiagnosticCache() *DiagnosticCache {
	return &DiagnosticCache{docs: make(map[DocumentURI][]Diagnostic)}
}

// Set records diagnostics for a document, replacing any previous entry.
// An empty list still records the entry: the server reported on the document.
func (c *DiagnosticCache) Set(uri DocumentURI, diagnostics []Diagnostic) {
	stored := make([]Diagnostic, len(diagnostics))
	copy(stored, diagnostics)

	c.mu.Lock()
	c.docs[uri] = stored
	c.mu.Unlock()
}

// Get returns a copy of the diagnostics for a document.
func (c *DiagnosticCache) Get(uri DocumentURI) []Diagnostic {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stored, ok := c.docs[uri]
	if !ok {
		return nil
	}
	result := make([]Diagnostic, len(stored))
	copy(result, stored)
	return result
}

// Has reports whether the cache holds an entry for a document.
func (c *DiagnosticCache) Has(uri DocumentURI) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.docs[uri]
	return ok
}

// Documents returns the URIs with entries, sorted for stable iteration.
func (c *DiagnosticCache) Documents() []DocumentURI {
	c.mu.RLock()
	defer c.mu.RUnlock()

	uris := make([]DocumentURI, 0, len(c.docs))
	for uri := range c.docs {
		uris = append(uris, uri)
	}
	sort.Slice(uris, func(i, j int) bool { return uris[i] < uris[j] })
	return uris
}

// Len returns the number of documents with entries.
func (c *DiagnosticCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// Counts returns totals per severity across all documents.
func (c *DiagnosticCache) Counts() (errors, warnings, infos, hints int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, diags := range c.docs {
		for _, d := range diags {
			switch d.Severity {
			case DiagnosticSeverityError:
				errors++
			case DiagnosticSeverityWarning:
				warnings++
			case DiagnosticSeverityInformation:
				infos++
			case DiagnosticSeverityHint:
				hints++
			}
		}
	}
	return errors, warnings, infos, hints
}

// Clear removes all entries.
func (c *DiagnosticCache) Clear() {
	c.mu.Lock()
	c.docs = make(map[DocumentURI][]Diagnostic)
	c.mu.Unlock()
}
