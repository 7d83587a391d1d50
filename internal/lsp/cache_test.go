package lsp

import "testing"

func TestDiagnosticCache_SetAndGet(t *testing.T) {
	c := NewDiagnosticCache()
	uri := DocumentURI("file:///work/app/lib/tool.rb")

	diags := []Diagnostic{
		{Message: "undefined method", Severity: DiagnosticSeverityError},
		{Message: "unused variable", Severity: DiagnosticSeverityWarning},
	}
	c.Set(uri, diags)

	got := c.Get(uri)
	if len(got) != 2 {
		t.Fatalf("Expected 2 diagnostics, got %d", len(got))
	}
	if got[0].Message != "undefined method" {
		t.Errorf("Expected ordered diagnostics, got %q first", got[0].Message)
	}

	// Mutating the returned slice must not affect the cache.
	got[0].Message = "mutated"
	if c.Get(uri)[0].Message != "undefined method" {
		t.Error("Expected Get to return a copy")
	}
}

func TestDiagnosticCache_EmptyEntryStillCounts(t *testing.T) {
	c := NewDiagnosticCache()
	uri := DocumentURI("file:///work/app/lib/tool.rb")

	if c.Has(uri) {
		t.Error("Expected no entry before Set")
	}

	// A push with zero diagnostics still means the server knows the doc.
	c.Set(uri, nil)

	if !c.Has(uri) {
		t.Error("Expected entry after empty Set")
	}
	if c.Len() != 1 {
		t.Errorf("Expected Len 1, got %d", c.Len())
	}
	if got := c.Get(uri); len(got) != 0 {
		t.Errorf("Expected empty diagnostics, got %v", got)
	}
}

func TestDiagnosticCache_Replace(t *testing.T) {
	c := NewDiagnosticCache()
	uri := DocumentURI("file:///work/app/lib/tool.rb")

	c.Set(uri, []Diagnostic{{Message: "one"}, {Message: "two"}})
	c.Set(uri, []Diagnostic{{Message: "three"}})

	got := c.Get(uri)
	if len(got) != 1 || got[0].Message != "three" {
		t.Errorf("Expected replacement, got %v", got)
	}
}

func TestDiagnosticCache_Documents(t *testing.T) {
	c := NewDiagnosticCache()
	c.Set("file:///b.rb", nil)
	c.Set("file:///a.rb", nil)

	docs := c.Documents()
	if len(docs) != 2 {
		t.Fatalf("Expected 2 documents, got %d", len(docs))
	}
	if docs[0] != "file:///a.rb" || docs[1] != "file:///b.rb" {
		t.Errorf("Expected sorted URIs, got %v", docs)
	}
}

func TestDiagnosticCache_Counts(t *testing.T) {
	c := NewDiagnosticCache()
	c.Set("file:///a.rb", []Diagnostic{
		{Severity: DiagnosticSeverityError},
		{Severity: DiagnosticSeverityError},
		{Severity: DiagnosticSeverityWarning},
	})
	c.Set("file:///b.rb", []Diagnostic{
		{Severity: DiagnosticSeverityInformation},
		{Severity: DiagnosticSeverityHint},
	})

	errs, warns, infos, hints := c.Counts()
	if errs != 2 || warns != 1 || infos != 1 || hints != 1 {
		t.Errorf("Counts() = %d/%d/%d/%d, expected 2/1/1/1", errs, warns, infos, hints)
	}
}

func TestDiagnosticCache_Clear(t *testing.T) {
	c := NewDiagnosticCache()
	c.Set("file:///a.rb", []Diagnostic{{Message: "x"}})
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Expected empty cache after Clear, got %d", c.Len())
	}
	if c.Has("file:///a.rb") {
		t.Error("Expected entry gone after Clear")
	}
}
