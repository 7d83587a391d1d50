package lsp

import (
	"encoding/json"
	"testing"
)

func TestFilePathToURI(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/path/to/file.rb", "file:///path/to/file.rb"},
		{"/path with spaces/file.rb", "file:///path%20with%20spaces/file.rb"},
		{"", ""},
	}

	for _, tt := range tests {
		result := FilePathToURI(tt.path)
		if string(result) != tt.expected {
			t.Errorf("FilePathToURI(%q) = %q, expected %q", tt.path, result, tt.expected)
		}
	}
}

func TestURIToFilePath(t *testing.T) {
	tests := []struct {
		uri      DocumentURI
		expected string
	}{
		{"file:///path/to/file.rb", "/path/to/file.rb"},
		{"file:///path%20with%20spaces/file.rb", "/path with spaces/file.rb"},
		{"untitled:Untitled-1", "untitled:Untitled-1"},
		{"", ""},
	}

	for _, tt := range tests {
		result := URIToFilePath(tt.uri)
		if result != tt.expected {
			t.Errorf("URIToFilePath(%q) = %q, expected %q", tt.uri, result, tt.expected)
		}
	}
}

func TestFolderFromPath(t *testing.T) {
	folder := FolderFromPath("/work/rails-app")

	if folder.Name != "rails-app" {
		t.Errorf("Expected name rails-app, got %s", folder.Name)
	}
	if folder.URI[:7] != "file://" {
		t.Errorf("Expected file:// URI, got %s", folder.URI)
	}
}

func TestDidOpenParams(t *testing.T) {
	doc := TextDocument{
		URI:        "file:///work/app/lib/tool.rb",
		LanguageID: "ruby",
		Version:    7,
		Text:       "puts 1",
	}

	params := DidOpenParams(doc)
	if params.TextDocument.URI != doc.URI {
		t.Errorf("Expected URI %s, got %s", doc.URI, params.TextDocument.URI)
	}
	if params.TextDocument.LanguageID != "ruby" {
		t.Errorf("Expected languageId ruby, got %s", params.TextDocument.LanguageID)
	}
	if params.TextDocument.Version != 7 {
		t.Errorf("Expected version 7, got %d", params.TextDocument.Version)
	}
	if params.TextDocument.Text != "puts 1" {
		t.Errorf("Expected text preserved, got %q", params.TextDocument.Text)
	}
}

func TestDiagnostic_Unmarshal(t *testing.T) {
	raw := `{
		"range": {"start": {"line": 3, "character": 0}, "end": {"line": 3, "character": 10}},
		"severity": 1,
		"source": "steep",
		"message": "Cannot find the declaration of class",
		"code": "Ruby::UnknownConstant"
	}`

	var d Diagnostic
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Severity != DiagnosticSeverityError {
		t.Errorf("Expected error severity, got %v", d.Severity)
	}
	if d.Range.Start.Line != 3 {
		t.Errorf("Expected line 3, got %d", d.Range.Start.Line)
	}
	if d.Source != "steep" {
		t.Errorf("Expected source steep, got %q", d.Source)
	}
}

func TestDiagnosticSeverity_String(t *testing.T) {
	tests := []struct {
		severity DiagnosticSeverity
		expected string
	}{
		{DiagnosticSeverityError, "error"},
		{DiagnosticSeverityWarning, "warning"},
		{DiagnosticSeverityInformation, "information"},
		{DiagnosticSeverityHint, "hint"},
		{DiagnosticSeverity(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.severity.String(); got != tt.expected {
			t.Errorf("%d.String() = %q, expected %q", tt.severity, got, tt.expected)
		}
	}
}
