package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/dshills/rootlsp/internal/config"
	"github.com/dshills/rootlsp/internal/lsp"
)

// runtimeHost implements lsp.Host for the daemon. It resolves enablement
// from the configured manifest file, builds process-backed connections,
// and writes logs with color-coded prefixes.
type runtimeHost struct {
	cfg     *config.Config
	out     io.Writer
	verbose bool

	mu      sync.Mutex
	folders []lsp.WorkspaceFolder
}

var (
	errorLabel = color.New(color.FgRed).SprintFunc()
	debugLabel = color.New(color.Faint).SprintFunc()
)

func newRuntimeHost(cfg *config.Config, out io.Writer, verbose bool) *runtimeHost {
	return &runtimeHost{cfg: cfg, out: out, verbose: verbose || cfg.LogLevel == "debug"}
}

// addFolder registers a workspace folder by path.
func (h *runtimeHost) addFolder(path string) {
	h.mu.Lock()
	h.folders = append(h.folders, lsp.FolderFromPath(path))
	h.mu.Unlock()
}

func (h *runtimeHost) Log(message string) {
	fmt.Fprintf(h.out, "%s %s\n", time.Now().Format("15:04:05"), message)
}

func (h *runtimeHost) Debug(message string) {
	if h.verbose {
		fmt.Fprintf(h.out, "%s %s\n", time.Now().Format("15:04:05"), debugLabel(message))
	}
}

// CreateConnection builds a connection for the folder, or (nil, nil) when
// the configured executable is not installed — a legitimate nothing-to-start.
func (h *runtimeHost) CreateConnection(ctx context.Context, folder lsp.WorkspaceFolder) (lsp.Connection, error) {
	if _, err := exec.LookPath(h.cfg.Server.Command); err != nil {
		h.Log("server command " + h.cfg.Server.Command + " not found; skipping " + folder.Name)
		return nil, nil
	}

	sc := lsp.ServerConfig{
		Command:          h.cfg.Server.Command,
		Args:             h.cfg.Server.Args,
		Env:              h.cfg.Server.Env,
		HandshakeTimeout: h.cfg.HandshakeTimeout(),
	}
	return lsp.NewConn(sc, folder), nil
}

// EnabledForFolder requires the configured manifest file at the folder
// root. No manifest configured means every folder is enabled.
func (h *runtimeHost) EnabledForFolder(ctx context.Context, folder lsp.WorkspaceFolder) (bool, error) {
	manifest := h.cfg.Enablement.Manifest
	if manifest == "" {
		return true, nil
	}

	_, err := os.Stat(filepath.Join(lsp.URIToFilePath(folder.URI), manifest))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (h *runtimeHost) OnStartFailure(ctx context.Context, message string, folder lsp.WorkspaceFolder) {
	fmt.Fprintf(h.out, "%s %s %s\n", time.Now().Format("15:04:05"), errorLabel("error:"), message)
}

func (h *runtimeHost) OnStatusUpdate() {
	h.Debug("status updated")
}

func (h *runtimeHost) SupportedLanguage(languageID string) bool {
	return h.cfg.SupportedLanguage(languageID)
}

func (h *runtimeHost) WorkspaceFolders() []lsp.WorkspaceFolder {
	h.mu.Lock()
	defer h.mu.Unlock()
	folders := make([]lsp.WorkspaceFolder, len(h.folders))
	copy(folders, h.folders)
	return folders
}

// VisibleDocuments is always empty: the daemon has no editor surface, so
// there is nothing to replay on start. Servers learn about documents via
// watched-file notifications instead.
func (h *runtimeHost) VisibleDocuments() []lsp.TextDocument {
	return nil
}
