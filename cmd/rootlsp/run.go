package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/rootlsp/internal/config"
	"github.com/dshills/rootlsp/internal/lsp"
	"github.com/dshills/rootlsp/internal/pathutil"
	"github.com/dshills/rootlsp/internal/watch"
)

var statusInterval time.Duration

var runCmd = &cobra.Command{
	Use:   "run [folder...]",
	Short: "Run language servers for the given workspace folders",
	Long: `Run starts one language server per folder and keeps it alive until
interrupted. File changes matching the configured globs are forwarded to
the folder's server as workspace/didChangeWatchedFiles notifications.

With no arguments the current directory is the only folder.`,
	RunE: runServers,
}

func init() {
	runCmd.Flags().DurationVar(&statusInterval, "status-every", 30*time.Second, "interval between status summaries (0 disables)")
}

func runServers(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if len(args) == 0 {
		args = []string{"."}
	}

	host := newRuntimeHost(cfg, os.Stderr, verbose)
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("resolve folder %s: %w", arg, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("folder %s: %w", arg, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("folder %s: not a directory", arg)
		}
		host.addFolder(abs)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := lsp.NewManager(host)
	mgr.StartAll(ctx)

	// Watch every folder that actually got a connection; the manager owns
	// each handle's disposal from here on.
	for _, folder := range mgr.Folders() {
		handle, err := watchFolder(ctx, mgr, folder, cfg.Watch.Globs)
		if err != nil {
			host.Log("watch: " + folder.Name + ": " + err.Error())
			continue
		}
		for _, glob := range cfg.Watch.Globs {
			host.Debug("watching " + pathutil.WatchPattern(lsp.URIToFilePath(folder.URI), glob))
		}
		mgr.RegisterWatchers(folder, []lsp.Disposable{handle})
	}

	if mgr.Len() == 0 {
		host.Log("no servers running; exiting")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reportStatus(gctx, host, mgr)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	g.Wait()

	// Shutdown gets its own deadline since the signal context is done.
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mgr.StopAll(stopCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	host.Log("all servers stopped")
	return nil
}

// watchFolder wires a filesystem watch to the folder's connection so the
// server hears about changed files it has not opened.
func watchFolder(ctx context.Context, mgr *lsp.Manager, folder lsp.WorkspaceFolder, globs []string) (*watch.Handle, error) {
	dir := lsp.URIToFilePath(folder.URI)

	return watch.New(dir, globs, func(path string) {
		conn, ok := mgr.Client(folder)
		if !ok {
			return
		}
		params := lsp.DidChangeWatchedFilesParams{
			Changes: []lsp.FileEvent{
				{URI: lsp.FilePathToURI(path), Type: lsp.FileChangeChanged},
			},
		}
		// Failures here are transient transport errors; the watch stays up.
		conn.SendNotification(ctx, "workspace/didChangeWatchedFiles", params)
	})
}

// reportStatus prints a periodic one-line summary per running folder.
func reportStatus(ctx context.Context, host *runtimeHost, mgr *lsp.Manager) {
	if statusInterval <= 0 {
		<-ctx.Done()
		return
	}

	okLabel := color.New(color.FgGreen).SprintFunc()
	warnLabel := color.New(color.FgYellow).SprintFunc()

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, folder := range mgr.Folders() {
				errs, warns, _, _ := mgr.DiagnosticCacheForFolder(folder).Counts()
				label := okLabel("ok")
				if errs > 0 || warns > 0 {
					label = warnLabel(fmt.Sprintf("%d errors, %d warnings", errs, warns))
				}
				host.Log(folder.Name + ": " + label)
			}
		}
	}
}
