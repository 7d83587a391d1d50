package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// ServerConfig defines how to launch a language server for a folder.
type ServerConfig struct {
	// Command is the executable to run.
	Command string

	// Args are command-line arguments.
	Args []string

	// Env are additional environment variables.
	Env map[string]string

	// InitializationOptions are sent during the initialize handshake.
	InitializationOptions any

	// HandshakeTimeout bounds the initialize and shutdown requests.
	// Zero means DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration
}

// DefaultHandshakeTimeout bounds initialize and shutdown when the config
// does not say otherwise.
const DefaultHandshakeTimeout = 15 * time.Second

// Conn is a Connection backed by a language-server subprocess speaking
// JSON-RPC over stdio. It is bound to exactly one workspace folder.
type Conn struct {
	config ServerConfig
	folder WorkspaceFolder

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	rpc     *wire
	started bool
	stopped bool

	serverInfo *ServerInfo

	diagMu      sync.Mutex
	diagHandler func(uri DocumentURI, diagnostics []Diagnostic)
}

// NewConn creates an unstarted connection for the folder.
func NewConn(config ServerConfig, folder WorkspaceFolder) *Conn {
	return &Conn{config: config, folder: folder}
}

// Folder returns the workspace folder this connection is bound to.
func (c *Conn) Folder() WorkspaceFolder {
	return c.folder
}

// ServerInfo returns the server identification from the initialize result,
// or nil before a successful start.
func (c *Conn) ServerInfo() *ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// OnDiagnostics registers the handler for publishDiagnostics pushes. It may
// be set before or after Start.
func (c *Conn) OnDiagnostics(handler func(uri DocumentURI, diagnostics []Diagnostic)) {
	c.diagMu.Lock()
	c.diagHandler = handler
	c.diagMu.Unlock()
}

// Start launches the server process and performs the initialize handshake.
func (c *Conn) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}

	if err := c.startProcess(); err != nil {
		return err
	}

	c.rpc = newWire(c.stdout, c.stdin)
	c.rpc.onNotification("textDocument/publishDiagnostics", func(params json.RawMessage) {
		var p PublishDiagnosticsParams
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		c.diagMu.Lock()
		handler := c.diagHandler
		c.diagMu.Unlock()
		if handler != nil {
			handler(p.URI, p.Diagnostics)
		}
	})
	c.rpc.start()

	if err := c.initialize(ctx); err != nil {
		c.teardown()
		return fmt.Errorf("initialize: %w", err)
	}

	c.started = true
	return nil
}

// startProcess launches the server executable rooted at the folder.
func (c *Conn) startProcess() error {
	cmd := exec.Command(c.config.Command, c.config.Args...)
	cmd.Dir = URIToFilePath(c.folder.URI)

	cmd.Env = os.Environ()
	for k, v := range c.config.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("start %s: %w", c.config.Command, err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.stdout = stdout
	return nil
}

// initialize performs the initialize request and initialized notification.
func (c *Conn) initialize(ctx context.Context) error {
	params := InitializeParams{
		ProcessID: os.Getpid(),
		RootURI:   c.folder.URI,
		Capabilities: map[string]any{
			"textDocument": map[string]any{
				"publishDiagnostics": map[string]any{"relatedInformation": true},
			},
		},
		InitializationOptions: c.config.InitializationOptions,
		WorkspaceFolders:      []WorkspaceFolder{c.folder},
	}

	ctx, cancel := context.WithTimeout(ctx, c.handshakeTimeout())
	defer cancel()

	var result InitializeResult
	if err := c.rpc.call(ctx, "initialize", params, &result); err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}
	c.serverInfo = result.ServerInfo

	if err := c.rpc.notify("initialized", InitializedParams{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	return nil
}

// Stop performs the shutdown handshake, then releases the process and its
// pipes regardless of the handshake's outcome.
func (c *Conn) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started || c.stopped {
		return nil
	}
	c.stopped = true

	ctx, cancel := context.WithTimeout(ctx, c.handshakeTimeout())
	defer cancel()

	err := c.rpc.call(ctx, "shutdown", nil, nil)
	if err == nil {
		err = c.rpc.notify("exit", nil)
	}

	c.teardown()

	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// teardown closes the wire and reaps the process. Callers hold c.mu.
func (c *Conn) teardown() {
	if c.rpc != nil {
		c.rpc.close()
	}
	if c.stdin != nil {
		c.stdin.Close()
	}
	if c.stdout != nil {
		c.stdout.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		// Give the server a moment to honor exit, then make sure.
		done := make(chan struct{})
		go func() {
			c.cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			c.cmd.Process.Kill()
			<-done
		}
	}
}

// SendNotification sends a protocol notification to the server.
func (c *Conn) SendNotification(_ context.Context, method string, params any) error {
	c.mu.Lock()
	rpc := c.rpc
	started := c.started
	stopped := c.stopped
	c.mu.Unlock()

	if !started || stopped || rpc == nil {
		return ErrNotStarted
	}
	return rpc.notify(method, params)
}

func (c *Conn) handshakeTimeout() time.Duration {
	if c.config.HandshakeTimeout > 0 {
		return c.config.HandshakeTimeout
	}
	return DefaultHandshakeTimeout
}
