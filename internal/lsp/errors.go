package lsp

import (
	"errors"
	"fmt"
)

// Standard errors returned by connections.
var (
	// ErrNotStarted indicates the connection has not been started.
	ErrNotStarted = errors.New("lsp connection not started")

	// ErrAlreadyStarted indicates the connection is already running.
	ErrAlreadyStarted = errors.New("lsp connection already started")

	// ErrClosed indicates the connection has been closed.
	ErrClosed = errors.New("lsp connection closed")
)

// RPCError represents a JSON-RPC error from the server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// FolderError wraps an error with the workspace folder it occurred in.
type FolderError struct {
	Folder string
	Err    error
}

// Error implements the error interface.
func (e *FolderError) Error() string {
	return fmt.Sprintf("folder %s: %v", e.Folder, e.Err)
}

// Unwrap returns the underlying error.
func (e *FolderError) Unwrap() error {
	return e.Err
}
