package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// readFramed reads one Content-Length framed message from r.
func readFramed(t *testing.T, r *bufio.Reader) json.RawMessage {
	t.Helper()

	var contentLength int
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read header: %v", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if strings.HasPrefix(strings.ToLower(line), "content-length:") {
			n, err := strconv.Atoi(strings.TrimSpace(strings.SplitN(line, ":", 2)[1]))
			if err != nil {
				t.Fatalf("bad Content-Length: %v", err)
			}
			contentLength = n
		}
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r, body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return body
}

func writeFramed(t *testing.T, w io.Writer, msg any) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Errorf("marshal: %v", err)
		return
	}
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n%s", len(data), data); err != nil {
		t.Errorf("write: %v", err)
	}
}

func TestWire_Notify(t *testing.T) {
	clientOut, serverIn := io.Pipe()
	defer clientOut.Close()

	w := newWire(strings.NewReader(""), serverIn)
	defer w.close()

	var wg sync.WaitGroup
	wg.Add(1)
	var body json.RawMessage
	go func() {
		defer wg.Done()
		body = readFramed(t, bufio.NewReader(clientOut))
	}()

	if err := w.notify("textDocument/didOpen", map[string]string{"k": "v"}); err != nil {
		t.Fatalf("notify error: %v", err)
	}
	wg.Wait()

	var msg struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("unmarshal sent message: %v", err)
	}
	if msg.JSONRPC != "2.0" {
		t.Errorf("Expected jsonrpc 2.0, got %q", msg.JSONRPC)
	}
	if msg.Method != "textDocument/didOpen" {
		t.Errorf("Expected method preserved, got %q", msg.Method)
	}
}

func TestWire_Call(t *testing.T) {
	serverReads, clientWrites := io.Pipe()
	clientReads, serverWrites := io.Pipe()

	w := newWire(clientReads, clientWrites)
	w.start()
	defer w.close()

	// Fake server: answer the first request.
	go func() {
		body := readFramed(t, bufio.NewReader(serverReads))
		var req struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			return
		}
		writeFramed(t, serverWrites, map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]string{"answer": "pong"},
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var result map[string]string
	if err := w.call(ctx, "ping", nil, &result); err != nil {
		t.Fatalf("call error: %v", err)
	}
	if result["answer"] != "pong" {
		t.Errorf("Expected pong, got %v", result)
	}
}

func TestWire_Call_RPCError(t *testing.T) {
	serverReads, clientWrites := io.Pipe()
	clientReads, serverWrites := io.Pipe()

	w := newWire(clientReads, clientWrites)
	w.start()
	defer w.close()

	go func() {
		body := readFramed(t, bufio.NewReader(serverReads))
		var req struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			return
		}
		writeFramed(t, serverWrites, map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]any{"code": -32601, "message": "method not found"},
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := w.call(ctx, "nope", nil, nil)
	if err == nil {
		t.Fatal("Expected an error")
	}
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("Expected *RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != -32601 {
		t.Errorf("Expected code -32601, got %d", rpcErr.Code)
	}
}

func TestWire_NotificationDispatch(t *testing.T) {
	clientReads, serverWrites := io.Pipe()

	w := newWire(clientReads, io.Discard)
	w.start()
	defer w.close()

	received := make(chan PublishDiagnosticsParams, 1)
	w.onNotification("textDocument/publishDiagnostics", func(params json.RawMessage) {
		var p PublishDiagnosticsParams
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		received <- p
	})

	go writeFramed(t, serverWrites, map[string]any{
		"jsonrpc": "2.0",
		"method":  "textDocument/publishDiagnostics",
		"params": PublishDiagnosticsParams{
			URI:         "file:///work/app/lib/tool.rb",
			Diagnostics: []Diagnostic{{Message: "boom", Severity: DiagnosticSeverityError}},
		},
	})

	select {
	case p := <-received:
		if p.URI != "file:///work/app/lib/tool.rb" {
			t.Errorf("Unexpected URI: %s", p.URI)
		}
		if len(p.Diagnostics) != 1 || p.Diagnostics[0].Message != "boom" {
			t.Errorf("Unexpected diagnostics: %v", p.Diagnostics)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Notification never dispatched")
	}
}

func TestWire_CallAfterClose(t *testing.T) {
	w := newWire(strings.NewReader(""), io.Discard)
	w.close()

	if err := w.call(context.Background(), "ping", nil, nil); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := w.notify("ping", nil); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
