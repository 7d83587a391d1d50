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
	"sync/atomic"
)

// wire implements the LSP base protocol: JSON-RPC 2.0 messages framed with
// Content-Length headers over a byte stream (typically the server's stdio).
type wire struct {
	reader *bufio.Reader

	writeMu sync.Mutex
	writer  io.Writer

	mu       sync.Mutex
	pending  map[int64]chan *rpcResponse
	handlers map[string]func(params json.RawMessage)

	nextID atomic.Int64
	closed atomic.Bool
	done   chan struct{}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func newWire(r io.Reader, w io.Writer) *wire {
	return &wire{
		reader:   bufio.NewReaderSize(r, 64*1024),
		writer:   w,
		pending:  make(map[int64]chan *rpcResponse),
		handlers: make(map[string]func(params json.RawMessage)),
		done:     make(chan struct{}),
	}
}

// start begins reading messages from the stream.
func (w *wire) start() {
	go w.readLoop()
}

// close stops the read loop and fails all in-flight calls with ErrClosed.
func (w *wire) close() {
	if w.closed.Swap(true) {
		return
	}
	close(w.done)

	// Drop pending channels; waiting callers unblock via w.done.
	w.mu.Lock()
	w.pending = make(map[int64]chan *rpcResponse)
	w.mu.Unlock()
}

// call sends a request and waits for the matching response.
func (w *wire) call(ctx context.Context, method string, params, result any) error {
	if w.closed.Load() {
		return ErrClosed
	}

	id := w.nextID.Add(1)
	ch := make(chan *rpcResponse, 1)

	w.mu.Lock()
	w.pending[id] = ch
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.pending, id)
		w.mu.Unlock()
	}()

	req := &rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := w.send(req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrClosed
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	}
}

// notify sends a notification; no response is expected.
func (w *wire) notify(method string, params any) error {
	if w.closed.Load() {
		return ErrClosed
	}
	return w.send(&rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

// onNotification registers a handler for a server-initiated notification.
func (w *wire) onNotification(method string, handler func(params json.RawMessage)) {
	w.mu.Lock()
	w.handlers[method] = handler
	w.mu.Unlock()
}

func (w *wire) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if _, err := fmt.Fprintf(w.writer, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

func (w *wire) readLoop() {
	for {
		select {
		case <-w.done:
			return
		default:
		}

		msg, err := w.readMessage()
		if err != nil {
			if w.closed.Load() || err == io.EOF || err == io.ErrClosedPipe {
				return
			}
			continue
		}
		w.dispatch(msg)
	}
}

// readMessage reads one header-framed message body.
func (w *wire) readMessage() (json.RawMessage, error) {
	var contentLength int
	for {
		line, err := w.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if strings.HasPrefix(strings.ToLower(line), "content-length:") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				if n, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
					contentLength = n
				}
			}
		}
		// Content-Type and unknown headers are ignored.
	}

	if contentLength == 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(w.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (w *wire) dispatch(data json.RawMessage) {
	var probe struct {
		ID     *int64          `json:"id"`
		Method string          `json:"method"`
		Error  *RPCError       `json:"error"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return
	}

	// A message with an ID and a result or error is a response.
	if probe.ID != nil && (probe.Result != nil || probe.Error != nil) {
		var resp rpcResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return
		}
		w.handleResponse(&resp)
		return
	}

	if probe.Method != "" {
		var notif struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params,omitempty"`
		}
		if err := json.Unmarshal(data, &notif); err != nil {
			return
		}
		w.handleNotification(notif.Method, notif.Params)
	}
}

func (w *wire) handleResponse(resp *rpcResponse) {
	if w.closed.Load() {
		return
	}

	w.mu.Lock()
	ch, ok := w.pending[resp.ID]
	if ok {
		delete(w.pending, resp.ID)
	}
	w.mu.Unlock()

	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}

func (w *wire) handleNotification(method string, params json.RawMessage) {
	w.mu.Lock()
	handler, ok := w.handlers[method]
	w.mu.Unlock()

	if ok && handler != nil {
		// Run in a goroutine so slow handlers never stall the read loop.
		go handler(params)
	}
}
