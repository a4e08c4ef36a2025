// Package stdio implements the stdio Transport: newline-delimited JSON-RPC
// messages over standard input/output. The process's stdout carries only
// framed messages; anything else (logging included) must go to stderr.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/metoro-io/mcp-runtime-go/jsonrpc"
	"github.com/metoro-io/mcp-runtime-go/transport"
)

// readBuffer buffers a continuous stdio stream into discrete JSON-RPC
// messages, framed on newlines.
type readBuffer struct {
	mu     sync.Mutex
	buffer []byte
}

func (rb *readBuffer) append(chunk []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.buffer = append(rb.buffer, chunk...)
}

// readMessage returns the next complete message, or nil if none is
// buffered yet.
func (rb *readBuffer) readMessage() (*jsonrpc.Message, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for {
		i := bytes.IndexByte(rb.buffer, '\n')
		if i < 0 {
			return nil, nil
		}
		line := rb.buffer[:i]
		rb.buffer = rb.buffer[i+1:]
		if len(line) == 0 {
			continue
		}
		return jsonrpc.Decode(line)
	}
}

func (rb *readBuffer) clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.buffer = nil
}

// Transport implements transport.Transport over stdin/stdout.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	buf    readBuffer

	mu             sync.RWMutex
	closeHandler   func()
	errorHandler   func(error)
	messageHandler func(*jsonrpc.Message, *transport.Extra)

	started bool
	closed  bool
	wg      sync.WaitGroup
}

// New creates a Transport over os.Stdin/os.Stdout.
func New() *Transport {
	return NewWithIO(os.Stdin, os.Stdout)
}

// NewWithIO creates a Transport over an arbitrary reader/writer pair,
// used by tests and by embedders that pipe through something other than
// the process's own stdio.
func NewWithIO(r io.Reader, w io.Writer) *Transport {
	return &Transport{reader: bufio.NewReader(r), writer: w}
}

func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("stdio: transport is closed")
	}
	if t.started {
		t.mu.Unlock()
		return fmt.Errorf("stdio: transport already started")
	}
	t.started = true
	t.mu.Unlock()

	t.wg.Add(1)
	go t.readLoop(ctx)
	return nil
}

func (t *Transport) Send(ctx context.Context, msg *jsonrpc.Message, _ *transport.SendOptions) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return fmt.Errorf("stdio: transport is closed")
	}
	t.mu.RUnlock()

	data, err := jsonrpc.Encode(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = t.writer.Write(data)
	return err
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	handler := t.closeHandler
	t.mu.Unlock()

	if handler != nil {
		handler()
	}
	t.wg.Wait()
	return nil
}

func (t *Transport) SetCloseHandler(h func()) {
	t.mu.Lock()
	t.closeHandler = h
	t.mu.Unlock()
}

func (t *Transport) SetErrorHandler(h func(error)) {
	t.mu.Lock()
	t.errorHandler = h
	t.mu.Unlock()
}

func (t *Transport) SetMessageHandler(h func(*jsonrpc.Message, *transport.Extra)) {
	t.mu.Lock()
	t.messageHandler = h
	t.mu.Unlock()
}

func (t *Transport) SessionID() (string, bool) { return "", false }

func (t *Transport) readLoop(ctx context.Context) {
	defer t.wg.Done()

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t.mu.RLock()
		if t.closed {
			t.mu.RUnlock()
			return
		}
		t.mu.RUnlock()

		n, err := t.reader.Read(buf)
		if err != nil {
			if err != io.EOF {
				t.reportError(fmt.Errorf("stdio: read error: %w", err))
			}
			return
		}

		t.buf.append(buf[:n])

		for {
			msg, err := t.buf.readMessage()
			if err != nil {
				t.reportError(fmt.Errorf("stdio: failed to read message: %w", err))
				break
			}
			if msg == nil {
				break
			}
			t.mu.RLock()
			handler := t.messageHandler
			t.mu.RUnlock()
			if handler != nil {
				handler(msg, nil)
			}
		}
	}
}

func (t *Transport) reportError(err error) {
	t.mu.RLock()
	handler := t.errorHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}
