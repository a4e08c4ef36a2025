package sse

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/metoro-io/mcp-runtime-go/jsonrpc"
	"github.com/metoro-io/mcp-runtime-go/transport"
)

// ClientTransport is the client side of the SSE transport: it opens the
// SSE stream, learns the POST endpoint from the server's "endpoint"
// event, and sends outgoing messages as HTTP POSTs.
type ClientTransport struct {
	sseURL     string
	httpClient *http.Client

	mu            sync.Mutex
	postURL       string
	resp          *http.Response
	cancel        context.CancelFunc
	connectedOnce chan struct{}

	messageHandler func(*jsonrpc.Message, *transport.Extra)
	closeHandler   func()
	errorHandler   func(error)
}

// NewClientTransport creates an SSE client transport against sseURL.
func NewClientTransport(sseURL string, httpClient *http.Client) *ClientTransport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ClientTransport{
		sseURL:        sseURL,
		httpClient:    httpClient,
		connectedOnce: make(chan struct{}),
	}
}

func (t *ClientTransport) Start(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, t.sseURL, nil)
	if err != nil {
		cancel()
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("sse: connecting: %w", err)
	}

	t.mu.Lock()
	t.resp = resp
	t.cancel = cancel
	t.mu.Unlock()

	go t.readLoop(resp)
	return nil
}

func (t *ClientTransport) readLoop(resp *http.Response) {
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxMessageSize)

	var event, data string
	flush := func() {
		switch event {
		case "endpoint":
			t.mu.Lock()
			t.postURL = data
			t.mu.Unlock()
			t.signalConnected()
		case "message":
			msg, err := jsonrpc.Decode([]byte(data))
			if err != nil {
				t.reportError(err)
				return
			}
			t.mu.Lock()
			handler := t.messageHandler
			t.mu.Unlock()
			if handler != nil {
				handler(msg, nil)
			}
		}
		event, data = "", ""
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		t.reportError(fmt.Errorf("sse: stream read error: %w", err))
	}

	t.mu.Lock()
	handler := t.closeHandler
	t.mu.Unlock()
	if handler != nil {
		handler()
	}
}

func (t *ClientTransport) signalConnected() {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.connectedOnce:
	default:
		close(t.connectedOnce)
	}
}

func (t *ClientTransport) Send(ctx context.Context, msg *jsonrpc.Message, _ *transport.SendOptions) error {
	<-t.connectedOnce

	t.mu.Lock()
	postURL := t.postURL
	t.mu.Unlock()
	if postURL == "" {
		return fmt.Errorf("sse: endpoint not yet known")
	}

	data, err := jsonrpc.Encode(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sse: posting message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sse: server rejected message: status %d", resp.StatusCode)
	}
	return nil
}

func (t *ClientTransport) Close() error {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (t *ClientTransport) SetMessageHandler(h func(*jsonrpc.Message, *transport.Extra)) {
	t.mu.Lock()
	t.messageHandler = h
	t.mu.Unlock()
}

func (t *ClientTransport) SetCloseHandler(h func()) {
	t.mu.Lock()
	t.closeHandler = h
	t.mu.Unlock()
}

func (t *ClientTransport) SetErrorHandler(h func(error)) {
	t.mu.Lock()
	t.errorHandler = h
	t.mu.Unlock()
}

func (t *ClientTransport) SessionID() (string, bool) { return "", false }

func (t *ClientTransport) reportError(err error) {
	t.mu.Lock()
	handler := t.errorHandler
	t.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}
