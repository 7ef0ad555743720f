package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/agentrt/core/tools/transport/retry"
)

// HTTPSSETransport calls a remote tool endpoint over HTTP, reading the
// response back as a Server-Sent-Events stream. Each call is independently
// retried per retry.DefaultConfig. Grounded on the teacher's
// runtime/mcp.SSECaller request/response shape, stripped of the MCP
// initialize handshake (this transport is called with an already-known tool
// name rather than discovering a tool list).
type HTTPSSETransport struct {
	endpoint string
	client   *http.Client
	nextID   atomic.Int64
	retry    retry.Config
}

// HTTPSSEOptions configures an HTTPSSETransport.
type HTTPSSEOptions struct {
	// Endpoint is the absolute URL the transport POSTs calls to.
	Endpoint string
	// Timeout bounds a single HTTP round trip (default 30s).
	Timeout time.Duration
	// Retry overrides the default retry policy.
	Retry *retry.Config
}

// NewHTTPSSETransport validates opts.Endpoint and constructs a transport.
func NewHTTPSSETransport(opts HTTPSSEOptions) (*HTTPSSETransport, error) {
	u, err := url.Parse(opts.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("transport: invalid endpoint %q", opts.Endpoint)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg := retry.DefaultConfig()
	if opts.Retry != nil {
		cfg = *opts.Retry
	}
	return &HTTPSSETransport{
		endpoint: opts.Endpoint,
		client:   &http.Client{Timeout: timeout},
		retry:    cfg,
	}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Call sends call to the remote endpoint and parses the SSE "response" event
// as the tool result, retrying transient transport failures.
func (t *HTTPSSETransport) Call(ctx context.Context, call Call) (Result, error) {
	var out Result
	err := retry.Do(ctx, t.retry, func(ctx context.Context) error {
		r, err := t.callOnce(ctx, call)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return out, nil
}

func (t *HTTPSSETransport) callOnce(ctx context.Context, call Call) (Result, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      t.nextID.Add(1),
		Method:  "tools/call",
		Params: map[string]any{
			"name":      call.Tool,
			"arguments": json.RawMessage(call.Payload),
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return Result{}, &retry.HTTPStatusError{StatusCode: resp.StatusCode, Message: string(raw)}
	}

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(ct, "text/event-stream") {
		raw, _ := io.ReadAll(resp.Body)
		var rpcResp rpcResponse
		if jsonErr := json.Unmarshal(raw, &rpcResp); jsonErr == nil {
			return resultFromRPC(rpcResp)
		}
		return Result{}, fmt.Errorf("transport: unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	reader := bufio.NewReader(resp.Body)
	for {
		event, data, err := readSSEEvent(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Result{}, errors.New("transport: sse stream closed before response")
			}
			return Result{}, err
		}
		switch event {
		case "response", "result":
			var rpcResp rpcResponse
			if err := json.Unmarshal(data, &rpcResp); err != nil {
				return Result{}, err
			}
			return resultFromRPC(rpcResp)
		case "error":
			var rpcResp rpcResponse
			if err := json.Unmarshal(data, &rpcResp); err == nil && rpcResp.Error != nil {
				return Result{Payload: json.RawMessage(strconv.Quote(rpcResp.Error.Message)), IsError: true}, nil
			}
			return Result{}, errors.New("transport: remote error event")
		case "", "notification", "ping":
			continue
		case "close":
			return Result{}, errors.New("transport: sse stream closed without response")
		}
	}
}

func resultFromRPC(resp rpcResponse) (Result, error) {
	if resp.Error != nil {
		return Result{Payload: json.RawMessage(strconv.Quote(resp.Error.Message)), IsError: true}, nil
	}
	return Result{Payload: resp.Result}, nil
}

// Close releases idle connections held by the underlying HTTP client.
func (t *HTTPSSETransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func readSSEEvent(reader *bufio.Reader) (string, []byte, error) {
	var event string
	var data []byte
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if event == "" && len(data) == 0 {
				continue
			}
			return event, data, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if after, ok := strings.CutPrefix(line, "event:"); ok {
			event = strings.TrimSpace(after)
			continue
		}
		if after, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, []byte(strings.TrimPrefix(after, " "))...)
			continue
		}
	}
}
