package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/agentrt/core/tools/transport/retry"
)

// StdioTransport speaks line-delimited JSON-RPC to a long-lived child
// process over its stdin/stdout, matching the Caller shape the teacher's
// runtime/mcp package defines for MCP stdio servers, generalized to any
// tool server willing to read one JSON-RPC request per line and write one
// response per line.
type StdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu     sync.Mutex
	nextID atomic.Int64
	retry  retry.Config
}

// StdioOptions configures a child-process tool server.
type StdioOptions struct {
	// Command is the executable path.
	Command string
	// Args are passed to the executable.
	Args []string
	// Retry overrides the default retry policy.
	Retry *retry.Config
}

// NewStdioTransport starts the child process and wires its stdio pipes.
func NewStdioTransport(ctx context.Context, opts StdioOptions) (*StdioTransport, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("transport: stdio command must not be empty")
	}
	cmd := exec.CommandContext(ctx, opts.Command, opts.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	cfg := retry.DefaultConfig()
	if opts.Retry != nil {
		cfg = *opts.Retry
	}
	return &StdioTransport{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		retry:  cfg,
	}, nil
}

type stdioRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type stdioResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Call writes one JSON-RPC request line and blocks for the matching
// response line, running the attempt through retry.Do with the configured
// policy. Of the errors an attempt returns (pipe I/O errors, io.EOF,
// malformed JSON, an id mismatch), retry.IsRetryable accepts only a
// timed-out or temporary system-call error, so a closed pipe, an exited
// child or a garbled reply is returned without a second attempt. Calls are
// serialized: the child process sees one in-flight request at a
// time, matching the teacher's stdio caller's single-writer discipline.
func (t *StdioTransport) Call(ctx context.Context, call Call) (Result, error) {
	var out Result
	err := retry.Do(ctx, t.retry, func(ctx context.Context) error {
		r, err := t.callOnce(call)
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

func (t *StdioTransport) callOnce(call Call) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID.Add(1)
	req := stdioRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "tools/call",
		Params: map[string]any{
			"name":      call.Tool,
			"arguments": json.RawMessage(call.Payload),
		},
	}
	line, err := json.Marshal(req)
	if err != nil {
		return Result{}, err
	}
	line = append(line, '\n')
	if _, err := t.stdin.Write(line); err != nil {
		return Result{}, err
	}

	raw, err := t.stdout.ReadBytes('\n')
	if err != nil {
		return Result{}, err
	}
	var resp stdioResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Result{}, err
	}
	if resp.ID != id {
		return Result{}, fmt.Errorf("transport: stdio response id mismatch, got %d want %d", resp.ID, id)
	}
	if resp.Error != nil {
		return Result{Payload: json.RawMessage(fmt.Sprintf("%q", resp.Error.Message)), IsError: true}, nil
	}
	return Result{Payload: resp.Result}, nil
}

// Close closes stdin (signaling EOF to the child) and waits for it to exit.
func (t *StdioTransport) Close() error {
	_ = t.stdin.Close()
	return t.cmd.Wait()
}
