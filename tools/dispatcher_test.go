package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentrt/core/toolerrors"
	"github.com/agentrt/core/tools/transport"
)

type fakeTransport struct {
	calls   int
	failN   int
	result  transport.Result
	failErr error
}

func (f *fakeTransport) Call(_ context.Context, _ transport.Call) (transport.Result, error) {
	f.calls++
	if f.calls <= f.failN {
		return transport.Result{}, f.failErr
	}
	return f.result, nil
}

func (f *fakeTransport) Close() error { return nil }

type fakeResolver struct {
	transports map[string]transport.Transport
}

func (r *fakeResolver) Resolve(addr string) (transport.Transport, bool) {
	tr, ok := r.transports[addr]
	return tr, ok
}

func TestInvokeRemoteRetriesTransientFailures(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(ToolSpec{Name: "remote_search", Kind: KindRemoteProtocol, Address: "svc://a"})
	require.NoError(t, err)

	ft := &fakeTransport{
		failN:    1,
		failErr:  context.DeadlineExceeded,
		result:   transport.Result{Payload: json.RawMessage(`{"ok":true}`)},
	}
	resolver := &fakeResolver{transports: map[string]transport.Transport{"svc://a": ft}}

	d := r.View([]string{"remote_search"}).WithTransportResolver(resolver)

	out, err := d.Invoke(context.Background(), "remote_search", json.RawMessage(`{}`), time.Time{})
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(out))
	require.Equal(t, 2, ft.calls)
}

func TestInvokeRemoteSurfacesToolLevelErrorAsUpstream(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(ToolSpec{Name: "remote_tool", Kind: KindRemoteProtocol, Address: "svc://b"})
	require.NoError(t, err)

	ft := &fakeTransport{result: transport.Result{Payload: json.RawMessage(`"bad input"`), IsError: true}}
	resolver := &fakeResolver{transports: map[string]transport.Transport{"svc://b": ft}}

	d := r.View([]string{"remote_tool"}).WithTransportResolver(resolver)

	_, err = d.Invoke(context.Background(), "remote_tool", json.RawMessage(`{}`), time.Time{})
	require.Error(t, err)
	require.True(t, toolerrors.Is(err, toolerrors.Upstream))
}

func TestInvokeRemoteNonRetryableFailsFast(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(ToolSpec{Name: "remote_tool2", Kind: KindRemoteProtocol, Address: "svc://c"})
	require.NoError(t, err)

	wantErr := errors.New("permanent failure")
	ft := &fakeTransport{failN: 99, failErr: wantErr}
	resolver := &fakeResolver{transports: map[string]transport.Transport{"svc://c": ft}}

	d := r.View([]string{"remote_tool2"}).WithTransportResolver(resolver)

	_, err = d.Invoke(context.Background(), "remote_tool2", json.RawMessage(`{}`), time.Time{})
	require.Error(t, err)
	require.True(t, toolerrors.Is(err, toolerrors.TransportError))
	require.Equal(t, 1, ft.calls)
}
