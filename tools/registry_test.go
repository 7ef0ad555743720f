package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentrt/core/toolerrors"
)

func echoCallable(_ context.Context, args json.RawMessage, _ WorkspaceHandle) (any, error) {
	return json.RawMessage(args), nil
}

func TestRegisterNameConflictRespectsPriority(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register(ToolSpec{Name: "search", Kind: KindLocal, Local: echoCallable})
	require.NoError(t, err)

	// built-in-protocol outranks local: should replace.
	_, err = r.Register(ToolSpec{Name: "search", Kind: KindBuiltInProtocol, Address: "http://x"})
	require.NoError(t, err)

	spec, ok := r.Lookup("search")
	require.True(t, ok)
	require.Equal(t, KindBuiltInProtocol, spec.Kind)

	// local cannot then displace built-in-protocol.
	_, err = r.Register(ToolSpec{Name: "search", Kind: KindLocal, Local: echoCallable})
	require.Error(t, err)
	require.True(t, toolerrors.Is(err, toolerrors.BadRequest))

	spec, ok = r.Lookup("search")
	require.True(t, ok)
	require.Equal(t, KindBuiltInProtocol, spec.Kind)
}

func TestViewScopesToAllowedNames(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(ToolSpec{Name: "a", Kind: KindLocal, Local: echoCallable})
	require.NoError(t, err)
	_, err = r.Register(ToolSpec{Name: "b", Kind: KindLocal, Local: echoCallable})
	require.NoError(t, err)

	d := r.View([]string{"a", "missing"})
	require.True(t, d.Has("a"))
	require.False(t, d.Has("b"))
	require.False(t, d.Has("missing"))
}

func TestInvokeLocalValidatesSchemaAndPassesThroughBareString(t *testing.T) {
	r := NewRegistry()
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"query": {"type": "string"}},
		"required": ["query"]
	}`)
	_, err := r.Register(ToolSpec{
		Name:            "lookup",
		Kind:            KindLocal,
		ParameterSchema: schema,
		Local: func(_ context.Context, _ json.RawMessage, _ WorkspaceHandle) (any, error) {
			return "hello", nil
		},
	})
	require.NoError(t, err)

	d := r.View([]string{"lookup"})

	_, err = d.Invoke(context.Background(), "lookup", json.RawMessage(`{}`), time.Time{})
	require.Error(t, err)
	require.True(t, toolerrors.Is(err, toolerrors.InvalidArgs))

	out, err := d.Invoke(context.Background(), "lookup", json.RawMessage(`{"query":"x"}`), time.Time{})
	require.NoError(t, err)
	require.JSONEq(t, `"hello"`, string(out))
}

func TestInvokeLocalWrapsBareStringWhenStructuredResultPromised(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(ToolSpec{
		Name:             "lookup",
		Kind:             KindLocal,
		StructuredResult: true,
		Local: func(_ context.Context, _ json.RawMessage, _ WorkspaceHandle) (any, error) {
			return "hello", nil
		},
	})
	require.NoError(t, err)

	d := r.View([]string{"lookup"})

	out, err := d.Invoke(context.Background(), "lookup", json.RawMessage(`{}`), time.Time{})
	require.NoError(t, err)
	require.JSONEq(t, `{"text":"hello"}`, string(out))
}

func TestInvokeRejectsToolNotInScope(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(ToolSpec{Name: "a", Kind: KindLocal, Local: echoCallable})
	require.NoError(t, err)

	d := r.View(nil)
	_, err = d.Invoke(context.Background(), "a", json.RawMessage(`{}`), time.Time{})
	require.Error(t, err)
	require.True(t, toolerrors.Is(err, toolerrors.NotPermitted))
}
