package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentrt/core/model"
)

type stubClient struct {
	err   error
	calls int
}

func (s *stubClient) Complete(_ context.Context, _ *model.Request) (*model.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &model.Response{}, nil
}

func (s *stubClient) Stream(_ context.Context, _ *model.Request) (model.Streamer, error) {
	s.calls++
	return nil, s.err
}

func TestMiddlewareWrapsAndDelegates(t *testing.T) {
	limiter := New(60000, 120000)
	next := &stubClient{}
	client := limiter.Middleware()(next)

	req := &model.Request{Messages: []*model.Message{
		{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: "hello"}}},
	}}
	_, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, next.calls)
}

func TestMiddlewareReturnsNilForNilNext(t *testing.T) {
	limiter := New(60000, 120000)
	require.Nil(t, limiter.Middleware()(nil))
}

func TestObserveBacksOffOnRateLimitError(t *testing.T) {
	limiter := New(1000, 2000)
	before := limiter.currentTPM
	limiter.observe(model.ErrRateLimited)
	require.Less(t, limiter.currentTPM, before)
	require.GreaterOrEqual(t, limiter.currentTPM, limiter.minTPM)
}

func TestObserveBackoffRespectsFloor(t *testing.T) {
	limiter := New(10, 20)
	for i := 0; i < 20; i++ {
		limiter.observe(model.ErrRateLimited)
	}
	require.Equal(t, limiter.minTPM, limiter.currentTPM)
}

func TestObserveProbesUpOnSuccess(t *testing.T) {
	limiter := New(1000, 2000)
	limiter.observe(model.ErrRateLimited)
	backedOff := limiter.currentTPM
	limiter.observe(nil)
	require.Greater(t, limiter.currentTPM, backedOff)
}

func TestObserveProbeRespectsCeiling(t *testing.T) {
	limiter := New(1000, 1050)
	for i := 0; i < 20; i++ {
		limiter.observe(nil)
	}
	require.Equal(t, limiter.maxTPM, limiter.currentTPM)
}

func TestNewClampsDegenerateBudgets(t *testing.T) {
	limiter := New(0, 0)
	require.Equal(t, 60000.0, limiter.currentTPM)
	require.Equal(t, 60000.0, limiter.maxTPM)

	limiter2 := New(100, 10)
	require.Equal(t, 100.0, limiter2.maxTPM)
}

func TestEstimateTokensFallsBackToMinimumWhenNoText(t *testing.T) {
	require.Equal(t, 500, estimateTokens(&model.Request{}))
}

func TestEstimateTokensScalesWithContentLength(t *testing.T) {
	short := estimateTokens(&model.Request{Messages: []*model.Message{
		{Parts: []model.Part{model.TextPart{Text: "hi"}}},
	}})
	long := estimateTokens(&model.Request{Messages: []*model.Message{
		{Parts: []model.Part{model.TextPart{Text: string(make([]byte, 3000))}}},
	}})
	require.Less(t, short, long)
}
