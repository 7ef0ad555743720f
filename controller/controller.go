package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/agentrt/core/interrupt"
	"github.com/agentrt/core/memory"
	"github.com/agentrt/core/model"
	"github.com/agentrt/core/phase"
	"github.com/agentrt/core/session"
	"github.com/agentrt/core/stream"
	"github.com/agentrt/core/telemetry"
	"github.com/agentrt/core/toolerrors"
	"github.com/agentrt/core/tools"
)

// DefaultMaxLoopCount bounds the multi-agent Plan/Execute/Observe/Judge loop
// when the caller does not supply max_loop_count (spec.md §4.5).
const DefaultMaxLoopCount = 10

// DefaultModelWindow is the token budget ceiling assumed when the caller's
// llm_model_config.max_tokens is unset (spec.md §4.8).
const DefaultModelWindow = 200000

// Controller drives one session's Run request end-to-end: it owns the
// phase graph, consults the gating predicates, and schedules the async
// MemoryExtractor at stream_end (spec.md §4.5).
type Controller struct {
	client    model.Client
	registry  *tools.Registry
	resolver  tools.TransportResolver
	interrupt *interrupt.Registry
	memory    *memory.Extractor
	logger    telemetry.Logger
	tracer    telemetry.Tracer
	metrics   telemetry.Metrics
	runner    *phase.Runner
}

// New constructs a Controller. memExtractor may be nil, in which case
// ExtractAsync is a no-op. Tracer and Metrics default to no-ops; attach real
// OpenTelemetry-backed implementations with WithTracer/WithMetrics.
func New(client model.Client, registry *tools.Registry, interrupts *interrupt.Registry, memExtractor *memory.Extractor, logger telemetry.Logger) *Controller {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Controller{
		client:    client,
		registry:  registry,
		interrupt: interrupts,
		memory:    memExtractor,
		logger:    logger,
		tracer:    telemetry.NewNoopTracer(),
		metrics:   telemetry.NewNoopMetrics(),
		runner:    phase.New(client),
	}
}

// WithTransportResolver attaches the resolver used for remote tool kinds
// when scoping the session's dispatcher.
func (c *Controller) WithTransportResolver(r tools.TransportResolver) *Controller {
	c.resolver = r
	return c
}

// WithTracer attaches the span provider used to trace each session run.
func (c *Controller) WithTracer(t telemetry.Tracer) *Controller {
	if t != nil {
		c.tracer = t
	}
	return c
}

// WithMetrics attaches the recorder used for run duration, outcome, and
// token-usage instrumentation.
func (c *Controller) WithMetrics(m telemetry.Metrics) *Controller {
	if m != nil {
		c.metrics = m
	}
	return c
}

// Start creates the session's Context and EventStream, registers the
// interrupt handle, and launches the phase graph as a detached goroutine.
// It returns immediately so the caller (the HTTP ingress adapter, or a
// test) can begin draining es.Events() before the run completes (spec.md
// §4.5, §5 "scheduling model": one logical task per session).
func (c *Controller) Start(ctx context.Context, req Request) (*session.Context, *stream.EventStream) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	modelWindow := req.ModelConfig.MaxTokens
	if modelWindow <= 0 {
		modelWindow = DefaultModelWindow
	}

	sc := session.New(ctx, req.SessionID, req.SystemContext, modelWindow)
	es := stream.New(req.SessionID, stream.DefaultBufferSize, stream.DefaultChunkThresholdBytes)

	if c.interrupt != nil {
		c.interrupt.Register(req.SessionID, sc.Cancel)
	}

	go c.run(ctx, sc, es, req)
	return sc, es
}

func (c *Controller) run(ctx context.Context, sc *session.Context, es *stream.EventStream, req Request) {
	defer func() {
		if c.interrupt != nil {
			c.interrupt.Remove(req.SessionID)
		}
	}()

	ctx, span := c.tracer.Start(ctx, "controller.run")
	started := time.Now()
	defer span.End()

	reason := stream.EndCompleted
	var finalText string

	result, err := c.runGraph(ctx, sc, es, req)
	if err != nil {
		if toolerrors.Is(err, toolerrors.SessionInterrupted) {
			reason = stream.EndInterrupted
			sc.SetStatus(session.StatusInterrupted)
			span.SetStatus(codes.Error, "interrupted")
		} else {
			reason = stream.EndFailed
			sc.SetStatus(session.StatusFailed)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.emitFailureNote(ctx, sc, es, err)
		}
	} else {
		finalText = result
		sc.SetStatus(session.StatusSucceeded)
		span.SetStatus(codes.Ok, "")
	}

	usage := sc.Tokens.Cumulative()
	c.metrics.RecordTimer("controller.run.duration", time.Since(started), "reason", string(reason))
	c.metrics.IncCounter("controller.run.total", 1, "reason", string(reason))
	c.metrics.RecordGauge("controller.run.total_tokens", float64(usage.TotalTokens), "session_id", req.SessionID)

	_ = es.End(ctx, reason, stream.TokenUsageView{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	})

	_ = finalText
	c.scheduleExtractAsync(sc, req)
}

// emitFailureNote appends the user-visible diagnostic message required
// before a failed stream_end (spec.md §7 "User-visible behavior").
func (c *Controller) emitFailureNote(ctx context.Context, sc *session.Context, es *stream.EventStream, cause error) {
	msgID := uuid.NewString()
	text := fmt.Sprintf("Run failed: %s", cause.Error())
	_ = sc.Messages.Append(&session.Message{
		MessageID: msgID,
		Role:      session.RoleAssistant,
		Type:      session.MessageTypeSummary,
		Content:   text,
	})
	_ = es.Emit(ctx, stream.Event{
		MessageID: msgID,
		Type:      stream.TypeMessage,
		Payload:   stream.MessagePayload{Role: string(session.RoleAssistant), Content: text},
	})
}

// scheduleExtractAsync launches MemoryExtractor.Run as a detached goroutine
// once at least one complete user/assistant exchange occurred (spec.md
// §4.5 tie-break rule on interrupted runs with no exchange).
func (c *Controller) scheduleExtractAsync(sc *session.Context, req Request) {
	if c.memory == nil || req.UserID == "" {
		return
	}
	msgs := sc.Messages.Get()
	hasExchange := false
	sawUser := false
	for _, m := range msgs {
		if m.Role == session.RoleUser {
			sawUser = true
		}
		if sawUser && m.Role == session.RoleAssistant && m.Content != "" {
			hasExchange = true
			break
		}
	}
	if !hasExchange {
		return
	}
	go func() {
		bg := context.Background()
		if err := c.memory.Run(bg, req.UserID, msgs); err != nil {
			c.logger.Error(bg, "memory extraction failed", "session_id", req.SessionID, "error", err)
		}
	}()
}

// toolDispatcherFor scopes the registry to req's allow-list.
func (c *Controller) toolDispatcherFor(req Request) *tools.ScopedDispatcher {
	d := c.registry.View(req.AvailableTools)
	if c.resolver != nil {
		d = d.WithTransportResolver(c.resolver)
	}
	return d
}

func (c *Controller) phaseInput(kind phase.Kind, req Request, instruction string, withTools bool) phase.Input {
	in := phase.Input{
		Phase:        kind,
		SystemPrefix: req.SystemPrefix,
		Instruction:  instruction,
		Model:        req.ModelConfig.Model,
		ModelClass:   req.ModelConfig.ModelClass,
		Temperature:  req.ModelConfig.Temperature,
		MaxTokens:    req.ModelConfig.MaxTokens,
		TopKRelevant: 5,
		ToolDeadline: 30 * time.Second,
		Logger:       c.logger,
	}
	if withTools {
		in.Tools = c.toolDispatcherFor(req)
	}
	return in
}

// sinkStream returns a stream for a phase whose events must not reach the caller
// (StageSummary is internal bookkeeping only — spec.md §9 resolved open
// question on StageSummary visibility): it is a throwaway EventStream
// drained and discarded by a background goroutine.
func sinkStream(sessionID string) *stream.EventStream {
	s := stream.New(sessionID, stream.DefaultBufferSize, stream.DefaultChunkThresholdBytes)
	go func() {
		for range s.Events() {
		}
	}()
	return s
}
