package stream

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the default bounded buffer capacity N (spec.md
// §4.3): when full, the producer blocks cooperatively rather than dropping
// events.
const DefaultBufferSize = 256

// DefaultChunkThresholdBytes is the default serialized-payload size above
// which an event is split into chunk_start/json_chunk/chunk_end frames
// (spec.md §4.3).
const DefaultChunkThresholdBytes = 32 * 1024

// EventStream is a per-session, single-producer/single-consumer ordered
// channel of Events with bounded backpressure. Only the Controller
// (producer) and the transport adapter (consumer) ever touch one instance;
// it is not safe for multiple concurrent producers.
type EventStream struct {
	sessionID string
	ch        chan Event
	seq       atomic.Int64

	threshold int

	closeOnce sync.Once
	closed    chan struct{}
}

// New constructs an EventStream with the given buffer capacity and chunk
// threshold; zero values fall back to the spec defaults.
func New(sessionID string, bufferSize, chunkThresholdBytes int) *EventStream {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if chunkThresholdBytes <= 0 {
		chunkThresholdBytes = DefaultChunkThresholdBytes
	}
	return &EventStream{
		sessionID: sessionID,
		ch:        make(chan Event, bufferSize),
		threshold: chunkThresholdBytes,
		closed:    make(chan struct{}),
	}
}

// Events returns the receive-only channel the consumer drains in order.
func (s *EventStream) Events() <-chan Event {
	return s.ch
}

func (s *EventStream) nextSeq() int64 {
	return s.seq.Add(1)
}

// push blocks until the event is queued or ctx is done, stamping Seq and
// SessionID. Returns ctx.Err() on cancellation, never sending a partial
// event in that case.
func (s *EventStream) push(ctx context.Context, e Event) error {
	e.SessionID = s.sessionID
	e.Seq = s.nextSeq()
	select {
	case s.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Emit sends e, transparently chunking the payload across
// chunk_start/json_chunk/chunk_end frames if its serialized size exceeds
// the configured threshold. Chunks for the same MessageID are pushed
// contiguously — Emit is not safe to call concurrently for events sharing
// a MessageID from different goroutines (single-producer contract).
func (s *EventStream) Emit(ctx context.Context, e Event) error {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	if len(raw) <= s.threshold {
		return s.push(ctx, e)
	}

	totalChunks := (len(raw) + s.threshold - 1) / s.threshold
	if err := s.push(ctx, Event{
		MessageID: e.MessageID,
		Type:      TypeChunkStart,
		Payload: ChunkStartPayload{
			OriginalType: e.Type,
			TotalChunks:  totalChunks,
			TotalBytes:   len(raw),
		},
	}); err != nil {
		return err
	}
	for i := 0; i < totalChunks; i++ {
		start := i * s.threshold
		end := start + s.threshold
		if end > len(raw) {
			end = len(raw)
		}
		if err := s.push(ctx, Event{
			MessageID: e.MessageID,
			Type:      TypeJSONChunk,
			Payload: JSONChunkPayload{
				ChunkIndex: i,
				ChunkData:  string(raw[start:end]),
			},
		}); err != nil {
			return err
		}
	}
	return s.push(ctx, Event{
		MessageID: e.MessageID,
		Type:      TypeChunkEnd,
		Payload:   ChunkEndPayload{},
	})
}

// End pushes the terminal stream_end frame and closes the channel. Calling
// End more than once is safe; only the first call's payload is sent.
func (s *EventStream) End(ctx context.Context, reason EndReason, usage TokenUsageView) error {
	var err error
	s.closeOnce.Do(func() {
		err = s.push(ctx, Event{
			Type:    TypeStreamEnd,
			Payload: StreamEndPayload{Reason: reason, TokenUsage: usage},
		})
		close(s.ch)
		close(s.closed)
	})
	return err
}

// Closed returns the channel closed once End has run, for callers that
// need to know the stream is finished without consuming from Events().
func (s *EventStream) Closed() <-chan struct{} {
	return s.closed
}
