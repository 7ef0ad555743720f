package stream

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Reassembler reconstructs a chunked frame sequence into the original
// payload bytes (spec.md §4.3). The consumer feeds it every chunk_start,
// json_chunk, and chunk_end event for a given MessageID in arrival order;
// duplicate chunk indices are deduplicated to tolerate at-least-once
// transports.
type Reassembler struct {
	inProgress map[string]*assembly
}

type assembly struct {
	originalType Type
	totalChunks  int
	totalBytes   int
	chunks       map[int]string
}

// NewReassembler constructs an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{inProgress: make(map[string]*assembly)}
}

// Feed processes one event. It returns ok=true with the reconstructed raw
// JSON bytes and original type only when a chunk_end completes an
// in-progress assembly; non-chunk events and intermediate chunk_start/
// json_chunk events return ok=false.
func (r *Reassembler) Feed(e Event) (raw json.RawMessage, originalType Type, ok bool, err error) {
	switch e.Type {
	case TypeChunkStart:
		p, castOK := e.Payload.(ChunkStartPayload)
		if !castOK {
			return nil, "", false, fmt.Errorf("reassembler: chunk_start payload has unexpected type %T", e.Payload)
		}
		r.inProgress[e.MessageID] = &assembly{
			originalType: p.OriginalType,
			totalChunks:  p.TotalChunks,
			totalBytes:   p.TotalBytes,
			chunks:       make(map[int]string, p.TotalChunks),
		}
		return nil, "", false, nil

	case TypeJSONChunk:
		a, exists := r.inProgress[e.MessageID]
		if !exists {
			return nil, "", false, fmt.Errorf("reassembler: json_chunk for unknown message %q", e.MessageID)
		}
		p, castOK := e.Payload.(JSONChunkPayload)
		if !castOK {
			return nil, "", false, fmt.Errorf("reassembler: json_chunk payload has unexpected type %T", e.Payload)
		}
		a.chunks[p.ChunkIndex] = p.ChunkData // last write wins, dedups at-least-once redelivery
		return nil, "", false, nil

	case TypeChunkEnd:
		a, exists := r.inProgress[e.MessageID]
		if !exists {
			return nil, "", false, fmt.Errorf("reassembler: chunk_end for unknown message %q", e.MessageID)
		}
		delete(r.inProgress, e.MessageID)
		if len(a.chunks) != a.totalChunks {
			return nil, "", false, fmt.Errorf("reassembler: message %q got %d of %d chunks", e.MessageID, len(a.chunks), a.totalChunks)
		}
		indices := make([]int, 0, len(a.chunks))
		for idx := range a.chunks {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		buf := make([]byte, 0, a.totalBytes)
		for _, idx := range indices {
			buf = append(buf, a.chunks[idx]...)
		}
		return json.RawMessage(buf), a.originalType, true, nil

	default:
		return nil, "", false, nil
	}
}
