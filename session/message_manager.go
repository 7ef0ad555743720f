package session

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/agentrt/core/toolerrors"
)

// nonEssentialPhaseTypes are the intermediate phase message types that
// MessageManager.HistoryFor drops before relevance filtering and budget
// trimming. The most recent user message, every system-role message, and
// the last assistant turn are kept whatever their type (handled separately
// in HistoryFor).
var nonEssentialPhaseTypes = map[MessageType]bool{
	MessageTypeRouter:       true,
	MessageTypeAnalysis:     true,
	MessageTypeDecompose:    true,
	MessageTypePlan:         true,
	MessageTypeObserve:      true,
	MessageTypeJudge:        true,
	MessageTypeStageSummary: true,
}

// MessageManager owns one session's append-only message log and produces
// LLM-ready history slices (spec.md §4.2).
type MessageManager struct {
	mu       sync.Mutex
	sessionID string
	messages []*Message
	index    map[string]int // message_id -> index in messages
	seq      int64
}

// NewMessageManager constructs an empty log for the given session.
func NewMessageManager(sessionID string) *MessageManager {
	return &MessageManager{
		sessionID: sessionID,
		index:     make(map[string]int),
	}
}

// Append adds msg to the end of the log, stamping SessionID and Timestamp.
// Appending a MessageID already present in the log is rejected: callers
// that want to extend an existing message must use Coalesce or Replace.
func (m *MessageManager) Append(msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.index[msg.MessageID]; exists {
		return toolerrors.New(toolerrors.BadRequest, fmt.Sprintf("message %q already appended", msg.MessageID))
	}
	m.seq++
	msg.SessionID = m.sessionID
	if msg.Timestamp == 0 {
		msg.Timestamp = m.seq
	}
	m.index[msg.MessageID] = len(m.messages)
	m.messages = append(m.messages, msg)
	return nil
}

// Coalesce appends delta text onto the message's existing Content (and
// ShowContent, if showDelta is non-empty) for streaming phases that emit
// incremental updates. The message must already exist and must not be
// marked ReplaceOnUpdate.
func (m *MessageManager) Coalesce(messageID, delta, showDelta string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.index[messageID]
	if !ok {
		return toolerrors.New(toolerrors.BadRequest, fmt.Sprintf("coalesce: unknown message %q", messageID))
	}
	msg := m.messages[idx]
	if msg.ReplaceOnUpdate {
		return toolerrors.New(toolerrors.BadRequest, fmt.Sprintf("coalesce: message %q is replace-on-update", messageID))
	}
	msg.Content += delta
	if showDelta != "" {
		msg.ShowContent += showDelta
	}
	return nil
}

// Replace overwrites the message at messageID in place, used by tool-result
// phases (spec.md §3 "replace-on-update"). The replacement keeps the
// original position in the log.
func (m *MessageManager) Replace(messageID string, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.index[messageID]
	if !ok {
		return toolerrors.New(toolerrors.BadRequest, fmt.Sprintf("replace: unknown message %q", messageID))
	}
	msg.MessageID = messageID
	msg.SessionID = m.sessionID
	msg.Timestamp = m.messages[idx].Timestamp
	m.messages[idx] = msg
	return nil
}

// Get returns a copy of all messages in order.
func (m *MessageManager) Get() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// ByID returns the message with the given id, if present.
func (m *MessageManager) ByID(messageID string) (*Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.index[messageID]
	if !ok {
		return nil, false
	}
	return m.messages[idx], true
}

// HistoryFor builds the message slice sent to the LLM for the named phase,
// bounded to roughly budgetTokens (spec.md §4.2): it drops non-essential
// intermediate phase messages first, applies BM25 relevance scoring of
// earlier user turns against the latest user message to keep only the
// top-K most relevant, then hard-truncates the oldest remaining messages
// until the estimated token count fits. The most recent user message, any
// system-role messages, and the last assistant turn are always kept.
func (m *MessageManager) HistoryFor(phase MessageType, budgetTokens int, topK int) []*Message {
	m.mu.Lock()
	all := make([]*Message, len(m.messages))
	copy(all, m.messages)
	m.mu.Unlock()

	if len(all) == 0 {
		return nil
	}

	lastUserIdx, lastAssistantIdx := -1, -1
	for i, msg := range all {
		if msg.Role == RoleUser {
			lastUserIdx = i
		}
		if msg.Role == RoleAssistant {
			lastAssistantIdx = i
		}
	}

	essential := make(map[int]bool)
	for i, msg := range all {
		if msg.Role == RoleSystem {
			essential[i] = true
		}
	}
	if lastUserIdx >= 0 {
		essential[lastUserIdx] = true
	}
	if lastAssistantIdx >= 0 {
		essential[lastAssistantIdx] = true
	}

	// Step 1: drop non-essential intermediate phase messages.
	var candidates []int
	for i, msg := range all {
		if essential[i] {
			continue
		}
		if nonEssentialPhaseTypes[msg.Type] {
			continue
		}
		candidates = append(candidates, i)
	}

	// Step 2: BM25-rank the remaining older user turns against the latest
	// user query, keep the top-K.
	if lastUserIdx >= 0 && topK > 0 {
		query := all[lastUserIdx].Content
		var userIdxs []int
		for _, i := range candidates {
			if all[i].Role == RoleUser {
				userIdxs = append(userIdxs, i)
			}
		}
		if len(userIdxs) > topK {
			ranked := bm25Rank(query, all, userIdxs)
			kept := make(map[int]bool, topK)
			for _, i := range ranked[:topK] {
				kept[i] = true
			}
			filtered := candidates[:0]
			for _, i := range candidates {
				if all[i].Role != RoleUser || kept[i] {
					filtered = append(filtered, i)
				}
			}
			candidates = filtered
		}
	}

	keep := make(map[int]bool, len(candidates)+len(essential))
	for i := range essential {
		keep[i] = true
	}
	for _, i := range candidates {
		keep[i] = true
	}

	var kept []*Message
	for i, msg := range all {
		if keep[i] {
			kept = append(kept, msg)
		}
	}

	// Step 3: hard-truncate oldest-first to fit budgetTokens, never
	// dropping an essential message.
	if budgetTokens > 0 {
		kept = truncateToBudget(kept, budgetTokens, essential, all)
	}
	return kept
}

func truncateToBudget(kept []*Message, budgetTokens int, essentialOrig map[int]bool, all []*Message) []*Message {
	total := 0
	for _, msg := range kept {
		total += estimateTokens(msg)
	}
	if total <= budgetTokens {
		return kept
	}
	essentialIDs := make(map[string]bool)
	for i := range essentialOrig {
		essentialIDs[all[i].MessageID] = true
	}
	// Drop oldest-first until within budget, skipping essential messages.
	result := append([]*Message(nil), kept...)
	for total > budgetTokens {
		dropIdx := -1
		for i, msg := range result {
			if !essentialIDs[msg.MessageID] {
				dropIdx = i
				break
			}
		}
		if dropIdx == -1 {
			break
		}
		total -= estimateTokens(result[dropIdx])
		result = append(result[:dropIdx], result[dropIdx+1:]...)
	}
	return result
}

func estimateTokens(msg *Message) int {
	chars := len(msg.Content)
	if chars == 0 {
		chars = len(msg.ShowContent)
	}
	t := chars / 3
	if t < 1 {
		t = 1
	}
	return t
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(s string) []string {
	return tokenPattern.FindAllString(strings.ToLower(s), -1)
}

// bm25Rank scores each message index in candidates against query using
// BM25 (k1=1.2, b=0.75) over the candidate set as the corpus, returning
// indices sorted by descending score.
func bm25Rank(query string, all []*Message, candidates []int) []int {
	const k1 = 1.2
	const b = 0.75

	qTerms := tokenize(query)
	docs := make([][]string, len(candidates))
	avgLen := 0.0
	for i, idx := range candidates {
		docs[i] = tokenize(all[idx].Content)
		avgLen += float64(len(docs[i]))
	}
	n := len(candidates)
	if n == 0 {
		return nil
	}
	avgLen /= float64(n)

	df := make(map[string]int)
	for _, d := range docs {
		seen := make(map[string]bool)
		for _, term := range d {
			if !seen[term] {
				df[term]++
				seen[term] = true
			}
		}
	}

	scores := make([]float64, n)
	for i, d := range docs {
		tf := make(map[string]int)
		for _, term := range d {
			tf[term]++
		}
		dl := float64(len(d))
		var score float64
		for _, qt := range qTerms {
			f, ok := tf[qt]
			if !ok {
				continue
			}
			ni := df[qt]
			idf := math.Log(1 + (float64(n)-float64(ni)+0.5)/(float64(ni)+0.5))
			num := float64(f) * (k1 + 1)
			den := float64(f) + k1*(1-b+b*dl/avgLen)
			score += idf * num / den
		}
		scores[i] = score
	}

	type scored struct {
		idx   int
		score float64
	}
	pairs := make([]scored, n)
	for i, idx := range candidates {
		pairs[i] = scored{idx: idx, score: scores[i]}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })

	ranked := make([]int, n)
	for i, p := range pairs {
		ranked[i] = p.idx
	}
	return ranked
}
