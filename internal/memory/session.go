package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionEngine owns the two-table session design (messages + rolling
// summary) and the summarisation controller (spec C6 Session, C8 Session
// controller), adapted from the teacher's internal/context.Builder
// (context assembly) and SessionCompressor (summarisation), generalised
// from the teacher's single-turn-table model to the spec's message/summary
// split.
type SessionEngine struct {
	Store      Store
	Embedder   Embedder
	Summariser Summariser
	Logger     *zap.SugaredLogger
	Now        func() time.Time

	MessagesTable string
	SummaryTable  string

	// SummarizeEvery triggers summarise_session once this many new messages
	// have accumulated since the last summary (spec §4.4 trigger logic,
	// OR condition 1: message count).
	SummarizeEvery int
	// MaxContentLength triggers summarise_session once the combined byte
	// length of pending messages reaches this many characters (spec §4.4
	// trigger logic, OR condition 2: byte length; wired from config's
	// max_session_length).
	MaxContentLength int
	// PostSummaryTrigger is the lower message-count threshold that applies
	// once a summary already exists for the session (spec §4.4, §8.4
	// scenario S2, OR condition 3).
	PostSummaryTrigger int

	mu sync.Mutex // one per engine: serialises SummarizeSession across all sessions
}

func NewSessionEngine(store Store, embedder Embedder, summariser Summariser, logger *zap.SugaredLogger) *SessionEngine {
	return &SessionEngine{
		Store: store, Embedder: embedder, Summariser: summariser, Logger: logger,
		MessagesTable: "session_messages", SummaryTable: "session_summaries",
		SummarizeEvery: 20, MaxContentLength: 10000, PostSummaryTrigger: 5,
	}
}

func (e *SessionEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// AddMessage appends one turn to a session's transcript. Messages are
// flagged is_summary_candidate=true at write time; summarise_session later
// flips the flag atomically for every message it folds in (spec §4.4,
// §8.1's "never double count" invariant — see DESIGN.md Open Question 3).
func (e *SessionEngine) AddMessage(ctx context.Context, sessionID, userID, role, content, messageType string, metadata map[string]any) OpResult {
	if content == "" {
		return opFail("add_message", "content must not be empty")
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	msg := SessionMessage{
		ID: uuid.New().String(), SessionID: sessionID, UserID: userID,
		Role: role, Content: content, MessageType: messageType,
		MessageMetadata: metadata, IsSummaryCandidate: true, CreatedAt: e.now(),
	}
	row := Row{
		"id": msg.ID, "session_id": msg.SessionID, "user_id": msg.UserID,
		"role": msg.Role, "content": msg.Content, "message_type": msg.MessageType,
		"message_metadata": serializeDatetimeRecursive(msg.MessageMetadata),
		"is_summary_candidate": msg.IsSummaryCandidate, "created_at": msg.CreatedAt,
	}
	if _, err := e.Store.Upsert(ctx, e.MessagesTable, row, []string{"id"}); err != nil {
		e.Logger.Errorw("add_message failed", "operation", "add_message", "session_id", sessionID, "error", err)
		return opFail("add_message", fmt.Sprintf("store adapter unavailable: %v", err))
	}

	if e.shouldSummarize(ctx, sessionID) {
		if res := e.SummarizeSession(ctx, sessionID, userID, false, "medium"); !res.Success {
			e.Logger.Warnw("trigger summarise_session failed", "operation", "summarise_session", "session_id", sessionID, "message", res.Message)
		}
	}
	return opOK("add_message", map[string]any{"id": msg.ID})
}

func (e *SessionEngine) pendingCount(ctx context.Context, sessionID string) int {
	n, _ := e.pendingStats(ctx, sessionID)
	return n
}

// pendingStats returns the number of pending (is_summary_candidate=true)
// messages and their combined content length, used to evaluate spec §4.4's
// three OR'd summarisation triggers.
func (e *SessionEngine) pendingStats(ctx context.Context, sessionID string) (count, totalLen int) {
	rows, err := e.Store.SelectByColumn(ctx, e.MessagesTable, "session_id", sessionID)
	if err != nil {
		return 0, 0
	}
	for _, r := range rows {
		if getBool(r, "is_summary_candidate") {
			count++
			totalLen += len(getString(r, "content"))
		}
	}
	return count, totalLen
}

// shouldSummarize evaluates spec §4.4's three OR'd triggers: message count,
// combined byte length, and (once a summary already exists) the lower
// post-summary message-count threshold.
func (e *SessionEngine) shouldSummarize(ctx context.Context, sessionID string) bool {
	count, totalLen := e.pendingStats(ctx, sessionID)
	if count == 0 {
		return false
	}
	if count >= e.SummarizeEvery {
		return true
	}
	if e.MaxContentLength > 0 && totalLen >= e.MaxContentLength {
		return true
	}
	if existing, _ := e.getSummaryRow(ctx, sessionID); existing != nil && count >= e.PostSummaryTrigger {
		return true
	}
	return false
}

// validSummaryLevels are the three length tiers spec §4.4's
// summarise_session(level) accepts; anything else falls back to "medium".
var validSummaryLevels = map[string]bool{"brief": true, "medium": true, "detailed": true}

func normalizeSummaryLevel(level string) string {
	if validSummaryLevels[level] {
		return level
	}
	return "medium"
}

// SummarizeSession folds every pending (is_summary_candidate=true) message
// into the rolling summary and atomically flips their flag off in one bulk
// update, guarded by a per-engine mutex so concurrent triggers for the same
// session can't double-summarise (spec §8.1; DESIGN.md Open Question 3:
// strengthened over the Python original's one-row-at-a-time loop to a
// single `UPDATE ... WHERE id = ANY($1)`). force marks a caller-requested
// summarisation that bypasses AddMessage's trigger thresholds (spec §4.4
// summarise_session(user_id, session_id, force, level)); level selects the
// summary's target length tier, defaulting to "medium" when unset/invalid.
func (e *SessionEngine) SummarizeSession(ctx context.Context, sessionID, userID string, force bool, level string) OpResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows, err := e.Store.SelectByColumn(ctx, e.MessagesTable, "session_id", sessionID)
	if err != nil {
		return opFail("summarise_session", fmt.Sprintf("select failed: %v", err))
	}
	var pending []Row
	var pendingIDs []string
	for _, r := range rows {
		if getBool(r, "is_summary_candidate") {
			pending = append(pending, r)
			pendingIDs = append(pendingIDs, getString(r, "id"))
		}
	}
	if len(pending) == 0 {
		return opOK("summarise_session", map[string]any{"summarized": 0, "forced": force})
	}

	var lines []string
	for _, r := range pending {
		role := getString(r, "role")
		lines = append(lines, fmt.Sprintf("%s: %s", role, getString(r, "content")))
	}
	transcript := strings.Join(lines, "\n")

	summaryResult, err := e.Summariser.Summarize(ctx, transcript, SummarizeOptions{Style: "narrative", Length: normalizeSummaryLevel(level)})
	if err != nil {
		return opFail("summarise_session", fmt.Sprintf("summariser unavailable: %v", err))
	}
	keyPoints, _ := e.Summariser.ExtractKeyPoints(ctx, transcript, 5)

	existing, _ := e.getSummaryRow(ctx, sessionID)
	mergedSummary := summaryResult.Summary
	totalMessages := len(pending)
	if existing != nil {
		prior := getString(existing, "conversation_summary")
		if prior != "" {
			mergedSummary = prior + "\n\n" + summaryResult.Summary
		}
		totalMessages += getInt(existing, "total_messages")
		priorDecisions := getStrings(existing, "key_decisions")
		keyPoints = dedupStrings(append(priorDecisions, keyPoints...))
	}

	now := e.now()
	summaryRow := Row{
		"id": sessionSummaryID(existing, sessionID), "session_id": sessionID, "user_id": userID,
		"conversation_summary": mergedSummary, "key_decisions": keyPoints,
		"total_messages": totalMessages, "messages_since_last_summary": 0,
		"last_summary_at": now, "session_metadata": map[string]any{},
		"created_at": firstNonZero(existing, now), "updated_at": now,
	}
	if _, err := e.Store.Upsert(ctx, e.SummaryTable, summaryRow, []string{"id"}); err != nil {
		return opFail("summarise_session", fmt.Sprintf("store adapter unavailable: %v", err))
	}

	if err := e.Store.BulkUpdate(ctx, e.MessagesTable, pendingIDs, Row{"is_summary_candidate": false}); err != nil {
		e.Logger.Errorw("candidate flag flip failed", "operation", "summarise_session", "session_id", sessionID, "error", err)
		return opFail("summarise_session", fmt.Sprintf("bulk flag flip failed: %v", err))
	}

	return opOK("summarise_session", map[string]any{"summarized": len(pending), "session_id": sessionID})
}

func sessionSummaryID(existing Row, sessionID string) string {
	if existing != nil {
		if id := getString(existing, "id"); id != "" {
			return id
		}
	}
	return "summary_" + sessionID
}

func firstNonZero(existing Row, now time.Time) time.Time {
	if existing != nil {
		if t := getTime(existing, "created_at"); !t.IsZero() {
			return t
		}
	}
	return now
}

func (e *SessionEngine) getSummaryRow(ctx context.Context, sessionID string) (Row, error) {
	row, err := e.Store.Get(ctx, e.SummaryTable, "summary_"+sessionID)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// GetSessionContext assembles the fresh-per-call context bundle a
// downstream LLM call needs: rolling summary + semantically relevant past
// messages + the most recent N messages, mirroring the teacher's
// context.Builder.Build section ordering (system prompt is the caller's
// concern, not the session engine's). Field set matches spec §4.4's
// get_session_context response shape.
type SessionContext struct {
	Success          bool
	SessionID        string
	TotalMessages    int
	ActiveMessages   int // pending, is_summary_candidate=true
	SummaryAvailable bool
	Summary          string
	KeyDecisions     []string
	RelevantTurns    []SessionMessage
	RecentTurns      []SessionMessage
}

func (e *SessionEngine) GetSessionContext(ctx context.Context, sessionID, userID, query string, maxRelevant, maxRecent int) (SessionContext, error) {
	out := SessionContext{SessionID: sessionID}

	if summary, err := e.getSummaryRow(ctx, sessionID); err == nil && summary != nil {
		out.Summary = getString(summary, "conversation_summary")
		out.KeyDecisions = getStrings(summary, "key_decisions")
		out.SummaryAvailable = out.Summary != ""
	}

	rows, err := e.Store.SelectByColumn(ctx, e.MessagesTable, "session_id", sessionID)
	if err != nil {
		return out, fmt.Errorf("get_session_context: %w", err)
	}
	all := make([]SessionMessage, 0, len(rows))
	for _, r := range rows {
		all = append(all, sessionMessageFromRow(r))
	}
	out.TotalMessages = len(all)
	for _, m := range all {
		if m.IsSummaryCandidate {
			out.ActiveMessages++
		}
	}

	if n := maxRecent; n > 0 {
		if n > len(all) {
			n = len(all)
		}
		out.RecentTurns = all[len(all)-n:]
	}

	if query != "" && maxRelevant > 0 {
		out.RelevantTurns = e.searchMessages(ctx, all, query, maxRelevant)
	}
	out.Success = true
	return out, nil
}

// Search implements the Session kind's share of cross-kind SearchAll (spec
// §4.3), scoped to q.UserID across all of that user's sessions rather than
// a single session — analogous to BaseEngine.Search but over the two-table
// session schema, embedding each message's content on the fly since session
// rows carry no persisted embedding column.
func (e *SessionEngine) Search(ctx context.Context, q SearchQuery) []SearchHit {
	if q.TopK == 0 || q.Text == "" {
		return nil
	}
	qVec, err := e.Embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil
	}
	rows, err := e.Store.SelectByColumn(ctx, e.MessagesTable, "user_id", q.UserID)
	if err != nil {
		return nil
	}

	type scored struct {
		msg SessionMessage
		s   float64
	}
	var candidates []scored
	for _, r := range rows {
		m := sessionMessageFromRow(r)
		vec, err := e.Embedder.Embed(ctx, m.Content)
		if err != nil {
			continue
		}
		sim, err := e.Embedder.Similarity(ctx, qVec, vec)
		if err != nil || sim < q.Threshold {
			continue
		}
		candidates = append(candidates, scored{msg: m, s: sim})
	}
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].s > candidates[i].s {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}
	if q.TopK > 0 && q.TopK < len(candidates) {
		candidates = candidates[:q.TopK]
	}
	hits := make([]SearchHit, len(candidates))
	for i, c := range candidates {
		msg := c.msg
		hits[i] = SearchHit{Record: &msg, Similarity: c.s, Rank: i + 1, Kind: KindSession}
	}
	return hits
}

// searchMessages ranks messages by embedding similarity to query — the
// Session kind's own lightweight version of BaseEngine.Search, since
// session messages live in a two-table schema BaseEngine doesn't model.
func (e *SessionEngine) searchMessages(ctx context.Context, all []SessionMessage, query string, topK int) []SessionMessage {
	qVec, err := e.Embedder.Embed(ctx, query)
	if err != nil {
		return nil
	}
	type scored struct {
		msg SessionMessage
		s   float64
	}
	var scoredMsgs []scored
	for _, m := range all {
		vec, err := e.Embedder.Embed(ctx, m.Content)
		if err != nil {
			continue
		}
		s, err := e.Embedder.Similarity(ctx, qVec, vec)
		if err != nil {
			continue
		}
		scoredMsgs = append(scoredMsgs, scored{msg: m, s: s})
	}
	for i := 0; i < len(scoredMsgs); i++ {
		for j := i + 1; j < len(scoredMsgs); j++ {
			if scoredMsgs[j].s > scoredMsgs[i].s {
				scoredMsgs[i], scoredMsgs[j] = scoredMsgs[j], scoredMsgs[i]
			}
		}
	}
	if topK < len(scoredMsgs) {
		scoredMsgs = scoredMsgs[:topK]
	}
	out := make([]SessionMessage, len(scoredMsgs))
	for i, s := range scoredMsgs {
		out[i] = s.msg
	}
	return out
}

func sessionMessageFromRow(row Row) SessionMessage {
	return SessionMessage{
		ID: getString(row, "id"), SessionID: getString(row, "session_id"), UserID: getString(row, "user_id"),
		Role: getString(row, "role"), Content: getString(row, "content"), MessageType: getString(row, "message_type"),
		MessageMetadata: getMap(row, "message_metadata"), IsSummaryCandidate: getBool(row, "is_summary_candidate"),
		CreatedAt: getTime(row, "created_at"),
	}
}
