package memory

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/llm"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
)

// Manager-level bounds.
const (
	// MaxSessions caps concurrent session memories; LRU-evicted on overflow.
	MaxSessions = 500
	// SessionTTL is the inactivity window before a sweep drops a session.
	SessionTTL = time.Hour
)

// Summary call parameters.
const (
	summaryMaxTokens   = 300
	summaryTemperature = 0.3
)

// LLMClient is the subset of the provider chain the memory manager uses for
// summarization.
type LLMClient interface {
	CallWithRetry(ctx context.Context, req llm.Request, opts llm.CallOptions) (*llm.Response, error)
}

// PromptContext is the memory payload injected into the reasoning prompt.
type PromptContext struct {
	MemorySummary     string                       `json:"memory_summary,omitempty"`
	RecentMessages    []models.ConversationMessage `json:"recent_messages,omitempty"`
	AttachmentContext string                       `json:"attachment_context,omitempty"`
	HasMemory         bool                         `json:"has_memory"`
}

// Manager holds per-session conversation memory. All maps are guarded by a
// single lock; summarization LLM calls happen outside it.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session
	client   LLMClient
}

// NewManager creates an empty memory manager. client may be nil, which
// disables summary generation (summaries keep their previous value).
func NewManager(client LLMClient) *Manager {
	return &Manager{
		sessions: make(map[string]*session),
		client:   client,
	}
}

// AddMessage appends a message (and optional attachment record) to the
// session's rolling window, creating the session on first use.
func (m *Manager) AddMessage(sessionID string, role models.Role, content string, attachment *models.AttachmentRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.sessionLocked(sessionID)
	sess.addMessage(role, content, attachment)
}

// ShouldSummarize increments the session's query counter and reports whether
// a summarization pass is due.
func (m *Manager) ShouldSummarize(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionLocked(sessionID).shouldSummarize()
}

// IsFirstQuery reports whether the session has not been booted yet and marks
// it booted. Used for the full-vs-compressed protocol decision.
func (m *Manager) IsFirstQuery(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.sessionLocked(sessionID)
	first := !sess.nyanBooted
	sess.nyanBooted = true
	return first
}

// GenerateSummary runs the summary LLM pass for the session. On success the
// summary is stored, the raw window trimmed, and the counter reset; on
// failure the previous summary is retained and no error escapes.
func (m *Manager) GenerateSummary(ctx context.Context, sessionID string) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok || m.client == nil {
		m.mu.Unlock()
		return
	}
	digest := sess.digest()
	m.mu.Unlock()

	resp, err := m.client.CallWithRetry(ctx, llm.Request{
		Prompt:      digest,
		MaxTokens:   summaryMaxTokens,
		Temperature: summaryTemperature,
	}, llm.CallOptions{})
	if err != nil {
		slog.Warn("Memory summary generation failed, retaining previous summary",
			"session_id", sessionID, "error", err)
		return
	}

	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[sessionID]; ok {
		sess.applySummary(summary)
	}
}

// GetContextForPrompt returns the memory payload for the reasoning prompt:
// the current summary, up to four recent messages, and side-door attachment
// text when the query references an upload.
func (m *Manager) GetContextForPrompt(sessionID, query string) PromptContext {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return PromptContext{}
	}

	pc := PromptContext{MemorySummary: sess.currentSummary}
	start := len(sess.messages) - ContextMessages
	if start < 0 {
		start = 0
	}
	pc.RecentMessages = append(pc.RecentMessages, sess.messages[start:]...)

	if att := selectSideDoorAttachment(query, sess.attachments); att != nil {
		pc.AttachmentContext = "From " + att.FileName + ":\n" + truncate(att.ExtractedText, SideDoorChars)
	}

	pc.HasMemory = pc.MemorySummary != "" || len(pc.RecentMessages) > 0 || pc.AttachmentContext != ""
	return pc
}

// BuildMemoryPrompt renders the prompt prefix carrying session memory, or an
// empty string when there is nothing to carry.
func (m *Manager) BuildMemoryPrompt(sessionID, query string) string {
	pc := m.GetContextForPrompt(sessionID, query)
	if !pc.HasMemory {
		return ""
	}

	var sb strings.Builder
	if pc.MemorySummary != "" {
		sb.WriteString("Conversation so far: ")
		sb.WriteString(pc.MemorySummary)
		sb.WriteString("\n\n")
	}
	if len(pc.RecentMessages) > 0 {
		sb.WriteString("Recent exchange:\n")
		for _, msg := range pc.RecentMessages {
			sb.WriteString(string(msg.Role))
			sb.WriteString(": ")
			sb.WriteString(truncate(msg.Content, 800))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	if pc.AttachmentContext != "" {
		sb.WriteString(pc.AttachmentContext)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// Clear removes a single session's memory.
func (m *Manager) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions idle past the TTL and returns how many were removed.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, sess := range m.sessions {
		if now.Sub(sess.lastActivity) > SessionTTL {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// sessionLocked returns the session, creating it (with LRU eviction at
// capacity) when absent. Caller holds m.mu.
func (m *Manager) sessionLocked(sessionID string) *session {
	if sess, ok := m.sessions[sessionID]; ok {
		sess.lastActivity = time.Now()
		return sess
	}

	if len(m.sessions) >= MaxSessions {
		m.evictOldestLocked()
	}

	sess := &session{lastActivity: time.Now()}
	m.sessions[sessionID] = sess
	return sess
}

func (m *Manager) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, sess := range m.sessions {
		if oldestID == "" || sess.lastActivity.Before(oldest) {
			oldestID = id
			oldest = sess.lastActivity
		}
	}
	if oldestID != "" {
		delete(m.sessions, oldestID)
		slog.Debug("Evicted oldest memory session", "session_id", oldestID)
	}
}
