package memory

import (
	"time"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
)

// SessionExport is the snapshot form of one session's memory. Attachment
// text is truncated to ExportAttachmentChars.
type SessionExport struct {
	Messages       []models.ConversationMessage `json:"messages"`
	Attachments    []models.AttachmentRecord    `json:"attachments"`
	QueryCount     int                          `json:"query_count"`
	CurrentSummary string                       `json:"current_summary,omitempty"`
	NyanBooted     bool                         `json:"nyan_booted"`
}

// Export snapshots a session's memory, or nil when the session is unknown.
func (m *Manager) Export(sessionID string) *SessionExport {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}

	export := &SessionExport{
		QueryCount:     sess.queryCount,
		CurrentSummary: sess.currentSummary,
		NyanBooted:     sess.nyanBooted,
	}
	export.Messages = append(export.Messages, sess.messages...)
	for _, att := range sess.attachments {
		bounded := att
		bounded.ExtractedText = truncate(att.ExtractedText, ExportAttachmentChars)
		export.Attachments = append(export.Attachments, bounded)
	}
	return export
}

// Import restores a session's memory from an export, replacing any existing
// state for that session id.
func (m *Manager) Import(sessionID string, export *SessionExport) {
	if export == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= MaxSessions {
		if _, exists := m.sessions[sessionID]; !exists {
			m.evictOldestLocked()
		}
	}

	sess := &session{
		queryCount:     export.QueryCount,
		currentSummary: export.CurrentSummary,
		nyanBooted:     export.NyanBooted,
		lastActivity:   time.Now(),
	}
	sess.messages = append(sess.messages, export.Messages...)
	for len(sess.messages) > MaxMessages {
		sess.messages = sess.messages[1:]
	}
	sess.attachments = append(sess.attachments, export.Attachments...)
	for len(sess.attachments) > MaxAttachments {
		sess.attachments = sess.attachments[1:]
	}
	m.sessions[sessionID] = sess
}
