// Package memory implements the per-session rolling conversation window with
// φ-compressed summaries and the attachment recall side-door.
package memory

import (
	"strings"
	"time"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
)

// Per-session bounds.
const (
	// MaxMessages is the rolling window size.
	MaxMessages = 8
	// MaxMessageChars truncates stored message content.
	MaxMessageChars = 50_000
	// MaxAttachments bounds the attachment log.
	MaxAttachments = 8
	// MaxAttachmentChars truncates stored extracted text.
	MaxAttachmentChars = 100_000
	// KeepAfterSummary is how many raw messages survive a summarization.
	KeepAfterSummary = 4
	// ContextMessages is how many recent messages feed prompt context.
	ContextMessages = 4
	// SideDoorChars bounds the attachment text returned for prompt context.
	SideDoorChars = 4_000
	// ExportAttachmentChars bounds attachment text in exports.
	ExportAttachmentChars = 2_000
)

// session is one session's memory state. Callers hold the manager lock.
type session struct {
	messages       []models.ConversationMessage
	attachments    []models.AttachmentRecord
	queryCount     int
	currentSummary string
	nyanBooted     bool
	lastActivity   time.Time
}

func (s *session) addMessage(role models.Role, content string, attachment *models.AttachmentRecord) {
	s.messages = append(s.messages, models.ConversationMessage{
		Role:      role,
		Content:   truncate(content, MaxMessageChars),
		Timestamp: time.Now(),
	})
	for len(s.messages) > MaxMessages {
		s.messages = s.messages[1:]
	}

	if attachment != nil {
		record := *attachment
		record.ExtractedText = truncate(record.ExtractedText, MaxAttachmentChars)
		if record.Timestamp.IsZero() {
			record.Timestamp = time.Now()
		}
		s.attachments = append(s.attachments, record)
		for len(s.attachments) > MaxAttachments {
			s.attachments = s.attachments[1:]
		}
	}

	s.lastActivity = time.Now()
}

// shouldSummarize increments the query counter and reports whether a summary
// pass is due: every second user query once at least two messages exist.
func (s *session) shouldSummarize() bool {
	s.queryCount++
	return s.queryCount%2 == 0 && len(s.messages) >= 2
}

// applySummary stores a successful summary, trims the raw window to the most
// recent messages, and resets the query counter.
func (s *session) applySummary(summary string) {
	s.currentSummary = summary
	if len(s.messages) > KeepAfterSummary {
		s.messages = s.messages[len(s.messages)-KeepAfterSummary:]
	}
	s.queryCount = 0
}

// digest renders the window and attachment metadata into the compact text
// handed to the summarization LLM call.
func (s *session) digest() string {
	var sb strings.Builder
	sb.WriteString("Summarize this conversation in at most 5 sentences, keeping tickers, figures, and decisions.\n\n")
	if s.currentSummary != "" {
		sb.WriteString("Prior summary: ")
		sb.WriteString(s.currentSummary)
		sb.WriteString("\n\n")
	}
	for _, msg := range s.messages {
		sb.WriteString(string(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(truncate(msg.Content, 600))
		sb.WriteString("\n")
	}
	if len(s.attachments) > 0 {
		sb.WriteString("\nAttachments on file:\n")
		for _, att := range s.attachments {
			sb.WriteString("- ")
			sb.WriteString(att.FileName)
			sb.WriteString(" (")
			sb.WriteString(att.FileType)
			sb.WriteString(")\n")
		}
	}
	return sb.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
