package models

import "time"

// Role identifies the author of a conversation message.
type Role string

// Conversation roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationMessage is a single turn in a session's rolling window.
type ConversationMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Attachment is a raw uploaded file before extraction.
type Attachment struct {
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
	Data     []byte `json:"data,omitempty"`
}

// AttachmentRecord is an extracted attachment logged into session memory.
type AttachmentRecord struct {
	FileName      string    `json:"file_name"`
	FileType      string    `json:"file_type"`
	ExtractedText string    `json:"extracted_text"`
	ToolsUsed     []string  `json:"tools_used,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// DocContext summarizes the attachment situation for routing decisions.
type DocContext struct {
	HasFinancialDoc bool `json:"has_financial_doc"`
	HasLegalDoc     bool `json:"has_legal_doc"`
	HasCodeDoc      bool `json:"has_code_doc"`
}

// PipelineInput is the normalized request handed to a pipeline run.
type PipelineInput struct {
	Query       string                `json:"query"`
	SessionID   string                `json:"session_id"`
	CallerID    string                `json:"caller_id,omitempty"`
	TenantID    string                `json:"tenant_id,omitempty"`
	Photos      []Attachment          `json:"photos,omitempty"`
	Documents   []Attachment          `json:"documents,omitempty"`
	History     []ConversationMessage `json:"history,omitempty"`
	DocContext  *DocContext           `json:"doc_context,omitempty"`
	Provider    string                `json:"provider,omitempty"`
	Chain       []string              `json:"chain,omitempty"`
	Temperature *float64              `json:"temperature,omitempty"`

	// PreComputedPreflight skips S0 routing when supplied; the run must
	// produce the same badge and answer as an identical run without it.
	PreComputedPreflight *PreflightResult `json:"pre_computed_preflight,omitempty"`
}
