package memory

import (
	"strings"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
)

// sideDoorPhrases are the fixed cues that a query is about a previously
// uploaded attachment rather than new content.
var sideDoorPhrases = []string{
	"the document", "that document", "this document", "the file", "that file",
	"this file", "uploaded", "the upload", "my upload", "the attachment",
	"that attachment", "the pdf", "that pdf", "the spreadsheet",
	"the excel", "that excel", "the image", "that image", "the photo",
	"that photo", "the report", "that report", "the doc", "sent you",
	"shared earlier",
}

// kindKeywords map query vocabulary to attachment file-type fragments.
var kindKeywords = []struct {
	words []string
	types []string
}{
	{words: []string{"pdf"}, types: []string{"pdf"}},
	{words: []string{"excel", "spreadsheet", "xls"}, types: []string{"xls", "xlsx", "csv"}},
	{words: []string{"image", "photo", "picture", "png", "jpg"}, types: []string{"png", "jpg", "jpeg", "gif", "webp"}},
	{words: []string{"word", "docx"}, types: []string{"doc", "docx"}},
}

// selectSideDoorAttachment picks the attachment a query refers to, or nil
// when the query has no side-door cue. Selection priority: filename prefix
// mentioned in the query, then kind heuristics, then the most recent upload.
func selectSideDoorAttachment(query string, attachments []models.AttachmentRecord) *models.AttachmentRecord {
	if len(attachments) == 0 {
		return nil
	}

	q := strings.ToLower(query)
	matched := false
	for _, phrase := range sideDoorPhrases {
		if strings.Contains(q, phrase) {
			matched = true
			break
		}
	}
	if !matched {
		return nil
	}

	// Newest-first scan for a filename prefix appearing in the query.
	for i := len(attachments) - 1; i >= 0; i-- {
		prefix := filenamePrefix(attachments[i].FileName)
		if prefix != "" && strings.Contains(q, prefix) {
			return &attachments[i]
		}
	}

	// Kind heuristics: pdf/excel/image vocabulary selects the most recent
	// attachment of the matching type.
	for _, kind := range kindKeywords {
		if !containsAny(q, kind.words) {
			continue
		}
		for i := len(attachments) - 1; i >= 0; i-- {
			if containsAny(strings.ToLower(attachments[i].FileType), kind.types) {
				return &attachments[i]
			}
		}
	}

	return &attachments[len(attachments)-1]
}

// filenamePrefix returns the lowercased filename without its extension.
func filenamePrefix(name string) string {
	name = strings.ToLower(name)
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	if len(name) < 3 {
		return ""
	}
	return name
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
