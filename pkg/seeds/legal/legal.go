// Package legal provides the structured legal-analysis seed: a filename
// trigger and the eight-section template appended to the prompt when the
// routing flags call for legal analysis.
package legal

import (
	"fmt"
	"regexp"
	"strings"
)

// filenamePattern flags attachments that look like legal documents.
var filenamePattern = regexp.MustCompile(`(?i)\b(contract|agreement|nda|lease|terms|license|licence|mou|addendum|amendment|affidavit|deed|waiver|bylaws?|statute|clause)\b|(?i)(contract|agreement|nda|lease)[_-]`)

// LooksLegal reports whether a filename suggests a legal document.
func LooksLegal(fileName string) bool {
	return filenamePattern.MatchString(fileName)
}

// Sections are the eight mandated analysis headings, in order.
var Sections = []string{
	"Document Type & Parties",
	"Key Obligations",
	"Rights & Entitlements",
	"Critical Dates & Deadlines",
	"Liability & Risk Allocation",
	"Termination & Exit Conditions",
	"Red Flags & Unusual Clauses",
	"Plain-Language Summary",
}

// Template renders the analysis instruction block appended to the prompt.
func Template() string {
	var sb strings.Builder
	sb.WriteString("Structure the legal analysis under exactly these eight sections:\n")
	for i, section := range Sections {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, section)
	}
	sb.WriteString("Quote the document where a finding depends on specific wording. ")
	sb.WriteString("State explicitly when a section has no applicable content. ")
	sb.WriteString("This is document analysis, not legal advice.")
	return sb.String()
}
