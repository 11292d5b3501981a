package legal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksLegal(t *testing.T) {
	legal := []string{
		"employment_contract.pdf",
		"NDA-signed.docx",
		"Lease Agreement 2026.pdf",
		"terms_of_service.txt",
		"amendment-3.pdf",
	}
	for _, name := range legal {
		assert.True(t, LooksLegal(name), name)
	}

	notLegal := []string{
		"vacation_photos.zip",
		"q3_report.xlsx",
		"diagram.png",
		"notes.md",
	}
	for _, name := range notLegal {
		assert.False(t, LooksLegal(name), name)
	}
}

func TestTemplateHasEightNumberedSections(t *testing.T) {
	out := Template()
	assert.Len(t, Sections, 8)
	for i, section := range Sections {
		assert.Contains(t, out, section)
		assert.Contains(t, out, string(rune('1'+i))+". ")
	}
	assert.Contains(t, out, "not legal advice")
}
