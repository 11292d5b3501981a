package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
)

func sideDoorFixtures() []models.AttachmentRecord {
	return []models.AttachmentRecord{
		{FileName: "q3-earnings.pdf", FileType: "pdf", ExtractedText: "earnings text"},
		{FileName: "budget.xlsx", FileType: "xlsx", ExtractedText: "budget rows"},
		{FileName: "chart.png", FileType: "png", ExtractedText: "chart description"},
	}
}

func TestSideDoorNoCueReturnsNil(t *testing.T) {
	assert.Nil(t, selectSideDoorAttachment("what is the weather", sideDoorFixtures()))
}

func TestSideDoorFilenamePrefixWins(t *testing.T) {
	att := selectSideDoorAttachment("summarize the q3-earnings document", sideDoorFixtures())
	require.NotNil(t, att)
	assert.Equal(t, "q3-earnings.pdf", att.FileName)
}

func TestSideDoorKindHeuristic(t *testing.T) {
	att := selectSideDoorAttachment("what does the excel file say", sideDoorFixtures())
	require.NotNil(t, att)
	assert.Equal(t, "budget.xlsx", att.FileName)

	att = selectSideDoorAttachment("explain that pdf", sideDoorFixtures())
	require.NotNil(t, att)
	assert.Equal(t, "q3-earnings.pdf", att.FileName)
}

func TestSideDoorFallsBackToMostRecent(t *testing.T) {
	att := selectSideDoorAttachment("what was in the upload i sent you", sideDoorFixtures())
	require.NotNil(t, att)
	assert.Equal(t, "chart.png", att.FileName)
}

func TestSideDoorEmptyAttachments(t *testing.T) {
	assert.Nil(t, selectSideDoorAttachment("the document", nil))
}

func TestSideDoorContextInPrompt(t *testing.T) {
	m := NewManager(nil)
	m.AddMessage("s1", models.RoleUser, "here", &models.AttachmentRecord{
		FileName: "notes.txt", FileType: "txt", ExtractedText: "meeting notes body",
	})

	pc := m.GetContextForPrompt("s1", "what did the file say")
	assert.Contains(t, pc.AttachmentContext, "notes.txt")
	assert.Contains(t, pc.AttachmentContext, "meeting notes body")
	assert.True(t, pc.HasMemory)
}
