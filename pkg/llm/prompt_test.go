package llm_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"

	"github.com/xhad/campusconnect/internal/models"
	"github.com/xhad/campusconnect/pkg/llm"
)

func TestBuildPrompt(t *testing.T) {
	msgs := llm.BuildPrompt(llm.PromptInput{
		Question: "When is the fee deadline?",
		Language: "en",
		Chunks: []models.ChunkMatch{
			{Content: "Fees must be paid by 31 July."},
			{Content: "Late payment attracts a fine."},
		},
		History: []models.ChatMessage{
			{Role: models.RoleUser, Content: "hi"},
			{Role: models.RoleAssistant, Content: "hello"},
		},
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, schema.ChatMessageTypeHuman, msgs[1].Role)

	system := llm.MessageText(msgs[0])
	assert.Contains(t, system, "Answer ONLY using the provided information")
	assert.NotContains(t, system, "Respond in")

	human := llm.MessageText(msgs[1])
	assert.Contains(t, human, "[Document 1]\nFees must be paid by 31 July.")
	assert.Contains(t, human, "[Document 2]\nLate payment attracts a fine.")
	assert.Contains(t, human, "User: hi\nAssistant: hello")
	assert.Contains(t, human, "### USER QUESTION\nWhen is the fee deadline?")
	assert.NotContains(t, human, "FAQ")

	// excerpts come before history, history before the question
	assert.Less(t, strings.Index(human, "DOCUMENT CONTEXT"), strings.Index(human, "RECENT CONVERSATION"))
	assert.Less(t, strings.Index(human, "RECENT CONVERSATION"), strings.Index(human, "USER QUESTION"))
}

func TestBuildPromptLanguage(t *testing.T) {
	msgs := llm.BuildPrompt(llm.PromptInput{Question: "hostel fees kya hai", Language: "hi", DefaultLanguage: "en"})
	assert.Contains(t, llm.MessageText(msgs[0]), "Respond in hi.")

	msgs = llm.BuildPrompt(llm.PromptInput{Question: "q", Language: "en"})
	assert.NotContains(t, llm.MessageText(msgs[0]), "Respond in")
	assert.NotContains(t, llm.MessageText(msgs[1]), "RECENT CONVERSATION")
}
