package llm

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/xhad/campusconnect/internal/models"
)

const systemRules = "You are CampusConnect AI, an official university assistant.\n" +
	"Rules:\n" +
	"- Answer ONLY using the provided information.\n" +
	"- Do NOT invent facts.\n" +
	"- If information is missing, say you are not sure.\n" +
	"- Be clear, concise, and helpful.\n"

const finalInstructions = "### INSTRUCTIONS\n" +
	"- Use the document context to answer.\n" +
	"- If it is not sufficient, say you are not sure.\n" +
	"- Do NOT mention documents, embeddings, or confidence scores.\n"

// PromptInput is everything the document tier grounds a generation on.
type PromptInput struct {
	Question        string
	Language        string
	DefaultLanguage string
	Chunks          []models.ChunkMatch
	History         []models.ChatMessage
}

// BuildPrompt assembles a system message with the grounding rules and a
// human message with excerpts, recent conversation and the question.
func BuildPrompt(in PromptInput) []llms.MessageContent {
	system := systemRules
	defaultLang := in.DefaultLanguage
	if defaultLang == "" {
		defaultLang = "en"
	}
	if in.Language != "" && in.Language != defaultLang {
		system += fmt.Sprintf("- Respond in %s.\n", in.Language)
	}

	var b strings.Builder
	if len(in.Chunks) > 0 {
		b.WriteString("### DOCUMENT CONTEXT\n")
		for i, c := range in.Chunks {
			fmt.Fprintf(&b, "[Document %d]\n%s\n\n", i+1, c.Content)
		}
		b.WriteString("IMPORTANT:\n")
		b.WriteString("- Answer strictly based on the document content above.\n")
		b.WriteString("- If documents do not fully answer, say so.\n\n")
	}

	if len(in.History) > 0 {
		b.WriteString("### RECENT CONVERSATION\n")
		for _, m := range in.History {
			fmt.Fprintf(&b, "%s: %s\n", roleLabel(m.Role), m.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "### USER QUESTION\n%s\n\n", strings.TrimSpace(in.Question))
	b.WriteString(finalInstructions)

	return []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, b.String()),
	}
}

func roleLabel(r models.Role) string {
	switch r {
	case models.RoleAssistant:
		return "Assistant"
	case models.RoleAdmin:
		return "Admin"
	default:
		return "User"
	}
}

// MessageText concatenates the text parts of a message.
func MessageText(m llms.MessageContent) string {
	var b strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(llms.TextContent); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}
