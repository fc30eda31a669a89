package llm

import (
	"os"
	"strings"

	"ragbot/internal/domain"
)

// defaultSystemPrompt grounds answers in the retrieved excerpts.
const defaultSystemPrompt = `You are a careful assistant that answers questions about uploaded documents.
Answer using only the provided document excerpts and the conversation so far.
If the excerpts do not contain the answer, say so plainly instead of guessing.
Be concise and factual.`

// Prompt assembles chat messages in the order the model expects: system
// instructions, the retrieved context, the prior conversation, then the
// current question.
type Prompt struct {
	system string
}

// NewPrompt creates a prompt builder with the given system instructions,
// falling back to the built-in default when empty.
func NewPrompt(system string) *Prompt {
	if strings.TrimSpace(system) == "" {
		system = defaultSystemPrompt
	}
	return &Prompt{system: system}
}

// LoadPrompt reads system instructions from a file, falling back to the
// default when path is empty.
func LoadPrompt(path string) (*Prompt, error) {
	if path == "" {
		return NewPrompt(""), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewPrompt(string(data)), nil
}

// Build produces the message sequence for one model call.
func (p *Prompt) Build(history []domain.Message, question, contextText string) []domain.Message {
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: p.system},
		{Role: domain.RoleSystem, Content: "Document excerpts:\n" + contextText},
	}
	messages = append(messages, history...)
	return append(messages, domain.Message{Role: domain.RoleUser, Content: question})
}
