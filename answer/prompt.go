package answer

import (
	"github.com/tmc/langchaingo/prompts"
)

// DefaultTemplate instructs the backend to answer from the context first and
// fall back to general knowledge when the context is insufficient. It is a Go
// template with the variables "context" and "question".
const DefaultTemplate = `You are a financial research assistant that answers questions about companies, their filings, earnings calls and market news.

Use the numbered documents below to answer the user's question. Whenever the documents contain relevant information, base your answer on them and cite each document you use by its headline or title.

If the documents do not contain enough information to answer, say so clearly, then provide general knowledge about the topic.

Documents:
{{.context}}

User question: {{.question}}

Always give a detailed and informative answer.`

// noContext stands in for the context block when no documents were retrieved.
const noContext = "(no documents were retrieved)"

func newTemplate(text string) prompts.PromptTemplate {
	return prompts.NewPromptTemplate(text, []string{"context", "question"})
}

func renderPrompt(tmpl prompts.PromptTemplate, context, question string) (string, error) {
	if context == "" {
		context = noContext
	}
	return tmpl.Format(map[string]any{
		"context":  context,
		"question": question,
	})
}
