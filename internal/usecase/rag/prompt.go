package rag

import "strings"

// Fixed answers returned without calling the generator.
const (
	NoDocumentsAnswer = "No documents have been uploaded yet. Please upload a document first."
	NoRelevantAnswer  = "I did not find relevant information in the uploaded documents."

	failedAnswerPrefix = "Failed to generate an answer: "
)

// DefaultPromptTemplate has two placeholders: {context} and {question}.
const DefaultPromptTemplate = `You are an intelligent AI assistant. Answer the question based on the provided context.
If the information is not in the context, clearly say that you did not find relevant information.

CONTEXT:
{context}

QUESTION: {question}

ANSWER:`

// contextSeparator sits between retrieved chunks in the prompt.
const contextSeparator = "\n\n---\n\n"

// BuildPrompt fills template with the retrieved chunk texts and the question.
func BuildPrompt(template string, contexts []Context, question string) string {
	if template == "" {
		template = DefaultPromptTemplate
	}
	texts := make([]string, len(contexts))
	for i, c := range contexts {
		texts[i] = c.Content
	}
	// один проход: вставленный текст не сканируется повторно
	r := strings.NewReplacer(
		"{context}", strings.Join(texts, contextSeparator),
		"{question}", question,
	)
	return r.Replace(template)
}
