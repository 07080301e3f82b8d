package prompt

import "strings"

// RefusalText is what the model is told to answer when the context does not
// contain the answer.
const RefusalText = "Information not available in the document"

// GroundedTemplate instructs the model to answer strictly from the retrieved
// context.
const GroundedTemplate = `You are a helpful and strict assistant. Your task is to answer the user's question using ONLY the provided context text.

Context:
{{context}}

Question:
{{question}}

Instructions:
1. If the answer is found in the context, provide a concise and accurate answer.
2. If the user asks for a summary or what the document is about, summarize the information present in the Context.
3. If the user greets you (e.g., "hi", "hello"), respond politely and ask them to ask a question about the document.
4. If the answer is NOT found in the context and cannot be inferred from it, strictly say "` + RefusalText + `". Do NOT make up an answer.
5. Do not use outside knowledge.

Answer:`

// Build renders GroundedTemplate. Both inputs are inserted verbatim.
func Build(question, contextText string) string {
	out, err := Render(GroundedTemplate, map[string]string{
		"context":  contextText,
		"question": question,
	})
	if err != nil {
		// GroundedTemplate only uses the two variables supplied above.
		panic(err)
	}
	return out
}

// IsRefusal reports whether an answer is the model declining for lack of
// context.
func IsRefusal(answer string) bool {
	return strings.Contains(strings.ToLower(answer), strings.ToLower(RefusalText))
}
