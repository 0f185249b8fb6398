package ollama

import (
	"fmt"
	"strings"
)

const systemInstruction = `You are a career transition advisor.
Answer only from the career cases in the context. Cite cases by their [n] number.
If the cases do not cover the question, say so directly instead of guessing.`

func buildAnswerPrompt(question, contextBlock string) string {
	contextBlock = strings.TrimSpace(contextBlock)
	if contextBlock == "" {
		contextBlock = "(no cases)"
	}
	return fmt.Sprintf(`Question:
%s

Cases:
%s
`, strings.TrimSpace(question), contextBlock)
}
