package llm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PabloGalante/mermaid-agent/internal/domain"
)

const baseSystemPrompt = `
You convert documents into Mermaid diagram code.

Goals:
- Understand the structure and the logical relationships of the document the user provides.
- Turn its content and relationships into diagram code that follows Mermaid syntax exactly.
- Keep every key element of the document and the links between them.
- Support follow-up turns: use the conversation so far to understand corrections and additions.

Conversation rules:
- If there is history, work out whether the new message modifies the previous diagram, adds content to it, or is a new request.
- For modifications, adjust the previous diagram instead of starting over.
- For additions, merge the new information into the existing structure.

Analysis:
- Identify the elements of the document (concepts, entities, steps, processes).
- Identify how they relate (containment, sequence, cause and effect, dependency).
`

const autoTypeInstructions = `
Diagram type:
- Choose the Mermaid diagram type that best expresses the document's structure. Use exactly one of: %s.
`

const fixedTypeInstructions = `
Diagram type:
- Generate a diagram of type %s.
`

const syntaxRules = `
Mermaid syntax rules:
- Node IDs must be plain English letters and digits (A, B, step1, process2). No spaces, no non-ASCII characters, no symbols.
- Labels with non-ASCII text or special characters must be wrapped in double quotes, for example A["用户打开首页"].
- Inside quoted labels use HTML entities for <, >, & and #.
- Use %% for comments.
- Do not put a space after an ordinal number: write "1.xxx", not "1. xxx".
- Use different background colors to separate levels or groups of elements.

Pie charts must follow this exact format:
` + "```" + `
pie title Chart title
    "Category 1" : 10
    "Category 2" : 20
` + "```" + `
- The first line is "pie title" followed by the title.
- Every label is wrapped in double quotes.
- There is a space on both sides of the colon.
- Every data row is indented with 4 spaces.

Example of correct syntax:
` + "```" + `
flowchart TD
    A["Open home page"] --> B["Enter phone number"]
    B --> C{"Number valid?"}
    C -->|yes| D["Send code"]
    C -->|no| B
` + "```" + `
`

const outputRules = `
Output:
- Return only the diagram code in a single markdown code block. No other text.
- Do not wrap the code in <artifact> or any other tags.
- The code must paste directly into any tool that renders Mermaid.
- Do not drop any important detail or relationship from the document.
`

const repairSystemPrompt = `
You fix Mermaid diagram code that fails to render.

Rules:
- Keep the meaning, structure and labels of the diagram. Change only what is needed to make it valid.
- Node IDs must be plain English letters and digits; non-ASCII labels go inside double quotes.
- Pie chart rows look like:     "Label" : 10
- Return only the corrected code in a single markdown code block. No explanation.
`

// SystemPrompt builds the system instruction for a diagram type selector:
// "auto" (or empty), a concrete grammar, or a conceptual category. Unknown
// selectors are passed to the model as a literal hint.
func SystemPrompt(diagramType string) string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	b.WriteString(typeInstructions(diagramType))
	b.WriteString(syntaxRules)
	b.WriteString(outputRules)
	return b.String()
}

func typeInstructions(diagramType string) string {
	selector := strings.TrimSpace(diagramType)
	if selector == "" || selector == domain.DiagramTypeAuto {
		return fmt.Sprintf(autoTypeInstructions, strings.Join(Grammars, ", "))
	}
	if IsGrammar(selector) {
		return fmt.Sprintf(fixedTypeInstructions, selector)
	}
	if c, ok := LookupCategory(selector); ok {
		return fmt.Sprintf(fixedTypeInstructions, c.Guidance)
	}
	return fmt.Sprintf(fixedTypeInstructions, selector)
}

// BuildMessages returns [system, ...history, user].
func BuildMessages(diagramType, text string, history []domain.Message) []domain.Message {
	msgs := make([]domain.Message, 0, len(history)+2)
	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: SystemPrompt(diagramType)})
	msgs = append(msgs, history...)
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: CleanText(text)})
	return msgs
}

// BuildRepairMessages frames a repair request around the current code and,
// when known, the renderer's error.
func BuildRepairMessages(code, renderError string) []domain.Message {
	var user strings.Builder
	user.WriteString("Fix this Mermaid code:\n```mermaid\n")
	user.WriteString(strings.TrimSpace(code))
	user.WriteString("\n```\n")
	if e := strings.TrimSpace(renderError); e != "" {
		user.WriteString("\nThe renderer reported this error:\n")
		user.WriteString(e)
		user.WriteString("\n")
	}

	return []domain.Message{
		{Role: domain.RoleSystem, Content: repairSystemPrompt},
		{Role: domain.RoleUser, Content: user.String()},
	}
}

var (
	controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	blankRuns    = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)
)

// CleanText normalizes user input before it is sent upstream.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = controlChars.ReplaceAllString(text, "")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
