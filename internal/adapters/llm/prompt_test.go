package llm_test

import (
	"strings"
	"testing"

	"github.com/PabloGalante/mermaid-agent/internal/adapters/llm"
	"github.com/PabloGalante/mermaid-agent/internal/domain"
	"github.com/google/go-cmp/cmp"
)

func TestBuildMessagesOrder(t *testing.T) {
	history := []domain.Message{
		{Role: domain.RoleUser, Content: "first"},
		{Role: domain.RoleAssistant, Content: "Diagram code:\nflowchart TD"},
	}

	msgs := llm.BuildMessages("auto", "  second\r\n", history)

	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Role != domain.RoleSystem {
		t.Fatalf("expected system message first, got %q", msgs[0].Role)
	}
	if diff := cmp.Diff(history, msgs[1:3]); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
	if got := msgs[3]; got.Role != domain.RoleUser || got.Content != "second" {
		t.Fatalf("unexpected user message: %+v", got)
	}
}

func TestSystemPromptTypeSelection(t *testing.T) {
	tests := []struct {
		name        string
		diagramType string
		want        string
	}{
		{"auto lists every grammar", "auto", "gitGraph"},
		{"empty behaves like auto", "", "sequenceDiagram, classDiagram"},
		{"concrete grammar", "pie", "Generate a diagram of type pie."},
		{"conceptual category", "mindMap", "mind-map style flowchart"},
		{"timeline category", "timeline", "timeline-style gantt"},
		{"unknown selector passed through", "quadrantChart", "of type quadrantChart."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := llm.SystemPrompt(tt.diagramType)
			if !strings.Contains(p, tt.want) {
				t.Fatalf("prompt for %q does not contain %q", tt.diagramType, tt.want)
			}
		})
	}
}

func TestSystemPromptCarriesSyntaxRules(t *testing.T) {
	p := llm.SystemPrompt("auto")
	for _, want := range []string{
		`A["用户打开首页"]`,
		"%% for comments",
		`"1.xxx"`,
		`    "Category 1" : 10`,
		"<artifact>",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestCleanText(t *testing.T) {
	in := "\x00 line one\r\n\r\n\r\n\r\nline\x07 two \r"
	want := "line one\n\nline two"
	if got := llm.CleanText(in); got != want {
		t.Fatalf("CleanText = %q, want %q", got, want)
	}
}

func TestBuildRepairMessagesIncludesError(t *testing.T) {
	msgs := llm.BuildRepairMessages("pie title X\n\"A\":1", "Parse error on line 2")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	user := msgs[1].Content
	if !strings.Contains(user, "Parse error on line 2") || !strings.Contains(user, "pie title X") {
		t.Fatalf("repair message missing code or error: %q", user)
	}

	noErr := llm.BuildRepairMessages("flowchart TD", "")
	if strings.Contains(noErr[1].Content, "renderer reported") {
		t.Fatalf("unexpected error section: %q", noErr[1].Content)
	}
}

func TestDiagramTypes(t *testing.T) {
	types := llm.DiagramTypes()
	if types[0].Value != domain.DiagramTypeAuto {
		t.Fatalf("expected auto first, got %q", types[0].Value)
	}
	if len(types) != 1+len(llm.Grammars)+9 {
		t.Fatalf("unexpected type count %d", len(types))
	}
	last := types[len(types)-1]
	if !last.Conceptual || last.Value != "visualNotes" {
		t.Fatalf("unexpected last entry %+v", last)
	}
}
