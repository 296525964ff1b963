package llm

import "github.com/PabloGalante/mermaid-agent/internal/domain"

// Grammars are the concrete Mermaid diagram types the model may emit.
var Grammars = []string{
	"flowchart",
	"sequenceDiagram",
	"classDiagram",
	"pie",
	"gantt",
	"stateDiagram",
	"erDiagram",
	"journey",
	"gitGraph",
}

// Category is a conceptual diagram type. It is expressed with one of the
// concrete grammars, described by Guidance.
type Category struct {
	Name     string
	Label    string
	Grammar  string
	Guidance string
}

var categories = []Category{
	{Name: "mindMap", Label: "Mind map", Grammar: "flowchart", Guidance: "a mind-map style flowchart"},
	{Name: "hierarchyTree", Label: "Hierarchy tree", Grammar: "flowchart", Guidance: "a hierarchical flowchart or graph"},
	{Name: "relationshipDiagram", Label: "Relationship diagram", Grammar: "flowchart", Guidance: "a relationship-style graph or flowchart"},
	{Name: "freeformLayout", Label: "Freeform layout", Grammar: "flowchart", Guidance: "a freely laid out graph"},
	{Name: "comparisonDiagram", Label: "Comparison diagram", Grammar: "flowchart", Guidance: "a side-by-side comparison flowchart"},
	{Name: "timeline", Label: "Timeline", Grammar: "gantt", Guidance: "a timeline-style gantt chart or flowchart"},
	{Name: "matrixMap", Label: "Matrix map", Grammar: "flowchart", Guidance: "a matrix-structured flowchart"},
	{Name: "scenarioScript", Label: "Scenario script", Grammar: "sequenceDiagram", Guidance: "a scenario flowchart or sequenceDiagram"},
	{Name: "visualNotes", Label: "Visual notes", Grammar: "flowchart", Guidance: "a visual-notes style flowchart mixing text and shapes"},
}

var grammarLabels = map[string]string{
	"flowchart":       "Flowchart",
	"sequenceDiagram": "Sequence diagram",
	"classDiagram":    "Class diagram",
	"pie":             "Pie chart",
	"gantt":           "Gantt chart",
	"stateDiagram":    "State diagram",
	"erDiagram":       "Entity relationship diagram",
	"journey":         "User journey",
	"gitGraph":        "Git graph",
}

// LookupCategory finds a conceptual category by name.
func LookupCategory(name string) (Category, bool) {
	for _, c := range categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// IsGrammar reports whether name is one of the concrete grammars.
func IsGrammar(name string) bool {
	_, ok := grammarLabels[name]
	return ok
}

// DiagramType is an entry of the selectable type list.
type DiagramType struct {
	Value      string `json:"value"`
	Label      string `json:"label"`
	Conceptual bool   `json:"conceptual"`
}

// DiagramTypes lists "auto", the concrete grammars and the conceptual
// categories in display order.
func DiagramTypes() []DiagramType {
	out := []DiagramType{{Value: domain.DiagramTypeAuto, Label: "Automatic"}}
	for _, g := range Grammars {
		out = append(out, DiagramType{Value: g, Label: grammarLabels[g]})
	}
	for _, c := range categories {
		out = append(out, DiagramType{Value: c.Name, Label: c.Label, Conceptual: true})
	}
	return out
}
