package repair

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PabloGalante/mermaid-agent/internal/app/relay"
	"github.com/PabloGalante/mermaid-agent/internal/observability"
)

// Rule is one deterministic rewrite of diagram code.
type Rule interface {
	Name() string
	Apply(code string) string
}

type ruleFunc struct {
	name string
	fn   func(string) string
}

func (r ruleFunc) Name() string             { return r.name }
func (r ruleFunc) Apply(code string) string { return r.fn(code) }

// DefaultRules returns the normalization chain in the order it runs.
func DefaultRules() []Rule {
	return []Rule{
		ruleFunc{"strip_fences", stripFences},
		ruleFunc{"straight_quotes", straightQuotes},
		ruleFunc{"ascii_arrows", asciiArrows},
		ruleFunc{"pie_rows", pieRows},
		ruleFunc{"ordinal_labels", ordinalLabels},
	}
}

// Normalize runs rules in sequence, each one receiving the output of the
// previous. It returns the names of the rules that changed something.
func Normalize(ctx context.Context, code string, rules []Rule) (string, []string) {
	log := observability.LoggerFromContext(ctx)

	var applied []string
	for _, r := range rules {
		start := time.Now()
		out := r.Apply(code)
		if out != code {
			applied = append(applied, r.Name())
			log.Debug("repair rule applied", "rule", r.Name(), "elapsed_us", time.Since(start).Microseconds())
		}
		code = out
	}
	return code, applied
}

func stripFences(code string) string {
	if !strings.Contains(code, "```") {
		return strings.TrimSpace(code)
	}
	artifact, _ := relay.ExtractArtifact(code)
	return artifact
}

var quoteReplacer = strings.NewReplacer(
	"“", `"`,
	"”", `"`,
	"„", `"`,
	"＂", `"`,
	"‘", "'",
	"’", "'",
)

func straightQuotes(code string) string {
	return quoteReplacer.Replace(code)
}

var dashArrow = regexp.MustCompile(`[\x{2014}\x{2013}\x{2015}\x{FF0D}\x{2212}]+>`)

func asciiArrows(code string) string {
	code = dashArrow.ReplaceAllString(code, "-->")
	return strings.ReplaceAll(code, "＞", ">")
}

var pieRow = regexp.MustCompile(`^\s*"([^"]*)"\s*[:\x{FF1A}]\s*(\S.*?)\s*$`)

func pieRows(code string) string {
	lines := strings.Split(code, "\n")
	header := -1
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(l), "pie") {
			header = i
		}
		break
	}
	if header < 0 {
		return code
	}

	for i := header + 1; i < len(lines); i++ {
		if m := pieRow.FindStringSubmatch(lines[i]); m != nil {
			lines[i] = `    "` + m[1] + `" : ` + m[2]
		}
	}
	return strings.Join(lines, "\n")
}

var ordinalSpace = regexp.MustCompile(`"(\d+)\.[ \t]+`)

func ordinalLabels(code string) string {
	return ordinalSpace.ReplaceAllString(code, `"$1.`)
}
