package repair

import (
	"context"
	"errors"
	"strings"

	dmp "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/PabloGalante/mermaid-agent/internal/adapters/llm"
	"github.com/PabloGalante/mermaid-agent/internal/app/relay"
	"github.com/PabloGalante/mermaid-agent/internal/domain"
	"github.com/PabloGalante/mermaid-agent/internal/observability"
)

// Request is diagram code that failed to render, with the renderer's
// error when one is known.
type Request struct {
	Code        string
	RenderError string
}

type Result struct {
	Artifact  string
	Changed   bool
	UsedModel bool
	// Warning is set when the model could not be used and the result is
	// the deterministic fix only.
	Warning string
	Applied []string
	// Diff is a line diff from the input to Artifact.
	Diff string
}

// Repairer fixes diagram code, first with local rules and then, if
// needed, by asking the model.
type Repairer struct {
	relay *relay.Relay
	rules []Rule
}

func NewRepairer(r *relay.Relay) *Repairer {
	return &Repairer{relay: r, rules: DefaultRules()}
}

// Repair normalizes req.Code and calls the model unless the rules changed
// something and no render error was reported. Model deltas are forwarded
// to sink; terminal events are left to the caller.
func (r *Repairer) Repair(ctx context.Context, cfg domain.GenerationConfig, req Request, sink domain.Sink) (Result, error) {
	original := strings.TrimSpace(req.Code)
	if original == "" {
		return Result{}, domain.NewInvalidInputError("there is no code to repair")
	}

	log := observability.LoggerFromContext(ctx)

	normalized, applied := Normalize(ctx, original, r.rules)
	changed := normalized != original
	res := Result{Artifact: normalized, Changed: changed, Applied: applied}

	if changed && strings.TrimSpace(req.RenderError) == "" {
		log.Info("repaired without model", "rules", applied)
		res.Diff = lineDiff(original, normalized)
		return res, nil
	}

	msgs := llm.BuildRepairMessages(normalized, req.RenderError)
	out, err := r.relay.Run(ctx, cfg, msgs, deltasOnly(sink))
	if err != nil {
		if errors.Is(err, relay.ErrSinkClosed) || !changed {
			return Result{}, err
		}
		log.Warn("model repair failed, keeping local fix", "error", err, "rules", applied)
		res.Warning = "AI repair failed, applied the basic fix only: " + err.Error()
		res.Diff = lineDiff(original, normalized)
		return res, nil
	}

	fixed, more := Normalize(ctx, out.Artifact, r.rules)
	res.Artifact = fixed
	res.Applied = append(res.Applied, more...)
	res.UsedModel = true
	res.Changed = fixed != original
	res.Diff = lineDiff(original, fixed)

	log.Info("repaired with model", "rules", res.Applied, "changed", res.Changed)
	return res, nil
}

// deltasOnly forwards delta events and swallows the relay's terminal
// event.
func deltasOnly(sink domain.Sink) domain.Sink {
	return domain.SinkFunc(func(ev domain.Event) error {
		if sink == nil || ev.Done {
			return nil
		}
		return sink.Send(ev)
	})
}

func lineDiff(from, to string) string {
	if from == to {
		return ""
	}
	d := dmp.New()
	a, b, lines := d.DiffLinesToChars(from, to)
	diffs := d.DiffCharsToLines(d.DiffMain(a, b, false), lines)

	var out strings.Builder
	split := func(s string) []string { return strings.Split(strings.TrimSuffix(s, "\n"), "\n") }
	for _, df := range diffs {
		prefix := "  "
		switch df.Type {
		case dmp.DiffInsert:
			prefix = "+ "
		case dmp.DiffDelete:
			prefix = "- "
		}
		for _, ln := range split(df.Text) {
			out.WriteString(prefix + ln + "\n")
		}
	}
	return out.String()
}
