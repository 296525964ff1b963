package relay

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/PabloGalante/mermaid-agent/internal/domain"
	"github.com/PabloGalante/mermaid-agent/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State is the lifecycle of a single run.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrEmptyArtifact is returned when the model finished without any
// diagram code.
var ErrEmptyArtifact = domain.NewUpstreamError("model returned no diagram code")

// Result describes a finished run. Artifact is only set when State is
// StateCompleted.
type Result struct {
	Artifact string
	Raw      string
	Fenced   bool
	Deltas   int
	State    State
}

// Relay forwards upstream deltas to a sink and extracts the artifact from
// the accumulated text. A Relay holds no per-run state and can be shared.
type Relay struct {
	upstream domain.Upstream
	now      func() time.Time
}

func New(upstream domain.Upstream) *Relay {
	return &Relay{upstream: upstream, now: time.Now}
}

// Run streams one completion. Deltas reach the sink in upstream order. On
// failure an error event closes the stream; on success no terminal event
// is sent and the caller reports res.Artifact once it has been committed.
// A response without diagram code fails. If the sink goes away the
// upstream read is cancelled and ErrSinkClosed is returned.
func (r *Relay) Run(ctx context.Context, cfg domain.GenerationConfig, messages []domain.Message, sink domain.Sink) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctx, span := observability.Tracer().Start(ctx, "relay.run",
		trace.WithAttributes(
			attribute.String("gen_ai.request.model", cfg.ModelName),
			attribute.Int("relay.messages", len(messages)),
		),
	)
	defer span.End()

	log := observability.LoggerFromContext(ctx)
	out := Guard(sink)
	res := Result{State: StateIdle}
	started := r.now()

	fail := func(err error) (Result, error) {
		res.State = StateFailed
		span.SetAttributes(attribute.Int("relay.deltas", res.Deltas), attribute.String("relay.state", res.State.String()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !errors.Is(err, ErrSinkClosed) {
			_ = out.Send(domain.ErrorEvent(err.Error()))
		}
		log.Warn("relay run failed", "error", err, "deltas", res.Deltas)
		return res, err
	}

	res.State = StateRequesting
	stream, err := r.upstream.Open(ctx, cfg, messages)
	if err != nil {
		return fail(err)
	}
	defer stream.Close()

	res.State = StateStreaming
	var buf strings.Builder
	for stream.Next() {
		delta := stream.Delta()
		if res.Deltas == 0 {
			span.SetAttributes(attribute.Int64("relay.time_to_first_delta_ms", r.now().Sub(started).Milliseconds()))
		}
		res.Deltas++
		buf.WriteString(delta)

		if err := out.Send(domain.DeltaEvent(delta)); err != nil {
			cancel()
			return fail(ErrSinkClosed)
		}
	}
	res.Raw = buf.String()

	if err := stream.Err(); err != nil {
		if out.Closed() {
			return fail(ErrSinkClosed)
		}
		return fail(err)
	}

	artifact, fenced := ExtractArtifact(res.Raw)
	if !fenced {
		log.Debug("no fenced block in response, using full text", "length", len(res.Raw))
	}
	if strings.TrimSpace(artifact) == "" {
		return fail(ErrEmptyArtifact)
	}
	res.Artifact = artifact
	res.Fenced = fenced

	res.State = StateCompleted
	span.SetAttributes(attribute.Int("relay.deltas", res.Deltas), attribute.String("relay.state", res.State.String()))
	log.Info("relay run completed", "deltas", res.Deltas, "fenced", fenced, "duration_ms", r.now().Sub(started).Milliseconds())
	return res, nil
}

var fencedBlock = regexp.MustCompile("(?s)```(?:mermaid)?\\s*(.*?)```")

// ExtractArtifact returns the trimmed body of the last fenced code block in
// text. Without a fence the whole text is returned and fenced is false.
func ExtractArtifact(text string) (artifact string, fenced bool) {
	matches := fencedBlock.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text, false
	}
	return strings.TrimSpace(matches[len(matches)-1][1]), true
}
