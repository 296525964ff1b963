package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/mermaid-agent/internal/app/conversation"
	"github.com/PabloGalante/mermaid-agent/internal/domain"
)

// credentialFlags are shared by commands that call the model.
type credentialFlags struct {
	apiURL   string
	apiKey   string
	model    string
	password string
	clientID string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.apiURL, "api-url", "", "Use this endpoint instead of the configured one (needs --api-key and --model)")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "API key for --api-url")
	cmd.Flags().StringVar(&f.model, "model", "", "Model name; alone it overrides only the default model")
	cmd.Flags().StringVar(&f.password, "password", "", "Access password that lifts the daily limit")
	cmd.Flags().StringVar(&f.clientID, "client-id", "cli", "Identity used for the daily limit")
}

func (f *credentialFlags) caller() conversation.Caller {
	c := conversation.Caller{
		ClientID:   f.clientID,
		Credential: f.password,
		Model:      f.model,
	}
	if f.apiURL != "" || f.apiKey != "" {
		c.Config = &domain.GenerationConfig{
			EndpointBaseURL: f.apiURL,
			APIKey:          f.apiKey,
			ModelName:       f.model,
		}
	}
	return c
}

// readInput returns the joined args, or the named file, or stdin when
// neither is given or the file is "-".
func readInput(rt *runtime, args []string, file string) (string, error) {
	if file == "" && len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	var (
		raw []byte
		err error
	)
	if file == "" || file == "-" {
		raw, err = io.ReadAll(rt.stdin)
	} else {
		raw, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return string(raw), nil
}

// progressSink prints deltas as they arrive.
func progressSink(w io.Writer, quiet bool) domain.Sink {
	return domain.SinkFunc(func(ev domain.Event) error {
		if quiet || ev.Delta == "" {
			return nil
		}
		_, err := io.WriteString(w, ev.Delta)
		return err
	})
}

func newGenerateCmd(rt *runtime) *cobra.Command {
	var (
		creds       credentialFlags
		diagramType string
		sessionID   string
		file        string
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "generate [text]",
		Short: "Generate a Mermaid diagram from text",
		Long: `Generate a Mermaid diagram from text.

The model's output is streamed to stderr while it is generated; the final
diagram code is written to stdout. Pass --session to continue a stored
session with its recent turns as context.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(rt, args, file)
			if err != nil {
				return err
			}

			a, err := rt.build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			stderr := cmd.ErrOrStderr()
			var artifact string
			sink := domain.SinkFunc(func(ev domain.Event) error {
				if ev.Done && ev.Error == "" {
					artifact = ev.Artifact
				}
				return progressSink(stderr, quiet).Send(ev)
			})

			out, err := a.svc.Generate(cmd.Context(), conversation.GenerateInput{
				Caller:      creds.caller(),
				SessionID:   domain.SessionID(sessionID),
				NewSession:  sessionID == "",
				Text:        text,
				DiagramType: diagramType,
			}, sink)
			if err != nil {
				return err
			}

			if !quiet {
				fmt.Fprintln(stderr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), artifact)
			fmt.Fprintf(stderr, "%s %s  %s %s\n",
				headerStyle.Render("session"), idStyle.Render(string(out.SessionID)),
				headerStyle.Render("turn"), idStyle.Render(string(out.Turn.ID)),
			)
			return nil
		},
	}

	creds.register(cmd)
	cmd.Flags().StringVarP(&diagramType, "type", "t", domain.DiagramTypeAuto, "Diagram type or category (see GET /diagram-types)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Continue this session")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the text from a file (- for stdin)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not stream the model output")
	return cmd
}
