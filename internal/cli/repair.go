package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/mermaid-agent/internal/app/conversation"
)

func newRepairCmd(rt *runtime) *cobra.Command {
	var (
		creds       credentialFlags
		renderError string
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "repair [file]",
		Short: "Repair Mermaid code that fails to render",
		Long: `Repair Mermaid code that fails to render.

Known mistakes are fixed locally first. The model is only asked when the
local rules change nothing or a render error is given with --error. The
repaired code goes to stdout, the diff to stderr.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := "-"
			if len(args) == 1 {
				file = args[0]
			}
			code, err := readInput(rt, nil, file)
			if err != nil {
				return err
			}

			a, err := rt.build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			stderr := cmd.ErrOrStderr()
			res, err := a.svc.Repair(cmd.Context(), conversation.RepairInput{
				Caller:      creds.caller(),
				Code:        code,
				RenderError: renderError,
			}, progressSink(stderr, quiet))
			if err != nil {
				return err
			}

			if res.UsedModel && !quiet {
				fmt.Fprintln(stderr)
			}
			if res.Warning != "" {
				fmt.Fprintln(stderr, warnStyle.Render("warning: "+res.Warning))
			}
			if res.Diff != "" {
				fmt.Fprint(stderr, renderDiff(res.Diff))
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Artifact)
			return nil
		},
	}

	creds.register(cmd)
	cmd.Flags().StringVarP(&renderError, "error", "e", "", "Error message reported by the renderer")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not stream the model output")
	return cmd
}

func renderDiff(diff string) string {
	var b strings.Builder
	for _, ln := range strings.Split(strings.TrimSuffix(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(ln, "+ "):
			b.WriteString(addedStyle.Render(ln))
		case strings.HasPrefix(ln, "- "):
			b.WriteString(removedStyle.Render(ln))
		default:
			b.WriteString(contextStyle.Render(ln))
		}
		b.WriteString("\n")
	}
	return b.String()
}
