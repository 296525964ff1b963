package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/PabloGalante/mermaid-agent/internal/domain"
)

func newSessionsCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect stored sessions",
	}
	cmd.AddCommand(
		newSessionsListCmd(rt),
		newSessionsShowCmd(rt),
		newSessionsDeleteCmd(rt),
		newSessionsExportCmd(rt),
	)
	return cmd
}

func newSessionsListCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			list := a.svc.ListSessions()
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No sessions found.")
				return nil
			}

			fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d sessions", len(list))))
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, s := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					idStyle.Render(string(s.ID)),
					titleStyle.Render(s.Title),
					countStyle.Render(fmt.Sprintf("%d turns", s.CommittedTurns())),
					dateStyle.Render(s.CreatedAt.Format("2006-01-02 15:04")),
				)
			}
			return tw.Flush()
		},
	}
}

func newSessionsShowCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show every turn of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			s, err := a.svc.GetSession(domain.SessionID(args[0]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render(s.Title))
			fmt.Fprintln(out, dateStyle.Render(s.CreatedAt.Format("2006-01-02 15:04")))
			for i, t := range s.Turns {
				fmt.Fprintln(out)
				fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Turn %d", i+1)), dateStyle.Render(t.Timestamp.Format("15:04:05")))
				fmt.Fprintln(out, t.UserMessage)
				fmt.Fprintln(out, "```mermaid")
				fmt.Fprintln(out, t.Artifact)
				fmt.Fprintln(out, "```")
			}
			return nil
		},
	}
}

func newSessionsDeleteCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.svc.DeleteSession(cmd.Context(), domain.SessionID(args[0])); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Deleted", idStyle.Render(args[0]))
			return nil
		},
	}
}

func newSessionsExportCmd(rt *runtime) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export [session-id...]",
		Short: "Export sessions as JSON or YAML",
		Long: `Export sessions as JSON or YAML.

Without arguments every session is exported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			var selected []*domain.Session
			if len(args) == 0 {
				selected = a.svc.ListSessions()
			} else {
				for _, id := range args {
					s, err := a.svc.GetSession(domain.SessionID(id))
					if err != nil {
						return err
					}
					selected = append(selected, s)
				}
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			return writeSessions(w, format, selected)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "Output format (json, yaml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func writeSessions(w io.Writer, format string, list []*domain.Session) error {
	if list == nil {
		list = []*domain.Session{}
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(list); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q, use json or yaml", format)
	}
}
