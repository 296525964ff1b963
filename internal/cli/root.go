package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/mermaid-agent/internal/config"
	"github.com/PabloGalante/mermaid-agent/internal/domain"
	"github.com/PabloGalante/mermaid-agent/internal/observability"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Option replaces a dependency, mainly for tests.
type Option func(*runtime)

// WithUpstream makes every command talk to up instead of the configured
// upstream.
func WithUpstream(up domain.Upstream) Option {
	return func(r *runtime) { r.upstream = up }
}

// WithStore makes every command use store instead of the configured
// backend.
func WithStore(store domain.SessionStore) Option {
	return func(r *runtime) { r.store = store }
}

// WithConfig skips loading configuration from the environment.
func WithConfig(cfg *config.Config) Option {
	return func(r *runtime) { r.cfg = cfg }
}

// runtime is the state shared by the commands of one invocation.
type runtime struct {
	cfg      *config.Config
	upstream domain.Upstream
	store    domain.SessionStore
	stdin    io.Reader

	envFile  string
	logLevel string
}

// NewRootCmd builds the command tree.
func NewRootCmd(opts ...Option) *cobra.Command {
	rt := &runtime{stdin: os.Stdin}
	for _, o := range opts {
		o(rt)
	}

	root := &cobra.Command{
		Use:   "mermaid-agent",
		Short: "Turn text into Mermaid diagrams with a streaming LLM",
		Long: `mermaid-agent turns free text into Mermaid diagram code.

It streams the model's answer as it is generated, keeps multi-turn
sessions so a diagram can be refined, limits anonymous daily usage and
can repair diagrams that fail to render.

Quick Start:
  mermaid-agent serve                        # Run the HTTP API
  mermaid-agent generate "用户登录流程"         # Generate from the command line
  mermaid-agent repair broken.mmd --error "Parse error on line 2"
  mermaid-agent sessions list`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			observability.SetOutput(cmd.ErrOrStderr())
			if rt.cfg == nil {
				if rt.envFile != "" {
					rt.cfg = config.Load(rt.envFile)
				} else {
					rt.cfg = config.Load()
				}
			}
			level := rt.cfg.LogLevel
			if rt.logLevel != "" {
				level = rt.logLevel
			}
			observability.SetLevel(level)
			return rt.cfg.Validate()
		},
	}

	root.PersistentFlags().StringVar(&rt.envFile, "env-file", "", "Load environment variables from this file")
	root.PersistentFlags().StringVar(&rt.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newServeCmd(rt),
		newGenerateCmd(rt),
		newRepairCmd(rt),
		newSessionsCmd(rt),
	)
	return root
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
