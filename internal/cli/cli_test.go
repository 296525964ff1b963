package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PabloGalante/mermaid-agent/internal/adapters/llm"
	"github.com/PabloGalante/mermaid-agent/internal/adapters/storage/memory"
	"github.com/PabloGalante/mermaid-agent/internal/cli"
	"github.com/PabloGalante/mermaid-agent/internal/config"
	"gopkg.in/yaml.v3"
)

func testConfig() *config.Config {
	return &config.Config{
		DefaultAPIURL:    "http://upstream",
		DefaultAPIKey:    "k",
		DefaultModelName: "m",
		Upstream:         config.UpstreamOpenAI,
		StorageBackend:   "memory",
		MaxTurns:         10,
		MaxInputChars:    20000,
		ContextTurns:     5,
		LogLevel:         "error",
	}
}

func run(t *testing.T, opts []cli.Option, args ...string) (string, string, error) {
	t.Helper()
	root := cli.NewRootCmd(opts...)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"version flag", []string{"--version"}, false},
		{"help flag", []string{"--help"}, false},
		{"unknown command", []string{"frobnicate"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, []cli.Option{cli.WithConfig(testConfig())}, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Errorf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateAndExport(t *testing.T) {
	store := memory.NewSessionStore()
	opts := []cli.Option{
		cli.WithConfig(testConfig()),
		cli.WithStore(store),
		cli.WithUpstream(llm.NewMockUpstream("```mermaid\n", "flowchart TD\n  A --> B\n", "```")),
	}

	stdout, stderr, err := run(t, opts, "generate", "用户登录流程")
	if err != nil {
		t.Fatalf("generate: %v (stderr=%s)", err, stderr)
	}
	if strings.TrimSpace(stdout) != "flowchart TD\n  A --> B" {
		t.Fatalf("unexpected stdout %q", stdout)
	}
	if !strings.Contains(stderr, "flowchart TD") {
		t.Fatalf("expected streamed output on stderr, got %q", stderr)
	}

	stdout, _, err = run(t, opts, "sessions", "list")
	if err != nil {
		t.Fatalf("sessions list: %v", err)
	}
	if !strings.Contains(stdout, "用户登录流程") || !strings.Contains(stdout, "1 turns") {
		t.Fatalf("unexpected list output %q", stdout)
	}

	stdout, _, err = run(t, opts, "sessions", "export", "--format", "yaml")
	if err != nil {
		t.Fatalf("sessions export: %v", err)
	}
	var exported []map[string]any
	if err := yaml.Unmarshal([]byte(stdout), &exported); err != nil {
		t.Fatalf("export is not YAML: %v", err)
	}
	if len(exported) != 1 || exported[0]["title"] != "用户登录流程" {
		t.Fatalf("unexpected export %v", exported)
	}

	if _, _, err := run(t, opts, "sessions", "export", "--format", "xml"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestRepairFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.mmd")
	if err := os.WriteFile(path, []byte("pie title X\n\"A\"：1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := []cli.Option{
		cli.WithConfig(testConfig()),
		cli.WithUpstream(llm.NewMockUpstream()),
	}
	stdout, _, err := run(t, opts, "repair", path)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if strings.TrimSpace(stdout) != "pie title X\n    \"A\" : 1" {
		t.Fatalf("unexpected repaired code %q", stdout)
	}
}

func TestSessionsShowUnknown(t *testing.T) {
	opts := []cli.Option{cli.WithConfig(testConfig()), cli.WithStore(memory.NewSessionStore())}
	if _, _, err := run(t, opts, "sessions", "show", "missing"); err == nil {
		t.Fatalf("expected not found error")
	}
}
