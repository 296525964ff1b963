package file_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PabloGalante/mermaid-agent/internal/adapters/storage/file"
	"github.com/PabloGalante/mermaid-agent/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func sampleSessions() []*domain.Session {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return []*domain.Session{
		{
			ID:        "s2",
			Title:     "second",
			CreatedAt: ts.Add(time.Hour),
			Turns:     []domain.Turn{},
		},
		{
			ID:        "s1",
			Title:     "用户登录流程",
			CreatedAt: ts,
			Turns: []domain.Turn{
				{ID: "t1", Timestamp: ts, UserMessage: "用户登录流程", Artifact: "flowchart TD\n  A --> B"},
			},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"sessions.json", "sessions.yaml"} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "nested", name)

			store, err := file.NewStore(path)
			if err != nil {
				t.Fatalf("NewStore: %v", err)
			}

			want := sampleSessions()
			if err := store.SaveSessions(ctx, want); err != nil {
				t.Fatalf("SaveSessions: %v", err)
			}

			got, err := store.LoadSessions(ctx)
			if err != nil {
				t.Fatalf("LoadSessions: %v", err)
			}
			if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("sessions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestYAMLFormatOnDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.yml")
	store, _ := file.NewStore(path)

	if err := store.SaveSessions(ctx, sampleSessions()); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(raw), "user_message:") {
		t.Fatalf("expected YAML keys, got:\n%s", raw)
	}
}

func TestLoadMissingFile(t *testing.T) {
	store, _ := file.NewStore(filepath.Join(t.TempDir(), "absent.json"))

	got, err := store.LoadSessions(context.Background())
	if err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no sessions, got %d", len(got))
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, _ := file.NewStore(path)

	if _, err := store.LoadSessions(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
}
