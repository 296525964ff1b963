package firestore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"

	"github.com/PabloGalante/mermaid-agent/internal/adapters/storage/firestore"
	"github.com/PabloGalante/mermaid-agent/internal/domain"
)

// newEmulatorStore connects to a fresh project on the Firestore emulator.
func newEmulatorStore(t *testing.T) *firestore.Store {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	store, err := firestore.NewStore(context.Background(), "mermaid-agent-"+uuid.NewString()[:8])
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func makeSessions(n, turns int) []*domain.Session {
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	out := make([]*domain.Session, 0, n)
	for i := 0; i < n; i++ {
		s := &domain.Session{
			ID:        domain.SessionID(fmt.Sprintf("s%03d", i)),
			Title:     fmt.Sprintf("session %d", i),
			CreatedAt: base.Add(time.Duration(n-i) * time.Minute),
		}
		for j := 0; j < turns; j++ {
			s.Turns = append(s.Turns, domain.Turn{
				ID:          domain.TurnID(fmt.Sprintf("s%03d-t%d", i, j)),
				Timestamp:   s.CreatedAt.Add(time.Duration(j) * time.Second),
				UserMessage: fmt.Sprintf("message %d", j),
				Artifact:    "flowchart TD\n  A --> B",
			})
		}
		out = append(out, s)
	}
	return out
}

var sessionCmp = []cmp.Option{cmpopts.EquateEmpty(), cmpopts.EquateApproxTime(time.Millisecond)}

func TestSaveManySessions(t *testing.T) {
	ctx := context.Background()
	store := newEmulatorStore(t)

	// 60 sessions of 10 turns is well past the 500 writes of one commit.
	want := makeSessions(60, 10)
	if err := store.SaveSessions(ctx, want); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}
	if err := store.SaveSessions(ctx, want); err != nil {
		t.Fatalf("second SaveSessions: %v", err)
	}

	got, err := store.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	if diff := cmp.Diff(want, got, sessionCmp...); diff != "" {
		t.Fatalf("sessions mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveAppendsAndDeletes(t *testing.T) {
	ctx := context.Background()
	store := newEmulatorStore(t)

	list := makeSessions(3, 1)
	if err := store.SaveSessions(ctx, list); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}

	list[0].Turns = append(list[0].Turns,
		domain.Turn{ID: "s000-t1", Timestamp: list[0].CreatedAt, UserMessage: "more", Artifact: "flowchart LR"},
		domain.Turn{ID: "pending", UserMessage: "in flight", IsPending: true},
	)
	list = list[:2]
	if err := store.SaveSessions(ctx, list); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}

	got, err := store.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	list[0].Turns = list[0].Turns[:2]
	if diff := cmp.Diff(list, got, sessionCmp...); diff != "" {
		t.Fatalf("sessions mismatch (-want +got):\n%s", diff)
	}
}
