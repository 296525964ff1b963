package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/mermaid-agent/internal/domain"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store.
// Uses the project passed (MERMAID_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("sessions")
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

func (s *Store) turnsCol(sessionID domain.SessionID) *firestore.CollectionRef {
	return s.sessionDoc(sessionID).Collection("turns")
}

// turnKey orders turn documents by position. A turn rewritten at the
// same position replaces the previous document.
func turnKey(position int) string {
	return fmt.Sprintf("%04d", position)
}

func wrap(op string, err error) error {
	if status.Code(err) == codes.PermissionDenied {
		de := domain.NewConfigurationError(fmt.Sprintf("firestore %s: permission denied, check the service account", op))
		de.Err = err
		return de
	}
	return fmt.Errorf("firestore %s: %w", op, err)
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type sessionDoc struct {
	Position  int       `firestore:"position"`
	Title     string    `firestore:"title"`
	CreatedAt time.Time `firestore:"created_at"`
	// TurnCount is the number of turn documents that belong to the
	// session. Documents at or past it are leftovers of a failed save.
	TurnCount int `firestore:"turn_count"`
}

type turnDoc struct {
	ID          string    `firestore:"id"`
	Position    int       `firestore:"position"`
	Timestamp   time.Time `firestore:"timestamp"`
	UserMessage string    `firestore:"user_message"`
	Artifact    string    `firestore:"artifact"`
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) LoadSessions(ctx context.Context) ([]*domain.Session, error) {
	iter := s.sessionsCol().OrderBy("position", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	out := []*domain.Session{}
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, wrap("LoadSessions", err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode sessionDoc: %w", err)
		}

		id := domain.SessionID(snap.Ref.ID)
		turns, err := s.loadTurns(ctx, id, doc.TurnCount)
		if err != nil {
			return nil, err
		}

		out = append(out, &domain.Session{
			ID:        id,
			Title:     doc.Title,
			CreatedAt: doc.CreatedAt,
			Turns:     turns,
		})
	}
	return out, nil
}

func (s *Store) loadTurns(ctx context.Context, sessionID domain.SessionID, count int) ([]domain.Turn, error) {
	turns := []domain.Turn{}
	if count <= 0 {
		return turns, nil
	}

	iter := s.turnsCol(sessionID).OrderBy("position", firestore.Asc).Limit(count).Documents(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, wrap("loadTurns", err)
		}

		var doc turnDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode turnDoc: %w", err)
		}
		turns = append(turns, domain.Turn{
			ID:          domain.TurnID(doc.ID),
			Timestamp:   doc.Timestamp,
			UserMessage: doc.UserMessage,
			Artifact:    doc.Artifact,
		})
	}
	return turns, nil
}

// SaveSessions overwrites the collection. Sessions missing from the new
// collection are deleted with their turns. Committed turns never change,
// so only turns past a session's stored turn_count are written.
//
// Writes go through a BulkWriter and are not atomic. Turns are flushed
// before the session documents that count them, so a failed save never
// exposes a partly written session.
func (s *Store) SaveSessions(ctx context.Context, sessions []*domain.Session) error {
	stored, err := s.storedTurnCounts(ctx)
	if err != nil {
		return err
	}

	keep := make(map[domain.SessionID]bool, len(sessions))
	for _, sess := range sessions {
		keep[sess.ID] = true
	}

	bw := s.client.BulkWriter(ctx)
	defer bw.End()

	var jobs []*firestore.BulkWriterJob
	add := func(job *firestore.BulkWriterJob, err error) error {
		if err != nil {
			return err
		}
		jobs = append(jobs, job)
		return nil
	}
	wait := func() error {
		bw.Flush()
		for _, job := range jobs {
			if _, err := job.Results(); err != nil {
				return wrap("SaveSessions", err)
			}
		}
		jobs = jobs[:0]
		return nil
	}

	for id := range stored {
		if keep[id] {
			continue
		}
		refs, err := s.turnsCol(id).DocumentRefs(ctx).GetAll()
		if err != nil {
			return wrap("SaveSessions", err)
		}
		for _, ref := range refs {
			if err := add(bw.Delete(ref)); err != nil {
				return wrap("SaveSessions", err)
			}
		}
		if err := add(bw.Delete(s.sessionDoc(id))); err != nil {
			return wrap("SaveSessions", err)
		}
	}

	counts := make([]int, len(sessions))
	for i, sess := range sessions {
		from := stored[sess.ID]
		n := 0
		for _, t := range sess.Turns {
			if t.IsPending {
				continue
			}
			if n >= from {
				if err := add(bw.Set(s.turnsCol(sess.ID).Doc(turnKey(n)), turnDoc{
					ID:          string(t.ID),
					Position:    n,
					Timestamp:   t.Timestamp,
					UserMessage: t.UserMessage,
					Artifact:    t.Artifact,
				})); err != nil {
					return wrap("SaveSessions", err)
				}
			}
			n++
		}
		counts[i] = n
	}
	if err := wait(); err != nil {
		return err
	}

	for i, sess := range sessions {
		if err := add(bw.Set(s.sessionDoc(sess.ID), sessionDoc{
			Position:  i,
			Title:     sess.Title,
			CreatedAt: sess.CreatedAt,
			TurnCount: counts[i],
		})); err != nil {
			return wrap("SaveSessions", err)
		}
	}
	return wait()
}

func (s *Store) storedTurnCounts(ctx context.Context) (map[domain.SessionID]int, error) {
	snaps, err := s.sessionsCol().Documents(ctx).GetAll()
	if err != nil {
		return nil, wrap("SaveSessions", err)
	}
	counts := make(map[domain.SessionID]int, len(snaps))
	for _, snap := range snaps {
		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode sessionDoc: %w", err)
		}
		counts[domain.SessionID(snap.Ref.ID)] = doc.TurnCount
	}
	return counts, nil
}
