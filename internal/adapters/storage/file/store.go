package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/PabloGalante/mermaid-agent/internal/domain"
	"gopkg.in/yaml.v3"
)

// Store keeps the session collection in a single file. Files ending in
// .yaml or .yml are written as YAML, anything else as JSON.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path is required for file store")
	}
	return &Store{path: path}, nil
}

func (s *Store) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".yaml" || ext == ".yml"
}

func (s *Store) LoadSessions(ctx context.Context) ([]*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []*domain.Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return []*domain.Session{}, nil
	}

	var sessions []*domain.Session
	if s.isYAML() {
		err = yaml.Unmarshal(raw, &sessions)
	} else {
		err = json.Unmarshal(raw, &sessions)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.path, err)
	}
	return sessions, nil
}

// SaveSessions overwrites the file atomically.
func (s *Store) SaveSessions(ctx context.Context, sessions []*domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessions == nil {
		sessions = []*domain.Session{}
	}

	var (
		raw []byte
		err error
	)
	if s.isYAML() {
		raw, err = yaml.Marshal(sessions)
	} else {
		raw, err = json.MarshalIndent(sessions, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encoding sessions: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".sessions-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("writing sessions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing sessions: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}
