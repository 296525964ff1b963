package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PabloGalante/mermaid-agent/internal/adapters/llm"
	filestore "github.com/PabloGalante/mermaid-agent/internal/adapters/storage/file"
	firestorestore "github.com/PabloGalante/mermaid-agent/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/mermaid-agent/internal/adapters/storage/memory"
	sqlitestore "github.com/PabloGalante/mermaid-agent/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/mermaid-agent/internal/app/conversation"
	"github.com/PabloGalante/mermaid-agent/internal/app/credentials"
	"github.com/PabloGalante/mermaid-agent/internal/app/sessions"
	"github.com/PabloGalante/mermaid-agent/internal/app/usage"
	"github.com/PabloGalante/mermaid-agent/internal/config"
	"github.com/PabloGalante/mermaid-agent/internal/domain"
	"github.com/PabloGalante/mermaid-agent/internal/observability"
)

type app struct {
	svc      *conversation.Service
	sessions *sessions.Manager
	close    func() error
}

type closer interface {
	Close() error
}

func (rt *runtime) openStore(ctx context.Context) (domain.SessionStore, func() error, error) {
	noop := func() error { return nil }
	if rt.store != nil {
		return rt.store, noop, nil
	}

	cfg := rt.cfg
	log := observability.WithFields("storage", cfg.StorageBackend)

	var (
		store domain.SessionStore
		err   error
	)
	switch cfg.StorageBackend {
	case "file":
		log.Info("opening session store", "path", cfg.StoragePath)
		store, err = filestore.NewStore(cfg.StoragePath)
	case "sqlite":
		log.Info("opening session store", "path", cfg.StoragePath)
		store, err = sqlitestore.NewStore(ctx, cfg.StoragePath)
	case "firestore":
		log.Info("opening session store", "project", cfg.GCPProjectID)
		store, err = firestorestore.NewStore(ctx, cfg.GCPProjectID)
	default:
		log.Info("opening session store")
		store = memstore.NewSessionStore()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("initializing %s store: %w", cfg.StorageBackend, err)
	}

	if c, ok := store.(closer); ok {
		return store, c.Close, nil
	}
	return store, noop, nil
}

func (rt *runtime) openUpstream() domain.Upstream {
	if rt.upstream != nil {
		return rt.upstream
	}
	if rt.cfg.Upstream == config.UpstreamGemini {
		return llm.NewGeminiUpstream()
	}
	return llm.NewOpenAIUpstream(http.DefaultClient)
}

// build wires the application from configuration.
func (rt *runtime) build(ctx context.Context) (*app, error) {
	cfg := rt.cfg

	store, closeStore, err := rt.openStore(ctx)
	if err != nil {
		return nil, err
	}

	mgr := sessions.NewManager(store, sessions.Options{MaxTurns: cfg.MaxTurns})
	if err := mgr.Load(ctx); err != nil {
		closeStore()
		return nil, err
	}

	resolver := credentials.NewResolver(domain.GenerationConfig{
		EndpointBaseURL: cfg.DefaultAPIURL,
		APIKey:          cfg.DefaultAPIKey,
		ModelName:       cfg.DefaultModelName,
	}, cfg.AccessPassword)

	svc := conversation.NewService(
		resolver,
		usage.NewThrottle(cfg.DailyUsageLimit, time.Now),
		mgr,
		rt.openUpstream(),
		conversation.Options{
			MaxInputChars: cfg.MaxInputChars,
			ContextTurns:  cfg.ContextTurns,
		},
	)

	return &app{svc: svc, sessions: mgr, close: closeStore}, nil
}
