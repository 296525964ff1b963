package credentials

import (
	"crypto/subtle"
	"strings"

	"github.com/PabloGalante/mermaid-agent/internal/domain"
)

// Resolver decides which upstream config applies to a request. It only
// reads the process-wide defaults it was built with.
type Resolver struct {
	defaults domain.GenerationConfig
	secret   string
}

func NewResolver(defaults domain.GenerationConfig, secret string) *Resolver {
	return &Resolver{
		defaults: defaults,
		secret:   secret,
	}
}

// Request carries the optional caller-supplied inputs.
type Request struct {
	Explicit   *domain.GenerationConfig
	Credential string
	Model      string
}

type Source string

const (
	SourceExplicit Source = "explicit"
	SourceDefaults Source = "defaults"
)

type Resolution struct {
	Config domain.GenerationConfig
	Source Source
	// Authenticated is true when the caller presented the shared secret.
	Authenticated bool
}

// Exempt reports whether the caller bypasses the daily usage quota: only
// anonymous users of the shared defaults are throttled.
func (r Resolution) Exempt() bool {
	return r.Source == SourceExplicit || r.Authenticated
}

// Resolve applies, in order: a complete explicit config; the shared secret
// check; the defaults with an optional model override; a final
// completeness check.
func (r *Resolver) Resolve(req Request) (Resolution, error) {
	if req.Explicit != nil && req.Explicit.Complete() {
		return Resolution{
			Config: *req.Explicit,
			Source: SourceExplicit,
		}, nil
	}

	authenticated := false
	if req.Credential != "" {
		if !r.checkSecret(req.Credential) {
			return Resolution{}, domain.NewAuthorizationError("invalid access password")
		}
		authenticated = true
	}

	cfg := r.defaults
	if model := strings.TrimSpace(req.Model); model != "" {
		cfg.ModelName = model
	}

	if !cfg.Complete() {
		return Resolution{}, domain.NewConfigurationError(
			"AI configuration is incomplete, set the API URL, API key and model name",
		)
	}

	return Resolution{
		Config:        cfg,
		Source:        SourceDefaults,
		Authenticated: authenticated,
	}, nil
}

// checkSecret never matches when no secret is configured.
func (r *Resolver) checkSecret(credential string) bool {
	if r.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(credential), []byte(r.secret)) == 1
}
