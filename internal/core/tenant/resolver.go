package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/dibantu/wa-relay/internal/core/llm"
	"github.com/dibantu/wa-relay/internal/modules/relay/models"
	"github.com/dibantu/wa-relay/internal/modules/relay/repositories"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Unresolved causes. These mean "valid event, nobody home" and are skipped by
// the orchestrator; anything else out of Resolve is a store failure.
var (
	ErrMissingRoutingKey = errors.New("missing routing key")
	ErrTenantNotFound    = errors.New("no active tenant for routing key")
	ErrContextNotFound   = errors.New("tenant has no business context")
)

// IsUnresolved reports whether err is one of the resolution misses rather than
// an I/O failure.
func IsUnresolved(err error) bool {
	return errors.Is(err, ErrMissingRoutingKey) ||
		errors.Is(err, ErrTenantNotFound) ||
		errors.Is(err, ErrContextNotFound)
}

// Directory is the read-only tenant lookup the resolver needs.
type Directory interface {
	FindActiveByRoutingKey(ctx context.Context, key string) ([]models.Tenant, error)
}

// ContextStore loads a tenant's grounding data.
type ContextStore interface {
	Load(ctx context.Context, tenantID uuid.UUID) (*llm.BusinessContext, error)
}

// Resolution pairs the matched tenant with its business context.
type Resolution struct {
	Tenant  models.Tenant
	Context *llm.BusinessContext
}

// Resolver maps an inbound routing key to exactly one active tenant and its
// context. Read-only and safe for concurrent use.
type Resolver struct {
	dir   Directory
	store ContextStore
}

func NewResolver(dir Directory, store ContextStore) *Resolver {
	return &Resolver{dir: dir, store: store}
}

// Resolve returns the tenant owning routingKey. A tenant without stored
// context is unresolvable: it cannot generate grounded replies. Two active
// tenants sharing a key is a tolerated misconfiguration; the oldest wins.
func (r *Resolver) Resolve(ctx context.Context, routingKey string) (*Resolution, error) {
	if routingKey == "" {
		return nil, ErrMissingRoutingKey
	}

	tenants, err := r.dir.FindActiveByRoutingKey(ctx, routingKey)
	if err != nil {
		return nil, fmt.Errorf("tenant lookup failed: %w", err)
	}
	if len(tenants) == 0 {
		return nil, ErrTenantNotFound
	}
	if len(tenants) > 1 {
		log.Warn().
			Str("routing_key", routingKey).
			Int("matches", len(tenants)).
			Str("tenant_id", tenants[0].ID.String()).
			Msg("duplicate active routing key, using first match")
	}

	t := tenants[0]

	bc, err := r.store.Load(ctx, t.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrContextNotFound) {
			return nil, fmt.Errorf("tenant %s: %w", t.ID, ErrContextNotFound)
		}
		return nil, fmt.Errorf("context load failed: %w", err)
	}

	return &Resolution{Tenant: t, Context: bc}, nil
}
