package models

import (
	"time"

	"github.com/dibantu/wa-relay/internal/core/llm"
	"github.com/google/uuid"
)

const (
	TenantStatusActive   = "active"
	TenantStatusInactive = "inactive"
)

// Tenant is one business account on the relay. RoutingKeys holds the
// provider-side identifiers (phone-number-id for Cloud API, device number for
// Fonnte) that map inbound webhooks to this tenant.
type Tenant struct {
	ID           uuid.UUID `json:"id"`
	BusinessName string    `json:"business_name"`
	RoutingKeys  []string  `json:"routing_keys"`
	Status       string    `json:"status"`
	Plan         string    `json:"plan"`
	Credential   string    `json:"-"` // provider token, never serialized
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// CreateTenantRequest is the admin payload for registering a new tenant. The
// business context may be seeded in the same call.
type CreateTenantRequest struct {
	BusinessName    string               `json:"business_name"`
	RoutingKeys     []string             `json:"routing_keys"`
	Plan            string               `json:"plan"`
	Credential      string               `json:"credential"`
	BusinessContext *llm.BusinessContext `json:"business_context,omitempty"`
}

// UpdateTenantRequest uses pointers so the admin can patch individual fields,
// including an explicit status flip to inactive.
type UpdateTenantRequest struct {
	BusinessName *string  `json:"business_name,omitempty"`
	RoutingKeys  []string `json:"routing_keys,omitempty"`
	Status       *string  `json:"status,omitempty"`
	Plan         *string  `json:"plan,omitempty"`
	Credential   *string  `json:"credential,omitempty"`
}
