package handlers

import (
	"errors"

	"github.com/dibantu/wa-relay/internal/core/llm"
	"github.com/dibantu/wa-relay/internal/modules/relay/models"
	"github.com/dibantu/wa-relay/internal/modules/relay/repositories"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TenantHandler is the admin CRUD surface. The relay core only ever reads
// what this writes.
type TenantHandler struct {
	tenantRepo       repositories.TenantRepo
	contextRepo      repositories.ContextRepo
	conversationRepo repositories.ConversationRepo
}

func NewTenantHandler(
	tenantRepo repositories.TenantRepo,
	contextRepo repositories.ContextRepo,
	conversationRepo repositories.ConversationRepo,
) *TenantHandler {
	return &TenantHandler{
		tenantRepo:       tenantRepo,
		contextRepo:      contextRepo,
		conversationRepo: conversationRepo,
	}
}

// ListTenants godoc
// @Summary List all tenants
// @Tags Admin
// @Produce json
// @Success 200 {array} models.Tenant
// @Router /admin/tenants [get]
func (h *TenantHandler) ListTenants(c *fiber.Ctx) error {
	tenants, err := h.tenantRepo.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch tenants",
		})
	}
	if tenants == nil {
		tenants = []models.Tenant{}
	}
	return c.JSON(tenants)
}

// CreateTenant godoc
// @Summary Register a new tenant
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body models.CreateTenantRequest true "Tenant"
// @Success 201 {object} models.Tenant
// @Failure 400 {object} map[string]interface{}
// @Router /admin/tenants [post]
func (h *TenantHandler) CreateTenant(c *fiber.Ctx) error {
	var req models.CreateTenantRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid payload",
		})
	}

	if req.BusinessName == "" || len(req.RoutingKeys) == 0 || req.Credential == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "business_name, routing_keys and credential are required",
		})
	}

	t := &models.Tenant{
		BusinessName: req.BusinessName,
		RoutingKeys:  req.RoutingKeys,
		Plan:         req.Plan,
		Credential:   req.Credential,
	}

	if err := h.tenantRepo.Create(c.Context(), t); err != nil {
		log.Error().Err(err).Msg("failed to create tenant")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create tenant",
		})
	}

	if req.BusinessContext != nil {
		if err := h.contextRepo.Save(c.Context(), t.ID, req.BusinessContext); err != nil {
			log.Error().Err(err).Str("tenant_id", t.ID.String()).Msg("failed to save business context")
		}
	}

	return c.Status(fiber.StatusCreated).JSON(t)
}

// GetTenantDetail godoc
// @Summary Tenant detail with context, stats and recent conversations
// @Tags Admin
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /admin/tenants/{id} [get]
func (h *TenantHandler) GetTenantDetail(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid tenant id",
		})
	}

	t, err := h.tenantRepo.GetByID(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "tenant not found",
		})
	}

	bc, err := h.contextRepo.Load(c.Context(), id)
	if err != nil && !errors.Is(err, repositories.ErrContextNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load business context",
		})
	}

	stats, err := h.conversationRepo.Stats(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load stats",
		})
	}

	recent, err := h.conversationRepo.RecentConversations(c.Context(), id, 5)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load conversations",
		})
	}

	return c.JSON(fiber.Map{
		"tenant":               t,
		"business_context":     bc,
		"stats":                stats,
		"recent_conversations": recent,
	})
}

// UpdateTenant godoc
// @Summary Update tenant fields
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Tenant ID"
// @Param payload body models.UpdateTenantRequest true "Fields to update"
// @Success 200 {object} models.Tenant
// @Failure 404 {object} map[string]interface{}
// @Router /admin/tenants/{id} [put]
func (h *TenantHandler) UpdateTenant(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid tenant id",
		})
	}

	var req models.UpdateTenantRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid payload",
		})
	}

	if req.Status != nil && *req.Status != models.TenantStatusActive && *req.Status != models.TenantStatusInactive {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "status must be active or inactive",
		})
	}

	t, err := h.tenantRepo.Update(c.Context(), id, &req)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "tenant not found",
		})
	}

	return c.JSON(t)
}

// DeleteTenant godoc
// @Summary Delete a tenant
// @Description Removes the tenant and its business context. Conversation history is retained orphaned.
// @Tags Admin
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /admin/tenants/{id} [delete]
func (h *TenantHandler) DeleteTenant(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid tenant id",
		})
	}

	if err := h.tenantRepo.Delete(c.Context(), id); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "tenant not found",
		})
	}

	if err := h.contextRepo.Delete(c.Context(), id); err != nil {
		log.Error().Err(err).Str("tenant_id", id.String()).Msg("failed to delete business context")
	}

	return c.JSON(fiber.Map{"status": "deleted"})
}

// UpdateContext godoc
// @Summary Replace a tenant's business context
// @Description Last-write-wins replacement; takes effect on the next inbound message.
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Tenant ID"
// @Param payload body llm.BusinessContext true "Business context"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /admin/tenants/{id}/context [put]
func (h *TenantHandler) UpdateContext(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid tenant id",
		})
	}

	if _, err := h.tenantRepo.GetByID(c.Context(), id); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "tenant not found",
		})
	}

	var bc llm.BusinessContext
	if err := c.BodyParser(&bc); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid payload",
		})
	}

	if err := h.contextRepo.Save(c.Context(), id, &bc); err != nil {
		log.Error().Err(err).Str("tenant_id", id.String()).Msg("failed to save business context")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to save business context",
		})
	}

	return c.JSON(fiber.Map{"status": "updated"})
}
