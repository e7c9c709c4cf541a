package handlers

import (
	"github.com/dibantu/wa-relay/internal/core/transport"
	"github.com/gofiber/fiber/v2"
)

type HealthHandler struct {
	transportService *transport.Service
}

func NewHealthHandler(transportService *transport.Service) *HealthHandler {
	return &HealthHandler{transportService: transportService}
}

// Health godoc
// @Summary Service health
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"service":   "wa-relay",
		"transport": h.transportService.GetProviderName(),
		"connected": h.transportService.IsConnected(),
	})
}

// GenerateQR godoc
// @Summary WhatsApp pairing QR code
// @Description Only meaningful for the whatsmeow transport; other transports return 400.
// @Tags Admin
// @Produce png
// @Success 200 {file} binary
// @Failure 400 {object} map[string]interface{}
// @Router /admin/whatsapp/qr [get]
func (h *HealthHandler) GenerateQR(c *fiber.Ctx) error {
	png, err := h.transportService.GenerateQR(c.Context())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	c.Set("Content-Type", "image/png")
	return c.Send(png)
}
