package handlers

import (
	"context"
	"time"

	"github.com/dibantu/wa-relay/internal/modules/relay/models"
	"github.com/dibantu/wa-relay/internal/modules/relay/services"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type WebhookHandler struct {
	relayService *services.RelayService
	verifyToken  string
}

func NewWebhookHandler(relayService *services.RelayService, verifyToken string) *WebhookHandler {
	return &WebhookHandler{
		relayService: relayService,
		verifyToken:  verifyToken,
	}
}

// metaWebhookPayload is the WhatsApp Cloud API webhook envelope.
// https://developers.facebook.com/docs/whatsapp/cloud-api/webhooks/payload-examples
type metaWebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string           `json:"field"`
			Value metaWebhookValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type metaWebhookValue struct {
	Metadata struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []struct {
		From      string `json:"from"`
		ID        string `json:"id"`
		Timestamp string `json:"timestamp"`
		Type      string `json:"type"`
		Text      *struct {
			Body string `json:"body"`
		} `json:"text,omitempty"`
	} `json:"messages"`
}

// VerifyWebhook godoc
// @Summary Webhook verification
// @Description Meta webhook subscription handshake (hub.mode / hub.verify_token / hub.challenge)
// @Tags Webhook
// @Produce plain
// @Success 200 {string} string "challenge echo"
// @Failure 403 {string} string
// @Router /webhook [get]
func (h *WebhookHandler) VerifyWebhook(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		log.Info().Msg("webhook verification successful")
		return c.Status(fiber.StatusOK).SendString(challenge)
	}

	log.Warn().Str("mode", mode).Msg("webhook verification failed")
	return c.Status(fiber.StatusForbidden).SendString("Forbidden")
}

// ReceiveWebhook godoc
// @Summary WhatsApp webhook receiver
// @Description Receive inbound message events from the WhatsApp Cloud API
// @Tags Webhook
// @Accept json
// @Produce json
// @Param payload body map[string]interface{} true "Webhook payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /webhook [post]
func (h *WebhookHandler) ReceiveWebhook(c *fiber.Ctx) error {
	var payload metaWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		log.Warn().Err(err).Msg("failed to parse webhook payload")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid payload",
		})
	}

	if payload.Object != "whatsapp_business_account" {
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	received := 0
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			received += h.dispatch(change.Value)
		}
	}

	// Always acknowledge accepted deliveries: downstream failures must not
	// trigger provider redelivery storms.
	return c.JSON(fiber.Map{"status": "received", "messages": received})
}

// dispatch normalizes each text message in a change and hands it to the
// pipeline. Messages from the same sender keep the delivery's array order and
// run sequentially in one goroutine; distinct senders fan out concurrently.
func (h *WebhookHandler) dispatch(value metaWebhookValue) int {
	names := make(map[string]string, len(value.Contacts))
	for _, contact := range value.Contacts {
		names[contact.WaID] = contact.Profile.Name
	}

	senders := make([]string, 0, len(value.Messages))
	batches := make(map[string][]models.InboundMessage)
	for _, m := range value.Messages {
		if m.Type != "text" || m.Text == nil {
			continue
		}

		msg := models.InboundMessage{
			RoutingKey:    value.Metadata.PhoneNumberID,
			Counterparty:  m.From,
			SenderName:    names[m.From],
			Text:          m.Text.Body,
			CorrelationID: m.ID,
			ReceivedAt:    time.Now(),
		}

		if _, ok := batches[m.From]; !ok {
			senders = append(senders, m.From)
		}
		batches[m.From] = append(batches[m.From], msg)
	}

	dispatched := 0
	for _, from := range senders {
		batch := batches[from]
		dispatched += len(batch)
		go func(batch []models.InboundMessage) {
			for _, msg := range batch {
				h.process(msg)
			}
		}(batch)
	}

	return dispatched
}

func (h *WebhookHandler) process(msg models.InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result := h.relayService.ProcessMessage(ctx, msg)
	log.Info().
		Str("routing_key", msg.RoutingKey).
		Str("counterparty", msg.Counterparty).
		Str("outcome", string(result.Outcome)).
		Str("reason", result.Reason).
		Msg("inbound message processed")
}
