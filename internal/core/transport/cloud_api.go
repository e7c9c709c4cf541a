package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// CloudAPIProvider implements the official WhatsApp Business Cloud API.
// Documentation: https://developers.facebook.com/docs/whatsapp/cloud-api
// The routing key of each request is the tenant's phone-number-id, so a single
// provider instance serves every tenant.
type CloudAPIProvider struct {
	apiVersion string
	client     *http.Client
}

func NewCloudAPIProvider(apiVersion string) *CloudAPIProvider {
	if apiVersion == "" {
		apiVersion = "v21.0"
	}
	return &CloudAPIProvider{
		apiVersion: apiVersion,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *CloudAPIProvider) GetProviderName() string {
	return "CloudAPI"
}

// Connect is a no-op for Cloud API (always connected via HTTP)
func (p *CloudAPIProvider) Connect() error {
	log.Printf("✅ WhatsApp Cloud API initialized (%s)", p.apiVersion)
	return nil
}

func (p *CloudAPIProvider) Disconnect() {}

func (p *CloudAPIProvider) IsConnected() bool {
	return true
}

// SendText sends a text message via Cloud API
func (p *CloudAPIProvider) SendText(ctx context.Context, req SendRequest) error {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                cleanPhoneNumber(req.To),
		"type":              "text",
		"text": map[string]string{
			"preview_url": "false",
			"body":        req.Text,
		},
	}

	return p.post(ctx, req.RoutingKey, req.Credential, payload)
}

// SendTemplate sends a template message for business-initiated conversations.
func (p *CloudAPIProvider) SendTemplate(ctx context.Context, req SendRequest, templateName, languageCode string) error {
	if languageCode == "" {
		languageCode = "id"
	}

	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                cleanPhoneNumber(req.To),
		"type":              "template",
		"template": map[string]interface{}{
			"name":     templateName,
			"language": map[string]string{"code": languageCode},
		},
	}

	return p.post(ctx, req.RoutingKey, req.Credential, payload)
}

// MarkRead acknowledges an inbound message so the customer sees blue ticks.
func (p *CloudAPIProvider) MarkRead(ctx context.Context, req ReadRequest) error {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        req.MessageID,
	}

	return p.post(ctx, req.RoutingKey, req.Credential, payload)
}

func (p *CloudAPIProvider) GenerateQR(ctx context.Context) ([]byte, error) {
	return nil, fmt.Errorf("cloud API does not use QR pairing")
}

func (p *CloudAPIProvider) post(ctx context.Context, phoneNumberID, accessToken string, payload interface{}) error {
	url := fmt.Sprintf("https://graph.facebook.com/%s/%s/messages", p.apiVersion, phoneNumberID)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cloud API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// cleanPhoneNumber removes WhatsApp JID suffix (@c.us) and a leading +,
// Cloud API wants plain numbers.
func cleanPhoneNumber(phone string) string {
	if len(phone) > 5 && phone[len(phone)-5:] == "@c.us" {
		phone = phone[:len(phone)-5]
	}
	if len(phone) > 0 && phone[0] == '+' {
		phone = phone[1:]
	}
	return phone
}
