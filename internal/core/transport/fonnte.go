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

// FonnteProvider sends messages through the Fonnte gateway. Each tenant
// carries its own Fonnte token as the send credential; the routing key (the
// connected device number) is implied by the token and not sent.
type FonnteProvider struct {
	baseURL string
	client  *http.Client
}

func NewFonnteProvider(baseURL string) *FonnteProvider {
	if baseURL == "" {
		baseURL = "https://api.fonnte.com"
	}
	return &FonnteProvider{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *FonnteProvider) GetProviderName() string {
	return "Fonnte"
}

func (p *FonnteProvider) Connect() error {
	log.Println("✅ Fonnte provider initialized")
	return nil
}

func (p *FonnteProvider) Disconnect() {}

func (p *FonnteProvider) IsConnected() bool {
	return true
}

func (p *FonnteProvider) SendText(ctx context.Context, req SendRequest) error {
	if req.Credential == "" {
		return fmt.Errorf("no Fonnte token provided")
	}

	payload := map[string]string{
		"target":  req.To,
		"message": req.Text,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/send", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", req.Credential)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("fonnte API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// MarkRead is a no-op: Fonnte has no read-receipt endpoint.
func (p *FonnteProvider) MarkRead(ctx context.Context, req ReadRequest) error {
	return nil
}

func (p *FonnteProvider) GenerateQR(ctx context.Context) ([]byte, error) {
	return nil, fmt.Errorf("fonnte pairing is managed via the Fonnte dashboard")
}
