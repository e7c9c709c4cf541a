package transport

import (
	"context"
	"fmt"
	"os"
)

// SendRequest carries everything a provider needs to push one text message on
// behalf of a tenant. RoutingKey is the tenant's provider-side identifier
// (phone-number-id for Cloud API, device number for Fonnte); Credential is the
// tenant's opaque provider token.
type SendRequest struct {
	RoutingKey string
	To         string
	Text       string
	Credential string
}

// ReadRequest marks an inbound message as read. Best effort everywhere.
type ReadRequest struct {
	RoutingKey string
	MessageID  string
	Credential string
}

// TransportProvider is the outbound WhatsApp capability. One implementation is
// active per process; tenants differ only in routing key and credential.
type TransportProvider interface {
	Connect() error
	Disconnect()
	SendText(ctx context.Context, req SendRequest) error
	MarkRead(ctx context.Context, req ReadRequest) error
	GenerateQR(ctx context.Context) ([]byte, error)
	IsConnected() bool
	GetProviderName() string
}

// ProviderType untuk factory
type ProviderType string

const (
	ProviderCloudAPI  ProviderType = "cloudapi"
	ProviderFonnte    ProviderType = "fonnte"
	ProviderWhatsmeow ProviderType = "whatsmeow"
)

type ProviderConfig struct {
	Type ProviderType

	// Cloud API specific
	CloudAPIVersion string

	// Whatsmeow specific
	StoreURL string
}

// NewProvider factory untuk create provider berdasarkan config
func NewProvider(cfg *ProviderConfig) (TransportProvider, error) {
	switch cfg.Type {
	case ProviderCloudAPI:
		return NewCloudAPIProvider(cfg.CloudAPIVersion), nil

	case ProviderFonnte:
		return NewFonnteProvider(""), nil

	case ProviderWhatsmeow:
		return NewWhatsmeowProvider(cfg.StoreURL), nil

	default:
		return nil, fmt.Errorf("unknown transport provider type: %s", cfg.Type)
	}
}

// LoadProviderFromEnv load config dari environment variables
func LoadProviderFromEnv() (*ProviderConfig, error) {
	providerType := os.Getenv("WHATSAPP_PROVIDER")
	if providerType == "" {
		providerType = "cloudapi" // default
	}

	cfg := &ProviderConfig{
		Type:            ProviderType(providerType),
		CloudAPIVersion: os.Getenv("CLOUD_API_VERSION"),
		StoreURL:        os.Getenv("WHATSAPP_STORE_URL"),
	}

	if cfg.CloudAPIVersion == "" {
		cfg.CloudAPIVersion = "v21.0"
	}

	return cfg, nil
}
