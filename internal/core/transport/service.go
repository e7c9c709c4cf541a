package transport

import (
	"context"
	"log"
)

// Service adalah wrapper untuk transport provider, the layer the orchestrator
// and handlers talk to.
type Service struct {
	provider TransportProvider
}

// NewService membuat service dengan provider dari environment
func NewService(storeURL string) *Service {
	cfg, err := LoadProviderFromEnv()
	if err != nil {
		log.Fatalf("❌ Failed to load transport config: %v", err)
	}

	if storeURL != "" {
		cfg.StoreURL = storeURL
	}

	provider, err := NewProvider(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to create transport provider: %v", err)
	}

	log.Printf("✅ Using WhatsApp transport: %s", provider.GetProviderName())

	return &Service{provider: provider}
}

// NewServiceWithProvider membuat service dengan provider spesifik (untuk testing)
func NewServiceWithProvider(provider TransportProvider) *Service {
	return &Service{provider: provider}
}

func (s *Service) Connect() error {
	return s.provider.Connect()
}

func (s *Service) Disconnect() {
	s.provider.Disconnect()
}

func (s *Service) SendText(ctx context.Context, req SendRequest) error {
	return s.provider.SendText(ctx, req)
}

func (s *Service) MarkRead(ctx context.Context, req ReadRequest) error {
	return s.provider.MarkRead(ctx, req)
}

func (s *Service) GenerateQR(ctx context.Context) ([]byte, error) {
	return s.provider.GenerateQR(ctx)
}

func (s *Service) IsConnected() bool {
	return s.provider.IsConnected()
}

func (s *Service) GetProviderName() string {
	return s.provider.GetProviderName()
}
