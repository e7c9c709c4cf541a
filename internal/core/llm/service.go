package llm

import (
	"context"
	"log"
	"time"
)

// Service wraps an LLM provider and enforces the reply-generation timeout, the
// highest-latency step of the pipeline.
type Service struct {
	provider LLMProvider
	timeout  time.Duration
}

// NewService creates the service with the provider configured via environment.
func NewService(timeout time.Duration) *Service {
	cfg, err := LoadProviderFromEnv()
	if err != nil {
		log.Fatalf("❌ Failed to load LLM config: %v", err)
	}

	provider, err := NewProvider(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to create LLM provider: %v", err)
	}

	log.Printf("🤖 Using LLM provider: %s (model: %s)", provider.GetProviderName(), cfg.Model)

	return &Service{provider: provider, timeout: timeout}
}

// NewServiceWithProvider creates service with custom provider (for testing)
func NewServiceWithProvider(provider LLMProvider, timeout time.Duration) *Service {
	return &Service{provider: provider, timeout: timeout}
}

func (s *Service) GenerateReply(ctx context.Context, systemPrompt string, history []Message, userMessage string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.provider.GenerateReply(ctx, systemPrompt, history, userMessage)
}

func (s *Service) GetProviderName() string {
	return s.provider.GetProviderName()
}
