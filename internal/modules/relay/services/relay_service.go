package services

import (
	"context"
	"strings"
	"time"

	"github.com/dibantu/wa-relay/internal/core/llm"
	"github.com/dibantu/wa-relay/internal/core/tenant"
	"github.com/dibantu/wa-relay/internal/core/transport"
	"github.com/dibantu/wa-relay/internal/modules/relay/models"
	"github.com/dibantu/wa-relay/internal/modules/relay/repositories"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Outcome is the terminal state of one inbound message.
type Outcome string

const (
	// OutcomeSent: full pipeline success, reply persisted and dispatched.
	OutcomeSent Outcome = "sent"
	// OutcomeRejected: malformed input, no side effects at all.
	OutcomeRejected Outcome = "rejected"
	// OutcomeSkipped: valid but not actionable (group origin, unresolved
	// tenant). No log writes, no send.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed: a dependency errored after tenant resolution. Whatever
	// was persisted stays persisted.
	OutcomeFailed Outcome = "failed"
)

// Result reports how an inbound message terminated.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
	Reply   string  `json:"reply,omitempty"`
}

// fallbackApology is the reply of last resort when generation fails and the
// tenant has no configured greeting.
const fallbackApology = "Maaf, sistem sedang mengalami gangguan. Silakan coba lagi nanti ya. 🙏"

// RelayService coordinates the per-message pipeline: resolve tenant, record
// the inbound message, generate a grounded reply, persist and send it.
// Exactly one generation and one send are attempted per accepted message.
type RelayService struct {
	resolver         *tenant.Resolver
	conversationRepo repositories.ConversationRepo
	llmService       *llm.Service
	transportService *transport.Service
	historyLimit     int
}

func NewRelayService(
	resolver *tenant.Resolver,
	conversationRepo repositories.ConversationRepo,
	llmService *llm.Service,
	transportService *transport.Service,
	historyLimit int,
) *RelayService {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &RelayService{
		resolver:         resolver,
		conversationRepo: conversationRepo,
		llmService:       llmService,
		transportService: transportService,
		historyLimit:     historyLimit,
	}
}

// ProcessMessage runs one inbound message through the pipeline and returns its
// terminal outcome. Safe to call concurrently; appends for the same
// (tenant, counterparty) pair serialize inside the conversation repo.
func (s *RelayService) ProcessMessage(ctx context.Context, msg models.InboundMessage) Result {
	if msg.Counterparty == "" {
		return Result{Outcome: OutcomeRejected, Reason: "missing sender"}
	}
	if strings.TrimSpace(msg.Text) == "" {
		return Result{Outcome: OutcomeRejected, Reason: "missing text"}
	}
	if isGroupSender(msg.Counterparty) {
		log.Debug().Str("counterparty", msg.Counterparty).Msg("skipping group-origin message")
		return Result{Outcome: OutcomeSkipped, Reason: "group origin"}
	}

	res, err := s.resolver.Resolve(ctx, msg.RoutingKey)
	if err != nil {
		if tenant.IsUnresolved(err) {
			log.Warn().
				Str("routing_key", msg.RoutingKey).
				Err(err).
				Msg("unresolved tenant, skipping message")
			return Result{Outcome: OutcomeSkipped, Reason: err.Error()}
		}
		log.Error().Str("routing_key", msg.RoutingKey).Err(err).Msg("tenant resolution failed")
		return Result{Outcome: OutcomeFailed, Reason: err.Error()}
	}

	logger := log.With().
		Str("tenant_id", res.Tenant.ID.String()).
		Str("counterparty", msg.Counterparty).
		Logger()

	// Best-effort read receipt, detached from the pipeline so its failure
	// cannot touch any other transition.
	if msg.CorrelationID != "" {
		go s.markRead(msg, res.Tenant.Credential)
	}

	inbound, err := s.conversationRepo.Append(ctx, res.Tenant.ID, msg.Counterparty, models.RoleUser, msg.Text)
	if err != nil {
		logger.Error().Err(err).Msg("failed to record inbound message")
		return Result{Outcome: OutcomeFailed, Reason: "store error"}
	}

	history, err := s.historyBefore(ctx, res.Tenant.ID, msg.Counterparty, inbound.ID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load conversation history")
		return Result{Outcome: OutcomeFailed, Reason: "store error"}
	}

	prompt := llm.BuildSystemPrompt(res.Context)

	reply, err := s.llmService.GenerateReply(ctx, prompt, history, msg.Text)
	if err != nil {
		// Generation failure is recovered locally: the tenant's greeting (or
		// a neutral apology) still gets persisted and sent.
		logger.Warn().Err(err).Msg("reply generation failed, using fallback")
		reply = res.Context.Greeting
		if reply == "" {
			reply = fallbackApology
		}
	}

	if _, err := s.conversationRepo.Append(ctx, res.Tenant.ID, msg.Counterparty, models.RoleAssistant, reply); err != nil {
		logger.Error().Err(err).Msg("failed to record assistant reply")
		return Result{Outcome: OutcomeFailed, Reason: "store error"}
	}

	err = s.transportService.SendText(ctx, transport.SendRequest{
		RoutingKey: msg.RoutingKey,
		To:         msg.Counterparty,
		Text:       reply,
		Credential: res.Tenant.Credential,
	})
	if err != nil {
		// The reply stays persisted: it was said from the relay's point of
		// view. Delivery retries belong to the transport, not here.
		logger.Error().Err(err).Msg("failed to send reply")
		return Result{Outcome: OutcomeFailed, Reason: "send error", Reply: reply}
	}

	logger.Info().Str("outcome", string(OutcomeSent)).Msg("reply sent")
	return Result{Outcome: OutcomeSent, Reply: reply}
}

// historyBefore returns the trimmed conversation history excluding the entry
// just appended: the generator receives the triggering message as the current
// turn, never duplicated inside history.
func (s *RelayService) historyBefore(ctx context.Context, tenantID uuid.UUID, counterparty string, excludeID uint64) ([]llm.Message, error) {
	entries, err := s.conversationRepo.Recent(ctx, tenantID, counterparty, s.historyLimit+1)
	if err != nil {
		return nil, err
	}

	history := make([]llm.Message, 0, len(entries))
	for _, e := range entries {
		if e.ID == excludeID {
			continue
		}
		history = append(history, llm.Message{Role: e.Role, Content: e.Content})
	}
	if len(history) > s.historyLimit {
		history = history[len(history)-s.historyLimit:]
	}

	return history, nil
}

func (s *RelayService) markRead(msg models.InboundMessage, credential string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.transportService.MarkRead(ctx, transport.ReadRequest{
		RoutingKey: msg.RoutingKey,
		MessageID:  msg.CorrelationID,
		Credential: credential,
	})
	if err != nil {
		log.Debug().Err(err).Str("message_id", msg.CorrelationID).Msg("mark-as-read failed")
	}
}

// isGroupSender detects group-style sender ids; the relay only converses with
// individual counterparties.
func isGroupSender(id string) bool {
	return strings.HasSuffix(id, "@g.us") || strings.Contains(id, "-")
}
