package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dibantu/wa-relay/internal/core/llm"
	"github.com/dibantu/wa-relay/internal/core/tenant"
	"github.com/dibantu/wa-relay/internal/core/transport"
	"github.com/dibantu/wa-relay/internal/modules/relay/models"
	"github.com/dibantu/wa-relay/internal/modules/relay/repositories"
)

// --- fakes ---

type fakeDirectory struct {
	tenants map[string][]models.Tenant
}

func (f *fakeDirectory) FindActiveByRoutingKey(_ context.Context, key string) ([]models.Tenant, error) {
	return f.tenants[key], nil
}

type fakeContextStore struct {
	contexts map[uuid.UUID]*llm.BusinessContext
}

func (f *fakeContextStore) Load(_ context.Context, tenantID uuid.UUID) (*llm.BusinessContext, error) {
	bc, ok := f.contexts[tenantID]
	if !ok {
		return nil, repositories.ErrContextNotFound
	}
	return bc, nil
}

// memConversationRepo is an in-memory stand-in keyed like the real one.
type memConversationRepo struct {
	mu        sync.Mutex
	nextID    uint64
	entries   map[string][]models.ConversationEntry
	appendErr error
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{entries: map[string][]models.ConversationEntry{}}
}

func (m *memConversationRepo) key(tenantID uuid.UUID, counterparty string) string {
	return tenantID.String() + "|" + counterparty
}

func (m *memConversationRepo) Append(_ context.Context, tenantID uuid.UUID, counterparty, role, content string) (*models.ConversationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	m.nextID++
	e := models.ConversationEntry{
		ID:           m.nextID,
		TenantID:     tenantID,
		Counterparty: counterparty,
		Role:         role,
		Content:      content,
		CreatedAt:    time.Now(),
	}
	k := m.key(tenantID, counterparty)
	m.entries[k] = append(m.entries[k], e)
	if len(m.entries[k]) > models.MaxConversationEntries {
		m.entries[k] = m.entries[k][len(m.entries[k])-models.MaxConversationEntries:]
	}
	return &e, nil
}

func (m *memConversationRepo) Recent(_ context.Context, tenantID uuid.UUID, counterparty string, limit int) ([]models.ConversationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.entries[m.key(tenantID, counterparty)]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]models.ConversationEntry, len(all))
	copy(out, all)
	return out, nil
}

func (m *memConversationRepo) Stats(_ context.Context, _ uuid.UUID) (*models.ConversationStats, error) {
	return &models.ConversationStats{}, nil
}

func (m *memConversationRepo) RecentConversations(_ context.Context, _ uuid.UUID, _ int) ([]models.ConversationSummary, error) {
	return nil, nil
}

func (m *memConversationRepo) DeleteIdleBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (m *memConversationRepo) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.entries {
		n += len(v)
	}
	return n
}

type fakeLLMProvider struct {
	mu          sync.Mutex
	reply       string
	err         error
	calls       int
	lastPrompt  string
	lastHistory []llm.Message
	lastMessage string
}

func (f *fakeLLMProvider) GenerateReply(_ context.Context, systemPrompt string, history []llm.Message, userMessage string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastPrompt = systemPrompt
	f.lastHistory = history
	f.lastMessage = userMessage
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLMProvider) GetProviderName() string { return "fake" }

type fakeTransportProvider struct {
	mu        sync.Mutex
	sends     []transport.SendRequest
	reads     []transport.ReadRequest
	sendErr   error
	connected bool
}

func (f *fakeTransportProvider) Connect() error { f.connected = true; return nil }

func (f *fakeTransportProvider) Disconnect() { f.connected = false }
func (f *fakeTransportProvider) SendText(_ context.Context, req transport.SendRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sends = append(f.sends, req)
	return nil
}
func (f *fakeTransportProvider) MarkRead(_ context.Context, req transport.ReadRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, req)
	return nil
}
func (f *fakeTransportProvider) GenerateQR(_ context.Context) ([]byte, error) {
	return nil, errors.New("unsupported")
}
func (f *fakeTransportProvider) IsConnected() bool { return f.connected }

func (f *fakeTransportProvider) GetProviderName() string { return "fake" }

func (f *fakeTransportProvider) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

// --- harness ---

type harness struct {
	service   *RelayService
	repo      *memConversationRepo
	llm       *fakeLLMProvider
	transport *fakeTransportProvider
	tenantID  uuid.UUID
}

func newHarness(bc *llm.BusinessContext) *harness {
	tenantID := uuid.New()
	dir := &fakeDirectory{tenants: map[string][]models.Tenant{
		"628123": {{
			ID:           tenantID,
			BusinessName: bc.BusinessName,
			RoutingKeys:  []string{"628123"},
			Status:       models.TenantStatusActive,
			Credential:   "token-1",
		}},
	}}
	store := &fakeContextStore{contexts: map[uuid.UUID]*llm.BusinessContext{tenantID: bc}}

	repo := newMemConversationRepo()
	llmProv := &fakeLLMProvider{reply: "Halo! Ada yang bisa dibantu?"}
	trProv := &fakeTransportProvider{}

	svc := NewRelayService(
		tenant.NewResolver(dir, store),
		repo,
		llm.NewServiceWithProvider(llmProv, time.Second),
		transport.NewServiceWithProvider(trProv),
		10,
	)

	return &harness{service: svc, repo: repo, llm: llmProv, transport: trProv, tenantID: tenantID}
}

func inbound(text string) models.InboundMessage {
	return models.InboundMessage{
		RoutingKey:   "628123",
		Counterparty: "628555000111",
		Text:         text,
		ReceivedAt:   time.Now(),
	}
}

// --- tests ---

func TestProcessMessageSent(t *testing.T) {
	h := newHarness(&llm.BusinessContext{BusinessName: "Kopi Senja"})

	res := h.service.ProcessMessage(context.Background(), inbound("halo"))

	assert.Equal(t, OutcomeSent, res.Outcome)
	assert.Equal(t, "Halo! Ada yang bisa dibantu?", res.Reply)
	assert.Equal(t, 1, h.llm.calls)

	// One user entry, one assistant entry.
	entries, err := h.repo.Recent(context.Background(), h.tenantID, "628555000111", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.RoleUser, entries[0].Role)
	assert.Equal(t, "halo", entries[0].Content)
	assert.Equal(t, models.RoleAssistant, entries[1].Role)

	// Exactly one send, addressed to the sender with the tenant credential.
	require.Equal(t, 1, h.transport.sendCount())
	assert.Equal(t, "628555000111", h.transport.sends[0].To)
	assert.Equal(t, "token-1", h.transport.sends[0].Credential)
}

func TestProcessMessageRejectedNoSideEffects(t *testing.T) {
	h := newHarness(&llm.BusinessContext{BusinessName: "Kopi Senja"})

	missingSender := models.InboundMessage{RoutingKey: "628123", Text: "halo"}
	res := h.service.ProcessMessage(context.Background(), missingSender)
	assert.Equal(t, OutcomeRejected, res.Outcome)

	blankText := inbound("   ")
	res = h.service.ProcessMessage(context.Background(), blankText)
	assert.Equal(t, OutcomeRejected, res.Outcome)

	assert.Zero(t, h.repo.total())
	assert.Zero(t, h.llm.calls)
	assert.Zero(t, h.transport.sendCount())
}

func TestProcessMessageSkipsGroupOrigin(t *testing.T) {
	h := newHarness(&llm.BusinessContext{BusinessName: "Kopi Senja"})

	msg := inbound("halo")
	msg.Counterparty = "628555000111@g.us"
	res := h.service.ProcessMessage(context.Background(), msg)

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Zero(t, h.repo.total())
	assert.Zero(t, h.transport.sendCount())
}

func TestProcessMessageSkipsUnknownRoutingKey(t *testing.T) {
	h := newHarness(&llm.BusinessContext{BusinessName: "Kopi Senja"})

	msg := inbound("halo")
	msg.RoutingKey = "999999"
	res := h.service.ProcessMessage(context.Background(), msg)

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Zero(t, h.repo.total())
	assert.Zero(t, h.llm.calls)
	assert.Zero(t, h.transport.sendCount())
}

func TestGenerationFailureFallsBackToGreeting(t *testing.T) {
	h := newHarness(&llm.BusinessContext{
		BusinessName: "Kopi Senja",
		Greeting:     "Halo, selamat datang di Kopi Senja!",
	})
	h.llm.err = errors.New("rate limited")

	res := h.service.ProcessMessage(context.Background(), inbound("halo"))

	assert.Equal(t, OutcomeSent, res.Outcome)
	assert.Equal(t, "Halo, selamat datang di Kopi Senja!", res.Reply)

	entries, err := h.repo.Recent(context.Background(), h.tenantID, "628555000111", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Halo, selamat datang di Kopi Senja!", entries[1].Content)
	assert.Equal(t, 1, h.transport.sendCount())
}

// hangingLLMProvider never answers; it only returns once the call deadline
// fires.
type hangingLLMProvider struct{}

func (hangingLLMProvider) GenerateReply(ctx context.Context, _ string, _ []llm.Message, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (hangingLLMProvider) GetProviderName() string { return "hanging" }

func TestGenerationTimeoutUsesFallback(t *testing.T) {
	h := newHarness(&llm.BusinessContext{BusinessName: "Kopi Senja"})
	h.service.llmService = llm.NewServiceWithProvider(hangingLLMProvider{}, 50*time.Millisecond)

	start := time.Now()
	res := h.service.ProcessMessage(context.Background(), inbound("halo"))
	elapsed := time.Since(start)

	// The deadline, not the caller, ends the generation attempt; the pipeline
	// still persists and sends the fallback.
	assert.Less(t, elapsed, 5*time.Second)
	assert.Equal(t, OutcomeSent, res.Outcome)
	assert.Equal(t, fallbackApology, res.Reply)
	assert.Equal(t, 1, h.transport.sendCount())

	entries, err := h.repo.Recent(context.Background(), h.tenantID, "628555000111", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, fallbackApology, entries[1].Content)
}

func TestGenerationFailureWithoutGreetingUsesApology(t *testing.T) {
	h := newHarness(&llm.BusinessContext{BusinessName: "Kopi Senja"})
	h.llm.err = errors.New("rate limited")

	res := h.service.ProcessMessage(context.Background(), inbound("halo"))

	assert.Equal(t, OutcomeSent, res.Outcome)
	assert.Equal(t, fallbackApology, res.Reply)
	assert.Equal(t, 1, h.transport.sendCount())
}

func TestSendFailureKeepsPersistedReply(t *testing.T) {
	h := newHarness(&llm.BusinessContext{BusinessName: "Kopi Senja"})
	h.transport.sendErr = errors.New("network down")

	res := h.service.ProcessMessage(context.Background(), inbound("halo"))

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, "send error", res.Reason)

	// Both entries stay: the reply counts as said even though delivery failed.
	entries, err := h.repo.Recent(context.Background(), h.tenantID, "628555000111", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestAppendFailureIsFailedOutcome(t *testing.T) {
	h := newHarness(&llm.BusinessContext{BusinessName: "Kopi Senja"})
	h.repo.appendErr = errors.New("disk full")

	res := h.service.ProcessMessage(context.Background(), inbound("halo"))

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Zero(t, h.llm.calls)
	assert.Zero(t, h.transport.sendCount())
}

func TestHistoryExcludesTriggeringMessage(t *testing.T) {
	h := newHarness(&llm.BusinessContext{BusinessName: "Kopi Senja"})

	h.service.ProcessMessage(context.Background(), inbound("pertama"))
	h.service.ProcessMessage(context.Background(), inbound("kedua"))

	// Second call: history is the first exchange only, never "kedua" itself.
	assert.Equal(t, "kedua", h.llm.lastMessage)
	require.Len(t, h.llm.lastHistory, 2)
	assert.Equal(t, "pertama", h.llm.lastHistory[0].Content)
	assert.Equal(t, models.RoleAssistant, h.llm.lastHistory[1].Role)
	for _, m := range h.llm.lastHistory {
		assert.NotEqual(t, "kedua", m.Content)
	}
}

func TestHistoryRespectsLimit(t *testing.T) {
	h := newHarness(&llm.BusinessContext{BusinessName: "Kopi Senja"})

	for i := 0; i < 15; i++ {
		h.service.ProcessMessage(context.Background(), inbound(fmt.Sprintf("pesan %d", i)))
	}

	assert.LessOrEqual(t, len(h.llm.lastHistory), 10)
}

func TestPromptGroundedInBusinessContext(t *testing.T) {
	price := 15000.0
	h := newHarness(&llm.BusinessContext{
		BusinessName: "Kopi Senja",
		Products:     []llm.Product{{Name: "Kopi Susu", Price: &price}},
	})

	res := h.service.ProcessMessage(context.Background(), inbound("ada kopi apa?"))

	assert.Equal(t, OutcomeSent, res.Outcome)
	assert.Contains(t, h.llm.lastPrompt, "Kopi Susu")
	assert.Contains(t, h.llm.lastPrompt, "15.000")
	// First turn of a fresh conversation: the generator sees no prior history.
	assert.Empty(t, h.llm.lastHistory)
}

func TestMarkReadDispatchedWhenCorrelationIDPresent(t *testing.T) {
	h := newHarness(&llm.BusinessContext{BusinessName: "Kopi Senja"})

	msg := inbound("halo")
	msg.CorrelationID = "wamid.12345"
	res := h.service.ProcessMessage(context.Background(), msg)
	assert.Equal(t, OutcomeSent, res.Outcome)

	// Read receipt runs on its own goroutine.
	assert.Eventually(t, func() bool {
		h.transport.mu.Lock()
		defer h.transport.mu.Unlock()
		return len(h.transport.reads) == 1
	}, time.Second, 10*time.Millisecond)
}
