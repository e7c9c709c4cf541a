package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dibantu/wa-relay/internal/core/llm"
	"github.com/dibantu/wa-relay/internal/core/tenant"
	"github.com/dibantu/wa-relay/internal/core/transport"
	"github.com/dibantu/wa-relay/internal/modules/relay/models"
	"github.com/dibantu/wa-relay/internal/modules/relay/services"
)

type stubDirectory struct {
	tenants map[string][]models.Tenant
}

func (s *stubDirectory) FindActiveByRoutingKey(_ context.Context, key string) ([]models.Tenant, error) {
	return s.tenants[key], nil
}

type stubContextStore struct {
	contexts map[uuid.UUID]*llm.BusinessContext
}

func (s *stubContextStore) Load(_ context.Context, tenantID uuid.UUID) (*llm.BusinessContext, error) {
	return s.contexts[tenantID], nil
}

type stubConversationRepo struct {
	mu      sync.Mutex
	nextID  uint64
	entries []models.ConversationEntry
}

func (s *stubConversationRepo) Append(_ context.Context, tenantID uuid.UUID, counterparty, role, content string) (*models.ConversationEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e := models.ConversationEntry{ID: s.nextID, TenantID: tenantID, Counterparty: counterparty, Role: role, Content: content, CreatedAt: time.Now()}
	s.entries = append(s.entries, e)
	return &e, nil
}

func (s *stubConversationRepo) Recent(_ context.Context, _ uuid.UUID, _ string, _ int) ([]models.ConversationEntry, error) {
	return nil, nil
}

func (s *stubConversationRepo) Stats(_ context.Context, _ uuid.UUID) (*models.ConversationStats, error) {
	return &models.ConversationStats{}, nil
}

func (s *stubConversationRepo) RecentConversations(_ context.Context, _ uuid.UUID, _ int) ([]models.ConversationSummary, error) {
	return nil, nil
}

func (s *stubConversationRepo) DeleteIdleBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (s *stubConversationRepo) contentsByRole(role string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.entries {
		if e.Role == role {
			out = append(out, e.Content)
		}
	}
	return out
}

type stubLLM struct{}

func (stubLLM) GenerateReply(_ context.Context, _ string, _ []llm.Message, _ string) (string, error) {
	return "balasan", nil
}

func (stubLLM) GetProviderName() string { return "stub" }

type stubTransport struct {
	mu    sync.Mutex
	sends []transport.SendRequest
}

func (s *stubTransport) Connect() error { return nil }

func (s *stubTransport) Disconnect() {}

func (s *stubTransport) SendText(_ context.Context, req transport.SendRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, req)
	return nil
}

func (s *stubTransport) MarkRead(_ context.Context, _ transport.ReadRequest) error { return nil }

func (s *stubTransport) GenerateQR(_ context.Context) ([]byte, error) { return nil, nil }

func (s *stubTransport) IsConnected() bool { return true }

func (s *stubTransport) GetProviderName() string { return "stub" }

func newTestApp(t *testing.T) (*fiber.App, *stubTransport, *stubConversationRepo) {
	t.Helper()

	tenantID := uuid.New()
	dir := &stubDirectory{tenants: map[string][]models.Tenant{
		"1065500000001": {{ID: tenantID, BusinessName: "Kopi Senja", Status: models.TenantStatusActive, Credential: "tok"}},
	}}
	store := &stubContextStore{contexts: map[uuid.UUID]*llm.BusinessContext{
		tenantID: {BusinessName: "Kopi Senja"},
	}}
	tr := &stubTransport{}
	repo := &stubConversationRepo{}

	relayService := services.NewRelayService(
		tenant.NewResolver(dir, store),
		repo,
		llm.NewServiceWithProvider(stubLLM{}, time.Second),
		transport.NewServiceWithProvider(tr),
		10,
	)

	h := NewWebhookHandler(relayService, "rahasia")
	app := fiber.New()
	app.Get("/webhook", h.VerifyWebhook)
	app.Post("/webhook", h.ReceiveWebhook)
	return app, tr, repo
}

func TestVerifyWebhook(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest("GET", "/webhook?hub.mode=subscribe&hub.verify_token=rahasia&hub.challenge=12345", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "12345", string(body))
}

func TestVerifyWebhookWrongToken(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest("GET", "/webhook?hub.mode=subscribe&hub.verify_token=salah&hub.challenge=12345", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestReceiveWebhookMalformedJSON(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestReceiveWebhookIgnoresOtherObjects(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(`{"object":"instagram","entry":[]}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ignored", body["status"])
}

func TestReceiveWebhookDispatchesTextMessages(t *testing.T) {
	app, tr, _ := newTestApp(t)

	payload := `{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"metadata": {"phone_number_id": "1065500000001"},
					"contacts": [{"wa_id": "628555000111", "profile": {"name": "Budi"}}],
					"messages": [
						{"from": "628555000111", "id": "wamid.1", "type": "text", "text": {"body": "halo"}},
						{"from": "628555000111", "id": "wamid.2", "type": "image"}
					]
				}
			}]
		}]
	}`

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "received", body["status"])
	// Only the text message counts; the image is dropped.
	assert.Equal(t, float64(1), body["messages"])

	// Processing is asynchronous; wait for the reply to land.
	assert.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return len(tr.sends) == 1 && tr.sends[0].To == "628555000111"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestReceiveWebhookKeepsSameSenderOrder(t *testing.T) {
	app, _, repo := newTestApp(t)

	// One delivery batching several texts from the same sender: the messages
	// array order is the arrival order and must survive into the log.
	payload := `{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"metadata": {"phone_number_id": "1065500000001"},
					"contacts": [{"wa_id": "628555000111", "profile": {"name": "Budi"}}],
					"messages": [
						{"from": "628555000111", "id": "wamid.1", "type": "text", "text": {"body": "pesan pertama"}},
						{"from": "628555000111", "id": "wamid.2", "type": "text", "text": {"body": "pesan kedua"}},
						{"from": "628555000111", "id": "wamid.3", "type": "text", "text": {"body": "pesan ketiga"}}
					]
				}
			}]
		}]
	}`

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		return len(repo.contentsByRole(models.RoleUser)) == 3
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t,
		[]string{"pesan pertama", "pesan kedua", "pesan ketiga"},
		repo.contentsByRole(models.RoleUser),
	)
}
