package models

import "time"

// InboundMessage is the normalized webhook event handed to the orchestrator.
// It is never persisted as-is; accepted messages become conversation entries.
type InboundMessage struct {
	RoutingKey    string    `json:"routing_key"`
	Counterparty  string    `json:"counterparty"`
	SenderName    string    `json:"sender_name,omitempty"`
	Text          string    `json:"text"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}
