/**
 * @description
 * Event payloads published to RabbitMQ by the assistant service.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys for events published on the assistant exchange.
const (
	RoutingKeyIntentDecided     = "assistant.intent.decided"
	RoutingKeyProposalCreated   = "transfer.proposal.created"
	RoutingKeyProposalCompleted = "transfer.proposal.completed"
	RoutingKeyProposalFailed    = "transfer.proposal.failed"
	RoutingKeyProposalRejected  = "transfer.proposal.rejected"
	RoutingKeyProposalStale     = "transfer.proposal.stale"
)

// IntentDecisionEvent is the audit record of one classifier decision.
type IntentDecisionEvent struct {
	UserID     uuid.UUID         `json:"user_id"`
	Intent     string            `json:"intent"`
	Method     string            `json:"method"`
	Reason     string            `json:"reason,omitempty"`
	Metadata   map[string]string `json:"metadata"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// TransferEvent describes a proposal lifecycle transition.
type TransferEvent struct {
	ProposalID      uuid.UUID      `json:"proposal_id"`
	UserID          uuid.UUID      `json:"user_id"`
	Status          TransferStatus `json:"status"`
	Amount          string         `json:"amount"`
	Currency        string         `json:"currency"`
	ReferenceNumber string         `json:"reference_number,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	OccurredAt      time.Time      `json:"occurred_at"`
}
