package domain

import (
	"time"

	"github.com/google/uuid"
)

// Webhook outcomes recorded in the audit log
const (
	WebhookOutcomeRejected   = "rejected"
	WebhookOutcomeMalformed  = "malformed"
	WebhookOutcomeDeclined   = "declined"
	WebhookOutcomeApplied    = "applied"
	WebhookOutcomeDuplicate  = "duplicate"
	WebhookOutcomeOrphaned   = "orphaned"
	WebhookOutcomeUnmatched  = "unmatched"
	WebhookOutcomeStoreError = "store_error"
)

// WebhookLog keeps the raw inbound payload of every provider callback for audit
type WebhookLog struct {
	ID                     uuid.UUID `json:"id" db:"id"`
	Provider               string    `json:"provider" db:"provider"`
	Verified               bool      `json:"verified" db:"verified"`
	Success                bool      `json:"success" db:"success"`
	Outcome                string    `json:"outcome" db:"outcome"`
	OrderRef               string    `json:"order_ref" db:"order_ref"`
	ProviderTransactionRef string    `json:"provider_transaction_ref" db:"provider_transaction_ref"`
	Payload                []byte    `json:"payload" db:"payload"`
	ReceivedAt             time.Time `json:"received_at" db:"received_at"`
}
