package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/segyhp/installment-engine/internal/domain"
)

type webhookLogRepository struct {
	db *sqlx.DB
}

func NewWebhookLogRepository(db *sqlx.DB) WebhookLogRepository {
	return &webhookLogRepository{db: db}
}

func (r *webhookLogRepository) Create(ctx context.Context, log *domain.WebhookLog) error {
	query := `
		INSERT INTO payment_webhook_logs (id, provider, verified, success, outcome, order_ref,
		                                  provider_transaction_ref, payload, received_at)
		VALUES (:id, :provider, :verified, :success, :outcome, :order_ref,
		        :provider_transaction_ref, :payload, :received_at)
	`

	entry := *log
	if entry.Payload == nil {
		entry.Payload = []byte{}
	}

	_, err := r.db.NamedExecContext(ctx, query, &entry)
	return err
}

func (r *webhookLogRepository) ListByOrderRef(ctx context.Context, orderRef string) ([]*domain.WebhookLog, error) {
	query := `
		SELECT id, provider, verified, success, outcome, order_ref, provider_transaction_ref, payload, received_at
		FROM payment_webhook_logs
		WHERE order_ref = $1
		ORDER BY received_at DESC
	`

	var logs []*domain.WebhookLog
	if err := r.db.SelectContext(ctx, &logs, query, orderRef); err != nil {
		return nil, err
	}
	return logs, nil
}
