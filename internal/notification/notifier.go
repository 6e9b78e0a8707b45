package notification

import (
	"context"

	"go.uber.org/zap"
)

// Templates understood by the e-mail worker
const (
	TemplatePaymentConfirmation = "payment_confirmation"
	TemplateInstallmentReminder = "installment_reminder"
)

// Notifier is a fire-and-forget sink. Callers log failures and never roll back on them.
type Notifier interface {
	Send(ctx context.Context, email, template string, data map[string]any) error
}

// LogNotifier writes notifications to the log, used when no broker is configured
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, email, template string, data map[string]any) error {
	n.logger.Info("notification",
		zap.String("email", email),
		zap.String("template", template),
		zap.Any("data", data),
	)
	return nil
}
