package service

import (
	"errors"
	"time"

	"go.uber.org/zap"

	customError "github.com/segyhp/installment-engine/pkg/errors"
)

// errNoChange aborts an order update without saving anything
var errNoChange = errors.New("no change")

type base struct {
	logger *zap.Logger
	now    func() time.Time
}

// Option configures the services in this package
type Option func(*base)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		b.now = now
	}
}

func newBase(logger *zap.Logger, opts []Option) base {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := base{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// storeError passes business errors through and classifies everything else as a storage failure
func storeError(err error) error {
	var be *customError.BusinessError
	if errors.As(err, &be) {
		return err
	}
	return customError.WrapDatabaseError(err)
}
