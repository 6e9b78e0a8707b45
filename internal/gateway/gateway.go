package gateway

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"sync"

	"github.com/google/uuid"

	customError "github.com/segyhp/installment-engine/pkg/errors"
)

// Payer is the contact a provider shows on its payment page
type Payer struct {
	Name  string
	Email string
	Phone string
}

// PaymentRequest asks a provider to collect one installment.
// Amount always comes from the ledger, never from the client.
type PaymentRequest struct {
	OrderRef      string
	InstallmentID uuid.UUID
	Amount        int64
	Payer         Payer
	Description   string
}

// Initiation is what a provider hands back for a new charge.
// Settled is set when the provider completed the payment synchronously.
type Initiation struct {
	RedirectURL            string
	Token                  string
	ProviderTransactionRef string
	Settled                *Notification
}

// Notification is a provider-neutral payment outcome
type Notification struct {
	Verified               bool
	IsSuccess              bool
	ProviderTransactionRef string
	Amount                 int64
	OrderRef               string
	InstallmentID          *uuid.UUID
	FailureMessage         string
	Status                 string
}

// InboundRequest carries the raw parts of a provider callback
type InboundRequest struct {
	Headers http.Header
	Query   url.Values
	Body    []byte
}

// Adapter is implemented once per payment provider
type Adapter interface {
	Name() string

	// Initiate starts a charge. Amount <= 0 fails before any network traffic.
	Initiate(ctx context.Context, req PaymentRequest) (*Initiation, error)

	// VerifyInboundNotification checks integrity and normalises a callback.
	// A bad signature yields Verified=false; only unparseable input is an error.
	VerifyInboundNotification(ctx context.Context, req *InboundRequest) (*Notification, error)
}

// Registry resolves adapters by provider name
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	if !ok {
		return nil, customError.WrapUnknownProvider(name)
	}
	return a, nil
}

// Names lists registered providers in lexical order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
