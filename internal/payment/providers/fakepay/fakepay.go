// Package fakepay is an in-memory payment processor used in tests and local
// development. It counts CreateInvoice calls so at-most-once minting can be
// asserted.
package fakepay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tapmenu/platform/internal/payment/domain"
)

const ProviderName = "fake"

type Provider struct {
	createCalls atomic.Int64
	failCreate  atomic.Bool
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string { return ProviderName }

// CreateCalls reports how many times CreateInvoice was invoked.
func (p *Provider) CreateCalls() int64 {
	return p.createCalls.Load()
}

// FailCreate makes subsequent CreateInvoice calls return a provider failure.
func (p *Provider) FailCreate(fail bool) {
	p.failCreate.Store(fail)
}

func (p *Provider) CreateInvoice(ctx context.Context, req domain.CreateInvoiceRequest) (*domain.ProviderInvoiceResult, error) {
	p.createCalls.Add(1)
	if p.failCreate.Load() {
		return nil, domain.ErrProviderFailure
	}
	url := fmt.Sprintf("https://pay.example.test/i/%s", req.InvoiceID.String())
	return &domain.ProviderInvoiceResult{
		ProviderInvoiceID: "fake-" + req.InvoiceID.String(),
		PaymentURL:        &url,
	}, nil
}

type fakePayload struct {
	EventID       string `json:"event_id"`
	PaymentStatus string `json:"payment_status"`
	InvoiceID     string `json:"invoice_id"`
	AmountMinor   int64  `json:"amount_minor"`
	Currency      string `json:"currency"`
	OccurredAt    string `json:"occurred_at"`
}

// HandleWebhook accepts any payload carrying the expected fields; there is
// no signature scheme to verify.
func (p *Provider) HandleWebhook(ctx context.Context, payload []byte, headers http.Header) (*domain.PaymentEvent, error) {
	var parsed fakePayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if parsed.EventID == "" || parsed.InvoiceID == "" {
		return nil, domain.ErrInvalidPayload
	}

	occurredAt := time.Now().UTC()
	if parsed.OccurredAt != "" {
		at, err := time.Parse(time.RFC3339, parsed.OccurredAt)
		if err != nil {
			return nil, domain.ErrInvalidPayload
		}
		occurredAt = at.UTC()
	}

	status := domain.EventStatusFailed
	if strings.EqualFold(parsed.PaymentStatus, "succeeded") {
		status = domain.EventStatusSucceeded
	}

	return &domain.PaymentEvent{
		Provider:          ProviderName,
		ProviderEventID:   parsed.EventID,
		ProviderInvoiceID: parsed.InvoiceID,
		Status:            status,
		Amount:            parsed.AmountMinor,
		Currency:          strings.ToUpper(parsed.Currency),
		OccurredAt:        occurredAt,
		RawPayload:        payload,
	}, nil
}
