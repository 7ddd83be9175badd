package domain

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
)

// CreateInvoiceRequest carries everything a processor needs to mint a
// payable invoice on its side.
type CreateInvoiceRequest struct {
	InvoiceID   snowflake.ID
	VenueID     snowflake.ID
	Amount      int64
	Currency    string
	Description string
}

// ProviderInvoiceResult is the processor's answer to CreateInvoice.
type ProviderInvoiceResult struct {
	ProviderInvoiceID string
	PaymentURL        *string
	RawPayload        []byte
}

// Provider is the capability set one external payment processor implements.
// New processors are added to the registry without touching the billing
// service or the reconciliation engine.
type Provider interface {
	Name() string
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*ProviderInvoiceResult, error)

	// HandleWebhook verifies the inbound request against the provider's
	// signature scheme and parses it into a canonical event.
	// ErrInvalidSignature maps to 401, ErrInvalidPayload to 400.
	HandleWebhook(ctx context.Context, payload []byte, headers http.Header) (*PaymentEvent, error)
}
