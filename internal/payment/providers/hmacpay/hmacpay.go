// Package hmacpay implements the generic HMAC-signed payment processor.
// Outbound invoices are minted against the processor's HTTP API; inbound
// webhooks are authenticated with an HMAC-SHA256 signature over the raw body.
package hmacpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tapmenu/platform/internal/payment/domain"
)

const (
	ProviderName           = "hmac"
	defaultSignatureHeader = "X-Billing-Signature"
	defaultTimeout         = 10 * time.Second
)

type Config struct {
	Secret           string
	SignatureHeader  string
	CreateInvoiceURL string
}

type Provider struct {
	secret          []byte
	signatureHeader string
	createURL       string
	client          *http.Client
}

func New(cfg Config) (*Provider, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, domain.ErrInvalidProvider
	}
	header := strings.TrimSpace(cfg.SignatureHeader)
	if header == "" {
		header = defaultSignatureHeader
	}
	return &Provider{
		secret:          []byte(secret),
		signatureHeader: header,
		createURL:       strings.TrimSpace(cfg.CreateInvoiceURL),
		client:          &http.Client{Timeout: defaultTimeout},
	}, nil
}

func (p *Provider) Name() string { return ProviderName }

type createInvoiceBody struct {
	InvoiceID   string `json:"invoice_id"`
	VenueID     string `json:"venue_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

type createInvoiceResponse struct {
	InvoiceID  string  `json:"invoice_id"`
	PaymentURL *string `json:"payment_url"`
}

func (p *Provider) CreateInvoice(ctx context.Context, req domain.CreateInvoiceRequest) (*domain.ProviderInvoiceResult, error) {
	if p.createURL == "" {
		return nil, domain.ErrProviderFailure
	}

	body, err := json.Marshal(createInvoiceBody{
		InvoiceID:   req.InvoiceID.String(),
		VenueID:     req.VenueID.String(),
		AmountMinor: req.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		Description: req.Description,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.createURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(p.signatureHeader, p.sign(body))

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", domain.ErrProviderFailure, resp.StatusCode)
	}

	var parsed createInvoiceResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	if strings.TrimSpace(parsed.InvoiceID) == "" {
		return nil, fmt.Errorf("%w: missing invoice_id", domain.ErrProviderFailure)
	}

	return &domain.ProviderInvoiceResult{
		ProviderInvoiceID: parsed.InvoiceID,
		PaymentURL:        parsed.PaymentURL,
		RawPayload:        raw,
	}, nil
}

// HandleWebhook verifies the signature header (trimmed; proxies pad headers)
// against HMAC-SHA256 of the raw body, then parses the payload. Every
// expected field must be a primitive scalar.
func (p *Provider) HandleWebhook(ctx context.Context, payload []byte, headers http.Header) (*domain.PaymentEvent, error) {
	signature := strings.TrimSpace(headers.Get(p.signatureHeader))
	if signature == "" {
		return nil, domain.ErrInvalidSignature
	}
	expected := p.sign(payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return nil, domain.ErrInvalidSignature
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	eventID, err := scalarString(fields, "event_id")
	if err != nil {
		return nil, err
	}
	status, err := scalarString(fields, "payment_status")
	if err != nil {
		return nil, err
	}
	invoiceID, err := scalarString(fields, "invoice_id")
	if err != nil {
		return nil, err
	}
	amount, err := scalarInt(fields, "amount_minor")
	if err != nil {
		return nil, err
	}
	currency, err := scalarString(fields, "currency")
	if err != nil {
		return nil, err
	}
	occurredAt, err := scalarTime(fields, "occurred_at")
	if err != nil {
		return nil, err
	}

	return &domain.PaymentEvent{
		Provider:          ProviderName,
		ProviderEventID:   eventID,
		ProviderInvoiceID: invoiceID,
		Status:            normalizeStatus(status),
		Amount:            amount,
		Currency:          strings.ToUpper(strings.TrimSpace(currency)),
		OccurredAt:        occurredAt,
		RawPayload:        payload,
	}, nil
}

func (p *Provider) sign(payload []byte) string {
	mac := hmac.New(sha256.New, p.secret)
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func normalizeStatus(raw string) domain.EventStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "succeeded", "paid", "success":
		return domain.EventStatusSucceeded
	default:
		return domain.EventStatusFailed
	}
}

// scalarRaw rejects objects and arrays in payload fields; a non-primitive
// value is a malformed payload, never silently coerced.
func scalarRaw(fields map[string]json.RawMessage, key string) (json.RawMessage, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, domain.ErrInvalidPayload
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, domain.ErrInvalidPayload
	}
	switch trimmed[0] {
	case '{', '[':
		return nil, domain.ErrInvalidPayload
	}
	return trimmed, nil
}

func scalarString(fields map[string]json.RawMessage, key string) (string, error) {
	raw, err := scalarRaw(fields, key)
	if err != nil {
		return "", err
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		// Numeric scalars are tolerated where a string is expected.
		var number json.Number
		if err := json.Unmarshal(raw, &number); err != nil {
			return "", domain.ErrInvalidPayload
		}
		value = number.String()
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", domain.ErrInvalidPayload
	}
	return value, nil
}

func scalarInt(fields map[string]json.RawMessage, key string) (int64, error) {
	raw, err := scalarRaw(fields, key)
	if err != nil {
		return 0, err
	}
	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, domain.ErrInvalidPayload
		}
		number = json.Number(strings.TrimSpace(text))
	}
	value, err := number.Int64()
	if err != nil {
		return 0, domain.ErrInvalidPayload
	}
	return value, nil
}

func scalarTime(fields map[string]json.RawMessage, key string) (time.Time, error) {
	raw, err := scalarRaw(fields, key)
	if err != nil {
		return time.Time{}, err
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(text))
		if err != nil {
			return time.Time{}, domain.ErrInvalidPayload
		}
		return parsed.UTC(), nil
	}

	// Unix seconds are accepted as well.
	seconds, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, domain.ErrInvalidPayload
	}
	return time.Unix(seconds, 0).UTC(), nil
}
