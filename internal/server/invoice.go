package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/tapmenu/platform/internal/audit/domain"
	invoicedomain "github.com/tapmenu/platform/internal/invoice/domain"
	paymentservice "github.com/tapmenu/platform/internal/payment/service"
	"go.uber.org/zap"
)

type invoiceResponse struct {
	ID                string     `json:"id"`
	VenueID           string     `json:"venue_id"`
	PeriodStart       time.Time  `json:"period_start"`
	PeriodEnd         time.Time  `json:"period_end"`
	DueAt             time.Time  `json:"due_at"`
	Amount            int64      `json:"amount"`
	Currency          string     `json:"currency"`
	Description       string     `json:"description,omitempty"`
	Provider          string     `json:"provider"`
	ProviderInvoiceID *string    `json:"provider_invoice_id,omitempty"`
	PaymentURL        *string    `json:"payment_url,omitempty"`
	Status            string     `json:"status"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toInvoiceResponse(invoice *invoicedomain.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:                invoice.ID.String(),
		VenueID:           invoice.VenueID.String(),
		PeriodStart:       invoice.PeriodStart,
		PeriodEnd:         invoice.PeriodEnd,
		DueAt:             invoice.DueAt,
		Amount:            invoice.Amount,
		Currency:          invoice.Currency,
		Description:       invoice.Description,
		Provider:          invoice.Provider,
		ProviderInvoiceID: invoice.ProviderInvoiceID,
		PaymentURL:        invoice.PaymentURL,
		Status:            string(invoice.Status),
		PaidAt:            invoice.PaidAt,
		CreatedAt:         invoice.CreatedAt,
	}
}

type createInvoiceRequest struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	DueAt       time.Time `json:"due_at"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Description string    `json:"description"`
}

// CreateInvoice issues an invoice on demand for the given venue and period.
// Repeating the call for the same period returns the existing invoice.
func (s *Server) CreateInvoice(c *gin.Context) {
	venueID, err := parseID(c.Param("venue_id"))
	if err != nil {
		AbortWithError(c, newValidationError("venue_id", "invalid_id", "invalid venue id"))
		return
	}

	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	dueAt := req.DueAt
	if dueAt.IsZero() {
		dueAt = req.PeriodStart.AddDate(0, 0, s.policy.Get().DueDays)
	}

	invoice, err := s.billingSvc.CreateDraftOrOpenInvoice(c.Request.Context(), paymentservice.CreateDraftOrOpenInvoiceRequest{
		VenueID:     venueID,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		DueAt:       dueAt,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		Actor:       requestActor(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toInvoiceResponse(invoice))
}

func (s *Server) GetInvoice(c *gin.Context) {
	invoiceID, err := parseID(c.Param("invoice_id"))
	if err != nil {
		AbortWithError(c, newValidationError("invoice_id", "invalid_id", "invalid invoice id"))
		return
	}

	invoice, err := s.invoiceRepo.FindByID(c.Request.Context(), s.db, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if invoice == nil {
		AbortWithError(c, invoicedomain.ErrInvoiceNotFound)
		return
	}

	c.JSON(http.StatusOK, toInvoiceResponse(invoice))
}

func (s *Server) ListInvoices(c *gin.Context) {
	venueID, err := parseID(c.Param("venue_id"))
	if err != nil {
		AbortWithError(c, newValidationError("venue_id", "invalid_id", "invalid venue id"))
		return
	}

	invoices, err := s.invoiceRepo.ListByVenue(c.Request.Context(), s.db, venueID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]invoiceResponse, 0, len(invoices))
	for i := range invoices {
		items = append(items, toInvoiceResponse(&invoices[i]))
	}
	c.JSON(http.StatusOK, gin.H{"invoices": items})
}

// CancelInvoice cancels a non-terminal invoice. A second call is a no-op
// acknowledged with the current invoice state.
func (s *Server) CancelInvoice(c *gin.Context) {
	invoiceID, err := parseID(c.Param("invoice_id"))
	if err != nil {
		AbortWithError(c, newValidationError("invoice_id", "invalid_id", "invalid invoice id"))
		return
	}

	invoice, err := s.invoiceRepo.FindByID(c.Request.Context(), s.db, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if invoice == nil {
		AbortWithError(c, invoicedomain.ErrInvoiceNotFound)
		return
	}

	canceled, err := s.invoiceRepo.Cancel(c.Request.Context(), s.db, invoiceID, s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if canceled {
		if err := s.auditSvc.AuditLog(c.Request.Context(), &invoice.VenueID, requestActor(c),
			"invoice.canceled", "invoice", map[string]any{
				"invoice_id": invoiceID.String(),
			}); err != nil {
			s.log.Warn("failed to write cancellation audit log", zap.Error(err))
		}
	}

	invoice, err = s.invoiceRepo.FindByID(c.Request.Context(), s.db, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toInvoiceResponse(invoice))
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}

func requestActor(c *gin.Context) string {
	if actor := strings.TrimSpace(c.GetHeader("X-Actor")); actor != "" {
		return actor
	}
	return auditdomain.ActorSystem
}
