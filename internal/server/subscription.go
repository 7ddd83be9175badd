package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/tapmenu/platform/internal/subscription/domain"
	"go.uber.org/zap"
)

type subscriptionResponse struct {
	VenueID     string     `json:"venue_id"`
	Status      string     `json:"status"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
	PaidStartAt *time.Time `json:"paid_start_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toSubscriptionResponse(sub *subscriptiondomain.Subscription) subscriptionResponse {
	return subscriptionResponse{
		VenueID:     sub.VenueID.String(),
		Status:      string(sub.Status),
		TrialEndsAt: sub.TrialEndsAt,
		PaidStartAt: sub.PaidStartAt,
		UpdatedAt:   sub.UpdatedAt,
	}
}

func (s *Server) GetSubscription(c *gin.Context) {
	venueID, err := parseID(c.Param("venue_id"))
	if err != nil {
		AbortWithError(c, newValidationError("venue_id", "invalid_id", "invalid venue id"))
		return
	}

	sub, err := s.subRepo.FindByVenue(c.Request.Context(), s.db, venueID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if sub == nil {
		AbortWithError(c, subscriptiondomain.ErrSubscriptionNotFound)
		return
	}

	c.JSON(http.StatusOK, toSubscriptionResponse(sub))
}

type upsertSubscriptionRequest struct {
	Status      string     `json:"status"`
	TrialEndsAt *time.Time `json:"trial_ends_at"`
}

// UpsertSubscription enrolls a venue into billing or overrides its lifecycle
// state. A new enrollment defaults to TRIAL with the policy's trial window.
func (s *Server) UpsertSubscription(c *gin.Context) {
	venueID, err := parseID(c.Param("venue_id"))
	if err != nil {
		AbortWithError(c, newValidationError("venue_id", "invalid_id", "invalid venue id"))
		return
	}

	var req upsertSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	now := s.clock.Now()
	status := subscriptiondomain.SubscriptionStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if status == "" {
		status = subscriptiondomain.SubscriptionStatusTrial
	}
	switch status {
	case subscriptiondomain.SubscriptionStatusTrial,
		subscriptiondomain.SubscriptionStatusActive,
		subscriptiondomain.SubscriptionStatusPastDue,
		subscriptiondomain.SubscriptionStatusCanceled,
		subscriptiondomain.SubscriptionStatusSuspended:
	default:
		AbortWithError(c, subscriptiondomain.ErrInvalidStatus)
		return
	}

	// A status override must not erase the anchors invoice issuance is
	// scheduled from, so unsupplied fields carry over from the stored row.
	existing, err := s.subRepo.FindByVenue(c.Request.Context(), s.db, venueID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	trialEndsAt := req.TrialEndsAt
	if trialEndsAt == nil && existing != nil {
		trialEndsAt = existing.TrialEndsAt
	}
	if status == subscriptiondomain.SubscriptionStatusTrial && trialEndsAt == nil {
		end := now.AddDate(0, 0, s.policy.Get().TrialDays)
		trialEndsAt = &end
	}
	var paidStartAt *time.Time
	if existing != nil {
		paidStartAt = existing.PaidStartAt
	}

	sub := &subscriptiondomain.Subscription{
		ID:          s.genID.Generate(),
		VenueID:     venueID,
		Status:      status,
		TrialEndsAt: trialEndsAt,
		PaidStartAt: paidStartAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.subRepo.Upsert(c.Request.Context(), s.db, sub); err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.auditSvc.AuditLog(c.Request.Context(), &venueID, requestActor(c),
		"subscription.upserted", "subscription", map[string]any{
			"status": string(status),
		}); err != nil {
		s.log.Warn("failed to write subscription audit log", zap.Error(err))
	}

	stored, err := s.subRepo.FindByVenue(c.Request.Context(), s.db, venueID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSubscriptionResponse(stored))
}
