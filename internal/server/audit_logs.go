package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultAuditLogLimit = 50

type auditLogResponse struct {
	ID         string          `json:"id"`
	Actor      string          `json:"actor"`
	Action     string          `json:"action"`
	TargetType string          `json:"target_type"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	venueID, err := parseID(c.Param("venue_id"))
	if err != nil {
		AbortWithError(c, newValidationError("venue_id", "invalid_id", "invalid venue id"))
		return
	}

	limit := defaultAuditLogLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
			return
		}
		limit = parsed
	}

	entries, err := s.auditSvc.ListByVenue(c.Request.Context(), venueID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]auditLogResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, auditLogResponse{
			ID:         entry.ID.String(),
			Actor:      entry.Actor,
			Action:     entry.Action,
			TargetType: entry.TargetType,
			Metadata:   json.RawMessage(entry.Metadata),
			CreatedAt:  entry.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": items})
}
