package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/tapmenu/platform/internal/audit/domain"
	"github.com/tapmenu/platform/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) AuditLog(ctx context.Context, venueID *snowflake.ID, actor string, action string, targetType string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return domain.ErrInvalidAction
	}
	if strings.TrimSpace(actor) == "" {
		actor = domain.ActorSystem
	}

	var payload datatypes.JSON
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		payload = datatypes.JSON(raw)
	}

	entry := &domain.AuditLog{
		ID:         s.genID.Generate(),
		VenueID:    venueID,
		Actor:      actor,
		Action:     action,
		TargetType: targetType,
		Metadata:   payload,
		CreatedAt:  s.clock.Now(),
	}
	return s.repo.Insert(ctx, s.db, entry)
}

func (s *Service) ListByVenue(ctx context.Context, venueID snowflake.ID, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListByVenue(ctx, s.db, venueID, limit)
}
