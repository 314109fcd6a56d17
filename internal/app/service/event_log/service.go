package event_log

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/numina/billing/internal/models"
	"github.com/numina/billing/pkg/logctx"
	"github.com/numina/billing/pkg/tool"
)

// Service persists the audit trail of verified Stripe webhook deliveries.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Save asynchronously persists an event log entry. Nil input is ignored.
// Failures are logged only; the webhook response never depends on this write.
func (s *Service) Save(ctx context.Context, entry *models.StripeEventLog) {
	go func() {
		if entry == nil {
			return
		}
		if entry.ID == "" {
			entry.ID = tool.GenerateUUIDV7()
		}
		if err := s.db.Save(entry).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save stripe event log: %v", err)
		}
	}()
}

var Module = fx.Options(
	fx.Provide(New),
)
