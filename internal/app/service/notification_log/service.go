package notification_log

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/internal/app/repository"
	"github.com/bayarinter/billing/internal/models"
	"github.com/bayarinter/billing/pkg/logctx"
	"github.com/bayarinter/billing/pkg/tool"
)

type Service struct {
	store repository.Ledger
	log   *zap.SugaredLogger
}

func New(store repository.Ledger, log *zap.SugaredLogger) *Service {
	return &Service{store: store, log: log}
}

// Save synchronously appends a callback audit row. Nil input is ignored.
// Callers must not act on a callback whose "received" row failed to persist.
func (s *Service) Save(ctx context.Context, entry *models.PaymentNotificationLog) error {
	if entry == nil {
		return nil
	}
	if entry.ID == "" {
		entry.ID = tool.GenerateUUIDV7()
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now()
	}
	if entry.TraceID == "" {
		entry.TraceID = logctx.TraceID(ctx)
	}
	if err := s.store.CreateNotificationLog(ctx, entry); err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("notification_log_save_failed",
			"provider", entry.ProviderID, "order_id", entry.OrderID, "status", entry.Status, "err", err)
		return fmt.Errorf("failed to save notification log: %w", err)
	}
	return nil
}

var Module = fx.Options(
	fx.Provide(New),
)
