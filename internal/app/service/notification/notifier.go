// Package notification delivers billing notices to subscribers and resellers.
// Delivery is best effort: failures are logged and counted, never returned.
package notification

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/internal/platform/whatsapp"
	cfgpkg "github.com/bayarinter/billing/pkg/config"
	"github.com/bayarinter/billing/pkg/logctx"
	"github.com/bayarinter/billing/pkg/metrics"
)

// Delivery is the advisory outcome of one message.
type Delivery struct {
	Delivered bool   `json:"delivered"`
	Detail    string `json:"detail"`
}

// Message is one outbound notice. Kind labels logs and metrics.
type Message struct {
	Kind  string
	Phone string
	Text  string
}

// Notifier is the capability billing code depends on.
type Notifier interface {
	Notify(ctx context.Context, msg Message) Delivery
}

// Sender is the transport. *whatsapp.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, phone, text string) (*whatsapp.SendResult, error)
}

type Service struct {
	sender  Sender
	log     *zap.SugaredLogger
	timeout time.Duration
}

func NewService(sender Sender, log *zap.SugaredLogger, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = whatsapp.DefaultTimeout
	}
	return &Service{sender: sender, log: log, timeout: timeout}
}

func newFromConfig(cfg *cfgpkg.Config, log *zap.SugaredLogger) *Service {
	return NewService(whatsapp.NewClient(cfg), log, cfg.WhatsApp.Timeout)
}

func (s *Service) Notify(ctx context.Context, msg Message) Delivery {
	lg := logctx.FromCtx(ctx, s.log).With("kind", msg.Kind)
	phone := whatsapp.NormalizePhone(msg.Phone)
	if phone == "" {
		metrics.Notifications.WithLabelValues(msg.Kind, "skipped").Inc()
		lg.Infow("notification_skipped", "reason", "no phone")
		return Delivery{Delivered: false, Detail: "no phone number"}
	}

	// notices outlive the request that triggered them
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	res, err := s.sender.Send(sendCtx, phone, msg.Text)
	if err != nil {
		metrics.Notifications.WithLabelValues(msg.Kind, "failed").Inc()
		lg.Warnw("notification_failed", "phone", phone, "err", err)
		return Delivery{Delivered: false, Detail: err.Error()}
	}
	metrics.Notifications.WithLabelValues(msg.Kind, "ok").Inc()
	lg.Infow("notification_sent", "phone", phone, "status", res.StatusCode)
	return Delivery{Delivered: true, Detail: res.Body}
}

var Module = fx.Options(
	fx.Provide(
		newFromConfig,
		func(s *Service) Notifier { return s },
	),
)
