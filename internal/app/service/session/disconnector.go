// Package session drops live PPP sessions so the NAS re-authorizes a subscriber.
package session

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/internal/app/repository"
	"github.com/bayarinter/billing/internal/models"
	"github.com/bayarinter/billing/internal/platform/radius"
	"github.com/bayarinter/billing/pkg/logctx"
	"github.com/bayarinter/billing/pkg/metrics"
)

const (
	resultSuccess = "success"
	resultFailed  = "failed"
)

// Outcome summarizes a disconnect. Success is true when every open session was acknowledged.
type Outcome struct {
	Success  bool   `json:"success"`
	Detail   string `json:"detail"`
	Sessions int    `json:"sessions"`
}

// Disconnector is the capability subscriber management depends on. It never returns errors.
type Disconnector interface {
	Disconnect(ctx context.Context, username string) Outcome
}

// CoASender sends one Disconnect-Request. *radius.CoAClient satisfies it.
type CoASender interface {
	Disconnect(ctx context.Context, s radius.Session) (*radius.Reply, error)
}

type Service struct {
	store repository.Ledger
	coa   CoASender
	log   *zap.SugaredLogger
}

func NewService(store repository.Ledger, coa CoASender, log *zap.SugaredLogger) *Service {
	return &Service{store: store, coa: coa, log: log}
}

func (s *Service) Disconnect(ctx context.Context, username string) Outcome {
	lg := logctx.FromCtx(ctx, s.log).With("username", username)

	open, err := s.store.ListOpenSessions(ctx, username)
	if err != nil {
		lg.Errorw("coa_list_sessions_failed", "err", err)
		return Outcome{Detail: fmt.Sprintf("list sessions: %v", err)}
	}
	if len(open) == 0 {
		lg.Infow("coa_no_active_session")
		return Outcome{Success: true, Detail: "no active session"}
	}

	acked := 0
	for _, acct := range open {
		result, detail := s.disconnectOne(ctx, acct)
		metrics.Disconnects.WithLabelValues(result).Inc()
		if result == resultSuccess {
			acked++
			lg.Infow("coa_ack", "session_id", acct.AcctSessionID, "nas_ip", acct.NasIPAddress, "detail", detail)
		} else {
			lg.Warnw("coa_failed", "session_id", acct.AcctSessionID, "nas_ip", acct.NasIPAddress, "detail", detail)
		}

		entry := &models.CoaLog{Username: username, NasIP: acct.NasIPAddress, Result: result, Response: detail}
		if err := s.store.CreateCoaLog(ctx, entry); err != nil {
			lg.Errorw("coa_log_save_failed", "err", err)
		}
	}

	return Outcome{
		Success:  acked == len(open),
		Detail:   fmt.Sprintf("%d/%d sessions acknowledged", acked, len(open)),
		Sessions: len(open),
	}
}

func (s *Service) disconnectOne(ctx context.Context, acct *models.RadAcct) (string, string) {
	reply, err := s.coa.Disconnect(ctx, radius.Session{
		Username:         acct.Username,
		AcctSessionID:    acct.AcctSessionID,
		NasIP:            acct.NasIPAddress,
		FramedIP:         lo.FromPtr(acct.FramedIPAddress),
		CallingStationID: lo.FromPtr(acct.CallingStationID),
	})
	if err != nil {
		return resultFailed, err.Error()
	}
	if !reply.Acked {
		return resultFailed, reply.Detail
	}
	return resultSuccess, reply.Detail
}

var Module = fx.Options(
	fx.Provide(
		radius.NewCoAClient,
		func(c *radius.CoAClient) CoASender { return c },
		NewService,
		func(s *Service) Disconnector { return s },
	),
)
