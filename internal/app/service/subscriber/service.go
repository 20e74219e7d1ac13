// Package subscriber manages subscriber status and deletion. Both drop any live PPP
// session so the NAS re-authorizes against the new state.
package subscriber

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/internal/app/repository"
	"github.com/bayarinter/billing/internal/app/service/session"
	"github.com/bayarinter/billing/internal/models"
	"github.com/bayarinter/billing/pkg/apperr"
	"github.com/bayarinter/billing/pkg/logctx"
	"github.com/bayarinter/billing/pkg/types"
)

type Service struct {
	store        repository.Ledger
	disconnector session.Disconnector
	log          *zap.SugaredLogger
}

func NewService(store repository.Ledger, disconnector session.Disconnector, log *zap.SugaredLogger) *Service {
	return &Service{store: store, disconnector: disconnector, log: log}
}

// StatusChange is the result of ChangeStatus.
type StatusChange struct {
	Subscriber *models.Subscriber `json:"subscriber"`
	Changed    bool               `json:"changed"`
	Session    session.Outcome    `json:"session"`
}

func (s *Service) get(ctx context.Context, scope repository.Scope, id string) (*models.Subscriber, error) {
	sub, err := s.store.GetSubscriber(ctx, scope, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("subscriber %s not found", id)
	}
	return sub, err
}

func (s *Service) ChangeStatus(ctx context.Context, scope repository.Scope, id string, status types.SubscriberStatus) (*StatusChange, error) {
	if !status.Valid() {
		return nil, apperr.Validation("status must be %q or %q", types.SubscriberStatusActive, types.SubscriberStatusSuspended)
	}
	sub, err := s.get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	changed, err := s.store.UpdateSubscriberStatus(ctx, sub.ID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscriber status: %w", err)
	}
	sub.Status = status
	logctx.FromCtx(ctx, s.log).Infow("subscriber_status_changed", "user_id", sub.ID, "status", status, "changed", changed)

	return &StatusChange{
		Subscriber: sub,
		Changed:    changed,
		Session:    s.disconnector.Disconnect(ctx, sub.Username),
	}, nil
}

// Suspend is ChangeStatus to suspended.
func (s *Service) Suspend(ctx context.Context, scope repository.Scope, id string) (*StatusChange, error) {
	return s.ChangeStatus(ctx, scope, id, types.SubscriberStatusSuspended)
}

// Delete disconnects the subscriber and soft-deletes it. Invoices and payments are kept.
func (s *Service) Delete(ctx context.Context, scope repository.Scope, id string) (session.Outcome, error) {
	sub, err := s.get(ctx, scope, id)
	if err != nil {
		return session.Outcome{}, err
	}
	outcome := s.disconnector.Disconnect(ctx, sub.Username)
	if err := s.store.DeleteSubscriber(ctx, sub.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return outcome, apperr.NotFound("subscriber %s not found", id)
		}
		return outcome, fmt.Errorf("failed to delete subscriber: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("subscriber_deleted", "user_id", sub.ID, "username", sub.Username)
	return outcome, nil
}

// DisconnectSessions drops the live sessions of one of the caller's subscribers.
func (s *Service) DisconnectSessions(ctx context.Context, scope repository.Scope, username string) (session.Outcome, error) {
	sub, err := s.store.GetSubscriberByUsername(ctx, scope, username)
	if errors.Is(err, repository.ErrNotFound) {
		return session.Outcome{}, apperr.NotFound("subscriber %s not found", username)
	}
	if err != nil {
		return session.Outcome{}, err
	}
	return s.disconnector.Disconnect(ctx, sub.Username), nil
}

var Module = fx.Options(
	fx.Provide(NewService),
)
