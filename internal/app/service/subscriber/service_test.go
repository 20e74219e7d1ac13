package subscriber

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bayarinter/billing/internal/app/repository"
	"github.com/bayarinter/billing/internal/app/service/session"
	"github.com/bayarinter/billing/internal/models"
	"github.com/bayarinter/billing/pkg/apperr"
	"github.com/bayarinter/billing/pkg/types"
)

const (
	resellerA = "0190a000-0000-7000-8000-00000000000a"
	resellerB = "0190a000-0000-7000-8000-00000000000b"
)

type fakeDisconnector struct {
	calls []string
}

func (f *fakeDisconnector) Disconnect(ctx context.Context, username string) session.Outcome {
	f.calls = append(f.calls, username)
	return session.Outcome{Success: true, Detail: "ok", Sessions: 1}
}

func newService(t *testing.T) (*Service, *repository.Memory, *fakeDisconnector) {
	t.Helper()
	store := repository.NewMemory()
	store.PutSubscriber(models.Subscriber{ID: "u1", ResellerID: resellerA, Username: "budi", IsActive: true})
	disc := &fakeDisconnector{}
	return NewService(store, disc, zap.NewNop().Sugar()), store, disc
}

func TestChangeStatus(t *testing.T) {
	ctx := context.Background()
	svc, store, disc := newService(t)

	res, err := svc.ChangeStatus(ctx, repository.ResellerScope(resellerA), "u1", types.SubscriberStatusSuspended)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, res.Session.Success)
	assert.Equal(t, types.SubscriberStatusSuspended, res.Subscriber.Status)

	sub, _ := store.Subscriber("u1")
	assert.Equal(t, types.SubscriberStatusSuspended, sub.Status)
	assert.Equal(t, []string{"budi"}, disc.calls)

	res, err = svc.Suspend(ctx, repository.ResellerScope(resellerA), "u1")
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestChangeStatus_Errors(t *testing.T) {
	ctx := context.Background()
	svc, _, disc := newService(t)

	_, err := svc.ChangeStatus(ctx, repository.ResellerScope(resellerA), "u1", "banned")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.ChangeStatus(ctx, repository.ResellerScope(resellerB), "u1", types.SubscriberStatusSuspended)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Empty(t, disc.calls)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc, store, disc := newService(t)

	_, err := svc.Delete(ctx, repository.ResellerScope(resellerB), "u1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	outcome, err := svc.Delete(ctx, repository.ResellerScope(resellerA), "u1")
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, []string{"budi"}, disc.calls)

	sub, ok := store.Subscriber("u1")
	require.True(t, ok, "soft delete keeps the row")
	assert.True(t, sub.DeletedAt.Valid)

	_, err = svc.Delete(ctx, repository.ResellerScope(resellerA), "u1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDisconnectSessions(t *testing.T) {
	ctx := context.Background()
	svc, _, disc := newService(t)

	outcome, err := svc.DisconnectSessions(ctx, repository.ResellerScope(resellerA), "budi")
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Sessions)

	_, err = svc.DisconnectSessions(ctx, repository.ResellerScope(resellerB), "budi")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, []string{"budi"}, disc.calls)
}
