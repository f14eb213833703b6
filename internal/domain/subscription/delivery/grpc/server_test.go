package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/fanplatform/subscription-service/internal/domain/subscription/entities"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/repository/memory"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/usecase/business"
	"github.com/fanplatform/subscription-service/internal/infrastructure/metrics"
)

func setup(t *testing.T) (*business.UseCase, *queryClient) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	uc := business.NewUseCase(memory.NewRepository(), clock, 24*time.Hour, metrics.NewNop(), zerolog.Nop())

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterQueryServer(srv, NewServer(uc, zerolog.Nop()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := newQueryClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return uc, client
}

func TestQueries(t *testing.T) {
	uc, client := setup(t)
	ctx := context.Background()

	for _, uid := range []int64{1, 2, 3} {
		_, _, err := uc.Subscribe(ctx, entities.KindPlayer, uid, 7)
		require.NoError(t, err)
	}
	_, _, err := uc.Subscribe(ctx, entities.KindPlayer, 1, 8)
	require.NoError(t, err)

	count, err := client.CountSubscribers(ctx, "player", 7)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	subs, err := client.ListUserSubscriptions(ctx, "player", 1)
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	ok, err := client.IsSubscribed(ctx, "player", 2, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.IsSubscribed(ctx, "player", 2, 8)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetCurrentSubscription(t *testing.T) {
	uc, client := setup(t)
	ctx := context.Background()

	_, err := client.GetCurrentSubscription(ctx, "team", 5)
	assert.Equal(t, codes.NotFound, status.Code(err))

	sub, _, err := uc.Subscribe(ctx, entities.KindTeam, 5, 1)
	require.NoError(t, err)

	current, err := client.GetCurrentSubscription(ctx, "team", 5)
	require.NoError(t, err)
	assert.Equal(t, sub.ID.String(), current.ID)
	assert.EqualValues(t, 1, current.TargetID)
}

func TestInvalidArguments(t *testing.T) {
	_, client := setup(t)
	ctx := context.Background()

	_, err := client.CountSubscribers(ctx, "coach", 7)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.IsSubscribed(ctx, "player", 0, 7)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
