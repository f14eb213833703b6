package business

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/fanplatform/subscription-service/internal/domain/subscription/deps"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/entities"
	suberrors "github.com/fanplatform/subscription-service/internal/domain/subscription/errors"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/repository/memory"
	"github.com/fanplatform/subscription-service/internal/infrastructure/metrics"
)

const (
	userID   int64 = 42
	playerID int64 = 7
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	uc      *UseCase
	repo    *memory.Repository
	clock   *clockwork.FakeClock
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := memory.NewRepository()
	clock := clockwork.NewFakeClockAt(epoch)
	m := metrics.NewNop()

	return &fixture{
		uc:      NewUseCase(repo, clock, 24*time.Hour, m, zerolog.Nop()),
		repo:    repo,
		clock:   clock,
		metrics: m,
	}
}

func TestSubscribe_CreatesThenIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, created, err := f.uc.Subscribe(ctx, entities.KindPlayer, userID, playerID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, entities.StateActive, first.State)
	assert.Nil(t, first.DeletedAt)

	f.clock.Advance(time.Minute)

	second, created, err := f.uc.Subscribe(ctx, entities.KindPlayer, userID, playerID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)

	assert.Equal(t, 1, f.repo.Len(entities.KindPlayer))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SubscribeTotal.WithLabelValues("player", metrics.OutcomeCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SubscribeTotal.WithLabelValues("player", metrics.OutcomeNoop)))
}

func TestSubscribe_CooldownBoundaries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	original, _, err := f.uc.Subscribe(ctx, entities.KindPlayer, userID, playerID)
	require.NoError(t, err)
	require.NoError(t, f.uc.Unsubscribe(ctx, entities.KindPlayer, userID, playerID))

	f.clock.Advance(23*time.Hour + 59*time.Minute)

	_, _, err = f.uc.Subscribe(ctx, entities.KindPlayer, userID, playerID)
	require.ErrorIs(t, err, suberrors.ErrResubscribeTooSoon)
	remaining, ok := suberrors.RemainingCooldown(err)
	require.True(t, ok)
	assert.Equal(t, time.Minute, remaining)

	stored, err := f.uc.GetSubscription(ctx, entities.KindPlayer, userID, playerID)
	require.NoError(t, err)
	assert.Equal(t, entities.StateDeleted, stored.State, "rejected resubscribe must not touch the row")

	f.clock.Advance(2 * time.Minute)

	restored, created, err := f.uc.Subscribe(ctx, entities.KindPlayer, userID, playerID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, original.ID, restored.ID)
	assert.Equal(t, original.CreatedAt, restored.CreatedAt)
	assert.Equal(t, entities.StateActive, restored.State)
	assert.Nil(t, restored.DeletedAt)
	assert.Equal(t, f.clock.Now(), restored.UpdatedAt)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SubscribeTotal.WithLabelValues("player", metrics.OutcomeCooldown)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SubscribeTotal.WithLabelValues("player", metrics.OutcomeRestored)))
}

func TestSubscribe_RestoresAtExactCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.uc.Subscribe(ctx, entities.KindPlayer, userID, playerID)
	require.NoError(t, err)
	require.NoError(t, f.uc.Unsubscribe(ctx, entities.KindPlayer, userID, playerID))

	f.clock.Advance(24 * time.Hour)

	_, _, err = f.uc.Subscribe(ctx, entities.KindPlayer, userID, playerID)
	assert.NoError(t, err)
}

func TestSubscribe_FanScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	count := func() int64 {
		n, err := f.uc.Count(ctx, entities.KindPlayer, playerID)
		require.NoError(t, err)
		return n
	}

	original, _, err := f.uc.Subscribe(ctx, entities.KindPlayer, userID, playerID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count())

	require.NoError(t, f.uc.Unsubscribe(ctx, entities.KindPlayer, userID, playerID))
	assert.EqualValues(t, 0, count())

	f.clock.Advance(time.Hour)
	_, _, err = f.uc.Subscribe(ctx, entities.KindPlayer, userID, playerID)
	require.ErrorIs(t, err, suberrors.ErrResubscribeTooSoon)
	assert.EqualValues(t, 0, count())

	f.clock.Advance(24 * time.Hour)
	restored, _, err := f.uc.Subscribe(ctx, entities.KindPlayer, userID, playerID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count())
	assert.Equal(t, original.ID, restored.ID)
	assert.Equal(t, 1, f.repo.Len(entities.KindPlayer))
}

func TestCount_OnlyActiveRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for uid := int64(1); uid <= 3; uid++ {
		_, _, err := f.uc.Subscribe(ctx, entities.KindPlayer, uid, playerID)
		require.NoError(t, err)
	}
	_, _, err := f.uc.Subscribe(ctx, entities.KindPlayer, 1, playerID+1)
	require.NoError(t, err)
	require.NoError(t, f.uc.Unsubscribe(ctx, entities.KindPlayer, 2, playerID))

	n, err := f.uc.Count(ctx, entities.KindPlayer, playerID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = f.uc.Count(ctx, entities.KindTeam, playerID)
	require.NoError(t, err)
	assert.Zero(t, n, "kinds are stored separately")
}

func TestUnsubscribe_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.uc.Unsubscribe(ctx, entities.KindPlayer, userID, playerID)
	assert.ErrorIs(t, err, suberrors.ErrSubscriptionNotFound)

	_, _, err = f.uc.Subscribe(ctx, entities.KindPlayer, userID, playerID)
	require.NoError(t, err)
	require.NoError(t, f.uc.Unsubscribe(ctx, entities.KindPlayer, userID, playerID))

	deleted, err := f.uc.GetSubscription(ctx, entities.KindPlayer, userID, playerID)
	require.NoError(t, err)
	firstDeletedAt := *deleted.DeletedAt

	f.clock.Advance(time.Hour)
	err = f.uc.Unsubscribe(ctx, entities.KindPlayer, userID, playerID)
	assert.ErrorIs(t, err, suberrors.ErrSubscriptionNotFound)

	deleted, err = f.uc.GetSubscription(ctx, entities.KindPlayer, userID, playerID)
	require.NoError(t, err)
	assert.Equal(t, firstDeletedAt, *deleted.DeletedAt, "a second unsubscribe must not move deleted_at")
}

func TestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.uc.Subscribe(ctx, entities.KindPlayer, 0, playerID)
	assert.ErrorIs(t, err, suberrors.ErrInvalidUserID)

	_, _, err = f.uc.Subscribe(ctx, entities.KindPlayer, userID, -1)
	assert.ErrorIs(t, err, suberrors.ErrInvalidTargetID)

	_, _, err = f.uc.Subscribe(ctx, entities.Kind("coach"), userID, playerID)
	assert.ErrorIs(t, err, suberrors.ErrUnknownKind)

	assert.ErrorIs(t, f.uc.Unsubscribe(ctx, entities.KindTeam, -5, 1), suberrors.ErrInvalidUserID)

	_, err = f.uc.Count(ctx, entities.KindTeam, 0)
	assert.ErrorIs(t, err, suberrors.ErrInvalidTargetID)

	_, err = f.uc.GetCurrent(ctx, entities.KindTeam, 0)
	assert.ErrorIs(t, err, suberrors.ErrInvalidUserID)
}

func TestSubscribe_TeamAllowsOneActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.uc.Subscribe(ctx, entities.KindTeam, userID, 1)
	require.NoError(t, err)

	_, _, err = f.uc.Subscribe(ctx, entities.KindTeam, userID, 2)
	require.ErrorIs(t, err, suberrors.ErrActiveTargetExists)
	assert.Equal(t, 1, f.repo.Len(entities.KindTeam))

	require.NoError(t, f.uc.Unsubscribe(ctx, entities.KindTeam, userID, 1))

	second, created, err := f.uc.Subscribe(ctx, entities.KindTeam, userID, 2)
	require.NoError(t, err)
	assert.True(t, created)

	f.clock.Advance(25 * time.Hour)
	_, _, err = f.uc.Subscribe(ctx, entities.KindTeam, userID, 1)
	require.ErrorIs(t, err, suberrors.ErrActiveTargetExists)

	old, err := f.uc.GetSubscription(ctx, entities.KindTeam, userID, 1)
	require.NoError(t, err)
	assert.Equal(t, entities.StateDeleted, old.State)

	current, err := f.uc.GetCurrent(ctx, entities.KindTeam, userID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.SubscribeTotal.WithLabelValues("team", metrics.OutcomeConflict)))
}

func TestSubscribe_PlayersAllowMany(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for target := int64(1); target <= 3; target++ {
		_, created, err := f.uc.Subscribe(ctx, entities.KindPlayer, userID, target)
		require.NoError(t, err)
		assert.True(t, created)
	}

	subs, err := f.uc.ListUserSubscriptions(ctx, entities.KindPlayer, userID)
	require.NoError(t, err)
	assert.Len(t, subs, 3)
}

func TestGetCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.GetCurrent(ctx, entities.KindPlayer, userID)
	assert.ErrorIs(t, err, suberrors.ErrSubscriptionNotFound)

	_, _, err = f.uc.Subscribe(ctx, entities.KindPlayer, userID, 1)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	latest, _, err := f.uc.Subscribe(ctx, entities.KindPlayer, userID, 2)
	require.NoError(t, err)

	current, err := f.uc.GetCurrent(ctx, entities.KindPlayer, userID)
	require.NoError(t, err)
	assert.Equal(t, latest.ID, current.ID)

	require.NoError(t, f.uc.Unsubscribe(ctx, entities.KindPlayer, userID, 2))

	current, err = f.uc.GetCurrent(ctx, entities.KindPlayer, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, current.TargetID)
}

func TestIsSubscribed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.uc.IsSubscribed(ctx, entities.KindPlayer, userID, playerID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = f.uc.Subscribe(ctx, entities.KindPlayer, userID, playerID)
	require.NoError(t, err)

	ok, err = f.uc.IsSubscribed(ctx, entities.KindPlayer, userID, playerID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.uc.Unsubscribe(ctx, entities.KindPlayer, userID, playerID))

	ok, err = f.uc.IsSubscribed(ctx, entities.KindPlayer, userID, playerID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSubscribe_ConcurrentSamePair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 32
	var created atomic.Int32

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, isNew, err := f.uc.Subscribe(ctx, entities.KindPlayer, userID, playerID)
			if isNew {
				created.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, created.Load())
	assert.Equal(t, 1, f.repo.Len(entities.KindPlayer))

	n, err := f.uc.Count(ctx, entities.KindPlayer, playerID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSubscribe_ConcurrentDifferentPairs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var g errgroup.Group
	for uid := int64(1); uid <= 20; uid++ {
		uid := uid
		g.Go(func() error {
			_, _, err := f.uc.Subscribe(ctx, entities.KindPlayer, uid, playerID)
			return err
		})
	}
	require.NoError(t, g.Wait())

	n, err := f.uc.Count(ctx, entities.KindPlayer, playerID)
	require.NoError(t, err)
	assert.EqualValues(t, 20, n)
}

func TestUnsubscribe_StorageFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.uc.Subscribe(ctx, entities.KindPlayer, userID, playerID)
	require.NoError(t, err)

	f.repo.FailNext["Update"] = errors.New("connection reset")

	err = f.uc.Unsubscribe(ctx, entities.KindPlayer, userID, playerID)
	require.ErrorIs(t, err, suberrors.ErrStorage)

	ok, err := f.uc.IsSubscribed(ctx, entities.KindPlayer, userID, playerID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.UnsubscribeTotal.WithLabelValues("player", metrics.OutcomeError)))
}

func TestSubscribe_StorageFailureOnInsert(t *testing.T) {
	f := newFixture(t)

	f.repo.FailNext["InsertIfAbsent"] = errors.New("disk full")

	_, _, err := f.uc.Subscribe(context.Background(), entities.KindPlayer, userID, playerID)
	require.ErrorIs(t, err, suberrors.ErrStorage)
	assert.Zero(t, f.repo.Len(entities.KindPlayer))
}

func TestSubscribe_CancelledContextLeavesNoRow(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := f.uc.Subscribe(ctx, entities.KindPlayer, userID, playerID)
	require.ErrorIs(t, err, suberrors.ErrStorage)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.repo.Len(entities.KindPlayer))
}

// racingRepository lets another transaction commit the pair right before InsertIfAbsent runs
type racingRepository struct {
	*memory.Repository
	winner *entities.Subscription
	raced  atomic.Bool
}

func (r *racingRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx deps.SubscriptionRepository) error) error {
	return r.Repository.WithinTx(ctx, func(ctx context.Context, _ deps.SubscriptionRepository) error {
		return fn(ctx, r)
	})
}

func (r *racingRepository) InsertIfAbsent(ctx context.Context, sub *entities.Subscription) (bool, error) {
	if r.raced.CompareAndSwap(false, true) {
		r.Put(*r.winner)
	}
	return r.Repository.InsertIfAbsent(ctx, sub)
}

func TestSubscribe_LostInsertRaceReturnsWinner(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	m := metrics.NewNop()

	repo := &racingRepository{
		Repository: memory.NewRepository(),
		winner:     entities.New(entities.KindPlayer, userID, playerID, epoch.Add(-time.Second)),
	}
	uc := NewUseCase(repo, clock, 24*time.Hour, m, zerolog.Nop())

	sub, created, err := uc.Subscribe(ctx, entities.KindPlayer, userID, playerID)
	require.NoError(t, err)
	assert.True(t, repo.raced.Load())
	assert.False(t, created)
	assert.Equal(t, repo.winner.ID, sub.ID)
	assert.Equal(t, entities.StateActive, sub.State)

	assert.Equal(t, 1, repo.Len(entities.KindPlayer))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscribeTotal.WithLabelValues("player", metrics.OutcomeNoop)))
	assert.Zero(t, testutil.ToFloat64(m.SubscribeTotal.WithLabelValues("player", metrics.OutcomeCreated)))
}

func TestSubscribe_LostInsertRaceToDeletedRowHonoursCooldown(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)

	winner := entities.New(entities.KindPlayer, userID, playerID, epoch.Add(-time.Hour))
	require.NoError(t, winner.MarkDeleted(epoch.Add(-time.Minute)))

	repo := &racingRepository{Repository: memory.NewRepository(), winner: winner}
	uc := NewUseCase(repo, clock, 24*time.Hour, metrics.NewNop(), zerolog.Nop())

	_, _, err := uc.Subscribe(ctx, entities.KindPlayer, userID, playerID)
	require.ErrorIs(t, err, suberrors.ErrResubscribeTooSoon)
	assert.True(t, repo.raced.Load())

	remaining, ok := suberrors.RemainingCooldown(err)
	require.True(t, ok)
	assert.Equal(t, 24*time.Hour-time.Minute, remaining)
}
