package business

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/fanplatform/subscription-service/internal/domain/subscription/deps"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/entities"
	suberrors "github.com/fanplatform/subscription-service/internal/domain/subscription/errors"
	"github.com/fanplatform/subscription-service/internal/infrastructure/metrics"
)

type UseCase struct {
	repo     deps.SubscriptionRepository
	clock    clockwork.Clock
	cooldown time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewUseCase(
	repo deps.SubscriptionRepository,
	clock clockwork.Clock,
	cooldown time.Duration,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *UseCase {
	return &UseCase{
		repo:     repo,
		clock:    clock,
		cooldown: cooldown,
		metrics:  m,
		logger:   logger,
	}
}

var _ deps.SubscriptionUseCase = (*UseCase)(nil)

func (u *UseCase) Cooldown() time.Duration {
	return u.cooldown
}

// Subscribe ensures the pair is active. It creates the row on first call, returns the active row
// unchanged when there is one, and restores a deleted row once the cooldown has elapsed.
// created is true only when a new row was inserted.
func (u *UseCase) Subscribe(ctx context.Context, kind entities.Kind, userID, targetID int64) (*entities.Subscription, bool, error) {
	defer u.metrics.ObserveSince("subscribe", time.Now())

	if err := validate(kind, userID, targetID); err != nil {
		return nil, false, err
	}

	var (
		result  *entities.Subscription
		outcome string
	)

	err := u.repo.WithinTx(ctx, func(ctx context.Context, tx deps.SubscriptionRepository) error {
		existing, err := tx.LockPair(ctx, kind, userID, targetID)
		if err != nil && !errors.Is(err, suberrors.ErrSubscriptionNotFound) {
			return err
		}

		if existing == nil {
			sub, err := u.create(ctx, tx, kind, userID, targetID)
			if err != nil {
				return err
			}
			if sub != nil {
				result, outcome = sub, metrics.OutcomeCreated
				return nil
			}

			// a concurrent call inserted the row first; its lock is released once it commits
			existing, err = tx.LockPair(ctx, kind, userID, targetID)
			if err != nil {
				return err
			}
		}

		if existing.IsActive() {
			result, outcome = existing, metrics.OutcomeNoop
			return nil
		}

		if err := existing.Restore(u.clock.Now(), u.cooldown); err != nil {
			return err
		}
		if err := u.ensureNoOtherActive(ctx, tx, kind, userID, targetID); err != nil {
			return err
		}
		if err := tx.Update(ctx, existing); err != nil {
			return err
		}

		result, outcome = existing, metrics.OutcomeRestored
		return nil
	})

	log := u.logger.With().
		Str("kind", string(kind)).
		Int64("user_id", userID).
		Int64("target_id", targetID).
		Logger()

	if err != nil {
		u.metrics.RecordSubscribe(string(kind), subscribeOutcome(err))

		if remaining, ok := suberrors.RemainingCooldown(err); ok {
			log.Info().Dur("retry_after", remaining).Msg("resubscribe rejected during cooldown")
		} else if errors.Is(err, suberrors.ErrStorage) {
			log.Error().Err(err).Msg("failed to subscribe")
		} else {
			log.Info().Err(err).Msg("subscribe rejected")
		}
		return nil, false, err
	}

	u.metrics.RecordSubscribe(string(kind), outcome)
	log.Info().
		Str("subscription_id", result.ID.String()).
		Str("outcome", outcome).
		Msg("subscription ensured")

	return result, outcome == metrics.OutcomeCreated, nil
}

// create inserts a new active row. A nil subscription with a nil error means another
// transaction inserted the pair first.
func (u *UseCase) create(ctx context.Context, tx deps.SubscriptionRepository, kind entities.Kind, userID, targetID int64) (*entities.Subscription, error) {
	if err := u.ensureNoOtherActive(ctx, tx, kind, userID, targetID); err != nil {
		return nil, err
	}

	sub := entities.New(kind, userID, targetID, u.clock.Now())
	inserted, err := tx.InsertIfAbsent(ctx, sub)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, nil
	}
	return sub, nil
}

func (u *UseCase) ensureNoOtherActive(ctx context.Context, tx deps.SubscriptionRepository, kind entities.Kind, userID, targetID int64) error {
	if !kind.SingleActivePerUser() {
		return nil
	}

	other, err := tx.FindActiveElsewhere(ctx, kind, userID, targetID)
	if errors.Is(err, suberrors.ErrSubscriptionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	u.logger.Debug().
		Str("kind", string(kind)).
		Int64("user_id", userID).
		Int64("active_target_id", other.TargetID).
		Msg("user already holds an active subscription of this kind")
	return suberrors.ErrActiveTargetExists
}

// Unsubscribe soft-deletes the active row of the pair
func (u *UseCase) Unsubscribe(ctx context.Context, kind entities.Kind, userID, targetID int64) error {
	defer u.metrics.ObserveSince("unsubscribe", time.Now())

	if err := validate(kind, userID, targetID); err != nil {
		return err
	}

	var subID string
	err := u.repo.WithinTx(ctx, func(ctx context.Context, tx deps.SubscriptionRepository) error {
		sub, err := tx.LockPair(ctx, kind, userID, targetID)
		if err != nil {
			return err
		}
		if err := sub.MarkDeleted(u.clock.Now()); err != nil {
			return err
		}
		subID = sub.ID.String()
		return tx.Update(ctx, sub)
	})

	log := u.logger.With().
		Str("kind", string(kind)).
		Int64("user_id", userID).
		Int64("target_id", targetID).
		Logger()

	switch {
	case err == nil:
		u.metrics.RecordUnsubscribe(string(kind), metrics.OutcomeDeleted)
		log.Info().Str("subscription_id", subID).Msg("subscription deleted")
		return nil
	case errors.Is(err, suberrors.ErrSubscriptionNotFound):
		u.metrics.RecordUnsubscribe(string(kind), metrics.OutcomeNotFound)
		log.Info().Msg("no active subscription to delete")
	default:
		u.metrics.RecordUnsubscribe(string(kind), metrics.OutcomeError)
		log.Error().Err(err).Msg("failed to unsubscribe")
	}
	return err
}

func (u *UseCase) Count(ctx context.Context, kind entities.Kind, targetID int64) (int64, error) {
	if err := validateKind(kind); err != nil {
		return 0, err
	}
	if targetID <= 0 {
		return 0, suberrors.ErrInvalidTargetID
	}

	count, err := u.repo.CountActive(ctx, kind, targetID)
	if err != nil {
		u.logger.Error().Err(err).
			Str("kind", string(kind)).
			Int64("target_id", targetID).
			Msg("failed to count subscribers")
		return 0, err
	}
	return count, nil
}

// GetCurrent returns the most recently activated subscription of the user
func (u *UseCase) GetCurrent(ctx context.Context, kind entities.Kind, userID int64) (*entities.Subscription, error) {
	if err := validateKind(kind); err != nil {
		return nil, err
	}
	if userID <= 0 {
		return nil, suberrors.ErrInvalidUserID
	}

	sub, err := u.repo.FindCurrent(ctx, kind, userID)
	if err != nil && !errors.Is(err, suberrors.ErrSubscriptionNotFound) {
		u.logger.Error().Err(err).
			Str("kind", string(kind)).
			Int64("user_id", userID).
			Msg("failed to get current subscription")
	}
	return sub, err
}

// GetSubscription returns the row of the pair whatever its state
func (u *UseCase) GetSubscription(ctx context.Context, kind entities.Kind, userID, targetID int64) (*entities.Subscription, error) {
	if err := validate(kind, userID, targetID); err != nil {
		return nil, err
	}
	return u.repo.FindAny(ctx, kind, userID, targetID)
}

func (u *UseCase) IsSubscribed(ctx context.Context, kind entities.Kind, userID, targetID int64) (bool, error) {
	if err := validate(kind, userID, targetID); err != nil {
		return false, err
	}

	_, err := u.repo.FindActive(ctx, kind, userID, targetID)
	if errors.Is(err, suberrors.ErrSubscriptionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (u *UseCase) ListUserSubscriptions(ctx context.Context, kind entities.Kind, userID int64) ([]entities.Subscription, error) {
	if err := validateKind(kind); err != nil {
		return nil, err
	}
	if userID <= 0 {
		return nil, suberrors.ErrInvalidUserID
	}

	subs, err := u.repo.ListActiveByUser(ctx, kind, userID)
	if err != nil {
		u.logger.Error().Err(err).
			Str("kind", string(kind)).
			Int64("user_id", userID).
			Msg("failed to list user subscriptions")
		return nil, err
	}
	return subs, nil
}

func validate(kind entities.Kind, userID, targetID int64) error {
	if err := validateKind(kind); err != nil {
		return err
	}
	if userID <= 0 {
		return suberrors.ErrInvalidUserID
	}
	if targetID <= 0 {
		return suberrors.ErrInvalidTargetID
	}
	return nil
}

func validateKind(kind entities.Kind) error {
	_, err := entities.ParseKind(string(kind))
	return err
}

func subscribeOutcome(err error) string {
	switch {
	case errors.Is(err, suberrors.ErrResubscribeTooSoon):
		return metrics.OutcomeCooldown
	case errors.Is(err, suberrors.ErrActiveTargetExists):
		return metrics.OutcomeConflict
	case errors.Is(err, suberrors.ErrTargetNotFound):
		return metrics.OutcomeTargetNotFound
	default:
		return metrics.OutcomeError
	}
}
