package deps

import (
	"context"
	"time"

	"github.com/fanplatform/subscription-service/internal/domain/subscription/dto"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/entities"
)

// SubscriptionRepository is the persistence port of the subscription lifecycle.
// Lookups return suberrors.ErrSubscriptionNotFound when no row matches and wrap every
// other failure in *suberrors.StorageError.
type SubscriptionRepository interface {
	// WithinTx runs fn in one transaction. fn must use the repository it receives.
	// An error from fn, or a cancelled ctx, rolls everything back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx SubscriptionRepository) error) error

	// LockPair loads the row of a pair whatever its state and locks it until the transaction ends
	LockPair(ctx context.Context, kind entities.Kind, userID, targetID int64) (*entities.Subscription, error)

	// InsertIfAbsent inserts sub unless the pair already has a row. Returns false when it lost the race.
	InsertIfAbsent(ctx context.Context, sub *entities.Subscription) (bool, error)

	// Update persists state, deleted_at and updated_at of an existing row
	Update(ctx context.Context, sub *entities.Subscription) error

	FindActive(ctx context.Context, kind entities.Kind, userID, targetID int64) (*entities.Subscription, error)
	FindAny(ctx context.Context, kind entities.Kind, userID, targetID int64) (*entities.Subscription, error)

	// FindCurrent returns the most recently activated active row of the user
	FindCurrent(ctx context.Context, kind entities.Kind, userID int64) (*entities.Subscription, error)

	// FindActiveElsewhere returns an active row of the user on any target other than targetID
	FindActiveElsewhere(ctx context.Context, kind entities.Kind, userID, targetID int64) (*entities.Subscription, error)

	ListActiveByUser(ctx context.Context, kind entities.Kind, userID int64) ([]entities.Subscription, error)
	CountActive(ctx context.Context, kind entities.Kind, targetID int64) (int64, error)

	// PurgeDeleted hard-deletes at most limit deleted rows with deleted_at <= cutoff
	PurgeDeleted(ctx context.Context, kind entities.Kind, cutoff time.Time, limit int) (int64, error)
}

// TargetDirectory answers whether a player or team exists
type TargetDirectory interface {
	Exists(ctx context.Context, kind entities.Kind, targetID int64) (bool, error)
}

// ResultPublisher replies to commands received over Kafka
type ResultPublisher interface {
	PublishResult(ctx context.Context, result *dto.CommandResult) error
}

type SubscriptionUseCase interface {
	Subscribe(ctx context.Context, kind entities.Kind, userID, targetID int64) (*entities.Subscription, bool, error)
	Unsubscribe(ctx context.Context, kind entities.Kind, userID, targetID int64) error
	Count(ctx context.Context, kind entities.Kind, targetID int64) (int64, error)
	GetCurrent(ctx context.Context, kind entities.Kind, userID int64) (*entities.Subscription, error)

	GetSubscription(ctx context.Context, kind entities.Kind, userID, targetID int64) (*entities.Subscription, error)
	IsSubscribed(ctx context.Context, kind entities.Kind, userID, targetID int64) (bool, error)
	ListUserSubscriptions(ctx context.Context, kind entities.Kind, userID int64) ([]entities.Subscription, error)
	Cooldown() time.Duration
}

type PurgeUseCase interface {
	Purge(ctx context.Context) (entities.PurgeReport, error)
}
