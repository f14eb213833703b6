package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fanplatform/subscription-service/internal/domain/subscription/deps"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/entities"
	suberrors "github.com/fanplatform/subscription-service/internal/domain/subscription/errors"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ deps.SubscriptionRepository = (*Repository)(nil)

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx deps.SubscriptionRepository) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &Repository{db: tx})
	})
	if err == nil {
		return nil
	}
	if isDomainError(err) {
		return err
	}
	return suberrors.NewStorageError("transaction", err)
}

func (r *Repository) LockPair(ctx context.Context, kind entities.Kind, userID, targetID int64) (*entities.Subscription, error) {
	var sub entities.Subscription
	err := r.db.WithContext(ctx).
		Table(kind.Table()).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND target_id = ?", userID, targetID).
		Take(&sub).Error
	return withKind(&sub, kind, "lock pair", err)
}

func (r *Repository) InsertIfAbsent(ctx context.Context, sub *entities.Subscription) (bool, error) {
	result := r.db.WithContext(ctx).
		Table(sub.Kind.Table()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "target_id"}},
			DoNothing: true,
		}).
		Create(sub)

	if result.Error != nil {
		// the pair conflict is absorbed by ON CONFLICT; any other unique violation is the
		// one-active-per-user index
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return false, suberrors.ErrActiveTargetExists
		}
		return false, suberrors.NewStorageError("insert subscription", result.Error)
	}

	return result.RowsAffected == 1, nil
}

func (r *Repository) Update(ctx context.Context, sub *entities.Subscription) error {
	result := r.db.WithContext(ctx).
		Table(sub.Kind.Table()).
		Where("id = ?", sub.ID).
		Updates(map[string]any{
			"state":      sub.State,
			"deleted_at": sub.DeletedAt,
			"updated_at": sub.UpdatedAt,
		})

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return suberrors.ErrActiveTargetExists
		}
		return suberrors.NewStorageError("update subscription", result.Error)
	}

	if result.RowsAffected == 0 {
		return suberrors.ErrSubscriptionNotFound
	}

	return nil
}

func (r *Repository) FindActive(ctx context.Context, kind entities.Kind, userID, targetID int64) (*entities.Subscription, error) {
	var sub entities.Subscription
	err := r.db.WithContext(ctx).
		Table(kind.Table()).
		Where("user_id = ? AND target_id = ? AND state = ?", userID, targetID, entities.StateActive).
		Take(&sub).Error
	return withKind(&sub, kind, "find active", err)
}

func (r *Repository) FindAny(ctx context.Context, kind entities.Kind, userID, targetID int64) (*entities.Subscription, error) {
	var sub entities.Subscription
	err := r.db.WithContext(ctx).
		Table(kind.Table()).
		Where("user_id = ? AND target_id = ?", userID, targetID).
		Take(&sub).Error
	return withKind(&sub, kind, "find any", err)
}

func (r *Repository) FindCurrent(ctx context.Context, kind entities.Kind, userID int64) (*entities.Subscription, error) {
	var sub entities.Subscription
	err := r.db.WithContext(ctx).
		Table(kind.Table()).
		Where("user_id = ? AND state = ?", userID, entities.StateActive).
		Order("updated_at DESC").
		Take(&sub).Error
	return withKind(&sub, kind, "find current", err)
}

func (r *Repository) FindActiveElsewhere(ctx context.Context, kind entities.Kind, userID, targetID int64) (*entities.Subscription, error) {
	var sub entities.Subscription
	err := r.db.WithContext(ctx).
		Table(kind.Table()).
		Where("user_id = ? AND target_id <> ? AND state = ?", userID, targetID, entities.StateActive).
		Take(&sub).Error
	return withKind(&sub, kind, "find active elsewhere", err)
}

func (r *Repository) ListActiveByUser(ctx context.Context, kind entities.Kind, userID int64) ([]entities.Subscription, error) {
	var subs []entities.Subscription
	err := r.db.WithContext(ctx).
		Table(kind.Table()).
		Where("user_id = ? AND state = ?", userID, entities.StateActive).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, suberrors.NewStorageError("list active", err)
	}

	for i := range subs {
		subs[i].Kind = kind
	}
	return subs, nil
}

func (r *Repository) CountActive(ctx context.Context, kind entities.Kind, targetID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table(kind.Table()).
		Where("target_id = ? AND state = ?", targetID, entities.StateActive).
		Count(&count).Error
	if err != nil {
		return 0, suberrors.NewStorageError("count active", err)
	}
	return count, nil
}

// PurgeDeleted removes one batch. Rows locked by live Subscribe calls are skipped and picked up
// by a later run.
func (r *Repository) PurgeDeleted(ctx context.Context, kind entities.Kind, cutoff time.Time, limit int) (int64, error) {
	table := kind.Table()
	query := fmt.Sprintf(
		`DELETE FROM %[1]s WHERE id IN (
			SELECT id FROM %[1]s
			WHERE state = ? AND deleted_at <= ?
			ORDER BY deleted_at
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)`, table)

	result := r.db.WithContext(ctx).Exec(query, entities.StateDeleted, cutoff, limit)
	if result.Error != nil {
		return 0, suberrors.NewStorageError("purge "+table, result.Error)
	}
	return result.RowsAffected, nil
}

func withKind(sub *entities.Subscription, kind entities.Kind, op string, err error) (*entities.Subscription, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, suberrors.ErrSubscriptionNotFound
		}
		return nil, suberrors.NewStorageError(op, err)
	}
	sub.Kind = kind
	return sub, nil
}

func isDomainError(err error) bool {
	return errors.Is(err, suberrors.ErrResubscribeTooSoon) ||
		errors.Is(err, suberrors.ErrStorage) ||
		errors.Is(err, suberrors.ErrSubscriptionNotFound) ||
		errors.Is(err, suberrors.ErrActiveTargetExists) ||
		errors.Is(err, suberrors.ErrTargetNotFound) ||
		errors.Is(err, suberrors.ErrInvalidUserID) ||
		errors.Is(err, suberrors.ErrInvalidTargetID)
}
