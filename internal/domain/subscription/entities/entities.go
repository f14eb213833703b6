package entities

import (
	"time"

	"github.com/google/uuid"

	suberrors "github.com/fanplatform/subscription-service/internal/domain/subscription/errors"
)

// Kind is the subscribable entity kind. Each kind has its own table.
type Kind string

const (
	KindPlayer Kind = "player"
	KindTeam   Kind = "team"
)

// Kinds lists every kind the retention sweep walks over
var Kinds = []Kind{KindPlayer, KindTeam}

// ParseKind validates a kind coming from a transport
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindPlayer, KindTeam:
		return Kind(raw), nil
	default:
		return "", suberrors.ErrUnknownKind
	}
}

// Table returns the subscription table for the kind
func (k Kind) Table() string {
	return string(k) + "_subscription"
}

// DirectoryTable returns the table owned by the player/team directory
func (k Kind) DirectoryTable() string {
	return string(k) + "s"
}

// SingleActivePerUser reports whether a user may hold only one active subscription of this kind.
// Teams are exclusive (a fan supports one team), players are not.
func (k Kind) SingleActivePerUser() bool {
	return k == KindTeam
}

// State is the soft-delete state of a subscription row
type State string

const (
	StateActive  State = "active"
	StateDeleted State = "deleted"
)

// Subscription is one logical row per (user, target) pair
type Subscription struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Kind      Kind       `gorm:"-"`
	UserID    int64      `gorm:"not null"`
	TargetID  int64      `gorm:"not null"`
	State     State      `gorm:"type:varchar(16);not null"`
	DeletedAt *time.Time `gorm:"column:deleted_at"`
	CreatedAt time.Time  `gorm:"not null"`
	UpdatedAt time.Time  `gorm:"not null"`
}

// New creates an active subscription for a pair that has no row yet
func New(kind Kind, userID, targetID int64, now time.Time) *Subscription {
	return &Subscription{
		ID:        uuid.New(),
		Kind:      kind,
		UserID:    userID,
		TargetID:  targetID,
		State:     StateActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive reports whether the subscription is active
func (s *Subscription) IsActive() bool {
	return s.State == StateActive
}

// MarkDeleted soft-deletes an active subscription
func (s *Subscription) MarkDeleted(now time.Time) error {
	if s.State != StateActive {
		return suberrors.ErrSubscriptionNotFound
	}
	deletedAt := now
	s.State = StateDeleted
	s.DeletedAt = &deletedAt
	s.UpdatedAt = now
	return nil
}

// CooldownRemaining returns how long the user still has to wait before the row can be restored.
// Zero means restorable now.
func (s *Subscription) CooldownRemaining(now time.Time, cooldown time.Duration) time.Duration {
	if s.State != StateDeleted || s.DeletedAt == nil {
		return 0
	}
	remaining := cooldown - now.Sub(*s.DeletedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ResubscribeAvailableAt is the earliest instant a deleted row can be restored
func (s *Subscription) ResubscribeAvailableAt(cooldown time.Duration) *time.Time {
	if s.State != StateDeleted || s.DeletedAt == nil {
		return nil
	}
	at := s.DeletedAt.Add(cooldown)
	return &at
}

// Restore reactivates a deleted row in place. ID and CreatedAt are kept.
func (s *Subscription) Restore(now time.Time, cooldown time.Duration) error {
	if s.State != StateDeleted {
		return nil
	}
	if remaining := s.CooldownRemaining(now, cooldown); remaining > 0 {
		return &suberrors.CooldownError{Remaining: remaining}
	}
	s.State = StateActive
	s.DeletedAt = nil
	s.UpdatedAt = now
	return nil
}

// PurgeReport holds the per-kind result of one retention sweep
type PurgeReport struct {
	Cutoff  time.Time
	Deleted map[Kind]int64
}

// Total returns the number of rows removed across kinds
func (r PurgeReport) Total() int64 {
	var total int64
	for _, n := range r.Deleted {
		total += n
	}
	return total
}
