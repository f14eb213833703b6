package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fanplatform/subscription-service/internal/domain/subscription/deps"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/entities"
	suberrors "github.com/fanplatform/subscription-service/internal/domain/subscription/errors"
)

type pairKey struct {
	kind     entities.Kind
	userID   int64
	targetID int64
}

// Repository is an in-memory SubscriptionRepository. Transactions are serialized with a single
// lock and roll back by restoring a snapshot, which is enough to exercise the lifecycle rules
// without a database.
type Repository struct {
	txMu sync.Mutex

	mu   sync.RWMutex
	rows map[pairKey]entities.Subscription

	// FailNext makes the next call of the named method return a storage error
	FailNext map[string]error
}

func NewRepository() *Repository {
	return &Repository{
		rows:     make(map[pairKey]entities.Subscription),
		FailNext: make(map[string]error),
	}
}

var _ deps.SubscriptionRepository = (*Repository)(nil)

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx deps.SubscriptionRepository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return suberrors.NewStorageError("begin", err)
	}

	snapshot := r.snapshot()

	if err := fn(ctx, r); err != nil {
		r.restore(snapshot)
		return err
	}

	// a cancelled caller must not observe a committed transition
	if err := ctx.Err(); err != nil {
		r.restore(snapshot)
		return suberrors.NewStorageError("commit", err)
	}

	return nil
}

func (r *Repository) LockPair(ctx context.Context, kind entities.Kind, userID, targetID int64) (*entities.Subscription, error) {
	if err := r.fail("LockPair"); err != nil {
		return nil, err
	}
	return r.get(pairKey{kind, userID, targetID}, nil)
}

func (r *Repository) InsertIfAbsent(ctx context.Context, sub *entities.Subscription) (bool, error) {
	if err := r.fail("InsertIfAbsent"); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey{sub.Kind, sub.UserID, sub.TargetID}
	if _, ok := r.rows[key]; ok {
		return false, nil
	}
	if sub.Kind.SingleActivePerUser() && sub.IsActive() && r.hasOtherActiveLocked(key) {
		return false, suberrors.ErrActiveTargetExists
	}

	r.rows[key] = *sub
	return true, nil
}

func (r *Repository) Update(ctx context.Context, sub *entities.Subscription) error {
	if err := r.fail("Update"); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey{sub.Kind, sub.UserID, sub.TargetID}
	existing, ok := r.rows[key]
	if !ok || existing.ID != sub.ID {
		return suberrors.ErrSubscriptionNotFound
	}
	if sub.Kind.SingleActivePerUser() && sub.IsActive() && r.hasOtherActiveLocked(key) {
		return suberrors.ErrActiveTargetExists
	}

	existing.State = sub.State
	existing.DeletedAt = copyTime(sub.DeletedAt)
	existing.UpdatedAt = sub.UpdatedAt
	r.rows[key] = existing
	return nil
}

func (r *Repository) FindActive(ctx context.Context, kind entities.Kind, userID, targetID int64) (*entities.Subscription, error) {
	return r.get(pairKey{kind, userID, targetID}, func(s entities.Subscription) bool { return s.IsActive() })
}

func (r *Repository) FindAny(ctx context.Context, kind entities.Kind, userID, targetID int64) (*entities.Subscription, error) {
	return r.get(pairKey{kind, userID, targetID}, nil)
}

func (r *Repository) FindCurrent(ctx context.Context, kind entities.Kind, userID int64) (*entities.Subscription, error) {
	if err := r.fail("FindCurrent"); err != nil {
		return nil, err
	}

	subs := r.activeOf(kind, userID)
	if len(subs) == 0 {
		return nil, suberrors.ErrSubscriptionNotFound
	}

	sort.Slice(subs, func(i, j int) bool { return subs[i].UpdatedAt.After(subs[j].UpdatedAt) })
	return &subs[0], nil
}

func (r *Repository) FindActiveElsewhere(ctx context.Context, kind entities.Kind, userID, targetID int64) (*entities.Subscription, error) {
	for _, s := range r.activeOf(kind, userID) {
		if s.TargetID != targetID {
			return &s, nil
		}
	}
	return nil, suberrors.ErrSubscriptionNotFound
}

func (r *Repository) ListActiveByUser(ctx context.Context, kind entities.Kind, userID int64) ([]entities.Subscription, error) {
	if err := r.fail("ListActiveByUser"); err != nil {
		return nil, err
	}

	subs := r.activeOf(kind, userID)
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.After(subs[j].CreatedAt) })
	return subs, nil
}

func (r *Repository) CountActive(ctx context.Context, kind entities.Kind, targetID int64) (int64, error) {
	if err := r.fail("CountActive"); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for key, s := range r.rows {
		if key.kind == kind && key.targetID == targetID && s.IsActive() {
			count++
		}
	}
	return count, nil
}

func (r *Repository) PurgeDeleted(ctx context.Context, kind entities.Kind, cutoff time.Time, limit int) (int64, error) {
	if err := r.fail("PurgeDeleted"); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for key, s := range r.rows {
		if deleted >= int64(limit) {
			break
		}
		if key.kind == kind && s.State == entities.StateDeleted && s.DeletedAt != nil && !s.DeletedAt.After(cutoff) {
			delete(r.rows, key)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of stored rows of a kind whatever their state
func (r *Repository) Len(kind entities.Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for key := range r.rows {
		if key.kind == kind {
			n++
		}
	}
	return n
}

// Put stores a row as is, bypassing the lifecycle rules
func (r *Repository) Put(sub entities.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[pairKey{sub.Kind, sub.UserID, sub.TargetID}] = sub
}

func (r *Repository) get(key pairKey, match func(entities.Subscription) bool) (*entities.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.rows[key]
	if !ok || (match != nil && !match(s)) {
		return nil, suberrors.ErrSubscriptionNotFound
	}
	s.DeletedAt = copyTime(s.DeletedAt)
	return &s, nil
}

func (r *Repository) activeOf(kind entities.Kind, userID int64) []entities.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var subs []entities.Subscription
	for key, s := range r.rows {
		if key.kind == kind && key.userID == userID && s.IsActive() {
			subs = append(subs, s)
		}
	}
	return subs
}

func (r *Repository) hasOtherActiveLocked(key pairKey) bool {
	for k, s := range r.rows {
		if k.kind == key.kind && k.userID == key.userID && k.targetID != key.targetID && s.IsActive() {
			return true
		}
	}
	return false
}

func (r *Repository) fail(method string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.FailNext[method]; ok {
		delete(r.FailNext, method)
		return suberrors.NewStorageError(method, err)
	}
	return nil
}

func (r *Repository) snapshot() map[pairKey]entities.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[pairKey]entities.Subscription, len(r.rows))
	for k, v := range r.rows {
		v.DeletedAt = copyTime(v.DeletedAt)
		snap[k] = v
	}
	return snap
}

func (r *Repository) restore(snap map[pairKey]entities.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = snap
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
