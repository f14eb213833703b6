package postgres

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"gorm.io/gorm"

	"github.com/fanplatform/subscription-service/internal/domain/subscription/deps"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/entities"
	suberrors "github.com/fanplatform/subscription-service/internal/domain/subscription/errors"
)

type targetKey struct {
	kind entities.Kind
	id   int64
}

// Directory checks players and teams against the tables the directory service owns.
// Only hits are cached: a target created a moment ago must not stay unknown for a whole TTL.
type Directory struct {
	db    *gorm.DB
	known *expirable.LRU[targetKey, struct{}]
}

func NewDirectory(db *gorm.DB, cacheSize int, ttl time.Duration) *Directory {
	return &Directory{
		db:    db,
		known: expirable.NewLRU[targetKey, struct{}](cacheSize, nil, ttl),
	}
}

var _ deps.TargetDirectory = (*Directory)(nil)

func (d *Directory) Exists(ctx context.Context, kind entities.Kind, targetID int64) (bool, error) {
	key := targetKey{kind: kind, id: targetID}
	if _, ok := d.known.Get(key); ok {
		return true, nil
	}

	var found int64
	err := d.db.WithContext(ctx).
		Table(kind.DirectoryTable()).
		Where("id = ?", targetID).
		Count(&found).Error
	if err != nil {
		return false, suberrors.NewStorageError("lookup "+kind.DirectoryTable(), err)
	}

	if found == 0 {
		return false, nil
	}

	d.known.Add(key, struct{}{})
	return true, nil
}
