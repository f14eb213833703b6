package business

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/fanplatform/subscription-service/internal/domain/subscription/deps"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/entities"
	"github.com/fanplatform/subscription-service/internal/infrastructure/metrics"
)

// Purger hard-deletes soft-deleted rows older than the retention threshold
type Purger struct {
	repo      deps.SubscriptionRepository
	clock     clockwork.Clock
	retention time.Duration
	batchSize int
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewPurger(
	repo deps.SubscriptionRepository,
	clock clockwork.Clock,
	retention time.Duration,
	batchSize int,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Purger {
	return &Purger{
		repo:      repo,
		clock:     clock,
		retention: retention,
		batchSize: batchSize,
		metrics:   m,
		logger:    logger,
	}
}

var _ deps.PurgeUseCase = (*Purger)(nil)

// Purge walks every kind batch by batch until a batch comes back short. The report holds what was
// removed up to the first error.
func (p *Purger) Purge(ctx context.Context) (entities.PurgeReport, error) {
	defer p.metrics.ObserveSince("purge", time.Now())

	report := entities.PurgeReport{
		Cutoff:  p.clock.Now().Add(-p.retention),
		Deleted: make(map[entities.Kind]int64, len(entities.Kinds)),
	}

	for _, kind := range entities.Kinds {
		for {
			if err := ctx.Err(); err != nil {
				p.metrics.RecordPurgeRun("cancelled")
				return report, err
			}

			n, err := p.repo.PurgeDeleted(ctx, kind, report.Cutoff, p.batchSize)
			report.Deleted[kind] += n
			p.metrics.RecordPurged(string(kind), n)

			if err != nil {
				p.metrics.RecordPurgeRun("error")
				p.logger.Error().Err(err).
					Str("kind", string(kind)).
					Int64("deleted", report.Deleted[kind]).
					Msg("retention sweep failed")
				return report, err
			}

			if n < int64(p.batchSize) {
				break
			}
		}

		p.logger.Info().
			Str("kind", string(kind)).
			Int64("deleted", report.Deleted[kind]).
			Time("cutoff", report.Cutoff).
			Msg("purged soft-deleted subscriptions")
	}

	p.metrics.RecordPurgeRun("success")
	return report, nil
}
