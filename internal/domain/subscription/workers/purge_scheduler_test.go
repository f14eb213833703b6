package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanplatform/subscription-service/internal/domain/subscription/entities"
)

type stubPurger struct {
	calls    atomic.Int32
	err      error
	deadline atomic.Bool
}

func (p *stubPurger) Purge(ctx context.Context) (entities.PurgeReport, error) {
	p.calls.Add(1)
	_, ok := ctx.Deadline()
	p.deadline.Store(ok)
	return entities.PurgeReport{
		Cutoff:  time.Now().Add(-72 * time.Hour),
		Deleted: map[entities.Kind]int64{entities.KindPlayer: 2, entities.KindTeam: 1},
	}, p.err
}

func TestNewPurgeScheduler_RejectsBadSchedule(t *testing.T) {
	_, err := NewPurgeScheduler(&stubPurger{}, "every midnight", zerolog.Nop())
	assert.Error(t, err)
}

func TestRunOnce(t *testing.T) {
	purger := &stubPurger{}
	s, err := NewPurgeScheduler(purger, "0 0 * * *", zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.EqualValues(t, 1, purger.calls.Load())
	assert.True(t, purger.deadline.Load(), "sweeps are bounded by a timeout")

	purger.err = errors.New("db down")
	assert.ErrorContains(t, s.RunOnce(context.Background()), "db down")
}

func TestStartStop(t *testing.T) {
	purger := &stubPurger{}
	s, err := NewPurgeScheduler(purger, "0 0 * * *", zerolog.Nop())
	require.NoError(t, err)

	s.Start()
	entry := s.cron.Entry(s.entryID)
	assert.True(t, entry.Next.After(time.Now()))

	s.Stop()
	assert.ErrorIs(t, s.ctx.Err(), context.Canceled)
	assert.Zero(t, purger.calls.Load())
}

func TestTickRunsPurge(t *testing.T) {
	purger := &stubPurger{}
	s, err := NewPurgeScheduler(purger, "@every 1h", zerolog.Nop())
	require.NoError(t, err)

	s.cron.Entry(s.entryID).Job.Run()
	assert.EqualValues(t, 1, purger.calls.Load())
}
