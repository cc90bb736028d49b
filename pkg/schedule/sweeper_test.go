package schedule

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ledgerlock/pkg/errs"
	"github.com/platinummonkey/ledgerlock/pkg/observability"
)

type fakeSweeper struct {
	calls   int
	removed int
	err     error
}

func (f *fakeSweeper) SweepExpired(ctx context.Context) (int, error) {
	f.calls++
	return f.removed, f.err
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestNewSweeper(t *testing.T) {
	t.Run("accepts cron expression", func(t *testing.T) {
		s, err := NewSweeper(&fakeSweeper{}, "0 * * * *", testLogger())
		require.NoError(t, err)
		assert.NotNil(t, s)
	})

	t.Run("accepts descriptor schedule", func(t *testing.T) {
		_, err := NewSweeper(&fakeSweeper{}, "@hourly", testLogger())
		require.NoError(t, err)
	})

	t.Run("rejects malformed schedule", func(t *testing.T) {
		_, err := NewSweeper(&fakeSweeper{}, "not a schedule", testLogger())
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrValidation)
	})
}

func TestSweeperRun(t *testing.T) {
	t.Run("invokes sweep", func(t *testing.T) {
		fake := &fakeSweeper{removed: 3}
		s, err := NewSweeper(fake, "@hourly", testLogger())
		require.NoError(t, err)

		s.run()
		assert.Equal(t, 1, fake.calls)
	})

	t.Run("sweep errors are logged, not fatal", func(t *testing.T) {
		fake := &fakeSweeper{err: errors.New("db down")}
		s, err := NewSweeper(fake, "@hourly", testLogger())
		require.NoError(t, err)

		s.run()
		s.run()
		assert.Equal(t, 2, fake.calls)
	})
}

func TestSweeperStartStop(t *testing.T) {
	fake := &fakeSweeper{}
	s, err := NewSweeper(fake, "@hourly", testLogger())
	require.NoError(t, err)

	s.Start()
	s.Stop()
}
