package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStreamer(t *testing.T) {
	t.Run("valid record", func(t *testing.T) {
		s, err := NewStreamer("10.0.0.5", 9000)
		require.NoError(t, err)
		assert.NotEmpty(t, s.ID)
		assert.Equal(t, "10.0.0.5", s.Address)
		assert.Equal(t, 9000, s.Port)
		assert.False(t, s.Ready)
		assert.False(t, s.Allocated)
		assert.Zero(t, s.ConnectedClients)
		assert.WithinDuration(t, time.Now(), s.LastHeartbeatAt, time.Second)
	})

	t.Run("empty address rejected", func(t *testing.T) {
		_, err := NewStreamer("", 9000)
		assert.ErrorIs(t, err, ErrAddressEmpty)
	})

	t.Run("port out of range rejected", func(t *testing.T) {
		for _, port := range []int{0, -1, 70000} {
			_, err := NewStreamer("10.0.0.5", port)
			assert.ErrorIs(t, err, ErrPortRange)
		}
	})
}

func TestStreamerEligibleAt(t *testing.T) {
	now := time.Now()
	window := time.Minute

	base := func() *Streamer {
		return &Streamer{
			ID:              "s1",
			Address:         "10.0.0.5",
			Port:            9000,
			Ready:           true,
			LastHeartbeatAt: now,
		}
	}

	t.Run("ready live unallocated idle is eligible", func(t *testing.T) {
		assert.True(t, base().EligibleAt(now, window, false))
	})

	t.Run("allocated is never eligible", func(t *testing.T) {
		s := base()
		s.Allocated = true
		assert.False(t, s.EligibleAt(now, window, false))
		assert.False(t, s.EligibleAt(now, window, true))
	})

	t.Run("busy streamer is never eligible", func(t *testing.T) {
		s := base()
		s.ConnectedClients = 1
		assert.False(t, s.EligibleAt(now, window, false))
		assert.False(t, s.EligibleAt(now, window, true))
	})

	t.Run("stale heartbeat is never eligible", func(t *testing.T) {
		s := base()
		s.LastHeartbeatAt = now.Add(-2 * window)
		assert.False(t, s.EligibleAt(now, window, false))
		assert.False(t, s.EligibleAt(now, window, true))
	})

	t.Run("not ready is ineligible unless overridden", func(t *testing.T) {
		s := base()
		s.Ready = false
		assert.False(t, s.EligibleAt(now, window, false))
		assert.True(t, s.EligibleAt(now, window, true))
	})
}
