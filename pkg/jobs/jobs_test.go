package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideline/tideline/pkg/config"
	"github.com/tideline/tideline/pkg/models"
)

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{5, 80 * time.Second},
		{6, 2 * time.Minute},
		{20, 2 * time.Minute},
		{64, 2 * time.Minute}, // shift overflow must not go negative
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, retryDelay(tc.attempt), "attempt %d", tc.attempt)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Get("cluster.sync")
	assert.False(t, ok)

	called := false
	r.Register("cluster.sync", func(ctx context.Context, job *models.Job) error {
		called = true
		return nil
	})

	h, ok := r.Get("cluster.sync")
	require.True(t, ok)
	require.NoError(t, h(context.Background(), &models.Job{}))
	assert.True(t, called)

	r.Register("cluster.curate", func(ctx context.Context, job *models.Job) error { return nil })
	assert.ElementsMatch(t, []string{"cluster.sync", "cluster.curate"}, r.Kinds())
}

func TestWorkerPollIntervalBounds(t *testing.T) {
	cfg := &config.QueueConfig{
		PollInterval:       time.Second,
		PollIntervalJitter: 500 * time.Millisecond,
	}
	w := NewWorker("w0", "pod", nil, cfg, NewRegistry())

	for i := 0; i < 200; i++ {
		d := w.pollInterval()
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestWorkerPollIntervalNoJitter(t *testing.T) {
	cfg := &config.QueueConfig{PollInterval: time.Second}
	w := NewWorker("w0", "pod", nil, cfg, NewRegistry())
	assert.Equal(t, time.Second, w.pollInterval())
}
