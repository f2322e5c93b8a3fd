package runner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orblab/orbiter/internal/config"
	"github.com/orblab/orbiter/internal/market"
)

func poolConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Config{Symbol: "ES", Timezone: "UTC"}
	cfg.OpeningRange.Durations = []int{5}
	cfg.Factors.VWAP.Enabled = true
	require.NoError(t, cfg.Finish())
	return cfg
}

func poolBars() []market.Bar {
	var bars []market.Bar
	for min := 0; min < 10; min++ {
		bars = append(bars, market.Bar{
			Time: time.Date(2024, 3, 4, 9, 30+min, 0, 0, time.UTC),
			Open: 100.4, High: 101, Low: 100, Close: 100.6,
			Volume:  100,
			Session: "2024-03-04",
		})
	}
	return bars
}

func TestPool_RunsAllJobsInOrder(t *testing.T) {
	cfg := poolConfig(t)
	var jobs []Job
	for i := 0; i < 5; i++ {
		jobs = append(jobs, Job{Name: fmt.Sprintf("job-%d", i), Cfg: cfg})
	}

	results := New(3, 0).Run(context.Background(), jobs, poolBars())
	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("job-%d", i), r.Name, "results keep job order")
		require.NoError(t, r.Err)
		require.NotNil(t, r.Run)
		assert.Equal(t, 10, r.Run.BarsProcessed)
		assert.Equal(t, 1, r.Run.Sessions)
	}
}

func TestPool_UnfinishedConfigFailsThatJobOnly(t *testing.T) {
	jobs := []Job{
		{Name: "good", Cfg: poolConfig(t)},
		{Name: "bad", Cfg: config.Config{Symbol: "ES"}}, // never passed through Finish
	}

	results := New(2, 0).Run(context.Background(), jobs, poolBars())
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.Nil(t, results[1].Run)
}

func TestPool_CancelledContextReportsEveryJob(t *testing.T) {
	cfg := poolConfig(t)
	var jobs []Job
	for i := 0; i < 4; i++ {
		jobs = append(jobs, Job{Name: fmt.Sprintf("job-%d", i), Cfg: cfg})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := New(2, 0).Run(ctx, jobs, poolBars())
	require.Len(t, results, 4)
	for _, r := range results {
		assert.NotEmpty(t, r.Name)
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}
