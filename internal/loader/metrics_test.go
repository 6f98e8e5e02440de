package loader

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadMetrics(t *testing.T) {
	metrics := NewLoadMetrics()

	metrics.recordRequest(outcomeStarted)
	metrics.recordRequest(outcomeCoalesced)
	metrics.recordRequest(outcomeCacheHit)
	metrics.recordRequest(outcomeCacheHit)
	metrics.recordResult(10*time.Millisecond, nil)
	metrics.recordResult(30*time.Millisecond, fmt.Errorf("failed"))

	snapshot := metrics.GetSnapshot()
	assert.Equal(t, int64(4), snapshot.Requests)
	assert.Equal(t, int64(1), snapshot.Started)
	assert.Equal(t, int64(1), snapshot.Coalesced)
	assert.Equal(t, int64(2), snapshot.CacheHits)
	assert.Equal(t, int64(1), snapshot.Succeeded)
	assert.Equal(t, int64(1), snapshot.Failed)
	assert.Equal(t, 40*time.Millisecond, snapshot.TotalDuration)
	assert.Equal(t, 20*time.Millisecond, snapshot.AverageDuration)
	assert.InDelta(t, 50.0, snapshot.CacheHitRate(), 0.001)
	assert.InDelta(t, 50.0, snapshot.SuccessRate(), 0.001)

	metrics.Reset()
	assert.Equal(t, MetricsSnapshot{}, metrics.GetSnapshot())
}

func TestMetricsSnapshot_EmptyRates(t *testing.T) {
	var snapshot MetricsSnapshot
	assert.Equal(t, 0.0, snapshot.CacheHitRate())
	assert.Equal(t, 0.0, snapshot.SuccessRate())
}
