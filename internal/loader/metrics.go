package loader

import (
	"sync"
	"time"
)

// LoadMetrics tracks loader activity
type LoadMetrics struct {
	requests        int64
	cacheHits       int64
	coalesced       int64
	unknown         int64
	started         int64
	succeeded       int64
	failed          int64
	totalDuration   time.Duration
	averageDuration time.Duration
	mutex           sync.RWMutex
}

// MetricsSnapshot is a point-in-time copy of LoadMetrics
type MetricsSnapshot struct {
	Requests        int64         `json:"requests"`
	CacheHits       int64         `json:"cache_hits"`
	Coalesced       int64         `json:"coalesced"`
	Unknown         int64         `json:"unknown"`
	Started         int64         `json:"started"`
	Succeeded       int64         `json:"succeeded"`
	Failed          int64         `json:"failed"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
}

// NewLoadMetrics creates a new metrics tracker
func NewLoadMetrics() *LoadMetrics {
	return &LoadMetrics{}
}

func (m *LoadMetrics) recordRequest(outcome requestOutcome) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.requests++
	switch outcome {
	case outcomeCacheHit:
		m.cacheHits++
	case outcomeCoalesced:
		m.coalesced++
	case outcomeUnknown:
		m.unknown++
	case outcomeStarted:
		m.started++
	}
}

func (m *LoadMetrics) recordResult(duration time.Duration, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err != nil {
		m.failed++
	} else {
		m.succeeded++
	}
	m.totalDuration += duration

	if settled := m.succeeded + m.failed; settled > 0 {
		m.averageDuration = m.totalDuration / time.Duration(settled)
	}
}

// GetSnapshot returns a snapshot of current metrics
func (m *LoadMetrics) GetSnapshot() MetricsSnapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return MetricsSnapshot{
		Requests:        m.requests,
		CacheHits:       m.cacheHits,
		Coalesced:       m.coalesced,
		Unknown:         m.unknown,
		Started:         m.started,
		Succeeded:       m.succeeded,
		Failed:          m.failed,
		TotalDuration:   m.totalDuration,
		AverageDuration: m.averageDuration,
	}
}

// Reset resets all metrics
func (m *LoadMetrics) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.requests = 0
	m.cacheHits = 0
	m.coalesced = 0
	m.unknown = 0
	m.started = 0
	m.succeeded = 0
	m.failed = 0
	m.totalDuration = 0
	m.averageDuration = 0
}

// CacheHitRate returns the share of requests served from a loaded record, as a percentage
func (s MetricsSnapshot) CacheHitRate() float64 {
	if s.Requests == 0 {
		return 0.0
	}
	return float64(s.CacheHits) / float64(s.Requests) * 100.0
}

// SuccessRate returns the share of settled loads that succeeded, as a percentage
func (s MetricsSnapshot) SuccessRate() float64 {
	settled := s.Succeeded + s.Failed
	if settled == 0 {
		return 0.0
	}
	return float64(s.Succeeded) / float64(settled) * 100.0
}
