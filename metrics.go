package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID names an in-process counter.
type MetricID uint16

const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterDuplicate
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginLocked
	MetricLockoutTriggered
	MetricTwoFactorRequired
	MetricTwoFactorSuccess
	MetricTwoFactorFailure
	MetricTwoFactorRateLimited
	MetricTwoFactorEnabled
	MetricTwoFactorDisabled
	MetricPasswordUpgraded
	MetricLogout
	MetricSessionRevoked
	MetricVerificationIssued
	MetricVerificationConsumed
	MetricVerificationFailure
	MetricResetIssued
	MetricResetConsumed
	MetricResetFailure
	MetricExternalResolved
	MetricExternalLinked
	MetricExternalCreated
	MetricRoleChanged
	MetricPermissionsChanged
	MetricActivityDropped
	MetricAuthenticateLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricRegisterSuccess:      "register_success",
	MetricRegisterDuplicate:    "register_duplicate",
	MetricLoginSuccess:         "login_success",
	MetricLoginFailure:         "login_failure",
	MetricLoginLocked:          "login_locked",
	MetricLockoutTriggered:     "lockout_triggered",
	MetricTwoFactorRequired:    "two_factor_required",
	MetricTwoFactorSuccess:     "two_factor_success",
	MetricTwoFactorFailure:     "two_factor_failure",
	MetricTwoFactorRateLimited: "two_factor_rate_limited",
	MetricTwoFactorEnabled:     "two_factor_enabled",
	MetricTwoFactorDisabled:    "two_factor_disabled",
	MetricPasswordUpgraded:     "password_upgraded",
	MetricLogout:               "logout",
	MetricSessionRevoked:       "session_revoked",
	MetricVerificationIssued:   "verification_issued",
	MetricVerificationConsumed: "verification_consumed",
	MetricVerificationFailure:  "verification_failure",
	MetricResetIssued:          "reset_issued",
	MetricResetConsumed:        "reset_consumed",
	MetricResetFailure:         "reset_failure",
	MetricExternalResolved:     "external_resolved",
	MetricExternalLinked:       "external_linked",
	MetricExternalCreated:      "external_created",
	MetricRoleChanged:          "role_changed",
	MetricPermissionsChanged:   "permissions_changed",
	MetricActivityDropped:      "activity_dropped",
	MetricAuthenticateLatency:  "authenticate_latency",
}

// String returns the snake_case metric name.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters plus one latency histogram
// for Authenticate. A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// HistogramBounds are the inclusive upper bounds of the latency buckets.
// The last bucket is unbounded.
var HistogramBounds = [histBucketCount - 1]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d for the Authenticate latency histogram. Other ids are
// ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricAuthenticateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAuthenticateLatency].buckets[i])
		}
		s.Histograms[MetricAuthenticateLatency] = buckets
	}
	return s
}

func bucketIndex(d time.Duration) int {
	for i, bound := range HistogramBounds {
		if d <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
