package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/klaxon/internal/alert"
	"github.com/linnemanlabs/klaxon/internal/audio"
)

// Metrics holds Prometheus metrics for the engine and the alert sound.
type Metrics struct {
	InsertedTotal  *prometheus.CounterVec
	DuplicateTotal *prometheus.CounterVec
	EffectsTotal   *prometheus.CounterVec
	PollsTotal     *prometheus.CounterVec
	PollDuration   prometheus.Histogram
	AudioAttempts  *prometheus.CounterVec
	AudioDuration  *prometheus.HistogramVec
	AudioSilent    prometheus.Counter
	AlertsStored   prometheus.Gauge
	AlertsUnread   prometheus.Gauge
}

// NewMetrics registers and returns engine metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		InsertedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klaxon_alerts_inserted_total",
			Help: "Alerts added to the store by delivery source.",
		}, []string{"source"}),
		DuplicateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klaxon_alerts_duplicate_total",
			Help: "Deliveries of already known alerts by source.",
		}, []string{"source"}),
		EffectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klaxon_alert_effects_total",
			Help: "Alerts that fired sound and toast, by source.",
		}, []string{"source"}),
		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klaxon_polls_total",
			Help: "Poll cycles by outcome.",
		}, []string{"outcome"}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "klaxon_poll_duration_seconds",
			Help:    "Duration of poll cycles in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		}),
		AudioAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klaxon_audio_attempts_total",
			Help: "Alert sound attempts by tier and outcome.",
		}, []string{"tier", "outcome"}),
		AudioDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "klaxon_audio_attempt_duration_seconds",
			Help:    "Time to start playback or fail, per tier.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms .. ~2.5s
		}, []string{"tier"}),
		AudioSilent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klaxon_audio_silent_total",
			Help: "Alert sounds where every tier failed.",
		}),
		AlertsStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "klaxon_alerts_stored",
			Help: "Alerts currently held in the store.",
		}),
		AlertsUnread: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "klaxon_alerts_unread",
			Help: "Stored alerts still pending.",
		}),
	}

	reg.MustRegister(
		m.InsertedTotal,
		m.DuplicateTotal,
		m.EffectsTotal,
		m.PollsTotal,
		m.PollDuration,
		m.AudioAttempts,
		m.AudioDuration,
		m.AudioSilent,
		m.AlertsStored,
		m.AlertsUnread,
	)

	return m
}

// Hooks returns engine hooks that update the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnInsert: func(s alert.Source) {
			m.InsertedTotal.WithLabelValues(string(s)).Inc()
		},
		OnDuplicate: func(s alert.Source) {
			m.DuplicateTotal.WithLabelValues(string(s)).Inc()
		},
		OnEffects: func(s alert.Source) {
			m.EffectsTotal.WithLabelValues(string(s)).Inc()
		},
		OnPoll: func(outcome string, d time.Duration) {
			m.PollsTotal.WithLabelValues(outcome).Inc()
			m.PollDuration.Observe(d.Seconds())
		},
		OnStore: func(size, unread int) {
			m.AlertsStored.Set(float64(size))
			m.AlertsUnread.Set(float64(unread))
		},
	}
}

// AudioHooks returns audio hooks that update the sound metrics.
func (m *Metrics) AudioHooks() audio.Hooks {
	return audio.Hooks{
		OnAttempt: func(t audio.Tier, outcome string, d time.Duration) {
			m.AudioAttempts.WithLabelValues(t.String(), outcome).Inc()
			m.AudioDuration.WithLabelValues(t.String()).Observe(d.Seconds())
		},
		OnSilent: func() {
			m.AudioSilent.Inc()
		},
	}
}
