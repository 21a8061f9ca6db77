package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chatcore"

// Metrics groups the collectors of one chat-core instance.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	MessagesSent          prometheus.Counter
	MutationFailures      *prometheus.CounterVec
	ActiveSubscriptions   prometheus.Gauge
	SubscriptionEvictions prometheus.Counter
	ActiveChannels        prometheus.Gauge
	DroppedDeliveries     *prometheus.CounterVec
	CacheLookups          *prometheus.CounterVec
	NotificationsRelayed  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages committed to the store.",
		}),
		MutationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutation_failures_total",
			Help:      "Failed mutations by operation.",
		}, []string{"operation"}),
		ActiveSubscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions_active",
			Help:      "Live room subscriptions across all clients.",
		}),
		SubscriptionEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_evictions_total",
			Help:      "Subscriptions torn down to make room for a new one.",
		}),
		ActiveChannels: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_channels_active",
			Help:      "Joined realtime channels.",
		}),
		DroppedDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_dropped_deliveries_total",
			Help:      "Events not delivered to a channel, by event kind.",
		}, []string{"kind"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		NotificationsRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_relayed_total",
			Help:      "Notifications handed to the broker, by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncMessagesSent() {
	if m == nil {
		return
	}
	m.MessagesSent.Inc()
}

func (m *Metrics) IncMutationFailure(operation string) {
	if m == nil {
		return
	}
	m.MutationFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) AddSubscriptions(delta float64) {
	if m == nil {
		return
	}
	m.ActiveSubscriptions.Add(delta)
}

func (m *Metrics) IncEvictions() {
	if m == nil {
		return
	}
	m.SubscriptionEvictions.Inc()
}

func (m *Metrics) AddChannels(delta float64) {
	if m == nil {
		return
	}
	m.ActiveChannels.Add(delta)
}

func (m *Metrics) IncDropped(kind string) {
	if m == nil {
		return
	}
	m.DroppedDeliveries.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveCache(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) IncRelayed(outcome string) {
	if m == nil {
		return
	}
	m.NotificationsRelayed.WithLabelValues(outcome).Inc()
}
