package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NotifierCollector exposes metrics for the north and south notification
// queues.
type NotifierCollector struct {
	gatherer prometheus.Gatherer

	QueueDepth      *prometheus.GaugeVec
	Delivered       *prometheus.CounterVec
	Superseded      *prometheus.CounterVec
	DeliveryLatency prometheus.Histogram
	Subscribers     prometheus.Gauge
}

// NewNotifierCollector registers notifier metrics against the provided registerer.
func NewNotifierCollector(reg prometheus.Registerer) (*NotifierCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	depth, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "regchan_notify_queue_depth",
		Help: "Notifications waiting for delivery, by queue.",
	}, []string{"queue"}), "regchan_notify_queue_depth")
	if err != nil {
		return nil, err
	}

	delivered, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regchan_notifications_delivered_total",
		Help: "Notifications handed to subscribers, by queue.",
	}, []string{"queue"}), "regchan_notifications_delivered_total")
	if err != nil {
		return nil, err
	}

	superseded, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regchan_notifications_superseded_total",
		Help: "Notifications skipped because a newer generation was already queued.",
	}, []string{"queue"}), "regchan_notifications_superseded_total")
	if err != nil {
		return nil, err
	}

	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "regchan_notification_latency_seconds",
		Help:    "Time from enqueue to delivery of a notification.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})
	latency, err = registerHistogram(reg, latency, "regchan_notification_latency_seconds")
	if err != nil {
		return nil, err
	}

	subs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "regchan_subscribers",
		Help: "Registered channel-change subscribers.",
	})
	subs, err = registerGauge(reg, subs, "regchan_subscribers")
	if err != nil {
		return nil, err
	}

	return &NotifierCollector{
		gatherer:        gatherer,
		QueueDepth:      depth,
		Delivered:       delivered,
		Superseded:      superseded,
		DeliveryLatency: latency,
		Subscribers:     subs,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *NotifierCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// SetQueueDepth updates the depth gauge of a queue.
func (c *NotifierCollector) SetQueueDepth(queue string, depth int) {
	if c == nil || c.QueueDepth == nil {
		return
	}
	c.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// ObserveDelivered records a delivery and its enqueue-to-delivery latency.
func (c *NotifierCollector) ObserveDelivered(queue string, d time.Duration) {
	if c == nil {
		return
	}
	if c.Delivered != nil {
		c.Delivered.WithLabelValues(queue).Inc()
	}
	if c.DeliveryLatency != nil {
		c.DeliveryLatency.Observe(d.Seconds())
	}
}

// IncSuperseded counts a stale notification that was skipped.
func (c *NotifierCollector) IncSuperseded(queue string) {
	if c == nil || c.Superseded == nil {
		return
	}
	c.Superseded.WithLabelValues(queue).Inc()
}

// SetSubscribers updates the subscriber gauge.
func (c *NotifierCollector) SetSubscribers(n int) {
	if c == nil || c.Subscribers == nil {
		return
	}
	c.Subscribers.Set(float64(n))
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
