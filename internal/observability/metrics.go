package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/regchan/model"
)

// RegCollector bundles Prometheus metrics for the channel engine and
// provides the /metrics handler.
type RegCollector struct {
	gatherer prometheus.Gatherer

	Recomputes        *prometheus.CounterVec
	RecomputeDuration *prometheus.HistogramVec
	Channels          *prometheus.GaugeVec
	NOLChannels       *prometheus.GaugeVec
	AFCEvents         *prometheus.CounterVec
	CountryChanges    *prometheus.CounterVec
}

// NewRegCollector registers channel-engine metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewRegCollector(reg prometheus.Registerer) (*RegCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	recomputes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regchan_recomputes_total",
		Help: "Current-list recomputations, labeled by radio, trigger kind, and result.",
	}, []string{"phy", "trigger", "result"}), "regchan_recomputes_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "regchan_recompute_duration_seconds",
		Help:    "Time spent recomputing the current and secondary lists.",
		Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05},
	}, []string{"phy"}), "regchan_recompute_duration_seconds")
	if err != nil {
		return nil, err
	}

	channels, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "regchan_channels",
		Help: "Channels per state in the latest current list.",
	}, []string{"phy", "state"}), "regchan_channels")
	if err != nil {
		return nil, err
	}

	nol, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "regchan_nol_channels",
		Help: "Channels currently on the non-occupancy list.",
	}, []string{"phy"}), "regchan_nol_channels")
	if err != nil {
		return nil, err
	}

	afc, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regchan_afc_events_total",
		Help: "AFC power events and expiries, labeled by radio and outcome.",
	}, []string{"phy", "outcome"}), "regchan_afc_events_total")
	if err != nil {
		return nil, err
	}

	country, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regchan_country_changes_total",
		Help: "Resolved country changes, labeled by source.",
	}, []string{"source"}), "regchan_country_changes_total")
	if err != nil {
		return nil, err
	}

	return &RegCollector{
		gatherer:          gatherer,
		Recomputes:        recomputes,
		RecomputeDuration: durations,
		Channels:          channels,
		NOLChannels:       nol,
		AFCEvents:         afc,
		CountryChanges:    country,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *RegCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func phyLabel(phy uint8) string { return strconv.Itoa(int(phy)) }

// ObserveRecompute records one recomputation of a radio's lists.
func (c *RegCollector) ObserveRecompute(phy uint8, trigger string, d time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Recomputes.WithLabelValues(phyLabel(phy), trigger, result).Inc()
	c.RecomputeDuration.WithLabelValues(phyLabel(phy)).Observe(d.Seconds())
}

// SetChannelCounts publishes the per-state tally of a radio's current list.
func (c *RegCollector) SetChannelCounts(phy uint8, counts map[model.ChannelState]int) {
	if c == nil {
		return
	}
	for _, s := range []model.ChannelState{model.StateEnable, model.StateDFS, model.StateDisable, model.StateInvalid} {
		c.Channels.WithLabelValues(phyLabel(phy), s.String()).Set(float64(counts[s]))
	}
}

// SetNOLCount updates the NOL gauge of a radio.
func (c *RegCollector) SetNOLCount(phy uint8, n int) {
	if c == nil {
		return
	}
	c.NOLChannels.WithLabelValues(phyLabel(phy)).Set(float64(n))
}

// IncAFCEvent counts an AFC outcome: "granted", "expired" or "lpi".
func (c *RegCollector) IncAFCEvent(phy uint8, outcome string) {
	if c == nil {
		return
	}
	c.AFCEvents.WithLabelValues(phyLabel(phy), outcome).Inc()
}

// IncCountryChange counts a resolved country change.
func (c *RegCollector) IncCountryChange(source model.CountrySource) {
	if c == nil {
		return
	}
	c.CountryChanges.WithLabelValues(source.String()).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
