package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/ports"
)

var roomStates = []domain.RoomState{
	domain.RoomIdle,
	domain.RoomAwaitingEntry,
	domain.RoomInRoom,
	domain.RoomDisconnecting,
}

type PrometheusCollector struct {
	transitionsTotal *prometheus.CounterVec
	entryOutcomes    *prometheus.CounterVec
	roomState        *prometheus.GaugeVec

	channelGroups    prometheus.Gauge
	channels         prometheus.Gauge
	transmitting     prometheus.Gauge
	inputsPreparing  prometheus.Gauge
	preparationTotal prometheus.Counter

	scanDuration prometheus.Histogram
	scansTotal   *prometheus.CounterVec
	pluginsFound prometheus.Gauge
}

var _ ports.MetricsRecorder = (*PrometheusCollector)(nil)

// NewPrometheusCollector registers the client metrics with reg, or with the
// default registry when reg is nil.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	p := &PrometheusCollector{
		transitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jamlink_room_transitions_total",
			Help: "Room state transitions",
		}, []string{"from", "to"}),

		entryOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jamlink_room_entry_outcomes_total",
			Help: "Results of room entry requests",
		}, []string{"outcome"}),

		roomState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jamlink_room_state",
			Help: "1 for the current room state, 0 otherwise",
		}, []string{"state"}),

		channelGroups: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jamlink_channel_groups",
			Help: "Number of local channel groups",
		}),

		channels: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jamlink_channels",
			Help: "Number of local subchannels",
		}),

		transmitting: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jamlink_channels_transmitting",
			Help: "Number of subchannels currently transmitting",
		}),

		inputsPreparing: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jamlink_inputs_preparing",
			Help: "1 while inputs are being prepared and transmission is gated",
		}),

		preparationTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "jamlink_inputs_preparations_total",
			Help: "Number of input preparation rounds started",
		}),

		scanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "jamlink_plugin_scan_duration_seconds",
			Help:    "Duration of plugin scans",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),

		scansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jamlink_plugin_scans_total",
			Help: "Plugin scans by result",
		}, []string{"result"}),

		pluginsFound: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jamlink_plugins_found",
			Help: "Plugins found by the last scan",
		}),
	}
	p.setState(domain.RoomIdle)
	return p
}

func (p *PrometheusCollector) RecordTransition(from, to domain.RoomState) {
	p.transitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
	p.setState(to)
}

func (p *PrometheusCollector) setState(current domain.RoomState) {
	for _, s := range roomStates {
		v := 0.0
		if s == current {
			v = 1
		}
		p.roomState.WithLabelValues(s.String()).Set(v)
	}
}

func (p *PrometheusCollector) RecordEntryOutcome(outcome string) {
	p.entryOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusCollector) SetGroupCount(groups, channels int) {
	p.channelGroups.Set(float64(groups))
	p.channels.Set(float64(channels))
}

func (p *PrometheusCollector) SetPreparing(preparing bool) {
	if preparing {
		p.inputsPreparing.Set(1)
		p.preparationTotal.Inc()
		return
	}
	p.inputsPreparing.Set(0)
}

func (p *PrometheusCollector) SetTransmitting(count int) {
	p.transmitting.Set(float64(count))
}

func (p *PrometheusCollector) RecordScan(duration time.Duration, found int, clean bool) {
	result := "clean"
	if !clean {
		result = "error"
	}
	p.scanDuration.Observe(duration.Seconds())
	p.scansTotal.WithLabelValues(result).Inc()
	p.pluginsFound.Set(float64(found))
}
