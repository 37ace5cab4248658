package prometheus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/veesix-networks/linkshaper/pkg/shaper"
)

type linkMetrics struct {
	arrivals      *prometheus.CounterVec
	arrivalBytes  *prometheus.CounterVec
	opportunities *prometheus.CounterVec
	capacityBytes *prometheus.CounterVec
	departures    *prometheus.CounterVec
	departedBytes *prometheus.CounterVec
	drops         *prometheus.CounterVec
	droppedBytes  *prometheus.CounterVec
	queueingDelay *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metrics     *linkMetrics
)

func getMetrics() *linkMetrics {
	metricsOnce.Do(func() {
		metrics = &linkMetrics{
			arrivals: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "linkshaper_arrivals_total",
				Help: "Packets admitted to the shaping queue.",
			}, []string{"link"}),
			arrivalBytes: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "linkshaper_arrival_bytes_total",
				Help: "Bytes admitted to the shaping queue.",
			}, []string{"link"}),
			opportunities: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "linkshaper_delivery_opportunities_total",
				Help: "Delivery opportunities offered by the trace.",
			}, []string{"link"}),
			capacityBytes: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "linkshaper_capacity_bytes_total",
				Help: "Bytes of link capacity offered, used or not.",
			}, []string{"link"}),
			departures: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "linkshaper_departures_total",
				Help: "Packets fully serialized onto the link.",
			}, []string{"link"}),
			departedBytes: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "linkshaper_departed_bytes_total",
				Help: "Bytes fully serialized onto the link.",
			}, []string{"link"}),
			drops: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "linkshaper_drops_total",
				Help: "Packets shed by the queue discipline.",
			}, []string{"link"}),
			droppedBytes: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "linkshaper_dropped_bytes_total",
				Help: "Bytes shed by the queue discipline.",
			}, []string{"link"}),
			queueingDelay: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "linkshaper_queueing_delay_ms",
				Help:    "Per-packet queueing delay at departure.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 14),
			}, []string{"link"}),
		}
	})
	return metrics
}

// LinkRecorder returns a shaper.Recorder that feeds the exporter's
// counters for one named link.
func LinkRecorder(link string) shaper.Recorder {
	m := getMetrics()
	return &linkRecorder{
		arrivals:      m.arrivals.WithLabelValues(link),
		arrivalBytes:  m.arrivalBytes.WithLabelValues(link),
		opportunities: m.opportunities.WithLabelValues(link),
		capacityBytes: m.capacityBytes.WithLabelValues(link),
		departures:    m.departures.WithLabelValues(link),
		departedBytes: m.departedBytes.WithLabelValues(link),
		drops:         m.drops.WithLabelValues(link),
		droppedBytes:  m.droppedBytes.WithLabelValues(link),
		queueingDelay: m.queueingDelay.WithLabelValues(link),
	}
}

type linkRecorder struct {
	arrivals      prometheus.Counter
	arrivalBytes  prometheus.Counter
	opportunities prometheus.Counter
	capacityBytes prometheus.Counter
	departures    prometheus.Counter
	departedBytes prometheus.Counter
	drops         prometheus.Counter
	droppedBytes  prometheus.Counter
	queueingDelay prometheus.Observer
}

func (r *linkRecorder) RecordArrival(t uint64, size int) {
	r.arrivals.Inc()
	r.arrivalBytes.Add(float64(size))
}

func (r *linkRecorder) RecordOpportunity(t uint64, size int) {
	r.opportunities.Inc()
	r.capacityBytes.Add(float64(size))
}

func (r *linkRecorder) RecordDeparture(t uint64, size int, delayMS uint64) {
	r.departures.Inc()
	r.departedBytes.Add(float64(size))
	r.queueingDelay.Observe(float64(delayMS))
}

func (r *linkRecorder) RecordDrop(t uint64, packets, bytes int) {
	r.drops.Add(float64(packets))
	r.droppedBytes.Add(float64(bytes))
}
