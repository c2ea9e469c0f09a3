package trace

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes dispatcher counters to Prometheus.
type Collector struct {
	d *Dispatcher

	armed    *prometheus.Desc
	stopped  *prometheus.Desc
	active   *prometheus.Desc
	events   *prometheus.Desc
	dropped  *prometheus.Desc
	records  *prometheus.Desc
	bytes    *prometheus.Desc
	writeErr *prometheus.Desc
}

// NewCollector returns a collector reading d's metrics on every scrape.
func NewCollector(d *Dispatcher) *Collector {
	return &Collector{
		d:        d,
		armed:    prometheus.NewDesc("chunkcap_connections_armed_total", "Connections armed for tracing", nil, nil),
		stopped:  prometheus.NewDesc("chunkcap_connections_stopped_total", "Traces stopped", nil, nil),
		active:   prometheus.NewDesc("chunkcap_connections_active", "Connections currently traced", nil, nil),
		events:   prometheus.NewDesc("chunkcap_events_written_total", "Events written to the capture file", nil, nil),
		dropped:  prometheus.NewDesc("chunkcap_events_dropped_total", "Events dropped for untraced connections", nil, nil),
		records:  prometheus.NewDesc("chunkcap_records_written_total", "Capture records appended", nil, nil),
		bytes:    prometheus.NewDesc("chunkcap_payload_bytes_total", "Application payload bytes written", nil, nil),
		writeErr: prometheus.NewDesc("chunkcap_write_errors_total", "Failed capture writes", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.armed
	ch <- c.stopped
	ch <- c.active
	ch <- c.events
	ch <- c.dropped
	ch <- c.records
	ch <- c.bytes
	ch <- c.writeErr
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.d.Metrics()
	ch <- prometheus.MustNewConstMetric(c.armed, prometheus.CounterValue, float64(m.ConnectionsArmed))
	ch <- prometheus.MustNewConstMetric(c.stopped, prometheus.CounterValue, float64(m.ConnectionsStopped))
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(m.ConnectionsActive))
	ch <- prometheus.MustNewConstMetric(c.events, prometheus.CounterValue, float64(m.EventsWritten))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(m.EventsDropped))
	ch <- prometheus.MustNewConstMetric(c.records, prometheus.CounterValue, float64(m.RecordsWritten))
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.CounterValue, float64(m.PayloadBytes))
	ch <- prometheus.MustNewConstMetric(c.writeErr, prometheus.CounterValue, float64(m.WriteErrors))
}
