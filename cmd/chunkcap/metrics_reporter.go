package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/irctrakz/chunkcap/pkg/logging"
	"github.com/irctrakz/chunkcap/pkg/trace"
)

type metricsSnapshot struct {
	Timestamp string            `json:"ts"`
	Capture   map[string]uint64 `json:"capture"`
}

func runMetricsReporter(ctx context.Context, d *trace.Dispatcher, every time.Duration, format string) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dumpMetrics(d, format)
		}
	}
}

func dumpMetrics(d *trace.Dispatcher, format string) {
	m := d.Metrics()
	snap := metricsSnapshot{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Capture: map[string]uint64{
			"armed":         m.ConnectionsArmed,
			"stopped":       m.ConnectionsStopped,
			"active":        m.ConnectionsActive,
			"events":        m.EventsWritten,
			"dropped":       m.EventsDropped,
			"records":       m.RecordsWritten,
			"payload_bytes": m.PayloadBytes,
			"write_errors":  m.WriteErrors,
		},
	}
	if format == "json" {
		b, err := json.Marshal(snap)
		if err != nil {
			logging.Warnf("metrics marshal: %v", err)
			return
		}
		logging.Infof("metrics %s", b)
		return
	}
	fields := logging.Fields{}
	for k, v := range snap.Capture {
		fields[k] = v
	}
	logging.InfoWithFields(fields, "capture metrics")
}
