package trace

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irctrakz/chunkcap/pkg/core"
)

func TestCollector(t *testing.T) {
	d := NewDispatcher(&failingWriter{ok: 10}, nil)
	require.NoError(t, d.StartTrace("a", ep(t, "1.1.1.1:1"), ep(t, "2.2.2.2:2")))
	require.NoError(t, d.OnEvent(core.Event{Conn: "a", Payload: make([]byte, 12)}))
	_ = d.OnEvent(core.Event{Conn: "b", Payload: []byte("x")})

	c := NewCollector(d)
	assert.Equal(t, 8, testutil.CollectAndCount(c))

	expected := `
# HELP chunkcap_payload_bytes_total Application payload bytes written
# TYPE chunkcap_payload_bytes_total counter
chunkcap_payload_bytes_total 12
# HELP chunkcap_events_dropped_total Events dropped for untraced connections
# TYPE chunkcap_events_dropped_total counter
chunkcap_events_dropped_total 1
# HELP chunkcap_connections_active Connections currently traced
# TYPE chunkcap_connections_active gauge
chunkcap_connections_active 1
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"chunkcap_payload_bytes_total", "chunkcap_events_dropped_total", "chunkcap_connections_active")
	assert.NoError(t, err)
}
