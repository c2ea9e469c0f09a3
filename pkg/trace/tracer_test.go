package trace

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irctrakz/chunkcap/pkg/core"
	"github.com/irctrakz/chunkcap/pkg/feed"
	"github.com/irctrakz/chunkcap/pkg/inspect"
	"github.com/irctrakz/chunkcap/pkg/pcapfile"
)

func mockWithConns(t *testing.T) *feed.Mock {
	t.Helper()
	m := feed.NewMock()
	m.AddConn(core.ConnInfo{ID: "web", Local: ep(t, "127.0.0.1:40000"), Remote: ep(t, "93.184.216.34:80")})
	m.AddConn(core.ConnInfo{ID: "db", Local: ep(t, "127.0.0.1:40001"), Remote: ep(t, "10.0.0.5:5432")})
	return m
}

func TestTracerArmAndDeliver(t *testing.T) {
	m := mockWithConns(t)
	d, path := newFileDispatcher(t)
	tr := NewTracer(m, d)

	require.NoError(t, tr.Arm("web"))
	assert.True(t, m.Subscribed("web"))
	assert.False(t, m.Subscribed("db"))
	assert.Error(t, tr.Arm("nope"))
	assert.ErrorIs(t, tr.Arm("web"), ErrAlreadyTraced)

	delivered, err := m.Emit("web", core.Outbound, []byte("GET /"), time.Unix(1, 0))
	require.NoError(t, err)
	assert.True(t, delivered)
	delivered, err = m.Emit("db", core.Outbound, []byte("SELECT 1"), time.Unix(2, 0))
	require.NoError(t, err)
	assert.False(t, delivered)

	c, err := inspect.Read(path)
	require.NoError(t, err)
	require.Len(t, c.Records, 1)
	assert.Equal(t, []byte("GET /"), c.Records[0].Payload)
}

func TestTracerArmMatching(t *testing.T) {
	m := mockWithConns(t)
	d := NewDispatcher(&failingWriter{ok: 100}, nil)
	tr := NewTracer(m, d)

	n, err := tr.ArmMatching(func(ci core.ConnInfo) bool { return ci.Remote.Port() == 5432 })
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []core.ConnID{"db"}, d.Traced())

	n, err = tr.ArmMatching(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []core.ConnID{"db", "web"}, d.Traced())
}

func TestTracerDisarmAndClose(t *testing.T) {
	m := mockWithConns(t)
	d := NewDispatcher(&failingWriter{ok: 100}, nil)
	tr := NewTracer(m, d)
	_, err := tr.ArmMatching(nil)
	require.NoError(t, err)

	require.NoError(t, tr.Disarm("web"))
	assert.False(t, m.Subscribed("web"))
	assert.False(t, d.IsTraced("web"))
	assert.ErrorIs(t, tr.Disarm("web"), core.ErrNotTraced)

	require.NoError(t, tr.Close())
	assert.Empty(t, d.Traced())
	assert.False(t, m.Subscribed("db"))
}

func TestTracerHandleClose(t *testing.T) {
	m := mockWithConns(t)
	d := NewDispatcher(&failingWriter{ok: 100}, nil)
	tr := NewTracer(m, d)
	require.NoError(t, tr.Arm("web"))

	m.Close("web")
	assert.False(t, d.IsTraced("web"))
	assert.NoError(t, tr.Close())
}

func TestTracerSwallowsUntracedAndReturnsWriteErrors(t *testing.T) {
	d := NewDispatcher(&failingWriter{err: errors.New("read-only fs")}, nil)
	tr := NewTracer(feed.NewMock(), d)

	assert.NoError(t, tr.HandleEvent(core.Event{Conn: "missing", Payload: []byte("x")}))

	require.NoError(t, d.StartTrace("a", ep(t, "1.1.1.1:1"), ep(t, "2.2.2.2:2")))
	err := tr.HandleEvent(core.Event{Conn: "a", Payload: []byte("x")})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read-only fs")
}

func TestScriptReplayEndToEnd(t *testing.T) {
	script := strings.Join([]string{
		`{"op":"conn","conn":"1","local":"127.0.0.1:40000","remote":"93.184.216.34:80"}`,
		`{"op":"conn","conn":"2","local":"[2001:db8::10]:40001","remote":"[2001:db8::20]:8080"}`,
		`{"op":"data","conn":"1","dir":"out","ts":"2024-05-01T10:00:00.000001Z","text":"GET / HTTP/1.0\r\n\r\n"}`,
		`{"op":"data","conn":"2","dir":"in","ts":"2024-05-01T10:00:00.5Z","text":"hello"}`,
		`{"op":"data","conn":"1","dir":"out","ts":"2024-05-01T10:00:01Z","text":"more"}`,
		`{"op":"close","conn":"1"}`,
		`{"op":"data","conn":"1","dir":"in","ts":"2024-05-01T10:00:02Z","text":"late"}`,
	}, "\n")
	src, err := feed.LoadScript(strings.NewReader(script))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "replay.pcap")
	d := NewDispatcher(pcapfile.NewWriter(path), nil)
	tr := NewTracer(src, d)
	n, err := tr.ArmMatching(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := src.Play(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Delivered)
	assert.Equal(t, 1, stats.Closed)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, []core.ConnID{"2"}, d.Traced())

	c, err := inspect.Read(path)
	require.NoError(t, err)
	require.Len(t, c.Records, 3)
	assert.Equal(t, core.FamilyIPv4, c.Records[0].Family)
	assert.Equal(t, core.FamilyIPv6, c.Records[1].Family)
	assert.Equal(t, uint16(8080), c.Records[1].SrcPort)
	assert.Equal(t, uint32(18), c.Records[2].Seq)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 1000, time.UTC).Unix(), c.Records[0].Timestamp.Unix())
	assert.Equal(t, 1000, c.Records[0].Timestamp.Nanosecond())
}
