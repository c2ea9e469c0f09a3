package pcapfile

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalHeaderBytes(t *testing.T) {
	want := []byte{
		0xa1, 0xb2, 0xc3, 0xd4, // magic
		0x00, 0x02, 0x00, 0x04, // version 2.4
		0x00, 0x00, 0x00, 0x00, // thiszone
		0x00, 0x00, 0x00, 0x00, // sigfigs
		0x00, 0x00, 0xff, 0xff, // snaplen
		0x00, 0x00, 0x00, 0x65, // LINKTYPE_RAW
	}
	assert.Equal(t, want, GlobalHeader())
}

func TestRecordHeaderEncoding(t *testing.T) {
	b := make([]byte, RecordHeaderLen)
	ts := time.Unix(0x12345678, 123456789)
	putRecordHeader(b, ts, 58)

	assert.Equal(t, []byte{0x12, 0x34, 0x56, 0x78}, b[0:4])
	assert.Equal(t, uint32(123456), binary.BigEndian.Uint32(b[4:8]))
	assert.Equal(t, uint32(58), binary.BigEndian.Uint32(b[8:12]))
	assert.Equal(t, uint32(58), binary.BigEndian.Uint32(b[12:16]))
}

func TestEnsureHeaderIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pcap")
	w := NewWriter(path)

	require.NoError(t, w.EnsureHeader())
	require.NoError(t, w.EnsureHeader())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, GlobalHeader(), data)
}

func TestEnsureHeaderOnEmptyExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.pcap")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	require.NoError(t, NewWriter(path).EnsureHeader())
	size, err := NewWriter(path).Size()
	require.NoError(t, err)
	assert.Equal(t, int64(GlobalHeaderLen), size)
}

func TestEnsureHeaderLeavesNonEmptyFileAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.pcap")
	require.NoError(t, os.WriteFile(path, []byte("xyz"), 0644))

	require.NoError(t, NewWriter(path).EnsureHeader())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("xyz"), data)
}

func TestWriteRecordReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pcap")
	w := NewWriter(path)

	ts0 := time.Unix(1700000000, 250000*1000)
	ts1 := time.Unix(1700000001, 0)
	require.NoError(t, w.WriteRecord(ts0, []byte{0x45, 0x00}, []byte("hello")))
	require.NoError(t, w.WriteRecord(ts1, []byte{0x60}, []byte("x")))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeRaw, r.LinkType())
	assert.Equal(t, uint32(65535), r.Snaplen())

	data, ci, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, append([]byte{0x45, 0x00}, "hello"...), data)
	assert.Equal(t, 7, ci.CaptureLength)
	assert.Equal(t, 7, ci.Length)
	assert.True(t, ts0.Equal(ci.Timestamp), "got %v", ci.Timestamp)

	data, ci, err = r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 'x'}, data)
	assert.True(t, ts1.Equal(ci.Timestamp))

	_, _, err = r.ReadPacketData()
	assert.Equal(t, io.EOF, err)
}

func TestAppendRecordWithoutHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.bin")
	w := NewWriter(path)
	require.NoError(t, w.AppendRecord(time.Unix(1, 0), nil, []byte("ab")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, RecordHeaderLen+2)
	assert.Equal(t, []byte("ab"), data[RecordHeaderLen:])
}

func TestWriteRecordLargePayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.pcap")
	payload := bytes.Repeat([]byte{0xab}, 40000)
	require.NoError(t, NewWriter(path).WriteRecord(time.Unix(1, 0), make([]byte, 40), payload))

	size, err := NewWriter(path).Size()
	require.NoError(t, err)
	assert.Equal(t, int64(GlobalHeaderLen+RecordHeaderLen+40+40000), size)
}

func TestWriteRecordUnwritablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "out.pcap")
	err := NewWriter(path).WriteRecord(time.Now(), nil, []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConcurrentWritersDoNotInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.pcap")
	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// separate Writer values on the same path share the lock
			w := NewWriter(path)
			payload := bytes.Repeat([]byte{byte(i)}, 100+i)
			for j := 0; j < perWriter; j++ {
				if err := w.WriteRecord(time.Unix(int64(j), 0), nil, payload); err != nil {
					t.Errorf("write: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)

	count := 0
	for {
		data, _, err := r.ReadPacketData()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.NotEmpty(t, data)
		id := data[0]
		assert.Len(t, data, 100+int(id))
		assert.Equal(t, bytes.Repeat([]byte{id}, len(data)), data)
		count++
	}
	assert.Equal(t, writers*perWriter, count)
}
