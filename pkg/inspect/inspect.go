// Package inspect reads capture files back and decodes each record's
// synthesized IP/TCP headers.
package inspect

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/irctrakz/chunkcap/pkg/core"
)

// Record is one decoded capture record.
type Record struct {
	Timestamp     time.Time
	CaptureLength int
	Length        int

	Family core.Family
	// DeclaredLength is the IPv4 total length or the IPv6 payload length.
	DeclaredLength int
	HeaderLength   int

	SrcIP   net.IP
	DstIP   net.IP
	SrcPort uint16
	DstPort uint16
	Seq     uint32
	SYN     bool
	PSH     bool
	ACK     bool
	Payload []byte
}

// Capture is the decoded content of a capture file.
type Capture struct {
	LinkType layers.LinkType
	SnapLen  uint32
	Records  []Record
}

// Read opens path and decodes every record.
func Read(path string) (*Capture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a capture stream.
func Decode(r io.Reader) (*Capture, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	c := &Capture{LinkType: pr.LinkType(), SnapLen: pr.Snaplen()}
	for i := 0; ; i++ {
		data, ci, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return c, nil
		}
		if err != nil {
			return c, fmt.Errorf("record %d: %w", i, err)
		}
		rec, err := decodeRecord(data, ci)
		if err != nil {
			return c, fmt.Errorf("record %d: %w", i, err)
		}
		c.Records = append(c.Records, rec)
	}
}

func decodeRecord(data []byte, ci gopacket.CaptureInfo) (Record, error) {
	rec := Record{
		Timestamp:     ci.Timestamp,
		CaptureLength: ci.CaptureLength,
		Length:        ci.Length,
	}
	// Application layers guessed from well-known ports may fail to decode;
	// only the IP and TCP layers matter here.
	pkt := gopacket.NewPacket(data, layers.LinkTypeRaw, gopacket.Default)
	if pkt.Layer(layers.LayerTypeTCP) == nil {
		if el := pkt.ErrorLayer(); el != nil {
			return rec, fmt.Errorf("decode: %w", el.Error())
		}
	}

	switch ip := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		rec.Family = core.FamilyIPv4
		rec.DeclaredLength = int(ip.Length)
		rec.HeaderLength = int(ip.IHL) * 4
		rec.SrcIP, rec.DstIP = ip.SrcIP, ip.DstIP
	case *layers.IPv6:
		rec.Family = core.FamilyIPv6
		rec.DeclaredLength = int(ip.Length)
		rec.HeaderLength = 40
		rec.SrcIP, rec.DstIP = ip.SrcIP, ip.DstIP
	default:
		return rec, errors.New("no IP layer")
	}

	tcp, ok := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	if !ok {
		return rec, errors.New("no TCP layer")
	}
	rec.HeaderLength += int(tcp.DataOffset) * 4
	rec.SrcPort = uint16(tcp.SrcPort)
	rec.DstPort = uint16(tcp.DstPort)
	rec.Seq = tcp.Seq
	rec.SYN, rec.PSH, rec.ACK = tcp.SYN, tcp.PSH, tcp.ACK
	rec.Payload = tcp.Payload
	return rec, nil
}

// Flow is the per 4-tuple summary of a capture.
type Flow struct {
	Src     string
	Dst     string
	Records int
	Bytes   int
	NextSeq uint32
}

// Flows groups records by source and destination endpoint, in order of
// first appearance.
func (c *Capture) Flows() []Flow {
	idx := make(map[string]int)
	var flows []Flow
	for _, r := range c.Records {
		src := net.JoinHostPort(r.SrcIP.String(), fmt.Sprint(r.SrcPort))
		dst := net.JoinHostPort(r.DstIP.String(), fmt.Sprint(r.DstPort))
		key := src + ">" + dst
		i, ok := idx[key]
		if !ok {
			i = len(flows)
			idx[key] = i
			flows = append(flows, Flow{Src: src, Dst: dst})
		}
		flows[i].Records++
		flows[i].Bytes += len(r.Payload)
		flows[i].NextSeq = r.Seq + uint32(len(r.Payload))
	}
	return flows
}

// Families returns the distinct address families present, sorted.
func (c *Capture) Families() []core.Family {
	seen := make(map[core.Family]bool)
	for _, r := range c.Records {
		seen[r.Family] = true
	}
	out := make([]core.Family, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
