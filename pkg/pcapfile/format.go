// Package pcapfile writes libpcap capture files of raw IP packets.
//
// All header fields are big-endian. The global header is written once per
// file, when the file is first found missing or empty; every record is then
// appended with a single write so concurrent writers never interleave bytes
// within a record. A failure in the middle of that write can still leave a
// truncated trailing record behind.
package pcapfile

import (
	"encoding/binary"
	"time"
)

const (
	// Magic is the libpcap magic number (microsecond timestamps).
	Magic uint32 = 0xa1b2c3d4
	// VersionMajor and VersionMinor are the file format version (2.4).
	VersionMajor uint16 = 2
	VersionMinor uint16 = 4
	// SnapLen is the declared maximum captured length.
	SnapLen uint32 = 65535
	// LinkTypeRaw is LINKTYPE_RAW: packets start with an IPv4 or IPv6 header.
	LinkTypeRaw uint32 = 101

	// GlobalHeaderLen is the size of the file header.
	GlobalHeaderLen = 24
	// RecordHeaderLen is the size of a per-record header.
	RecordHeaderLen = 16
)

// GlobalHeader returns the 24-byte file header.
func GlobalHeader() []byte {
	hdr := make([]byte, GlobalHeaderLen)
	binary.BigEndian.PutUint32(hdr[0:4], Magic)
	binary.BigEndian.PutUint16(hdr[4:6], VersionMajor)
	binary.BigEndian.PutUint16(hdr[6:8], VersionMinor)
	// 8:12 thiszone (0), 12:16 sigfigs (0)
	binary.BigEndian.PutUint32(hdr[16:20], SnapLen)
	binary.BigEndian.PutUint32(hdr[20:24], LinkTypeRaw)
	return hdr
}

// putRecordHeader fills b[0:16] for a record of n bytes captured at ts.
// Seconds are stored as two big-endian 16-bit halves, high half first.
func putRecordHeader(b []byte, ts time.Time, n int) {
	sec := uint32(ts.Unix())
	binary.BigEndian.PutUint16(b[0:2], uint16(sec>>16))
	binary.BigEndian.PutUint16(b[2:4], uint16(sec))
	binary.BigEndian.PutUint32(b[4:8], uint32(ts.Nanosecond()/1000))
	binary.BigEndian.PutUint32(b[8:12], uint32(n))
	binary.BigEndian.PutUint32(b[12:16], uint32(n))
}
