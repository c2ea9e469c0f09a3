package core

// CaptureConfig contains configuration for the capture pipeline.
type CaptureConfig struct {
	// File is the capture file path. Records are appended; the global header
	// is written only when the file is missing or empty.
	File string `json:"file" yaml:"file"`

	// TTL is the IPv4 time-to-live written into synthesized headers.
	TTL int `json:"ttl" yaml:"ttl"`

	// HopLimit is the IPv6 hop limit written into synthesized headers.
	HopLimit int `json:"hop_limit" yaml:"hopLimit"`

	// Window is the TCP window size written into synthesized headers.
	Window int `json:"window" yaml:"window"`

	// Flags is the comma separated TCP flag set stamped on every record
	// (e.g. "SYN,PSH"). The real flag sequence cannot be recovered from
	// payload alone.
	Flags string `json:"flags" yaml:"flags"`

	// MaxSegment splits larger chunks into several records. 0 means the
	// largest payload a single record can carry.
	MaxSegment int `json:"max_segment" yaml:"maxSegment"`

	// Debug enables debug logging and payload copying.
	Debug bool `json:"debug" yaml:"debug"`
}
