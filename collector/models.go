package collector

import "time"

// Raw is the loosely-typed document a probe reports, shaped like the JSON
// output of speedtest-cli:
//
//	{
//	  "download": 93012345.6,        // bits/s
//	  "upload": 18501234.5,          // bits/s
//	  "bytes_sent": 24117248,
//	  "bytes_received": 117440512,
//	  "ping": 12.3,                  // ms
//	  "server": {"host": "speedtest.example.net:8080", "id": "4242"}
//	}
//
// Nothing may reach storage from a Raw without going through Validate.
type Raw map[string]any

// Result is a Raw that passed Validate.
type Result struct {
	Download      float64
	Upload        float64
	BytesSent     int64
	BytesReceived int64
	Ping          float64
	Server        ServerRef
}

// ServerRef identifies the endpoint a result was measured against.
type ServerRef struct {
	Host string
	ID   string
}

// Server describes a candidate test endpoint returned by discovery.
type Server struct {
	ID       string
	Host     string
	Name     string
	Sponsor  string
	Country  string
	Distance float64 // km
}

// Throughput is the outcome of one transfer phase.
type Throughput struct {
	BitsPerSecond float64
	Bytes         int64
}

// Probe timing knobs.
const (
	DefaultRetries = 3
	DefaultTimeout = 15 * time.Second
	DefaultBackoff = 10 * time.Second
)
