package types

import (
	"net"
	"time"
)

// Address is a resolved probe target
type Address struct {
	IP       net.IP `json:"ip"`
	Hostname string `json:"hostname,omitempty"`
}

// NewAddress wraps an already known IP
func NewAddress(ip net.IP) Address {
	return Address{IP: ip}
}

// IsIPv6 reports whether the address needs the v6 variants of probes
func (a Address) IsIPv6() bool {
	return a.IP != nil && a.IP.To4() == nil
}

func (a Address) String() string {
	if a.IP == nil {
		return a.Hostname
	}
	return a.IP.String()
}

// ErrorKind classifies why a probe did not reach its target
type ErrorKind string

const (
	ErrorNone        ErrorKind = ""
	ErrorTimeout     ErrorKind = "timeout"
	ErrorUnreachable ErrorKind = "unreachable"
	ErrorPartialLoss ErrorKind = "partial-loss"
	ErrorParse       ErrorKind = "parse-failure"
	ErrorInterrupted ErrorKind = "interrupted"
	ErrorResolution  ErrorKind = "resolution"
)

// Strategy names the mechanism that produced a probe result
type Strategy string

const (
	StrategyNative  Strategy = "native"
	StrategyICMP    Strategy = "icmp"
	StrategyTCPEcho Strategy = "tcp-echo"
)

// ProbeResult is the outcome of one reachability probe
type ProbeResult struct {
	Address  Address       `json:"address"`
	Reached  bool          `json:"reached"`
	Elapsed  time.Duration `json:"elapsed"`
	Error    ErrorKind     `json:"error,omitempty"`
	Detail   string        `json:"detail,omitempty"`
	Raw      string        `json:"raw,omitempty"`
	Strategy Strategy      `json:"strategy,omitempty"`
}

// Lost reports whether the probe counts as lost for statistics
func (r ProbeResult) Lost() bool {
	return !r.Reached || r.Error != ErrorNone
}

// ProbeStats aggregates a stream of probe results
type ProbeStats struct {
	Address   Address       `json:"address"`
	Attempted int           `json:"attempted"`
	Lost      int           `json:"lost"`
	Min       time.Duration `json:"min"`
	Avg       time.Duration `json:"avg"`
	Max       time.Duration `json:"max"`
	Reachable bool          `json:"reachable"`
}

// StatsBuilder accumulates ProbeStats. The result does not depend on the
// order in which results are added.
type StatsBuilder struct {
	address   Address
	attempted int
	lost      int
	total     time.Duration
	min       time.Duration
	max       time.Duration
	sampled   bool
}

// NewStatsBuilder creates a builder for address
func NewStatsBuilder(address Address) *StatsBuilder {
	return &StatsBuilder{address: address}
}

// Add folds one result into the aggregate
func (b *StatsBuilder) Add(result ProbeResult) {
	b.attempted++
	if result.Lost() {
		b.lost++
		return
	}
	b.total += result.Elapsed
	if !b.sampled {
		b.min, b.max = result.Elapsed, result.Elapsed
		b.sampled = true
		return
	}
	if result.Elapsed < b.min {
		b.min = result.Elapsed
	}
	if result.Elapsed > b.max {
		b.max = result.Elapsed
	}
}

// Build returns the stats for everything added so far
func (b *StatsBuilder) Build() ProbeStats {
	stats := ProbeStats{
		Address:   b.address,
		Attempted: b.attempted,
		Lost:      b.lost,
		Min:       b.min,
		Max:       b.max,
		Reachable: b.attempted-b.lost > 0,
	}
	if received := b.attempted - b.lost; received > 0 {
		stats.Avg = b.total / time.Duration(received)
	}
	return stats
}

// PortState is the observed state of one port
type PortState string

const (
	PortOpen         PortState = "open"
	PortClosed       PortState = "closed"
	PortOpenFiltered PortState = "open|filtered"
	PortUnknown      PortState = "unknown"
)

// PortResult is produced once per probed port
type PortResult struct {
	Address   Address   `json:"address"`
	Port      int       `json:"port"`
	Transport Transport `json:"transport"`
	Open      bool      `json:"open"`
	State     PortState `json:"state"`
}

// ScanSummary is the aggregate of a port scan
type ScanSummary struct {
	Address   Address       `json:"address"`
	OpenPorts []int         `json:"open_ports"`
	Scanned   int           `json:"scanned"`
	Elapsed   time.Duration `json:"elapsed"`
	Cancelled bool          `json:"cancelled,omitempty"`
}

// Device is a live host found by a subnet sweep
type Device struct {
	IP       net.IP           `json:"ip"`
	Hostname string           `json:"hostname,omitempty"`
	MAC      net.HardwareAddr `json:"mac,omitempty"`
	RTT      time.Duration    `json:"rtt"`
}

// SweepSummary is the aggregate of a subnet sweep
type SweepSummary struct {
	Devices   []Device      `json:"devices"`
	Probed    int           `json:"probed"`
	Elapsed   time.Duration `json:"elapsed"`
	Cancelled bool          `json:"cancelled,omitempty"`
}

// NeighborEntry is one IP to hardware address association
type NeighborEntry struct {
	IP  net.IP           `json:"ip"`
	MAC net.HardwareAddr `json:"mac"`
}

// HopRecord is one line of a traceroute
type HopRecord struct {
	Hop      int           `json:"hop"`
	IP       string        `json:"ip,omitempty"`
	Hostname string        `json:"hostname,omitempty"`
	Elapsed  time.Duration `json:"elapsed,omitempty"`
	Terminal bool          `json:"terminal"`
	Raw      string        `json:"-"`
}

// TraceSummary is the aggregate of a traceroute
type TraceSummary struct {
	Address   Address     `json:"address"`
	Hops      []HopRecord `json:"hops"`
	Reached   bool        `json:"reached"`
	Cancelled bool        `json:"cancelled,omitempty"`
}
