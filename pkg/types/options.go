package types

import (
	"fmt"
	"sort"
	"time"

	sliceutil "github.com/projectdiscovery/utils/slice"
)

const (
	MinPort = 1
	MaxPort = 65535

	// DefaultTTL matches the hop limit most platforms use for echo requests
	DefaultTTL = 128
	// DefaultTimeout is used by single probes when no timeout was configured
	DefaultTimeout = time.Second
)

// Transport selects how a port is probed
type Transport int

const (
	TCP Transport = iota
	UDP
)

func (t Transport) String() string {
	switch t {
	case TCP:
		return "tcp"
	case UDP:
		return "udp"
	default:
		return "unknown"
	}
}

// MarshalText encodes the transport by name
func (t Transport) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseTransport converts a transport name to a Transport
func ParseTransport(value string) (Transport, error) {
	switch value {
	case "tcp", "TCP", "":
		return TCP, nil
	case "udp", "UDP":
		return UDP, nil
	}
	return TCP, NewValidationError("transport", "invalid transport %q (must be tcp or udp)", value)
}

// ProbeOptions is the validated configuration shared by every engine.
// Zero Timeout and zero Threads mean "tune from the target".
type ProbeOptions struct {
	Timeout   time.Duration
	TTL       int
	Delay     time.Duration
	Times     int
	Threads   int
	Ports     []int
	Transport Transport
	MaxHops   int

	// DisableNeighborFile skips the neighbor cache file during sweeps
	DisableNeighborFile bool
}

// Option mutates ProbeOptions during construction
type Option func(*ProbeOptions) error

// NewProbeOptions builds ProbeOptions from defaults and the given options.
// Any invalid value fails the whole construction.
func NewProbeOptions(opts ...Option) (ProbeOptions, error) {
	options := ProbeOptions{
		TTL:       DefaultTTL,
		Times:     1,
		Transport: TCP,
		MaxHops:   30,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&options); err != nil {
			return ProbeOptions{}, err
		}
	}
	return options, nil
}

// MustProbeOptions is like NewProbeOptions but panics on invalid input
func MustProbeOptions(opts ...Option) ProbeOptions {
	options, err := NewProbeOptions(opts...)
	if err != nil {
		panic(err)
	}
	return options
}

func WithTimeout(timeout time.Duration) Option {
	return func(o *ProbeOptions) error {
		if timeout < 0 {
			return NewValidationError("timeout", "timeout cannot be less than 0")
		}
		o.Timeout = timeout
		return nil
	}
}

func WithTTL(ttl int) Option {
	return func(o *ProbeOptions) error {
		if ttl < 1 {
			return NewValidationError("ttl", "time to live cannot be less than 1")
		}
		o.TTL = ttl
		return nil
	}
}

func WithDelay(delay time.Duration) Option {
	return func(o *ProbeOptions) error {
		if delay < 0 {
			return NewValidationError("delay", "delay cannot be less than 0")
		}
		o.Delay = delay
		return nil
	}
}

// WithTimes sets the repeat count, 0 repeats until cancelled
func WithTimes(times int) Option {
	return func(o *ProbeOptions) error {
		if times < 0 {
			return NewValidationError("times", "times cannot be less than 0")
		}
		o.Times = times
		return nil
	}
}

func WithThreads(threads int) Option {
	return func(o *ProbeOptions) error {
		if threads < 1 {
			return NewValidationError("threads", "cannot have less than 1 thread")
		}
		o.Threads = threads
		return nil
	}
}

func WithMaxHops(hops int) Option {
	return func(o *ProbeOptions) error {
		if hops < 1 {
			return NewValidationError("max-hops", "max hops cannot be less than 1")
		}
		o.MaxHops = hops
		return nil
	}
}

// WithPorts replaces the port set, duplicates are dropped and the ports sorted
func WithPorts(ports ...int) Option {
	return func(o *ProbeOptions) error {
		for _, port := range ports {
			if err := ValidatePort(port); err != nil {
				return err
			}
		}
		o.Ports = sliceutil.Dedupe(ports)
		sort.Ints(o.Ports)
		return nil
	}
}

func WithTransport(transport Transport) Option {
	return func(o *ProbeOptions) error {
		if transport != TCP && transport != UDP {
			return NewValidationError("transport", "invalid transport %d", transport)
		}
		o.Transport = transport
		return nil
	}
}

func WithoutNeighborFile() Option {
	return func(o *ProbeOptions) error {
		o.DisableNeighborFile = true
		return nil
	}
}

// ValidatePort checks that port is within 1-65535
func ValidatePort(port int) error {
	if port < MinPort {
		return NewValidationError("port", "port cannot be less than %d (got %d)", MinPort, port)
	}
	if port > MaxPort {
		return NewValidationError("port", "port cannot be greater than %d (got %d)", MaxPort, port)
	}
	return nil
}

// TimeoutOr returns the configured timeout, or fallback when none was set
func (o ProbeOptions) TimeoutOr(fallback time.Duration) time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return fallback
}

// ThreadsOr returns the configured worker count, or fallback when none was set
func (o ProbeOptions) ThreadsOr(fallback int) int {
	if o.Threads > 0 {
		return o.Threads
	}
	return fallback
}

func (o ProbeOptions) String() string {
	return fmt.Sprintf("timeout=%s ttl=%d delay=%s times=%d threads=%d ports=%d transport=%s",
		o.Timeout, o.TTL, o.Delay, o.Times, o.Threads, len(o.Ports), o.Transport)
}
