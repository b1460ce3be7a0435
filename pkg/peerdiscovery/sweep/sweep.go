package sweep

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/netprobe/pkg/peerdiscovery/common"
	"github.com/projectdiscovery/netprobe/pkg/peerdiscovery/neighbor"
	"github.com/projectdiscovery/netprobe/pkg/peerdiscovery/prescan"
	"github.com/projectdiscovery/netprobe/pkg/probe/ping"
	"github.com/projectdiscovery/netprobe/pkg/resolve"
	"github.com/projectdiscovery/netprobe/pkg/types"
	mapsutil "github.com/projectdiscovery/utils/maps"
	syncutil "github.com/projectdiscovery/utils/sync"
)

const (
	DefaultThreads = 100
	DefaultTimeout = 2500 * time.Millisecond

	// snapshotTimeout bounds each neighbor read around the sweep
	snapshotTimeout = 5 * time.Second
)

// Pinger sends a single reachability probe
type Pinger interface {
	ProbeOnce(ctx context.Context, addr types.Address, opts types.ProbeOptions) types.ProbeResult
}

// HostResolver looks up the name of an address
type HostResolver interface {
	Reverse(ctx context.Context, ip net.IP) (string, error)
}

// Engine finds live devices on a segment
type Engine struct {
	pinger     Pinger
	neighbors  *neighbor.Reader
	resolver   HostResolver
	coverage   float64
	localAddrs func() ([]common.InterfaceAddr, error)
}

// Option configures an Engine
type Option func(*Engine)

func WithPinger(pinger Pinger) Option {
	return func(e *Engine) {
		e.pinger = pinger
	}
}

func WithNeighborReader(reader *neighbor.Reader) Option {
	return func(e *Engine) {
		e.neighbors = reader
	}
}

// WithResolver sets the reverse lookup used for device names, nil disables it
func WithResolver(resolver HostResolver) Option {
	return func(e *Engine) {
		e.resolver = resolver
	}
}

// WithCoverage probes only the most likely share of a segment, between 0 and 1.
// Addresses already in the neighbor cache are always probed.
func WithCoverage(ratio float64) Option {
	return func(e *Engine) {
		e.coverage = ratio
	}
}

// WithInterfaceAddrs replaces the local interface lookup used by FindFromLocal
func WithInterfaceAddrs(fn func() ([]common.InterfaceAddr, error)) Option {
	return func(e *Engine) {
		e.localAddrs = fn
	}
}

// NewEngine creates a sweep engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		pinger:     ping.New(),
		neighbors:  neighbor.NewReader(nil),
		resolver:   resolve.New(resolve.Options{}),
		coverage:   1,
		localAddrs: common.InterfaceAddrs,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Find sweeps the /24 holding seed and blocks until the sweep ends
func (e *Engine) Find(ctx context.Context, seed net.IP, opts types.ProbeOptions) (types.SweepSummary, error) {
	return e.FindAsync(ctx, seed, opts).Wait(nil)
}

// FindAsync sweeps the /24 holding seed. Addresses from the neighbor cache
// are probed first, then the rest of the segment. Every live device is
// emitted once; the summary carries hardware addresses learned after the sweep.
func (e *Engine) FindAsync(ctx context.Context, seed net.IP, opts types.ProbeOptions) *types.Operation[types.Device, types.SweepSummary] {
	op := types.NewOperation[types.Device, types.SweepSummary](64)

	network, err := common.Network24(seed)
	if err != nil {
		op.Fail(types.NewValidationError("seed", "invalid sweep seed: %v", err))
		return op
	}

	cidr := network.String()
	go e.run(ctx, op, func() ([]net.IP, *net.IPNet, error) {
		ips, segment, err := prescan.Order(cidr)
		if err != nil {
			return nil, nil, err
		}
		return prescan.Select(ips, e.coverage), segment, nil
	}, opts)
	return op
}

// FindFromLocal sweeps the /24 of the first non-loopback IPv4 address
func (e *Engine) FindFromLocal(ctx context.Context, opts types.ProbeOptions) *types.Operation[types.Device, types.SweepSummary] {
	addrs, err := e.localAddrs()
	if err == nil {
		var ip net.IP
		if ip, err = common.LocalIPv4(addrs); err == nil {
			gologger.Verbose().Msgf("sweeping from local address %s", ip)
			return e.FindAsync(ctx, ip, opts)
		}
	}

	op := types.NewOperation[types.Device, types.SweepSummary](1)
	op.Fail(fmt.Errorf("failed to find local address: %w", err))
	return op
}

// FindList probes exactly the given addresses
func (e *Engine) FindList(ctx context.Context, ips []net.IP, opts types.ProbeOptions) *types.Operation[types.Device, types.SweepSummary] {
	op := types.NewOperation[types.Device, types.SweepSummary](64)
	if len(ips) == 0 {
		op.Fail(types.NewValidationError("targets", "no addresses to sweep"))
		return op
	}

	go e.run(ctx, op, func() ([]net.IP, *net.IPNet, error) {
		return ips, nil, nil
	}, opts)
	return op
}

func (e *Engine) run(ctx context.Context, op *types.Operation[types.Device, types.SweepSummary], targets func() ([]net.IP, *net.IPNet, error), opts types.ProbeOptions) {
	start := time.Now()

	candidates, network, err := targets()
	if err != nil {
		op.Fail(err)
		return
	}

	reader := e.neighbors
	if reader != nil && opts.DisableNeighborFile {
		withoutFile := *reader
		withoutFile.DisableFile = true
		reader = &withoutFile
	}
	beforeCtx, cancelBefore := context.WithTimeout(ctx, snapshotTimeout)
	before := e.snapshot(beforeCtx, reader)
	cancelBefore()
	order := probeOrder(before, candidates, network)

	probeOpts := opts
	probeOpts.Timeout = opts.TimeoutOr(DefaultTimeout)
	threads := opts.ThreadsOr(DefaultThreads)
	gologger.Verbose().Msgf("sweeping %d addresses with %d threads, timeout %v", len(order), threads, probeOpts.Timeout)

	awg, err := syncutil.New(syncutil.WithSize(threads))
	if err != nil {
		op.Fail(fmt.Errorf("failed to create worker pool: %w", err))
		return
	}

	devices := newDeviceSet()
	var probed atomic.Int64

	for _, ip := range order {
		if op.Cancelled() {
			break
		}
		select {
		case <-ctx.Done():
			goto done
		default:
		}

		awg.Add()
		go func(ip net.IP) {
			defer awg.Done()

			if op.Cancelled() || ctx.Err() != nil {
				return
			}
			result := e.pinger.ProbeOnce(ctx, types.NewAddress(ip), probeOpts)
			probed.Add(1)
			if result.Lost() {
				return
			}

			device := &types.Device{IP: ip, RTT: result.Elapsed}
			if mac, ok := before.MACForIP(ip); ok {
				device.MAC = mac
			}
			if e.resolver != nil {
				if name, err := e.resolver.Reverse(ctx, ip); err == nil {
					device.Hostname = name
				}
			}

			if devices.add(device) {
				op.Emit(*device)
			}
		}(ip)
	}

done:
	awg.Wait()

	snapshotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotTimeout)
	after := e.snapshot(snapshotCtx, reader)
	cancel()

	found := make([]types.Device, 0)
	_ = devices.all.Iterate(func(_ string, device *types.Device) error {
		if device.MAC == nil {
			if mac, ok := after.MACForIP(device.IP); ok {
				device.MAC = mac
			}
		}
		found = append(found, *device)
		return nil
	})
	sort.Slice(found, func(i, j int) bool {
		return bytes.Compare(found[i].IP.To16(), found[j].IP.To16()) < 0
	})

	op.Finish(types.SweepSummary{
		Devices:   found,
		Probed:    int(probed.Load()),
		Elapsed:   time.Since(start),
		Cancelled: op.Cancelled() || ctx.Err() != nil,
	})
}

func (e *Engine) snapshot(ctx context.Context, reader *neighbor.Reader) neighbor.Table {
	if reader == nil {
		return neighbor.Table{}
	}
	return reader.Read(ctx)
}

// probeOrder puts cached neighbors first and drops duplicates
func probeOrder(table neighbor.Table, candidates []net.IP, network *net.IPNet) []net.IP {
	seen := make(map[string]struct{}, len(candidates))
	order := make([]net.IP, 0, len(candidates))
	add := func(ip net.IP) {
		if ip4 := ip.To4(); ip4 != nil {
			ip = ip4
		}
		key := ip.String()
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		order = append(order, ip)
	}

	if network != nil {
		for _, ip := range table.InNetwork(network) {
			if !common.IsNetworkOrBroadcast(ip, network) {
				add(ip)
			}
		}
	} else {
		for _, ip := range candidates {
			if _, ok := table.MACForIP(ip); ok {
				add(ip)
			}
		}
	}
	for _, ip := range candidates {
		add(ip)
	}
	return order
}

// deviceSet keeps the first device recorded per address
type deviceSet struct {
	mu  sync.Mutex
	all *mapsutil.SyncLockMap[string, *types.Device]
}

func newDeviceSet() *deviceSet {
	return &deviceSet{all: mapsutil.NewSyncLockMap[string, *types.Device]()}
}

// add records device and reports whether its address was new
func (s *deviceSet) add(device *types.Device) bool {
	key := device.IP.String()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.all.Has(key) {
		return false
	}
	_ = s.all.Set(key, device)
	return true
}
