package port

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/netprobe/pkg/probe/classify"
	"github.com/projectdiscovery/netprobe/pkg/types"
	mapsutil "github.com/projectdiscovery/utils/maps"
	syncutil "github.com/projectdiscovery/utils/sync"
)

// ProbeFunc checks one port
type ProbeFunc func(ctx context.Context, addr types.Address, port int, transport types.Transport, timeout time.Duration) types.PortResult

// Engine scans the ports of a single host with a bounded worker pool
type Engine struct {
	classifier *classify.Classifier
	probe      ProbeFunc
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithClassifier sets the classifier used for auto-tuning
func WithClassifier(classifier *classify.Classifier) EngineOption {
	return func(e *Engine) {
		e.classifier = classifier
	}
}

// WithProbeFunc replaces the per-port probe
func WithProbeFunc(probe ProbeFunc) EngineOption {
	return func(e *Engine) {
		e.probe = probe
	}
}

// NewEngine creates a port scan engine
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{probe: Probe}
	for _, opt := range opts {
		opt(e)
	}
	if e.classifier == nil {
		e.classifier = classify.New()
	}
	return e
}

// Scan scans opts.Ports on addr and blocks until the scan ends
func (e *Engine) Scan(ctx context.Context, addr types.Address, opts types.ProbeOptions) (types.ScanSummary, error) {
	return e.ScanAsync(ctx, addr, opts).Wait(nil)
}

// ScanAsync scans opts.Ports on addr, emitting one result per probed port.
// Timeout and thread count are tuned from the target unless set.
func (e *Engine) ScanAsync(ctx context.Context, addr types.Address, opts types.ProbeOptions) *types.Operation[types.PortResult, types.ScanSummary] {
	op := types.NewOperation[types.PortResult, types.ScanSummary](64)
	go e.run(ctx, op, addr, opts)
	return op
}

func (e *Engine) run(ctx context.Context, op *types.Operation[types.PortResult, types.ScanSummary], addr types.Address, opts types.ProbeOptions) {
	if addr.IP == nil {
		op.Fail(types.NewValidationError("address", "no ip address for %s", addr))
		return
	}
	if len(opts.Ports) == 0 {
		op.Fail(types.NewValidationError("ports", "no ports to scan"))
		return
	}

	tuning := e.classifier.TuningFor(addr.IP)
	timeout := opts.TimeoutOr(tuning.Timeout)
	threads := opts.ThreadsOr(tuning.Threads)
	gologger.Verbose().Msgf("scanning %d %s ports on %s with %d threads, timeout %v", len(opts.Ports), opts.Transport, addr, threads, timeout)

	awg, err := syncutil.New(syncutil.WithSize(threads))
	if err != nil {
		op.Fail(fmt.Errorf("failed to create worker pool: %w", err))
		return
	}

	openPorts := mapsutil.NewSyncLockMap[int, struct{}]()
	var scanned atomic.Int64
	// probes already dispatched run to their own timeout
	probeCtx := context.WithoutCancel(ctx)
	start := time.Now()

	for _, port := range opts.Ports {
		if op.Cancelled() {
			break
		}
		select {
		case <-ctx.Done():
			goto done
		default:
		}

		awg.Add()
		go func(port int) {
			defer awg.Done()

			if op.Cancelled() || ctx.Err() != nil {
				return
			}
			result := e.probe(probeCtx, addr, port, opts.Transport, timeout)
			scanned.Add(1)
			if result.Open {
				_ = openPorts.Set(port, struct{}{})
			}
			op.Emit(result)
		}(port)
	}

done:
	awg.Wait()

	ports := make([]int, 0)
	for port := range openPorts.GetAll() {
		ports = append(ports, port)
	}
	sort.Ints(ports)

	op.Finish(types.ScanSummary{
		Address:   addr,
		OpenPorts: ports,
		Scanned:   int(scanned.Load()),
		Elapsed:   time.Since(start),
		Cancelled: op.Cancelled() || ctx.Err() != nil,
	})
}
