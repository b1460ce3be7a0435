package ping

import (
	"context"
	"time"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/netprobe/pkg"
	"github.com/projectdiscovery/netprobe/pkg/types"
)

// Strategy sends a single echo request. A returned error means the strategy
// could not produce an answer at all, as opposed to a lost probe.
type Strategy interface {
	Echo(ctx context.Context, addr types.Address, timeout time.Duration, ttl int) (types.ProbeResult, error)
}

// Prober checks host reachability with the native command and falls back to
// a socket echo when the command gives no usable answer.
type Prober struct {
	native   Strategy
	fallback Strategy
}

// ProberOption configures a Prober
type ProberOption func(*Prober)

// WithRunner runs the native command through runner
func WithRunner(runner pkg.CommandRunner) ProberOption {
	return func(p *Prober) {
		p.native = NewNative(runner)
	}
}

// WithNative replaces the native strategy, nil disables it
func WithNative(strategy Strategy) ProberOption {
	return func(p *Prober) {
		p.native = strategy
	}
}

// WithFallback replaces the fallback strategy, nil disables it
func WithFallback(strategy Strategy) ProberOption {
	return func(p *Prober) {
		p.fallback = strategy
	}
}

// New creates a prober using the platform ping command and the socket fallback
func New(opts ...ProberOption) *Prober {
	p := &Prober{
		native:   NewNative(pkg.DefaultRunner),
		fallback: NewSocket(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProbeOnce sends one echo request to addr. It always returns a result;
// failures are described by the result's error kind.
func (p *Prober) ProbeOnce(ctx context.Context, addr types.Address, opts types.ProbeOptions) types.ProbeResult {
	if ctx.Err() != nil {
		return interrupted(addr)
	}

	timeout := opts.TimeoutOr(types.DefaultTimeout)
	ttl := opts.TTL
	if ttl < 1 {
		ttl = types.DefaultTTL
	}

	if p.native != nil {
		result, err := p.native.Echo(ctx, addr, timeout, ttl)
		if err == nil {
			return result
		}
		gologger.Verbose().Msgf("native ping of %s failed, falling back: %v", addr, err)
	}

	if ctx.Err() != nil {
		return interrupted(addr)
	}
	if p.fallback == nil {
		return types.ProbeResult{Address: addr, Error: types.ErrorUnreachable, Detail: "no probe strategy available"}
	}

	result, err := p.fallback.Echo(ctx, addr, timeout, ttl)
	if err != nil {
		gologger.Verbose().Msgf("fallback ping of %s failed: %v", addr, err)
		return types.ProbeResult{Address: addr, Error: types.ErrorUnreachable, Detail: err.Error()}
	}
	return result
}

// ProbeRepeated probes addr opts.Times times (forever when zero), waiting
// opts.Delay between probes. Every probe is emitted as a partial result and
// the stats are delivered when the run ends or is cancelled.
func (p *Prober) ProbeRepeated(ctx context.Context, addr types.Address, opts types.ProbeOptions) *types.Operation[types.ProbeResult, types.ProbeStats] {
	op := types.NewOperation[types.ProbeResult, types.ProbeStats](16)
	go p.repeat(ctx, op, addr, opts)
	return op
}

func (p *Prober) repeat(ctx context.Context, op *types.Operation[types.ProbeResult, types.ProbeStats], addr types.Address, opts types.ProbeOptions) {
	stats := types.NewStatsBuilder(addr)
	defer func() {
		op.Finish(stats.Build())
	}()

	for i := 0; opts.Times == 0 || i < opts.Times; i++ {
		if op.Cancelled() || ctx.Err() != nil {
			return
		}

		result := p.ProbeOnce(ctx, addr, opts)
		op.Emit(result)
		if result.Error == types.ErrorInterrupted {
			return
		}
		stats.Add(result)

		if opts.Delay <= 0 || (opts.Times != 0 && i == opts.Times-1) {
			continue
		}
		timer := time.NewTimer(opts.Delay)
		select {
		case <-timer.C:
		case <-op.CancelCh():
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}
