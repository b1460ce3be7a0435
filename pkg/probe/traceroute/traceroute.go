package traceroute

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/netprobe/pkg"
	"github.com/projectdiscovery/netprobe/pkg/probe/ping"
	"github.com/projectdiscovery/netprobe/pkg/types"
)

const (
	DefaultMaxHops = 30

	// MaxHopTimeout caps the wait for each hop
	MaxHopTimeout = time.Second

	commandGrace = 2 * time.Second
)

// Engine traces the route to a target by sending echo requests with an
// increasing TTL through the native ping command
type Engine struct {
	native *ping.Native
}

// NewEngine creates a traceroute engine, a nil runner uses os/exec
func NewEngine(runner pkg.CommandRunner) *Engine {
	return &Engine{native: ping.NewNative(runner)}
}

// NewEngineWithNative creates an engine around a configured native pinger
func NewEngineWithNative(native *ping.Native) *Engine {
	return &Engine{native: native}
}

// Trace runs a traceroute and blocks until it ends
func (e *Engine) Trace(ctx context.Context, addr types.Address, opts types.ProbeOptions) (types.TraceSummary, error) {
	return e.TraceAsync(ctx, addr, opts).Wait(nil)
}

// TraceAsync emits a HopRecord for every hop that answered. Silent hops are
// skipped. The trace stops at the destination, at the hop limit, or when cancelled.
func (e *Engine) TraceAsync(ctx context.Context, addr types.Address, opts types.ProbeOptions) *types.Operation[types.HopRecord, types.TraceSummary] {
	op := types.NewOperation[types.HopRecord, types.TraceSummary](DefaultMaxHops)
	if addr.IP == nil {
		op.Fail(types.NewValidationError("address", "traceroute needs a resolved address"))
		return op
	}
	go e.run(ctx, op, addr, opts)
	return op
}

func (e *Engine) run(ctx context.Context, op *types.Operation[types.HopRecord, types.TraceSummary], addr types.Address, opts types.ProbeOptions) {
	maxHops := opts.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	timeout := opts.TimeoutOr(MaxHopTimeout)
	if timeout > MaxHopTimeout {
		timeout = MaxHopTimeout
	}

	summary := types.TraceSummary{Address: addr, Hops: []types.HopRecord{}}

hops:
	for hop := 1; hop <= maxHops; hop++ {
		if op.Cancelled() || ctx.Err() != nil {
			summary.Cancelled = true
			break
		}

		binary, args := e.native.Command(addr, timeout, hop)
		gologger.Verbose().Msgf("hop %d: %s %s", hop, binary, strings.Join(args, " "))

		cmdCtx, cancel := context.WithTimeout(ctx, time.Duration(ping.TimeoutSeconds(timeout))*time.Second+commandGrace)
		output, err := e.native.Runner.Run(cmdCtx, binary, args...)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				summary.Cancelled = true
				break
			}
			op.Fail(&types.InvocationError{Command: binary, Err: err})
			return
		}

		text := output.Stdout + "\n" + output.Stderr
		if outcome, err := e.native.Dialect.Parse(text); err == nil && outcome.Error == types.ErrorResolution {
			op.Fail(&types.ResolutionError{Host: addr.String(), Err: errors.New(outcome.Detail)})
			return
		}

		reply := ParseHop(text)
		switch reply.Kind {
		case ReplyExceeded:
			record := types.HopRecord{Hop: hop, IP: reply.IP, Hostname: reply.Hostname, Raw: output.Stdout}
			summary.Hops = append(summary.Hops, record)
			op.Emit(record)
		case ReplyDestination:
			record := types.HopRecord{
				Hop:      hop,
				IP:       reply.IP,
				Hostname: reply.Hostname,
				Elapsed:  reply.Elapsed,
				Terminal: true,
				Raw:      output.Stdout,
			}
			summary.Hops = append(summary.Hops, record)
			summary.Reached = true
			op.Emit(record)
			break hops
		}
	}

	op.Finish(summary)
}
