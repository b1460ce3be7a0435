package runner

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/netprobe/pkg/output"
	"github.com/projectdiscovery/netprobe/pkg/peerdiscovery/neighbor"
	"github.com/projectdiscovery/netprobe/pkg/peerdiscovery/sweep"
	"github.com/projectdiscovery/netprobe/pkg/probe/ping"
	"github.com/projectdiscovery/netprobe/pkg/probe/port"
	"github.com/projectdiscovery/netprobe/pkg/probe/traceroute"
	"github.com/projectdiscovery/netprobe/pkg/resolve"
	"github.com/projectdiscovery/netprobe/pkg/types"
)

// Runner contains the internal logic of the program
type Runner struct {
	options   *Options
	probeOpts types.ProbeOptions
	resolver  *resolve.Resolver
	writers   []*output.Writer
}

// NewRunner instance
func NewRunner(options *Options) (*Runner, error) {
	probeOpts, err := options.probeOptions()
	if err != nil {
		return nil, err
	}

	r := &Runner{
		options:   options,
		probeOpts: probeOpts,
		resolver:  resolve.New(resolve.Options{Servers: options.Resolvers}),
	}
	if options.JSON {
		r.writers = append(r.writers, output.New(os.Stdout, output.Options{}))
	}
	if options.Output != "" {
		writer, err := output.NewFile(options.Output, output.Options{})
		if err != nil {
			return nil, err
		}
		r.writers = append(r.writers, writer)
	}
	return r, nil
}

// Run the selected mode until it finishes or ctx is cancelled
func (r *Runner) Run(ctx context.Context) error {
	switch {
	case r.options.Ping != "":
		return r.runPing(ctx)
	case r.options.Ports != "":
		return r.runPorts(ctx)
	case r.options.Sweep != "", r.options.SweepLocal, len(r.options.SweepList) > 0:
		return r.runSweep(ctx)
	case r.options.Trace != "":
		return r.runTrace(ctx)
	case r.options.Neighbors:
		return r.runNeighbors(ctx)
	}
	return nil
}

// Close flushes every output writer
func (r *Runner) Close() {
	for _, writer := range r.writers {
		if err := writer.Close(); err != nil {
			gologger.Warning().Msgf("Could not write output: %s\n", err)
		}
	}
}

func (r *Runner) runPing(ctx context.Context) error {
	addr, err := r.resolver.Resolve(ctx, r.options.Ping)
	if err != nil {
		return r.fail("ping", err)
	}
	gologger.Info().Msgf("Pinging %s", describe(addr))

	stats, err := ping.New().ProbeRepeated(ctx, addr, r.probeOpts).Wait(func(result types.ProbeResult) {
		r.partial("ping", result)
		switch {
		case result.Reached:
			r.print("%s reply from %s: time=%v (%s)", au.Green("[+]"), addr, result.Elapsed, result.Strategy)
		case result.Error != types.ErrorInterrupted:
			r.print("%s %s: %s", au.Red("[-]"), addr, result.Error)
		}
	})
	if err != nil {
		return r.fail("ping", err)
	}
	r.done("ping", stats)

	if stats.Attempted == 0 {
		gologger.Warning().Msgf("%s before the first echo request", types.ErrCancelled)
		return nil
	}
	r.print("%d sent, %d lost, min/avg/max = %v/%v/%v", stats.Attempted, stats.Lost, stats.Min, stats.Avg, stats.Max)
	return nil
}

func (r *Runner) runPorts(ctx context.Context) error {
	addr, err := r.resolver.Resolve(ctx, r.options.Ports)
	if err != nil {
		return r.fail("ports", err)
	}
	gologger.Info().Msgf("Scanning %d %s ports on %s", len(r.probeOpts.Ports), r.probeOpts.Transport, describe(addr))

	summary, err := port.NewEngine().ScanAsync(ctx, addr, r.probeOpts).Wait(func(result types.PortResult) {
		r.partial("ports", result)
		if result.Open {
			r.print("%s %s/%s", au.Green(net.JoinHostPort(addr.String(), fmt.Sprint(result.Port))), result.Transport, result.State)
			return
		}
		gologger.Verbose().Msgf("%d/%s %s", result.Port, result.Transport, result.State)
	})
	if err != nil {
		return r.fail("ports", err)
	}
	r.done("ports", summary)

	r.warnCancelled(summary.Cancelled)
	gologger.Info().Msgf("Found %d open ports out of %d in %v", len(summary.OpenPorts), summary.Scanned, summary.Elapsed)
	return nil
}

func (r *Runner) runSweep(ctx context.Context) error {
	engineOpts := []sweep.Option{sweep.WithCoverage(float64(r.options.Coverage) / 100)}
	if r.options.NoReverse {
		engineOpts = append(engineOpts, sweep.WithResolver(nil))
	} else {
		engineOpts = append(engineOpts, sweep.WithResolver(r.resolver))
	}
	engine := sweep.NewEngine(engineOpts...)

	var op *types.Operation[types.Device, types.SweepSummary]
	switch {
	case r.options.SweepLocal:
		op = engine.FindFromLocal(ctx, r.probeOpts)
	case len(r.options.SweepList) > 0:
		ips := make([]net.IP, 0, len(r.options.SweepList))
		for _, host := range r.options.SweepList {
			addr, err := r.resolver.Resolve(ctx, host)
			if err != nil {
				return r.fail("sweep", err)
			}
			ips = append(ips, addr.IP)
		}
		op = engine.FindList(ctx, ips, r.probeOpts)
	default:
		addr, err := r.resolver.Resolve(ctx, r.options.Sweep)
		if err != nil {
			return r.fail("sweep", err)
		}
		op = engine.FindAsync(ctx, addr.IP, r.probeOpts)
	}

	summary, err := op.Wait(func(device types.Device) {
		r.partial("sweep", device)
		gologger.Verbose().Msgf("%s is up (%v)", device.IP, device.RTT)
	})
	if err != nil {
		return r.fail("sweep", err)
	}
	r.done("sweep", summary)

	for _, device := range summary.Devices {
		r.print("%s", formatDevice(device))
	}
	r.warnCancelled(summary.Cancelled)
	gologger.Info().Msgf("Found %d devices out of %d probed in %v", len(summary.Devices), summary.Probed, summary.Elapsed)
	return nil
}

func (r *Runner) runTrace(ctx context.Context) error {
	addr, err := r.resolver.Resolve(ctx, r.options.Trace)
	if err != nil {
		return r.fail("trace", err)
	}
	gologger.Info().Msgf("Tracing route to %s, %d hops max", describe(addr), r.probeOpts.MaxHops)

	summary, err := traceroute.NewEngine(nil).TraceAsync(ctx, addr, r.probeOpts).Wait(func(hop types.HopRecord) {
		r.partial("trace", hop)
		line := fmt.Sprintf("%2d  %s", hop.Hop, hop.IP)
		if hop.Hostname != "" {
			line = fmt.Sprintf("%2d  %s (%s)", hop.Hop, hop.Hostname, hop.IP)
		}
		if hop.Terminal {
			line = fmt.Sprintf("%s  %v", au.Green(line), hop.Elapsed)
		}
		r.print("%s", line)
	})
	if err != nil {
		return r.fail("trace", err)
	}
	r.done("trace", summary)

	r.warnCancelled(summary.Cancelled)
	if !summary.Reached && !summary.Cancelled {
		gologger.Warning().Msgf("%s not reached within %d hops", addr, r.probeOpts.MaxHops)
	}
	return nil
}

func (r *Runner) runNeighbors(ctx context.Context) error {
	reader := neighbor.NewReader(nil)
	reader.DisableFile = r.options.NoArpFile

	entries := reader.Read(ctx).Entries()
	r.done("neighbors", entries)
	for _, entry := range entries {
		r.print("%-40s %s", entry.IP, entry.MAC)
	}
	gologger.Info().Msgf("Found %d neighbors", len(entries))
	return nil
}

func (r *Runner) print(format string, args ...any) {
	if r.options.JSON {
		return
	}
	gologger.Silent().Msgf(format, args...)
}

func (r *Runner) partial(command string, data any) {
	for _, writer := range r.writers {
		writer.Partial(command, data)
	}
}

func (r *Runner) done(command string, data any) {
	for _, writer := range r.writers {
		writer.Done(command, data)
	}
}

func (r *Runner) fail(command string, err error) error {
	for _, writer := range r.writers {
		writer.Failed(command, err)
	}
	return err
}

func (r *Runner) warnCancelled(cancelled bool) {
	if cancelled {
		gologger.Warning().Msgf("%s, results are partial", types.ErrCancelled)
	}
}

func describe(addr types.Address) string {
	if addr.Hostname == "" {
		return addr.String()
	}
	return fmt.Sprintf("%s (%s)", addr.Hostname, addr.IP)
}

func formatDevice(device types.Device) string {
	fields := []string{fmt.Sprintf("%-15s", device.IP)}
	if device.MAC != nil {
		fields = append(fields, device.MAC.String())
	} else {
		fields = append(fields, fmt.Sprintf("%-17s", "-"))
	}
	fields = append(fields, fmt.Sprintf("%8v", device.RTT))
	if device.Hostname != "" {
		fields = append(fields, device.Hostname)
	}
	return strings.Join(fields, "  ")
}
