package neighbor

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"sort"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/netprobe/pkg"
	"github.com/projectdiscovery/netprobe/pkg/types"
	mapsutil "github.com/projectdiscovery/utils/maps"
	osutils "github.com/projectdiscovery/utils/os"
)

// Table is a merged snapshot of the neighbor cache
type Table struct {
	entries []types.NeighborEntry
	byIP    map[string]net.HardwareAddr
}

func newTable(entries map[string]types.NeighborEntry) Table {
	table := Table{byIP: make(map[string]net.HardwareAddr, len(entries))}
	for key, entry := range entries {
		table.entries = append(table.entries, entry)
		table.byIP[key] = entry.MAC
	}
	sort.Slice(table.entries, func(i, j int) bool {
		return bytes.Compare(table.entries[i].IP.To16(), table.entries[j].IP.To16()) < 0
	})
	return table
}

// Entries returns every entry ordered by address
func (t Table) Entries() []types.NeighborEntry {
	return t.entries
}

// Len returns the number of entries
func (t Table) Len() int {
	return len(t.entries)
}

// MACForIP returns the hardware address recorded for ip
func (t Table) MACForIP(ip net.IP) (net.HardwareAddr, bool) {
	if ip == nil {
		return nil, false
	}
	mac, ok := t.byIP[key(ip)]
	return mac, ok
}

// IPForMAC returns the first address recorded for mac, or nil when there is none.
// A malformed mac is a validation error.
func (t Table) IPForMAC(mac string) (net.IP, error) {
	hw, err := ParseHardwareAddr(mac)
	if err != nil {
		return nil, types.NewValidationError("mac", "invalid hardware address %q", mac)
	}
	for _, entry := range t.entries {
		if bytes.Equal(entry.MAC, hw) {
			return entry.IP, nil
		}
	}
	return nil, nil
}

// InNetwork returns the addresses that lie inside network
func (t Table) InNetwork(network *net.IPNet) []net.IP {
	var ips []net.IP
	for _, entry := range t.entries {
		if network.Contains(entry.IP) {
			ips = append(ips, entry.IP)
		}
	}
	return ips
}

func key(ip net.IP) string {
	if ip4 := ip.To4(); ip4 != nil {
		return ip4.String()
	}
	return ip.String()
}

// source is one place neighbor entries are read from
type source struct {
	name string
	read func(ctx context.Context) ([]types.NeighborEntry, error)
}

// Reader merges the neighbor cache file and the platform neighbor commands
type Reader struct {
	Runner      pkg.CommandRunner
	File        string
	DisableFile bool
}

// NewReader creates a reader using runner for commands
func NewReader(runner pkg.CommandRunner) *Reader {
	if runner == nil {
		runner = pkg.DefaultRunner
	}
	return &Reader{Runner: runner, File: pkg.NeighborFile}
}

// Read returns the merged table. Sources are consulted in order and the
// first one to report an address wins. A failing source is skipped.
func (r *Reader) Read(ctx context.Context) Table {
	entries := mapsutil.NewSyncLockMap[string, types.NeighborEntry]()

	for _, src := range r.sources() {
		if ctx.Err() != nil {
			break
		}
		found, err := src.read(ctx)
		if err != nil {
			gologger.Verbose().Msgf("neighbor source %s unavailable: %v", src.name, err)
			continue
		}
		for _, entry := range found {
			if !ValidMAC(entry.MAC) {
				continue
			}
			k := key(entry.IP)
			if _, exists := entries.Get(k); exists {
				continue
			}
			_ = entries.Set(k, entry)
		}
	}

	return newTable(entries.GetAll())
}

func (r *Reader) sources() []source {
	switch {
	case osutils.IsLinux():
		sources := []source{{name: "ip neigh", read: r.readIPNeigh}}
		if !r.DisableFile {
			sources = append(sources, source{name: r.File, read: r.readFile})
		}
		return sources
	case osutils.IsOSX():
		return []source{
			{name: "arp -an", read: r.command(ParseBSDArp, "arp", "-an")},
			{name: "ndp -an", read: r.command(ParseBSDArp, "ndp", "-an")},
		}
	case osutils.IsWindows():
		return []source{{name: "arp -a", read: r.command(ParseWindowsArp, "arp", "-a")}}
	default:
		if r.DisableFile {
			return nil
		}
		return []source{{name: r.File, read: r.readFile}}
	}
}

func (r *Reader) readFile(_ context.Context) ([]types.NeighborEntry, error) {
	if r.File == "" {
		return nil, types.ErrUnsupportedPlatform
	}
	data, err := os.ReadFile(r.File)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.File, err)
	}
	return ParseProcARP(string(data)), nil
}

// readIPNeigh prefers the JSON output and falls back to text for older iproute2
func (r *Reader) readIPNeigh(ctx context.Context) ([]types.NeighborEntry, error) {
	output, err := r.Runner.Run(ctx, "ip", "-j", "neigh", "show")
	if err == nil && output.ExitCode == 0 {
		if entries, err := ParseIPNeighJSON([]byte(output.Stdout)); err == nil {
			return entries, nil
		}
	}
	return r.command(ParseIPNeigh, "ip", "neigh", "show")(ctx)
}

func (r *Reader) command(parse func(string) []types.NeighborEntry, name string, args ...string) func(context.Context) ([]types.NeighborEntry, error) {
	return func(ctx context.Context) ([]types.NeighborEntry, error) {
		output, err := r.Runner.Run(ctx, name, args...)
		if err != nil {
			return nil, &types.InvocationError{Command: name, Err: err}
		}
		if output.ExitCode != 0 {
			return nil, fmt.Errorf("%s exited with %d", name, output.ExitCode)
		}
		return parse(output.Stdout), nil
	}
}
