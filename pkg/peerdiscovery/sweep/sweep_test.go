package sweep

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/projectdiscovery/netprobe/pkg"
	"github.com/projectdiscovery/netprobe/pkg/peerdiscovery/common"
	"github.com/projectdiscovery/netprobe/pkg/peerdiscovery/neighbor"
	"github.com/projectdiscovery/netprobe/pkg/types"
	osutils "github.com/projectdiscovery/utils/os"
)

type fakePinger struct {
	mu       sync.Mutex
	probed   []string
	alive    map[string]time.Duration
	allAlive bool
	delay    time.Duration
	onProbe  func(ip string)
}

func (f *fakePinger) ProbeOnce(_ context.Context, addr types.Address, _ types.ProbeOptions) types.ProbeResult {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	key := addr.IP.String()
	f.mu.Lock()
	f.probed = append(f.probed, key)
	hook := f.onProbe
	f.mu.Unlock()
	if hook != nil {
		hook(key)
	}

	if rtt, ok := f.alive[key]; ok || f.allAlive {
		return types.ProbeResult{Address: addr, Reached: true, Elapsed: rtt}
	}
	return types.ProbeResult{Address: addr, Error: types.ErrorTimeout}
}

func (f *fakePinger) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.probed...)
}

type fakeResolver map[string]string

func (r fakeResolver) Reverse(_ context.Context, ip net.IP) (string, error) {
	if name, ok := r[ip.String()]; ok {
		return name, nil
	}
	return "", errors.New("no name")
}

var failingRunner = pkg.CommandFunc(func(context.Context, string, ...string) (*pkg.CommandResult, error) {
	return nil, errors.New("not available")
})

func emptyReader(t *testing.T) *neighbor.Reader {
	return &neighbor.Reader{Runner: failingRunner, File: filepath.Join(t.TempDir(), "missing")}
}

func arpFile(entries ...string) string {
	lines := []string{"IP address       HW type     Flags       HW address            Mask     Device"}
	for _, entry := range entries {
		ip, mac, _ := strings.Cut(entry, "=")
		lines = append(lines, ip+"    0x1    0x2    "+mac+"    *    eth0")
	}
	return strings.Join(lines, "\n") + "\n"
}

func TestFindSeedsFromNeighbors(t *testing.T) {
	if !osutils.IsLinux() {
		t.Skip("neighbor cache file is linux only")
	}
	file := filepath.Join(t.TempDir(), "arp")
	if err := os.WriteFile(file, []byte(arpFile("192.168.50.20=aa:bb:cc:00:00:20", "192.168.50.30=aa:bb:cc:00:00:30")), 0o600); err != nil {
		t.Fatal(err)
	}

	pinger := &fakePinger{alive: map[string]time.Duration{
		"192.168.50.20": time.Millisecond,
		"192.168.50.30": 2 * time.Millisecond,
		"192.168.50.77": 3 * time.Millisecond,
	}}
	pinger.onProbe = func(ip string) {
		if ip != "192.168.50.77" {
			return
		}
		// the kernel learns .77 during the sweep and .20 moves to another card
		content := arpFile("192.168.50.20=aa:bb:cc:ff:ff:20", "192.168.50.30=aa:bb:cc:00:00:30", "192.168.50.77=aa:bb:cc:00:00:77")
		_ = os.WriteFile(file, []byte(content), 0o600)
	}

	engine := NewEngine(
		WithPinger(pinger),
		WithNeighborReader(&neighbor.Reader{Runner: failingRunner, File: file}),
		WithResolver(fakeResolver{"192.168.50.20": "printer.lan"}),
	)
	opts := types.MustProbeOptions(types.WithThreads(1))

	var partials []types.Device
	summary, err := engine.FindAsync(context.Background(), net.ParseIP("192.168.50.9"), opts).Wait(func(device types.Device) {
		partials = append(partials, device)
	})
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	order := pinger.order()
	want := []string{"192.168.50.20", "192.168.50.30", "192.168.50.1", "192.168.50.254"}
	if len(order) < len(want) || strings.Join(order[:len(want)], ",") != strings.Join(want, ",") {
		t.Errorf("probe order starts with %v, want %v", order[:len(want)], want)
	}
	if summary.Probed != 254 || len(order) != 254 {
		t.Errorf("probed = %d (%d calls), want 254", summary.Probed, len(order))
	}
	if len(partials) != 3 {
		t.Fatalf("partials = %d, want 3", len(partials))
	}
	for _, device := range partials {
		if device.IP.String() == "192.168.50.77" && device.MAC != nil {
			t.Error(".77 should have no hardware address before the sweep ends")
		}
	}

	if len(summary.Devices) != 3 {
		t.Fatalf("devices = %v, want 3", summary.Devices)
	}
	wantDevices := []struct {
		ip, mac, hostname string
	}{
		{"192.168.50.20", "aa:bb:cc:00:00:20", "printer.lan"},
		{"192.168.50.30", "aa:bb:cc:00:00:30", ""},
		{"192.168.50.77", "aa:bb:cc:00:00:77", ""},
	}
	for i, want := range wantDevices {
		got := summary.Devices[i]
		if got.IP.String() != want.ip || got.MAC.String() != want.mac || got.Hostname != want.hostname {
			t.Errorf("device %d = %s %s %q, want %s %s %q", i, got.IP, got.MAC, got.Hostname, want.ip, want.mac, want.hostname)
		}
	}
}

func TestFindCancel(t *testing.T) {
	pinger := &fakePinger{allAlive: true, delay: 2 * time.Millisecond}
	engine := NewEngine(WithPinger(pinger), WithNeighborReader(emptyReader(t)), WithResolver(nil))
	op := engine.FindAsync(context.Background(), net.ParseIP("10.1.1.1"), types.MustProbeOptions(types.WithThreads(2)))

	var terminal, partials int
	var summary types.SweepSummary
	for event := range op.Events() {
		switch event.Kind {
		case types.EventPartial:
			partials++
			op.Cancel()
		case types.EventDone:
			terminal++
			summary = event.Done
		case types.EventFailed:
			terminal++
		}
	}

	if terminal != 1 {
		t.Fatalf("terminal events = %d, want 1", terminal)
	}
	if !summary.Cancelled || summary.Probed >= 254 {
		t.Errorf("summary = cancelled %v probed %d", summary.Cancelled, summary.Probed)
	}
	if len(summary.Devices) != partials {
		t.Errorf("devices = %d, partials = %d", len(summary.Devices), partials)
	}
}

func TestFindInvalidSeed(t *testing.T) {
	engine := NewEngine(WithPinger(&fakePinger{}), WithNeighborReader(emptyReader(t)), WithResolver(nil))
	if _, err := engine.Find(context.Background(), net.ParseIP("fe80::1"), types.MustProbeOptions()); !types.IsValidationError(err) {
		t.Errorf("Find(ipv6) error = %v, want validation error", err)
	}
	if _, err := engine.Find(context.Background(), nil, types.MustProbeOptions()); !types.IsValidationError(err) {
		t.Errorf("Find(nil) error = %v, want validation error", err)
	}
}

func TestFindList(t *testing.T) {
	pinger := &fakePinger{alive: map[string]time.Duration{"10.9.0.2": time.Millisecond}}
	engine := NewEngine(WithPinger(pinger), WithNeighborReader(emptyReader(t)), WithResolver(nil))

	ips := []net.IP{net.ParseIP("10.9.0.1"), net.ParseIP("10.9.0.2"), net.ParseIP("10.9.0.1")}
	summary, err := engine.FindList(context.Background(), ips, types.MustProbeOptions()).Wait(nil)
	if err != nil {
		t.Fatalf("FindList() error = %v", err)
	}
	if summary.Probed != 2 {
		t.Errorf("probed = %d, want 2", summary.Probed)
	}
	if len(summary.Devices) != 1 || summary.Devices[0].IP.String() != "10.9.0.2" {
		t.Errorf("devices = %v", summary.Devices)
	}

	if _, err := engine.FindList(context.Background(), nil, types.MustProbeOptions()).Wait(nil); !types.IsValidationError(err) {
		t.Errorf("FindList(nil) error = %v, want validation error", err)
	}
}

func TestNeighborSnapshotsHaveDeadline(t *testing.T) {
	var mu sync.Mutex
	var calls, unbounded int
	runner := pkg.CommandFunc(func(ctx context.Context, _ string, _ ...string) (*pkg.CommandResult, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if _, ok := ctx.Deadline(); !ok {
			unbounded++
		}
		return nil, errors.New("not available")
	})
	reader := &neighbor.Reader{Runner: runner, File: filepath.Join(t.TempDir(), "missing")}
	engine := NewEngine(WithPinger(&fakePinger{allAlive: true}), WithNeighborReader(reader), WithResolver(nil))

	if _, err := engine.FindList(context.Background(), []net.IP{net.ParseIP("10.9.1.1")}, types.MustProbeOptions()).Wait(nil); err != nil {
		t.Fatalf("FindList() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls == 0 {
		t.Skip("no command based neighbor source on this platform")
	}
	if unbounded != 0 {
		t.Errorf("%d of %d neighbor commands ran without a deadline", unbounded, calls)
	}
}

func TestDeviceSetAdd(t *testing.T) {
	tests := []struct {
		name    string
		ips     []string
		workers int
		want    int
	}{
		{"same address", []string{"10.9.2.1"}, 64, 1},
		{"distinct addresses", []string{"10.9.2.1", "10.9.2.2", "10.9.2.3"}, 16, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := newDeviceSet()
			var wg sync.WaitGroup
			var mu sync.Mutex
			added := 0
			for i := 0; i < tt.workers; i++ {
				for _, ip := range tt.ips {
					wg.Add(1)
					go func(ip string) {
						defer wg.Done()
						if set.add(&types.Device{IP: net.ParseIP(ip)}) {
							mu.Lock()
							added++
							mu.Unlock()
						}
					}(ip)
				}
			}
			wg.Wait()
			if added != tt.want {
				t.Errorf("added = %d, want %d", added, tt.want)
			}
		})
	}
}

func TestFindCoverage(t *testing.T) {
	pinger := &fakePinger{}
	engine := NewEngine(WithPinger(pinger), WithNeighborReader(emptyReader(t)), WithResolver(nil), WithCoverage(0.1))

	summary, err := engine.Find(context.Background(), net.ParseIP("172.16.5.5"), types.MustProbeOptions())
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if summary.Probed != 26 {
		t.Errorf("probed = %d, want 26", summary.Probed)
	}
}

func TestFindFromLocal(t *testing.T) {
	local := func() ([]common.InterfaceAddr, error) {
		_, loopback, _ := net.ParseCIDR("127.0.0.0/8")
		loopback.IP = net.ParseIP("127.0.0.1")
		_, lan, _ := net.ParseCIDR("10.20.0.0/16")
		lan.IP = net.ParseIP("10.20.30.40")
		return []common.InterfaceAddr{
			{Interface: "lo", Network: loopback, Loopback: true, Up: true},
			{Interface: "eth0", Network: lan, Up: true},
		}, nil
	}
	pinger := &fakePinger{}
	engine := NewEngine(WithPinger(pinger), WithNeighborReader(emptyReader(t)), WithResolver(nil),
		WithCoverage(0.05), WithInterfaceAddrs(local))

	if _, err := engine.FindFromLocal(context.Background(), types.MustProbeOptions()).Wait(nil); err != nil {
		t.Fatalf("FindFromLocal() error = %v", err)
	}
	for _, ip := range pinger.order() {
		if !strings.HasPrefix(ip, "10.20.30.") {
			t.Fatalf("probed %s outside 10.20.30.0/24", ip)
		}
	}

	none := NewEngine(WithPinger(pinger), WithNeighborReader(emptyReader(t)), WithResolver(nil),
		WithInterfaceAddrs(func() ([]common.InterfaceAddr, error) { return nil, nil }))
	if _, err := none.FindFromLocal(context.Background(), types.MustProbeOptions()).Wait(nil); err == nil {
		t.Error("expected error without a local address")
	}
}
