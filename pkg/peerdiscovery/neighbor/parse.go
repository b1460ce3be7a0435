package neighbor

import (
	"bufio"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/projectdiscovery/netprobe/pkg/types"
	"github.com/tidwall/gjson"
)

var hexOctet = regexp.MustCompile(`^[0-9A-Fa-f]{1,2}$`)

// ParseHardwareAddr parses a MAC written with only ':' or only '-'
// separators, including the unpadded octets printed by BSD arp
func ParseHardwareAddr(value string) (net.HardwareAddr, error) {
	value = strings.TrimSpace(value)
	sep := ":"
	if strings.Contains(value, "-") {
		sep = "-"
	}
	if strings.Contains(value, ".") || (sep == "-" && strings.Contains(value, ":")) {
		return nil, fmt.Errorf("invalid separators in hardware address %q", value)
	}
	octets := strings.Split(value, sep)
	for i, octet := range octets {
		if !hexOctet.MatchString(octet) {
			return nil, fmt.Errorf("invalid octet %q in hardware address %q", octet, value)
		}
		if len(octet) == 1 {
			octets[i] = "0" + octet
		}
	}
	mac, err := net.ParseMAC(strings.Join(octets, ":"))
	if err != nil {
		return nil, err
	}
	return mac, nil
}

// ValidMAC rejects empty, all-zero and broadcast hardware addresses
func ValidMAC(mac net.HardwareAddr) bool {
	if len(mac) != 6 && len(mac) != 8 && len(mac) != 20 {
		return false
	}
	zero, broadcast := true, true
	for _, b := range mac {
		if b != 0x00 {
			zero = false
		}
		if b != 0xff {
			broadcast = false
		}
	}
	return !zero && !broadcast
}

func newEntry(ipStr, macStr string) (types.NeighborEntry, bool) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return types.NeighborEntry{}, false
	}
	mac, err := ParseHardwareAddr(macStr)
	if err != nil || !ValidMAC(mac) {
		return types.NeighborEntry{}, false
	}
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	return types.NeighborEntry{IP: ip, MAC: mac}, true
}

// ParseProcARP parses the kernel neighbor cache file
//
//	IP address       HW type     Flags       HW address            Mask     Device
//	192.168.1.1      0x1         0x2         aa:bb:cc:dd:ee:ff     *        eth0
func ParseProcARP(text string) []types.NeighborEntry {
	var entries []types.NeighborEntry
	scanner := bufio.NewScanner(strings.NewReader(text))

	// header
	if !scanner.Scan() {
		return entries
	}
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		if entry, ok := newEntry(fields[0], fields[3]); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// ParseIPNeigh parses `ip neigh show` text output
//
//	192.168.1.1 dev eth0 lladdr aa:bb:cc:dd:ee:ff REACHABLE
func ParseIPNeigh(text string) []types.NeighborEntry {
	var entries []types.NeighborEntry
	scanner := bufio.NewScanner(strings.NewReader(text))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasSuffix(line, "FAILED") || strings.HasSuffix(line, "INCOMPLETE") {
			continue
		}
		fields := strings.Fields(line)
		for i, field := range fields {
			if field == "lladdr" && i+1 < len(fields) {
				if entry, ok := newEntry(fields[0], fields[i+1]); ok {
					entries = append(entries, entry)
				}
				break
			}
		}
	}
	return entries
}

// ParseIPNeighJSON parses `ip -j neigh show` output
func ParseIPNeighJSON(data []byte) ([]types.NeighborEntry, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid ip neigh json")
	}
	result := gjson.ParseBytes(data)
	if !result.IsArray() {
		return nil, fmt.Errorf("unexpected ip neigh json: %s", result.Type)
	}

	var entries []types.NeighborEntry
	result.ForEach(func(_, value gjson.Result) bool {
		for _, state := range value.Get("state").Array() {
			if s := state.String(); s == "FAILED" || s == "INCOMPLETE" {
				return true
			}
		}
		if entry, ok := newEntry(value.Get("dst").String(), value.Get("lladdr").String()); ok {
			entries = append(entries, entry)
		}
		return true
	})
	return entries, nil
}

// ParseBSDArp parses BSD `arp -an` and `ndp -an` output
//
//	? (192.168.1.1) at aa:bb:cc:dd:ee:ff on en0 ifscope [ethernet]
//	? (fe80::1%en0) at 0:1b:2c:3d:4e:5f on en0 ifscope [ethernet]
func ParseBSDArp(text string) []types.NeighborEntry {
	var entries []types.NeighborEntry
	scanner := bufio.NewScanner(strings.NewReader(text))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		open, closing := strings.Index(line, "("), strings.Index(line, ")")
		if open == -1 || closing <= open {
			continue
		}
		ipStr, _, _ := strings.Cut(line[open+1:closing], "%")

		_, rest, found := strings.Cut(line, " at ")
		if !found {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 || fields[0] == "(incomplete)" {
			continue
		}
		if entry, ok := newEntry(ipStr, fields[0]); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// ParseWindowsArp parses `arp -a` output, one section per interface
//
//	Interface: 192.168.1.100 --- 0xa
//	  Internet Address      Physical Address      Type
//	  192.168.1.1           aa-bb-cc-dd-ee-ff     dynamic
func ParseWindowsArp(text string) []types.NeighborEntry {
	var entries []types.NeighborEntry
	scanner := bufio.NewScanner(strings.NewReader(text))

	inTable := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "Interface:"):
			inTable = false
			continue
		case strings.Contains(line, "Internet Address") && strings.Contains(line, "Physical Address"):
			inTable = true
			continue
		case !inTable:
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if entry, ok := newEntry(fields[0], fields[1]); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}
