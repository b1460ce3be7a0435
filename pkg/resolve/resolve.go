package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/projectdiscovery/gcache"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/netprobe/pkg"
	"github.com/projectdiscovery/netprobe/pkg/types"
	sliceutil "github.com/projectdiscovery/utils/slice"
)

const (
	resolvConf       = "/etc/resolv.conf"
	defaultTimeout   = 2 * time.Second
	defaultCacheSize = 1024
	defaultCacheTTL  = 10 * time.Minute
)

var errNoAnswer = errors.New("no answer")

// Options configures a Resolver
type Options struct {
	// Servers are host:port nameservers. When empty NETPROBE_DNS_SERVERS and
	// then the system resolver configuration are used.
	Servers   []string
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

// Resolver turns hostnames into addresses and addresses into names.
// Lookups go to the configured nameservers first and then to the system
// resolver, which also consults the hosts file.
type Resolver struct {
	servers []string
	client  *dns.Client
	system  *net.Resolver
	forward gcache.Cache[string, types.Address]
	reverse gcache.Cache[string, string]
}

// New creates a resolver
func New(options Options) *Resolver {
	if options.Timeout <= 0 {
		options.Timeout = defaultTimeout
	}
	if options.CacheSize <= 0 {
		options.CacheSize = defaultCacheSize
	}
	if options.CacheTTL <= 0 {
		options.CacheTTL = defaultCacheTTL
	}

	servers := options.Servers
	if len(servers) == 0 {
		servers = pkg.DNSServers()
	}
	if len(servers) == 0 {
		servers = systemServers()
	}

	return &Resolver{
		servers: normalizeServers(servers),
		client:  &dns.Client{Timeout: options.Timeout},
		system:  net.DefaultResolver,
		forward: gcache.New[string, types.Address](options.CacheSize).
			LRU().
			Expiration(options.CacheTTL).
			Build(),
		reverse: gcache.New[string, string](options.CacheSize).
			LRU().
			Expiration(options.CacheTTL).
			Build(),
	}
}

// Servers returns the nameservers queried directly
func (r *Resolver) Servers() []string {
	return r.servers
}

func systemServers() []string {
	config, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil {
		gologger.Debug().Msgf("no nameservers from %s: %v", resolvConf, err)
		return nil
	}
	servers := make([]string, 0, len(config.Servers))
	for _, server := range config.Servers {
		servers = append(servers, net.JoinHostPort(server, config.Port))
	}
	return servers
}

func normalizeServers(servers []string) []string {
	normalized := make([]string, 0, len(servers))
	for _, server := range servers {
		server = strings.TrimSpace(server)
		if server == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(strings.Trim(server, "[]"), "53")
		}
		normalized = append(normalized, server)
	}
	return sliceutil.Dedupe(normalized)
}

// Resolve returns the address of host. IP literals are returned as is.
// A name that cannot be resolved yields a ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, host string) (types.Address, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return types.Address{}, types.NewValidationError("host", "host cannot be empty")
	}
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		return types.NewAddress(ip), nil
	}
	if cached, err := r.forward.Get(host); err == nil {
		return cached, nil
	}

	ips, err := r.lookupIP(ctx, host)
	if err != nil {
		return types.Address{}, &types.ResolutionError{Host: host, Err: err}
	}
	addr := types.Address{IP: ips[0], Hostname: host}
	_ = r.forward.Set(host, addr)
	return addr, nil
}

func (r *Resolver) lookupIP(ctx context.Context, host string) ([]net.IP, error) {
	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		answers, err := r.query(ctx, host, qtype)
		if err != nil {
			lastErr = err
			continue
		}
		var ips []net.IP
		for _, answer := range answers {
			switch record := answer.(type) {
			case *dns.A:
				ips = append(ips, record.A)
			case *dns.AAAA:
				ips = append(ips, record.AAAA)
			}
		}
		if len(ips) > 0 {
			return ips, nil
		}
	}

	ips, err := r.system.LookupIP(ctx, "ip", host)
	if err == nil && len(ips) > 0 {
		return ips, nil
	}
	if err == nil {
		err = lastErr
	}
	if err == nil {
		err = errNoAnswer
	}
	return nil, err
}

// Reverse returns the first PTR name of ip without its trailing dot
func (r *Resolver) Reverse(ctx context.Context, ip net.IP) (string, error) {
	if ip == nil {
		return "", types.NewValidationError("ip", "ip cannot be empty")
	}
	key := ip.String()
	if cached, err := r.reverse.Get(key); err == nil {
		return cached, nil
	}

	name, err := r.lookupPTR(ctx, ip)
	if err != nil {
		return "", err
	}
	_ = r.reverse.Set(key, name)
	return name, nil
}

func (r *Resolver) lookupPTR(ctx context.Context, ip net.IP) (string, error) {
	arpa, err := dns.ReverseAddr(ip.String())
	if err != nil {
		return "", fmt.Errorf("invalid address %s: %w", ip, err)
	}
	if answers, err := r.query(ctx, arpa, dns.TypePTR); err == nil {
		for _, answer := range answers {
			if ptr, ok := answer.(*dns.PTR); ok {
				return strings.TrimSuffix(ptr.Ptr, "."), nil
			}
		}
	}

	names, err := r.system.LookupAddr(ctx, ip.String())
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", errNoAnswer
	}
	return strings.TrimSuffix(names[0], "."), nil
}

// query asks each nameserver in turn until one answers
func (r *Resolver) query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	if len(r.servers) == 0 {
		return nil, errNoAnswer
	}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		response, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		if response.Rcode != dns.RcodeSuccess {
			return nil, fmt.Errorf("%s from %s", dns.RcodeToString[response.Rcode], server)
		}
		return response.Answer, nil
	}
	return nil, lastErr
}
