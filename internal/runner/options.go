package runner

import (
	"errors"
	"os"
	"time"

	"github.com/logrusorgru/aurora/v4"
	"github.com/projectdiscovery/goflags"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/gologger/formatter"
	"github.com/projectdiscovery/gologger/levels"
	"github.com/projectdiscovery/netprobe/pkg/probe/port"
	"github.com/projectdiscovery/netprobe/pkg/types"
	"github.com/projectdiscovery/netprobe/pkg/version"
)

var au *aurora.Aurora

// Options contains the configuration options for a probing run
type Options struct {
	ConfigFile string

	// modes, exactly one is set
	Ping       string
	Ports      string
	Sweep      string
	SweepLocal bool
	SweepList  goflags.StringSlice
	Trace      string
	Neighbors  bool

	Count     int
	Delay     time.Duration
	TTL       int
	PortExpr  string
	UDP       bool
	Timeout   time.Duration
	Threads   int
	Coverage  int
	NoReverse bool
	NoArpFile bool
	MaxHops   int
	Resolvers goflags.StringSlice
	Output    string
	JSON      bool
	NoColor   bool
	Verbose   bool
	Silent    bool
	Debug     bool
	Version   bool
}

// ParseOptions parses the command line flags provided by a user
func ParseOptions() *Options {
	options := &Options{}
	flagSet := goflags.NewFlagSet()

	flagSet.SetDescription(`netprobe checks reachability of hosts, ports and local network segments`)

	flagSet.CreateGroup("input", "Input",
		flagSet.StringVar(&options.ConfigFile, "config", "", "cli flag configuration file"),
		flagSet.StringSliceVarP(&options.Resolvers, "resolvers", "r", nil, "nameservers used for name and reverse lookups (comma separated)", goflags.CommaSeparatedStringSliceOptions),
		flagSet.DurationVar(&options.Timeout, "timeout", 0, "per probe timeout (0 tunes from the target)"),
		flagSet.IntVarP(&options.Threads, "threads", "t", 0, "concurrent probes (0 tunes from the target)"),
	)

	flagSet.CreateGroup("ping", "Ping",
		flagSet.StringVar(&options.Ping, "ping", "", "host to ping"),
		flagSet.IntVarP(&options.Count, "count", "c", 4, "echo requests to send (0 runs until interrupted)"),
		flagSet.DurationVar(&options.Delay, "delay", time.Second, "delay between echo requests"),
		flagSet.IntVar(&options.TTL, "ttl", types.DefaultTTL, "time to live of echo requests"),
	)

	flagSet.CreateGroup("ports", "Ports",
		flagSet.StringVar(&options.Ports, "ports", "", "host to scan"),
		flagSet.StringVarP(&options.PortExpr, "port", "p", "1-1023", "ports to scan (e.g. 22,80,8000-8100)"),
		flagSet.BoolVar(&options.UDP, "udp", false, "probe udp instead of tcp"),
	)

	flagSet.CreateGroup("sweep", "Sweep",
		flagSet.StringVar(&options.Sweep, "sweep", "", "sweep the /24 holding the given address"),
		flagSet.BoolVarP(&options.SweepLocal, "sweep-local", "sl", false, "sweep the /24 of the first local address"),
		flagSet.StringSliceVar(&options.SweepList, "sweep-list", nil, "sweep exactly the given addresses (comma separated)", goflags.CommaSeparatedStringSliceOptions),
		flagSet.IntVar(&options.Coverage, "coverage", 100, "percentage of the segment to probe, most likely hosts first"),
		flagSet.BoolVarP(&options.NoReverse, "no-reverse", "nr", false, "skip reverse dns of live devices"),
	)

	flagSet.CreateGroup("trace", "Trace",
		flagSet.StringVar(&options.Trace, "trace", "", "host to trace the route to"),
		flagSet.IntVarP(&options.MaxHops, "max-hops", "mh", 30, "maximum number of hops"),
	)

	flagSet.CreateGroup("neighbors", "Neighbors",
		flagSet.BoolVarP(&options.Neighbors, "neighbors", "n", false, "print the neighbor (arp/ndp) table"),
		flagSet.BoolVarP(&options.NoArpFile, "no-arp-file", "naf", false, "do not read the kernel neighbor file"),
	)

	flagSet.CreateGroup("output", "Output",
		flagSet.StringVarP(&options.Output, "output", "o", "", "file to write json lines to"),
		flagSet.BoolVarP(&options.JSON, "json", "j", false, "write json lines to stdout"),
		flagSet.BoolVarP(&options.NoColor, "no-color", "nc", false, "disable output content coloring (ANSI escape codes)"),
	)

	flagSet.CreateGroup("debug", "Debug",
		flagSet.BoolVar(&options.Version, "version", false, "show version of the project"),
		flagSet.BoolVarP(&options.Verbose, "verbose", "v", false, "show verbose output"),
		flagSet.BoolVar(&options.Silent, "silent", false, "show only results"),
		flagSet.BoolVar(&options.Debug, "debug", false, "show debug output including executed commands"),
	)

	if err := flagSet.Parse(); err != nil {
		gologger.Fatal().Msgf("%s\n", err)
	}

	if options.ConfigFile != "" {
		if err := flagSet.MergeConfigFile(options.ConfigFile); err != nil {
			gologger.Fatal().Msgf("Could not read config: %s\n", err)
		}
	}

	options.configureOutput()

	if options.Version {
		gologger.Info().Msgf("Current Version: %s\n", version.GetVersion())
		os.Exit(0)
	}

	if err := options.validate(); err != nil {
		gologger.Fatal().Msgf("%s\n", err)
	}

	return options
}

// configureOutput configures the output on the screen
func (options *Options) configureOutput() {
	au = aurora.New(aurora.WithColors(!options.NoColor))

	if options.Verbose {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelVerbose)
	}
	if options.Debug {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelDebug)
	}
	if options.NoColor {
		gologger.DefaultLogger.SetFormatter(formatter.NewCLI(true))
	}
	if options.Silent {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelSilent)
	}
}

func (options *Options) modes() int {
	count := 0
	for _, set := range []bool{
		options.Ping != "",
		options.Ports != "",
		options.Sweep != "",
		options.SweepLocal,
		len(options.SweepList) > 0,
		options.Trace != "",
		options.Neighbors,
	} {
		if set {
			count++
		}
	}
	return count
}

func (options *Options) validate() error {
	switch options.modes() {
	case 0:
		return errors.New("no mode given, use one of -ping, -ports, -sweep, -sweep-local, -sweep-list, -trace or -neighbors")
	case 1:
	default:
		return errors.New("only one mode can be used at a time")
	}
	if options.Coverage < 1 || options.Coverage > 100 {
		return types.NewValidationError("coverage", "coverage must be between 1 and 100")
	}
	_, err := options.probeOptions()
	return err
}

// probeOptions converts the flags into validated probe options
func (options *Options) probeOptions() (types.ProbeOptions, error) {
	opts := []types.Option{
		types.WithTimeout(options.Timeout),
		types.WithTTL(options.TTL),
		types.WithDelay(options.Delay),
		types.WithTimes(options.Count),
		types.WithMaxHops(options.MaxHops),
	}
	if options.Threads != 0 {
		opts = append(opts, types.WithThreads(options.Threads))
	}
	if options.Ports != "" {
		opts = append(opts, port.WithExpression(options.PortExpr))
	}
	if options.UDP {
		opts = append(opts, types.WithTransport(types.UDP))
	}
	if options.NoArpFile {
		opts = append(opts, types.WithoutNeighborFile())
	}
	return types.NewProbeOptions(opts...)
}
