package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	arg "github.com/alexflint/go-arg"
	nagios "github.com/atc0005/go-nagios"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/DLAKE-IO/check-ganglia/internal/cache"
	"github.com/DLAKE-IO/check-ganglia/internal/check"
	"github.com/DLAKE-IO/check-ganglia/internal/config"
	"github.com/DLAKE-IO/check-ganglia/internal/logging"
	"github.com/DLAKE-IO/check-ganglia/internal/output"
	"github.com/DLAKE-IO/check-ganglia/internal/resolve"
	"github.com/DLAKE-IO/check-ganglia/internal/threshold"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// ScanCmd defines flags for the scan subcommand.
type ScanCmd struct {
	Metrics  []string `arg:"-m,--metric,separate,required" help:"Metric name to examine on every host (repeatable)"`
	Warning  string   `arg:"-w,--warning" help:"Warning threshold (Nagios range)"`
	Critical string   `arg:"-c,--critical" help:"Critical threshold (Nagios range)"`
	Include  []string `arg:"--include,separate" help:"Only check hosts matching this pattern (repeatable; * matches any run, ? zero or one character, . is literal)"`
	Exclude  []string `arg:"--exclude,separate" help:"Skip hosts matching this pattern (repeatable, same syntax as --include)"`
}

// HostCmd defines flags for the host subcommand.
type HostCmd struct {
	Hostname string `arg:"-H,--hostname,required" help:"Host to check"`
	Metric   string `arg:"-m,--metric,required" help:"Metric name"`
	Warning  string `arg:"-w,--warning" help:"Warning threshold (Nagios range)"`
	Critical string `arg:"-c,--critical" help:"Critical threshold (Nagios range)"`
}

// ValueCmd defines flags for the value subcommand.
type ValueCmd struct {
	Hostname string `arg:"-H,--hostname,required" help:"Host to read"`
	Metric   string `arg:"-m,--metric,required" help:"Metric name"`
}

// Args holds all CLI flags and subcommand pointers for check-ganglia.
// When a subcommand pointer is non-nil, that mode was selected.
type Args struct {
	Scan  *ScanCmd  `arg:"subcommand:scan" help:"Check a metric across every host in the cache"`
	Host  *HostCmd  `arg:"subcommand:host" help:"Check one metric of one host"`
	Value *ValueCmd `arg:"subcommand:value" help:"Print one metric of one host, unformatted"`

	CacheDir   string        `arg:"--cache-dir,env:GANGLIA_CACHE_DIR" help:"gmetad XML cache directory [default: /var/lib/ganglia/xmlcache]"`
	HostDir    string        `arg:"--host-dir,env:GANGLIA_HOST_DIR" help:"Per-host snapshot directory [default: <cache-dir>/hosts]"`
	StaleAfter time.Duration `arg:"--stale-after,env:GANGLIA_STALE_AFTER" help:"Maximum snapshot age [default: 5m]"`
	Config     string        `arg:"--config,env:GANGLIA_CONFIG" help:"YAML configuration file"`
	EnvFile    string        `arg:"--env-file,env:GANGLIA_ENV_FILE" help:"dotenv file loaded before flags are read"`
	Timeout    time.Duration `arg:"-t,--timeout,env:GANGLIA_TIMEOUT" default:"10s" help:"Overall deadline, including DNS lookups"`
	LogLevel   string        `arg:"--log-level,env:GANGLIA_LOG_LEVEL" default:"warn" help:"Log level for stderr: debug, info, warn, error, disabled"`
	LogFormat  string        `arg:"--log-format,env:GANGLIA_LOG_FORMAT" default:"auto" help:"Log format: auto, console, json"`
}

// Description returns the program description for go-arg help output.
func (Args) Description() string {
	return "Nagios-compatible monitoring plugin for Ganglia gmetad XML caches"
}

// Version returns the version string for go-arg --version output.
func (Args) Version() string {
	return "check-ganglia " + version
}

func main() {
	plugin := nagios.NewPlugin()
	defer plugin.ReturnCheckResults()

	// The dotenv file has to be in the environment before go-arg reads
	// env: tags, so it is located ahead of the real parse.
	if path := envFileFromArgs(os.Args[1:]); path != "" {
		if err := godotenv.Load(path); err != nil {
			plugin.ServiceOutput = fmt.Sprintf("%s UNKNOWN - Cannot load env file: %s", output.Prefix, err)
			plugin.ExitStatusCode = nagios.StateUNKNOWNExitCode
			return
		}
	}

	var args Args
	parser, err := arg.NewParser(arg.Config{Program: "check-ganglia"}, &args)
	if err != nil {
		plugin.ServiceOutput = fmt.Sprintf("%s UNKNOWN - Internal error: %s", output.Prefix, err)
		plugin.ExitStatusCode = nagios.StateUNKNOWNExitCode
		return
	}

	if err := parser.Parse(os.Args[1:]); err != nil {
		switch {
		case errors.Is(err, arg.ErrHelp):
			// Nagios convention: --help exits UNKNOWN (3).
			parser.WriteHelp(os.Stdout)
			output.Terminate(os.Stdout, output.Unknown)
		case errors.Is(err, arg.ErrVersion):
			fmt.Fprint(os.Stdout, args.Version())
			output.Terminate(os.Stdout, output.Unknown)
		default:
			plugin.ServiceOutput = fmt.Sprintf("%s UNKNOWN - %s", output.Prefix, err)
			plugin.ExitStatusCode = nagios.StateUNKNOWNExitCode
			return
		}
	}

	if parser.Subcommand() == nil {
		plugin.ServiceOutput = fmt.Sprintf("%s UNKNOWN - No mode specified. Usage: check-ganglia <scan|host|value> [flags]", output.Prefix)
		plugin.ExitStatusCode = nagios.StateUNKNOWNExitCode
		return
	}

	checkName := resolveCheckName(&args)

	logger := logging.Init(logging.Config{Format: args.LogFormat, Level: args.LogLevel})

	cfg, err := buildConfig(&args)
	if err == nil {
		err = validate(&args, logger)
	}
	if err != nil {
		unknown(checkName, err).ApplyToPlugin(plugin)
		return
	}
	logger.Debug().
		Str("cache_dir", cfg.CacheDir).
		Str("host_dir", cfg.HostPath()).
		Dur("stale_after", cfg.StaleAfter).
		Msg("configuration loaded")

	ctx, cancel := context.WithTimeout(context.Background(), args.Timeout)
	defer cancel()

	resolver := resolve.New(cfg, resolve.NewDNSLookup(args.Timeout), resolve.WithLogger(logger))

	if args.Value != nil {
		runValue(ctx, resolver, args.Value, logger)
		return
	}

	var chk check.Check
	switch {
	case args.Scan != nil:
		// The raw STALE diagnostic goes to stderr; the result repeats it in
		// the long output, keeping stdout to the Nagios format.
		scanner := cache.NewScanner(cfg, os.Stderr, cache.WithLogger(logger))
		var sc *check.ScanCheck
		sc, err = check.NewScanCheck(scanner, args.Scan.Metrics, args.Scan.Warning, args.Scan.Critical, args.Scan.Include, args.Scan.Exclude)
		if sc != nil {
			sc.Logger = logger
			chk = sc
		}
	case args.Host != nil:
		chk, err = check.NewHostCheck(resolver, args.Host.Hostname, args.Host.Metric, args.Host.Warning, args.Host.Critical)
	}
	if err != nil {
		unknown(checkName, err).ApplyToPlugin(plugin)
		return
	}

	result, err := chk.Run(ctx)
	if err != nil {
		mapRunError(checkName, err, args.Timeout).ApplyToPlugin(plugin)
		return
	}

	result.ApplyToPlugin(plugin)
}

// runValue prints the raw metric value and exits. Failures print a short
// reason ("STALE", "XML parse error" or the error text) instead and exit
// CRITICAL or UNKNOWN, so scripts can rely on the exit code alone.
func runValue(ctx context.Context, resolver *resolve.Resolver, cmd *ValueCmd, logger zerolog.Logger) {
	val, err := resolver.Resolve(ctx, cmd.Hostname, cmd.Metric)
	if err != nil {
		status, summary, _ := check.MapResolveError(err)
		logger.Info().Err(err).Str("host", cmd.Hostname).Str("metric", cmd.Metric).Msg("value lookup failed")
		fmt.Fprint(os.Stdout, summary)
		output.Terminate(os.Stdout, status)
		return
	}
	fmt.Fprint(os.Stdout, val)
	output.Terminate(os.Stdout, output.OK)
}

// envFileFromArgs finds --env-file in argv, falling back to
// GANGLIA_ENV_FILE.
func envFileFromArgs(argv []string) string {
	for i, a := range argv {
		if a == "--" {
			break
		}
		if v, ok := strings.CutPrefix(a, "--env-file="); ok {
			return v
		}
		if a == "--env-file" && i+1 < len(argv) {
			return argv[i+1]
		}
	}
	return os.Getenv("GANGLIA_ENV_FILE")
}

// buildConfig layers flags and environment over the YAML file over the
// defaults.
func buildConfig(args *Args) (config.Config, error) {
	cfg, err := config.Load(args.Config)
	if err != nil {
		return config.Config{}, err
	}
	if args.CacheDir != "" {
		cfg.CacheDir = args.CacheDir
	}
	if args.HostDir != "" {
		cfg.HostDir = args.HostDir
	}
	if args.StaleAfter != 0 {
		cfg.StaleAfter = args.StaleAfter
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// resolveCheckName returns the uppercase check name for the selected subcommand.
func resolveCheckName(args *Args) string {
	switch {
	case args.Scan != nil:
		return "SCAN"
	case args.Host != nil:
		return "HOST"
	case args.Value != nil:
		return "VALUE"
	default:
		return "UNKNOWN"
	}
}

// validate checks flag values that go-arg cannot. Validation stops at the
// first failure.
func validate(args *Args, logger zerolog.Logger) error {
	if args.Timeout <= 0 || args.Timeout > 120*time.Second {
		return fmt.Errorf("Invalid timeout %q: must be between 1s and 120s", args.Timeout)
	}

	var warn, crit string
	switch {
	case args.Scan != nil:
		for _, m := range args.Scan.Metrics {
			if strings.TrimSpace(m) == "" {
				return errors.New("Metric names must not be empty")
			}
		}
		warn, crit = args.Scan.Warning, args.Scan.Critical
	case args.Host != nil:
		warn, crit = args.Host.Warning, args.Host.Critical
	default:
		return nil
	}

	pair, err := threshold.ParsePair(warn, crit)
	if err != nil {
		return err
	}
	if pair.Warning != nil && pair.Critical != nil {
		warnThresholdOrdering(*pair.Warning, *pair.Critical, logger)
	}
	return nil
}

// warnThresholdOrdering logs a warning if the warning range appears wider
// than the critical range. Nagios allows it, but it usually means the flags
// were swapped.
func warnThresholdOrdering(warn, crit threshold.Range, logger zerolog.Logger) {
	if warn.Inside || crit.Inside || warn.StartInf || crit.StartInf {
		return
	}
	if math.IsInf(warn.End, 1) || math.IsInf(crit.End, 1) {
		return
	}
	if warn.End > crit.End {
		logger.Warn().Str("warning", warn.String()).Str("critical", crit.String()).Msg("-w range is wider than -c range")
	}
}

func unknown(checkName string, err error) *output.Result {
	return &output.Result{
		Status:    output.Unknown,
		CheckName: checkName,
		Summary:   err.Error(),
	}
}

// mapRunError converts an error from Check.Run into a Nagios Result.
//
// Mapping:
//   - deadline exceeded → CRITICAL (cache or DNS too slow to answer)
//   - stale or unparsable snapshot → CRITICAL
//   - everything else (unreadable directories, missing hosts) → UNKNOWN
func mapRunError(checkName string, err error, timeout time.Duration) *output.Result {
	if errors.Is(err, context.DeadlineExceeded) {
		return &output.Result{
			Status:    output.Critical,
			CheckName: checkName,
			Summary:   fmt.Sprintf("Timed out after %s", timeout),
			Details:   err.Error(),
		}
	}
	if status, summary, ok := check.MapResolveError(err); ok {
		return &output.Result{Status: status, CheckName: checkName, Summary: summary}
	}
	return unknown(checkName, err)
}
