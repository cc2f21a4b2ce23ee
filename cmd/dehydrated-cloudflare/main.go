package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/g0dsCookie/dehydrated-cloudflare/internal/config"
	"github.com/g0dsCookie/dehydrated-cloudflare/internal/dns"
	_ "github.com/g0dsCookie/dehydrated-cloudflare/internal/dns/providers"
	"github.com/g0dsCookie/dehydrated-cloudflare/internal/hook"
	"github.com/g0dsCookie/dehydrated-cloudflare/internal/propagation"
	"github.com/g0dsCookie/dehydrated-cloudflare/internal/zonecache"
)

var Version = "dev"

const (
	exitOK           = 0
	exitFailure      = 1
	exitZoneNotFound = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := exitOK

	cmd := newCommand(os.Stderr, &code)
	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		code = exitFailure
	}
	stop()
	os.Exit(code)
}

// newCommand builds the hook command. Flag parsing is disabled because
// dehydrated passes challenge tokens that may start with a dash.
func newCommand(stderr io.Writer, code *int) *cli.Command {
	return &cli.Command{
		Name:            "dehydrated-cloudflare",
		Usage:           "dehydrated DNS-01 hook for Cloudflare",
		UsageText:       "dehydrated-cloudflare <action> <domain> <token-filename> <token-value> [...]",
		Version:         Version,
		HideHelp:        true,
		SkipFlagParsing: true,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			*code = run(ctx, cmd.Args().First(), cmd.Args().Tail(), stderr)
			return nil
		},
	}
}

// run executes one hook invocation and returns the process exit code.
func run(ctx context.Context, action string, args []string, stderr io.Writer) int {
	cfg, cfgErr := config.Load()
	debug := cfgErr == nil && cfg.Debug
	log := newLogger(stderr, debug).WithName("hook")

	act, ok := hook.ParseAction(action)
	if !ok {
		log.V(1).Info("unknown action, ignoring", "action", action)
		return exitOK
	}
	if cfgErr != nil {
		log.Error(cfgErr, "unable to load config")
		return exitFailure
	}

	h, err := setup(cfg, act, log)
	if err != nil {
		log.Error(err, "unable to set up hook")
		return exitFailure
	}

	res := h.Run(ctx, action, args)
	return exitCode(res, cfg.StrictExit)
}

func setup(cfg *config.Config, action hook.Action, log logr.Logger) (*hook.Hook, error) {
	provider, err := dns.NewProvider(cfg.Provider, log.WithName("dns-"+cfg.Provider), cfg.Settings)
	if err != nil {
		return nil, fmt.Errorf("creating DNS provider: %w", err)
	}

	mode, err := cfg.Cache.FileMode()
	if err != nil {
		return nil, err
	}
	cache := zonecache.New(cfg.AccountID(), log.WithName("cache"),
		zonecache.WithTTL(cfg.Cache.TTL),
		zonecache.WithMode(mode),
	)

	gate, err := newGate(cfg, action, log)
	if err != nil {
		return nil, err
	}
	return hook.New(provider, cache, cfg.Cache.File, gate, log), nil
}

// newGate builds the propagation gate. Only deploy polls DNS, so clean never
// reads the resolver configuration and gets a nil gate.
func newGate(cfg *config.Config, action hook.Action, log logr.Logger) (hook.Awaiter, error) {
	if action != hook.DeployChallenge {
		return nil, nil
	}
	resolver, err := propagation.NewResolver(cfg.DNSServers)
	if err != nil {
		return nil, fmt.Errorf("creating DNS resolver: %w", err)
	}
	return &propagation.Gate{
		Lookup:   resolver,
		Interval: cfg.PollInterval,
		Log:      log.WithName("propagation"),
	}, nil
}

// exitCode maps a hook result to the process exit status. Failures only
// change the status in strict mode.
func exitCode(res *hook.Result, strict bool) int {
	err := res.Err()
	switch {
	case err == nil || !strict:
		return exitOK
	case errors.Is(err, hook.ErrZoneNotFound):
		return exitZoneNotFound
	default:
		return exitFailure
	}
}

func newLogger(w io.Writer, debug bool) logr.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(w),
		level,
	)
	return zapr.NewLogger(zap.New(core))
}
