package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin"
	"github.com/hashicorp/go-hclog"

	"github.com/intermedia-net/vault-chef-probe/commands"
	"github.com/intermedia-net/vault-chef-probe/config"
	"github.com/intermedia-net/vault-chef-probe/logging"
	"github.com/intermedia-net/vault-chef-probe/stub"
)

// Flags that override the configuration file for one-shot commands.
type overrides struct {
	format       *string
	showCurl     *bool
	strict       *bool
	revokeOnExit *bool
	logLevel     *string
}

func (o *overrides) apply(cfg *config.Config) {
	if *o.format != "" {
		cfg.Format = *o.format
	}

	if *o.logLevel != "" {
		cfg.LogLevel = *o.logLevel
	}

	cfg.ShowCurl = cfg.ShowCurl || *o.showCurl
	cfg.Strict = cfg.Strict || *o.strict
	cfg.RevokeOnExit = cfg.RevokeOnExit || *o.revokeOnExit
}

func main() {
	app := kingpin.New(logging.Name, "Log in to a secret-storage service with a Chef client key and read secrets.")
	app.Version(stub.Version)
	app.HelpFlag.Short('h')

	configPath := app.Flag("config", "Path to the configuration file.").
		Short('c').
		Default(config.DefaultConfigPath).
		String()

	flags := overrides{
		format: app.Flag("format", "Response body format.").
			Enum(config.FormatRaw, config.FormatJSON, config.FormatYAML),
		showCurl:     app.Flag("show-curl", "Also print an equivalent curl command for each request.").Bool(),
		strict:       app.Flag("strict", "Exit with status 2 if any read fails.").Bool(),
		revokeOnExit: app.Flag("revoke", "Revoke the token before exiting.").Bool(),
		logLevel:     app.Flag("log-level", "Log level (trace, debug, info, warn, error).").String(),
	}

	probeCmd := app.Command("probe", "Log in and read every configured path.").Default()
	loginCmd := app.Command("login", "Log in and print the login exchange.")
	readCmd := app.Command("read", "Log in and read the given paths.")
	readPaths := readCmd.Arg("path", "Paths to read.").Required().Strings()
	whoamiCmd := app.Command("whoami", "Log in and look up the issued token.")
	infoCmd := app.Command("info", "Log in and read the auth plugin's info endpoint.")
	watchCmd := app.Command("watch", "Probe on configuration changes, SIGHUP and the configured interval.")

	stubCmd := app.Command("stub", "Run or manage the local stub service.")
	stubServeCmd := stubCmd.Command("serve", "Run the stub service.")
	stubAddCmd := stubCmd.Command("add-client", "Register a client key with the stub service.")
	stubAddClient := stubAddCmd.Arg("client", "Client name. Defaults to the configured client.").String()
	stubAddKey := stubAddCmd.Arg("key", "Path to the client key. Defaults to the configured key.").String()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch command {
	case watchCmd.FullCommand():
		logger := mustLogger(*flags.logLevel)
		exit(logger, commands.Watch(*configPath, os.Stdout, logger), commands.ExitOK)

	case stubServeCmd.FullCommand():
		logger := mustLogger(*flags.logLevel)
		exit(logger, commands.StubServe(*configPath, logger), commands.ExitOK)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not load configuration file %s: %s\n", *configPath, err)
		os.Exit(commands.ExitFailure)
	}

	flags.apply(cfg)

	if err = cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %s\n", err)
		os.Exit(commands.ExitFailure)
	}

	logger := mustLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var summary *commands.Summary

	switch command {
	case probeCmd.FullCommand():
		summary, err = commands.Probe(ctx, cfg, nil, os.Stdout, logger)

	case loginCmd.FullCommand():
		err = commands.Login(ctx, cfg, os.Stdout, logger)

	case readCmd.FullCommand():
		summary, err = commands.Read(ctx, cfg, *readPaths, os.Stdout, logger)

	case whoamiCmd.FullCommand():
		summary, err = commands.WhoAmI(ctx, cfg, os.Stdout, logger)

	case infoCmd.FullCommand():
		summary, err = commands.Info(ctx, cfg, os.Stdout, logger)

	case stubAddCmd.FullCommand():
		err = commands.StubAddClient(cfg, *stubAddClient, *stubAddKey)
	}

	stop()
	exit(logger, err, commands.ExitCode(cfg, summary, err))
}

func mustLogger(level string) hclog.Logger {
	if level == "" {
		level = "info"
	}

	logger, err := logging.New(level, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(commands.ExitFailure)
	}

	return logger
}

func exit(logger hclog.Logger, err error, code int) {
	if err != nil {
		logger.Error(err.Error())
		os.Exit(commands.ExitFailure)
	}

	os.Exit(code)
}
