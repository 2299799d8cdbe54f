package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	_ "github.com/mccandless/odi/annotations"
	"github.com/mccandless/odi/di"
)

// application holds what commands share after flags are parsed.
type application struct {
	out io.Writer
	log *zap.Logger
	cfg *Config

	// logger owned by the application, synced in after
	owned bool
}

func newLogger(debug bool) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if !debug {
		zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zc.DisableStacktrace = true
	return zc.Build()
}

// before prepares the application context after the command line was parsed.
func (a *application) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var err error

	if a.log == nil {
		if a.log, err = newLogger(cmd.Bool("debug")); err != nil {
			return ctx, fmt.Errorf("unable to prepare logs: %w", err)
		}
		a.owned = true
	}

	configFile := cmd.String("config")
	if a.cfg, err = loadConfig(configFile); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if configFile == "" {
		a.log.Debug("Using defaults (no configuration file)")
	}
	return ctx, nil
}

func (a *application) after(context.Context, *cli.Command) error {
	if a.owned && a.log != nil {
		// stderr sync fails on some terminals, nothing to do about it
		_ = a.log.Sync()
	}
	return nil
}

func (a *application) generate(_ context.Context, cmd *cli.Command) error {
	dir := cmd.String("dir")
	out := cmd.String("out")
	a.log.Debug("Generating", zap.String("dir", dir), zap.String("out", out))
	if err := generate(a.log, a.cfg, dir, out); err != nil {
		return fmt.Errorf("odigen: %s: %w", dir, err)
	}
	return nil
}

// listQualifiers prints the configured qualifiers plus the ones registered
// with the runtime by linked packages.
func (a *application) listQualifiers(context.Context, *cli.Command) error {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tTARGETS\tSOURCE")
	for _, q := range a.cfg.Qualifiers {
		fmt.Fprintf(tw, "%s\t%s\t%s\tconfig\n", q.Name, q.goType(), q.targets)
	}
	for _, d := range di.Declarations() {
		if q, ok := a.cfg.lookup(d.Name); ok {
			if q.targets != d.Targets {
				a.log.Warn("Configured targets differ from runtime declaration",
					zap.String("qualifier", d.Name),
					zap.Stringer("config", q.targets),
					zap.Stringer("runtime", d.Targets))
			}
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\truntime\n", d.Name, d.Type, d.Targets)
	}
	return tw.Flush()
}

func (a *application) dumpConfig(context.Context, *cli.Command) error {
	data, err := a.cfg.Dump()
	if err != nil {
		return fmt.Errorf("unable to dump configuration: %w", err)
	}
	_, err = a.out.Write(data)
	return err
}

func (a *application) command() *cli.Command {
	return &cli.Command{
		Name:            "odigen",
		Usage:           "generates explicit wiring for qualified injection sites",
		HideHelpCommand: true,
		Writer:          a.out,
		Before:          a.before,
		After:           a.after,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "load qualifier declarations from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "verbose logging"},
		},
		Commands: []*cli.Command{
			{
				Name:   "generate",
				Usage:  "Scans a package and writes Wire<Struct> and RegisterProviders functions",
				Action: a.generate,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Value: ".", Usage: "package `DIR` to scan"},
					&cli.StringFlag{Name: "out", Usage: "output `FILE` (default DIR/" + defaultOutName + ")"},
				},
			},
			{
				Name:   "qualifiers",
				Usage:  "Lists known qualifiers and their targets",
				Action: a.listQualifiers,
			},
			{
				Name:   "dumpconfig",
				Usage:  "Dumps the active configuration (YAML)",
				Action: a.dumpConfig,
			},
		},
	}
}

func run(ctx context.Context, out io.Writer, log *zap.Logger, args []string) error {
	a := &application{out: out, log: log}
	return a.command().Run(ctx, args)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx, os.Stdout, nil, os.Args)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
		os.Exit(1)
	}
}
