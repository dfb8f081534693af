package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sysvolscan/config"
	"sysvolscan/diag"
	"sysvolscan/logger"
	"sysvolscan/output"
	"sysvolscan/remote"
	"sysvolscan/remote/local"
	"sysvolscan/remote/smb"
	"sysvolscan/scanner"
	"sysvolscan/tracing"
	"sysvolscan/version"

	"github.com/spf13/cobra"
)

var allModes = []string{scanner.ModeLogonScripts, scanner.ModeCredentials, scanner.ModeSpider}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "sysvolscan",
		Short:        "Enumerate logon scripts and hunt credentials on SYSVOL and SMB shares",
		SilenceUsage: true,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		modeCommand(scanner.ModeLogonScripts, "Enumerate logon scripts and GPO script references in SYSVOL", scanner.ModeLogonScripts),
		modeCommand(scanner.ModeCredentials, "Search SYSVOL logon scripts for embedded credentials", scanner.ModeCredentials),
		modeCommand(scanner.ModeSpider, "Spider every readable share for credential material", scanner.ModeSpider),
		modeCommand("all", "Run logon-scripts, creds and spider in turn", allModes...),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version.Version)
			},
		},
	)
	return root
}

func modeCommand(use, short string, modes ...string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFlags(cmd.Flags())
			if err != nil {
				return fmt.Errorf("error loading configuration: %w", err)
			}
			cfg.Modes = modes
			return run(cmd.Context(), cfg)
		},
	}
}

func run(parent context.Context, cfg *config.Config) error {
	logger.Init(cfg.LogLevel)

	if cfg.OutputFileName != "" && cfg.RedactSensitive == "" {
		logger.Warn("Credentials will be stored unredacted in the report. Consider --redact-sensitive mask or hash.")
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	metrics := output.Metrics{
		StartTime: time.Now().Format(time.RFC3339),
		Modes:     cfg.Modes,
	}

	session, err := openSession(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer session.Close()

	writer, err := output.New(cfg, &metrics)
	if err != nil {
		return err
	}
	defer writer.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go handleSignalEvent(ctx, cancel, sigChan)

	writer.WriteRun(session.Info(), cfg.Modes)

	sc, err := scanner.New(cfg, session, writer)
	if err != nil {
		return err
	}

	watchdog, stopTrace := newWatchdog(cfg, sc)
	watchdog.Start(ctx)
	defer stopTrace()
	defer watchdog.Stop()

	var runErr error
	for _, mode := range cfg.Modes {
		if _, err := sc.Run(ctx, mode); err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Warnf("Scan interrupted during %s.", mode)
			} else {
				runErr = fmt.Errorf("%s failed: %w", mode, err)
			}
			break
		}
	}

	metrics.ApplyStats(sc.Stats())
	metrics.EndTime = time.Now().Format(time.RFC3339)
	writer.SetMetrics(metrics)

	if runErr != nil {
		logger.Error(runErr)
		return runErr
	}
	logger.Info("Scanning completed.")
	return nil
}

func openSession(ctx context.Context, cfg *config.Config) (remote.Session, error) {
	domain := cfg.DNSDomain
	if domain == "" {
		domain = cfg.Domain
	}
	if cfg.LocalRoot != "" {
		s, err := local.Open(cfg.LocalRoot, remote.HostInfo{Domain: domain, Hostname: cfg.Hostname})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := smb.Dial(ctx, smb.Options{
		Host:      cfg.Target,
		Port:      cfg.Port,
		Username:  cfg.Username,
		Password:  cfg.Password,
		NTHash:    cfg.NTHash,
		Domain:    cfg.Domain,
		DNSDomain: domain,
		Hostname:  cfg.Hostname,
		Timeout:   cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newWatchdog(cfg *config.Config, sc *scanner.Scanner) (*diag.Watchdog, func()) {
	opts := diag.Options{
		StallThreshold: cfg.StallThreshold,
		Dir:            cfg.DiagDir,
		Progress: func() int64 {
			s := sc.Stats()
			return s.DirectoriesListed + s.ListingFailures + s.FilesMatched + s.FilesFetched + s.FetchFailures
		},
	}
	var recorder *tracing.FlightRecorder
	if cfg.FlightRecorder && cfg.StallThreshold > 0 {
		var err error
		recorder, err = tracing.StartFlightRecorder(32<<20, 30*time.Second)
		if err != nil {
			logger.Warnf("Failed to start flight recorder: %v", err)
		} else {
			opts.DumpTrace = recorder.WriteFile
		}
	}
	return diag.NewWatchdog(opts), recorder.Stop
}

// handleSignalEvent cancels the scan on the first signal. It returns early
// when ctx ends without one.
func handleSignalEvent(ctx context.Context, cancelFunc context.CancelFunc, sigChan <-chan os.Signal) {
	select {
	case <-sigChan:
		logger.Info("Interrupt signal received. Shutting down...")
		cancelFunc()
	case <-ctx.Done():
	}
}
