// Command selene-language-server speaks LSP on stdin and stdout and lints
// Lua buffers with selene.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jackTabsCode/selene-language-server/langserver"
	lspserver "github.com/jackTabsCode/selene-language-server/lsp-server"
	"github.com/jackTabsCode/selene-language-server/selene"
	"github.com/jackTabsCode/selene-language-server/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

type app struct {
	v        *viper.Viper
	cfgFile  string
	config   *Config
	exitCode int
}

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	a := &app{v: viper.New()}
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return a.exitCode
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selene-language-server",
		Short: "Language server for the selene Lua linter",
		Long: `selene-language-server lints Lua documents with selene as they are opened and
edited in an editor, and offers quick fixes that suppress a rule for a line or
a whole file. Run without arguments it speaks LSP over stdin and stdout.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config, err := LoadConfig(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			a.config = config
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: <user config dir>/selene-language-server/selene-language-server.yaml or ./selene-language-server.yaml)")
	flags.String("selene-path", selene.DefaultPath, "selene executable")
	flags.String("delivery", string(selene.DeliveryStdin), "how buffers are handed to selene (stdin, file)")
	flags.Duration("timeout", selene.DefaultTimeout, "maximum duration of one selene run")
	flags.Int("max-concurrent", selene.DefaultMaxConcurrent, "maximum number of selene processes at once")
	flags.Bool("whole-file-quickfix", true, "also offer quick fixes that allow a rule for the entire file")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "log file (default: stderr)")
	flags.String("trace-exporter", telemetry.ExporterNone, "where lint spans go (none, stdout, otlp); stdout means the log file")
	flags.String("metric-exporter", telemetry.ExporterNone, "where lint metrics go (none, stdout); stdout means the log file")

	_ = a.v.BindPFlag("linter.path", flags.Lookup("selene-path"))
	_ = a.v.BindPFlag("linter.delivery", flags.Lookup("delivery"))
	_ = a.v.BindPFlag("linter.timeout", flags.Lookup("timeout"))
	_ = a.v.BindPFlag("linter.max_concurrent", flags.Lookup("max-concurrent"))
	_ = a.v.BindPFlag("quickfix.whole_file", flags.Lookup("whole-file-quickfix"))
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.file", flags.Lookup("log-file"))
	_ = a.v.BindPFlag("telemetry.trace_exporter", flags.Lookup("trace-exporter"))
	_ = a.v.BindPFlag("telemetry.metric_exporter", flags.Lookup("metric-exporter"))

	cmd.AddCommand(a.checkCmd())
	return cmd
}

func (a *app) serve(cmd *cobra.Command) error {
	logger, sink, err := buildLogger(a.config.Log.File, a.config.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	shutdownTelemetry, err := telemetry.Init(cmd.Context(), a.config.telemetryConfig(), sink)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		fmt.Fprintln(cmd.ErrOrStderr(), "selene-language-server speaks LSP on stdin; it is meant to be started by an editor")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runner := selene.New(a.config.runnerConfig(), logger)
	srv := langserver.New(ctx, runner, a.config.serverOptions(), logger)

	logger.Info("serving on stdio",
		zap.String("version", version),
		zap.String("selene", a.config.Linter.Path),
		zap.String("delivery", a.config.Linter.Delivery),
		zap.String("trace_exporter", a.config.Telemetry.TraceExporter),
	)
	conn := lspserver.Serve(ctx, lspserver.Stdio(), srv.Methods(), logger)

	select {
	case <-conn.DisconnectNotify():
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
		_ = conn.Close()
	}

	// Lints still running have nobody to publish to.
	cancel()
	srv.Wait()

	select {
	case <-srv.Exited():
		a.exitCode = srv.ExitCode()
	default:
		logger.Warn("connection closed without exit")
		a.exitCode = 1
	}
	return nil
}
