package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/momentics/hioload-httpd/logging"
	"github.com/momentics/hioload-httpd/protocol"
	"github.com/momentics/hioload-httpd/server"
)

const envPrefix = "HIOLOAD"

var errUsage = errors.New("usage")

func submain(ctx context.Context, args []string) int {
	cmd := newRootCommand(os.Stderr)
	if args == nil {
		// cobra falls back to os.Args for a nil slice
		args = []string{}
	}
	cmd.SetArgs(args)
	ctx = withSignalCancel(ctx)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("error:"), err)
		}
		return 1
	}
	return 0
}

func newRootCommand(stderr io.Writer) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "hioload-httpd [flags] <port>",
		Short:         "hioload-httpd is an epoll reactor HTTP/1.1 server for static files",
		SilenceErrors: true,
		SilenceUsage:  true,
		Example: `
  # serve ./root on port 9006
  hioload-httpd 9006

  # larger request buffer, sixteen workers, metrics on :9100
  hioload-httpd --read-buffer 8KiB --workers 16 --metrics-listen :9100 9006

  # same through the environment
  HIOLOAD_WORKERS=16 HIOLOAD_METRICS_LISTEN=:9100 hioload-httpd 9006
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				printUsage(stderr, cmd)
				return errUsage
			}
			port, err := strconv.Atoi(args[0])
			if err != nil || port < 0 || port > math.MaxUint16 {
				printUsage(stderr, cmd)
				return errUsage
			}
			if err := loadConfigFile(v); err != nil {
				return err
			}
			cfg, logOpts, err := bindConfig(v)
			if err != nil {
				return err
			}
			cfg.Port = port
			return serve(cmd.Context(), cfg, logOpts, stderr)
		},
	}
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)

	def := server.DefaultConfig()
	logDef := logging.DefaultOptions()
	flags := cmd.Flags()
	flags.StringP("config", "c", "", "path to YAML config file")
	flags.String("host", def.Host, "IPv4 address to bind, empty for all")
	flags.String("doc-root", def.DocRoot, "directory files are served from")
	flags.String("landing", def.Landing, "page served for /")
	flags.String("read-buffer", humanizeBytes(def.ReadBufferSize), "per-connection request buffer")
	flags.String("write-buffer", humanizeBytes(def.WriteBufferSize), "per-connection response header buffer")
	flags.Int("workers", def.Workers, "worker goroutines")
	flags.Int("max-requests", def.MaxRequests, "worker queue bound")
	flags.Int("max-conns", def.MaxConns, "open connection ceiling")
	flags.Int("max-events", def.MaxEvents, "events per epoll wait")
	flags.Int("reactor-cpu", def.ReactorCPU, "pin the event loop thread to this CPU; negative leaves it unpinned")
	flags.Duration("time-slot", def.TimeSlot, "timer sweep tick; connections idle for three slots are closed")
	flags.String("db-endpoint", def.Resource.Endpoint, "resource endpoint host; empty uses in-process handles")
	flags.Int("db-port", def.Resource.Port, "resource endpoint port")
	flags.String("db-user", def.Resource.User, "resource user")
	flags.String("db-password", def.Resource.Password, "resource password")
	flags.String("db-name", def.Resource.Database, "resource database name")
	flags.Int("db-capacity", def.Resource.Capacity, "resource handles")
	flags.Duration("dial-timeout", def.DialTimeout, "per-handle dial timeout")
	flags.String("users-file", def.UsersFile, "YAML users file, watched for changes")
	flags.String("metrics-listen", def.MetricsListen, "address for /metrics and /debug/state; empty disables")
	flags.Duration("shutdown-timeout", def.ShutdownTimeout, "bound on stopping the metrics listener")
	flags.String("log-level", logDef.Level, "log level (trace, debug, info, warn, error)")
	flags.Bool("log-console", logDef.Console, "human readable console logs")
	flags.String("log-file", logDef.File, "rolling log file path; empty logs to stderr")
	flags.Int("log-max-lines", logDef.MaxLines, "lines per rolling log file")
	flags.Int("log-queue", logDef.QueueSize, "async log queue length; 0 writes synchronously")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	flags.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			panic(err)
		}
	})
	return cmd
}

func printUsage(w io.Writer, cmd *cobra.Command) {
	fmt.Fprintf(w, "%s %s\n", color.YellowString("usage:"), cmd.UseLine())
	fmt.Fprintf(w, "run %s for flags\n", color.CyanString("%s --help", cmd.Name()))
}

func humanizeBytes(n int) string {
	return strings.ReplaceAll(humanize.IBytes(uint64(n)), " ", "")
}

func parseSize(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("parse %s: %s is too large", key, raw)
	}
	return int(n), nil
}

func loadConfigFile(v *viper.Viper) error {
	path := strings.TrimSpace(v.GetString("config"))
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	return nil
}

func bindConfig(v *viper.Viper) (*server.Config, logging.Options, error) {
	cfg := server.DefaultConfig()
	cfg.Host = v.GetString("host")
	cfg.DocRoot = v.GetString("doc-root")
	cfg.Landing = v.GetString("landing")
	var err error
	if cfg.ReadBufferSize, err = parseSize(v, "read-buffer"); err != nil {
		return nil, logging.Options{}, err
	}
	if cfg.WriteBufferSize, err = parseSize(v, "write-buffer"); err != nil {
		return nil, logging.Options{}, err
	}
	cfg.Workers = v.GetInt("workers")
	cfg.MaxRequests = v.GetInt("max-requests")
	cfg.MaxConns = v.GetInt("max-conns")
	cfg.MaxEvents = v.GetInt("max-events")
	cfg.ReactorCPU = v.GetInt("reactor-cpu")
	cfg.TimeSlot = v.GetDuration("time-slot")
	cfg.Resource.Endpoint = v.GetString("db-endpoint")
	cfg.Resource.Port = v.GetInt("db-port")
	cfg.Resource.User = v.GetString("db-user")
	cfg.Resource.Password = v.GetString("db-password")
	cfg.Resource.Database = v.GetString("db-name")
	cfg.Resource.Capacity = v.GetInt("db-capacity")
	cfg.DialTimeout = v.GetDuration("dial-timeout")
	cfg.UsersFile = v.GetString("users-file")
	cfg.MetricsListen = v.GetString("metrics-listen")
	cfg.ShutdownTimeout = v.GetDuration("shutdown-timeout")

	logOpts := logging.Options{
		Level:     v.GetString("log-level"),
		Console:   v.GetBool("log-console"),
		File:      v.GetString("log-file"),
		MaxLines:  v.GetInt("log-max-lines"),
		QueueSize: v.GetInt("log-queue"),
	}
	return cfg, logOpts, nil
}

func serve(ctx context.Context, cfg *server.Config, logOpts logging.Options, stderr io.Writer) error {
	logger, sink, err := logging.New(ctx, logOpts)
	if err != nil {
		return err
	}
	defer sink.Close()
	logger = logger.With("app", "hioload-httpd")
	logger.Info("server.lifecycle.init",
		"pid", os.Getpid(),
		"read_buffer", humanizeBytes(orDefault(cfg.ReadBufferSize, protocol.DefaultReadBufferSize)),
		"write_buffer", humanizeBytes(orDefault(cfg.WriteBufferSize, protocol.DefaultWriteBufferSize)),
	)

	srv, err := server.NewServer(ctx, cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("server.lifecycle.init_failed", "error", err)
		return err
	}
	fmt.Fprintf(stderr, "%s serving %s on port %s\n",
		color.GreenString("hioload-httpd"), cfg.DocRoot, color.New(color.Bold).Sprint(srv.Port()))
	return srv.Run(ctx)
}

func orDefault(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
