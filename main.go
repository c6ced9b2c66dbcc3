package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PastureDB/bootstrap"
	"PastureDB/config"
	"PastureDB/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

/*
pasturedb runs one node: it recovers every table space under the base directory and serves
the connection front over HTTP until SIGINT or SIGTERM.

Configuration comes from .env and the environment (see config.LoadConfig), a flag given on
the command line wins over both.
*/

type flags struct {
	nodeID           string
	baseDir          string
	host             string
	port             int
	zmqPort          int
	tls              bool
	certFile         string
	keyFile          string
	planCacheBytes   int64
	checkpointPeriod time.Duration
	maxLogSize       int64
	segmentSize      int64
	logLevel         string
	logFormat        string
	logFile          string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "pasturedb",
		Short:         "PastureDB storage and catalog node",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			f.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := logging.Init(logging.Config{
				Level:      logging.LogLevel(cfg.LogLevel),
				Format:     cfg.LogFormat,
				OutputPath: cfg.LogFile,
			}); err != nil {
				return err
			}
			defer logging.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return bootstrap.Run(ctx, cfg)
		},
	}

	f.bind(cmd.Flags())
	return cmd
}

func (f *flags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.nodeID, "node-id", "", "node id (NODE_ID)")
	fs.StringVar(&f.baseDir, "base-dir", config.DefaultBaseDir, "data directory (BASE_DIR)")
	fs.StringVar(&f.host, "host", config.DefaultHTTPHost, "HTTP listen host (HTTP_HOST)")
	fs.IntVar(&f.port, "port", config.DefaultHTTPPort, "HTTP listen port (HTTP_PORT)")
	fs.IntVar(&f.zmqPort, "zmq-port", 0, "ZeroMQ REP port, 0 disables it (ZMQ_PORT)")
	fs.BoolVar(&f.tls, "tls", false, "serve HTTPS (TLS_ENABLED)")
	fs.StringVar(&f.certFile, "tls-cert", "", "certificate file (TLS_CERT_FILE)")
	fs.StringVar(&f.keyFile, "tls-key", "", "key file (TLS_KEY_FILE)")
	fs.Int64Var(&f.planCacheBytes, "plan-cache-bytes", config.DefaultPlanCacheMaxBytes, "plan cache capacity (PLAN_CACHE_MAX_BYTES)")
	fs.DurationVar(&f.checkpointPeriod, "checkpoint-period", config.DefaultCheckpointPeriod, "checkpoint period (CHECKPOINT_PERIOD)")
	fs.Int64Var(&f.maxLogSize, "max-log-size", config.DefaultMaxLogSize, "log size that forces a checkpoint (MAX_LOG_SIZE)")
	fs.Int64Var(&f.segmentSize, "wal-segment-size", config.DefaultWALSegmentSize, "log segment size (WAL_SEGMENT_SIZE)")
	fs.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel, "DEBUG, INFO, WARN or ERROR (LOG_LEVEL)")
	fs.StringVar(&f.logFormat, "log-format", config.DefaultLogFormat, "text or json (LOG_FORMAT)")
	fs.StringVar(&f.logFile, "log-file", "", "log file, stderr when empty (LOG_FILE)")
}

// apply copies the flags given on the command line into cfg
func (f *flags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("node-id") {
		cfg.NodeID = f.nodeID
	}
	if changed("base-dir") {
		cfg.BaseDir = f.baseDir
	}
	if changed("host") {
		cfg.HTTPHost = f.host
	}
	if changed("port") {
		cfg.HTTPPort = f.port
	}
	if changed("zmq-port") {
		cfg.ZMQPort = f.zmqPort
	}
	if changed("tls") {
		cfg.TLSEnabled = f.tls
	}
	if changed("tls-cert") {
		cfg.TLSCertFile = f.certFile
	}
	if changed("tls-key") {
		cfg.TLSKeyFile = f.keyFile
	}
	if changed("plan-cache-bytes") {
		cfg.PlanCacheMaxBytes = f.planCacheBytes
	}
	if changed("checkpoint-period") {
		cfg.CheckpointPeriod = f.checkpointPeriod
	}
	if changed("max-log-size") {
		cfg.MaxLogSize = f.maxLogSize
	}
	if changed("wal-segment-size") {
		cfg.WALSegmentSize = f.segmentSize
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if changed("log-file") {
		cfg.LogFile = f.logFile
	}
	cfg.ApplyDefaults()
}
