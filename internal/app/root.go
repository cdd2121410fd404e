package app

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/SridarDhandapani/isapi"
	"github.com/SridarDhandapani/isapi/internal/config"
	"github.com/SridarDhandapani/isapi/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	username   string
	password   string
	timeout    time.Duration
	logDir     string
	noLogFile  bool
	verbosity  int
	logLevel   string

	// RootCmd is the root command for nvrdl
	RootCmd = &cobra.Command{
		Use:   "nvrdl",
		Short: "Download recorded video from ISAPI network video recorders",
		Long: `nvrdl searches an NVR for the recordings of one camera channel inside a
time range and downloads every segment as an .mp4 file, recovering from
wedged devices by rebooting them.

Credentials come from --user/--password, the config file, or the
LAVIEW_NVR_USER and LAVIEW_NVR_PASS environment variables.

Examples:
  # Download channel 1 between two local times
  nvrdl download 10.145.17.202 2020-04-15 00:30:00 2020-04-15 10:59:59

  # Same range interpreted as UTC, channel 2
  nvrdl download --utc --channel 2 10.145.17.202 2020-04-15 00:30:00 2020-04-15 10:59:59

  # List the cameras of an NVR
  nvrdl channels 10.145.17.202`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	flags := RootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default: ~/.config/nvrdl/config.toml)")
	flags.StringVarP(&username, "user", "u", "", "device user (default: $"+config.EnvUser+")")
	flags.StringVarP(&password, "password", "p", "", "device password (default: $"+config.EnvPassword+")")
	flags.DurationVar(&timeout, "timeout", 0, "network timeout per request (default 10s)")
	flags.StringVar(&logDir, "log-dir", "", "directory of per-device log files")
	flags.BoolVar(&noLogFile, "no-log-file", false, "log to the terminal only")
	flags.CountVarP(&verbosity, "verbose", "v", "more output, repeat for trace")
	flags.StringVar(&logLevel, "log-level", "", "explicit log level (trace, debug, info, warn, error)")

	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command, cancelling on SIGINT and SIGTERM
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RootCmd.ExecuteContext(ctx)
}

// runtime bundles what a command needs to talk to one device
type runtime struct {
	config config.Config
	log    zerolog.Logger
	closer io.Closer
	client *isapi.Client
}

func (r *runtime) Close() {
	if r.closer != nil {
		r.closer.Close()
	}
}

// newRuntime loads configuration, applies command-line overrides and builds
// the logger and client for address (the config file address when empty)
func newRuntime(cmd *cobra.Command, address string, override func(*config.Config)) (*runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if address = strings.TrimSpace(address); address != "" {
		cfg.Address = address
	}
	if override != nil {
		override(&cfg)
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("no device address given and none configured")
	}

	opts := logging.Options{
		Level:     logLevel,
		Verbosity: verbosity,
		Console:   cmd.ErrOrStderr(),
		Device:    cfg.Address,
	}
	if cfg.WriteLogs {
		opts.LogDir = cfg.LogDir
	}
	logger, closer, err := logging.New(opts)
	if err != nil {
		return nil, err
	}

	client := isapi.NewClientWithConfig(cfg.Address, cfg.Username, cfg.Password, cfg.ClientConfig(&logger))
	return &runtime{config: cfg, log: logger, closer: closer, client: client}, nil
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("user") {
		cfg.Username = username
	}
	if flags.Changed("password") {
		cfg.Password = password
	}
	if flags.Changed("timeout") && timeout > 0 {
		cfg.Timeout = timeout
	}
	if flags.Changed("log-dir") {
		cfg.LogDir = logDir
	}
	if noLogFile {
		cfg.WriteLogs = false
	}
	return cfg, nil
}
