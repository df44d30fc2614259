// mcewatch keeps a local cache of MCE (mode control entity) state and prints
// or serves it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nikicat/mcewatch/internal/api"
	"github.com/nikicat/mcewatch/internal/cli"
	"github.com/nikicat/mcewatch/internal/config"
	"github.com/nikicat/mcewatch/internal/daemon"
	"github.com/nikicat/mcewatch/internal/logging"
	"github.com/nikicat/mcewatch/internal/mce"
	"github.com/nikicat/mcewatch/internal/monitor"
	"github.com/nikicat/mcewatch/internal/service"
)

const defaultStatusTimeout = 5 * time.Second

var progName = filepath.Base(os.Args[0])

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "watch":
		runWatch(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "stream":
		runStream(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "service":
		runService(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: %s <command> [options]

Commands:
  watch [timeout]  Print every MCE state change until interrupted
  status           Print the current MCE state once
  stream           Print changes reported by a running server
  serve            Run the state monitor and its HTTP API
  service          Manage the systemd user service

Run '%s <command> -h' for command-specific help.
`, progName, progName)
}

// commonFlags are accepted by every command that reads config.
type commonFlags struct {
	configPath *string
	busAddress *string
	logLevel   *string
	logFormat  *string
	kinds      *string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		configPath: fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/mcewatch/config.yaml)"),
		busAddress: fs.String("bus", "", "D-Bus address (default: system bus)"),
		logLevel:   fs.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error"),
		logFormat:  fs.String("log-format", config.DefaultLogFormat, "Log format: text (colored) or json"),
		kinds:      fs.String("kinds", "", "Comma-separated kinds to watch (default: all)"),
	}
}

// resolve loads the config file and overlays flags that were set explicitly.
// It returns the merged config, without defaults, and the path it was loaded
// from.
func (c *commonFlags) resolve(fs *flag.FlagSet) (*config.Config, string, error) {
	cfg, path, err := loadConfig(*c.configPath)
	if err != nil {
		return nil, "", err
	}
	set := setFlags(fs)
	if set["bus"] {
		cfg.BusAddress = *c.busAddress
	}
	if set["log-level"] {
		cfg.LogLevel = *c.logLevel
	}
	if set["log-format"] {
		cfg.LogFormat = *c.logFormat
	}
	if set["kinds"] {
		cfg.Kinds = splitList(*c.kinds)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func runtimeConfig(cfg *config.Config) daemon.RuntimeConfig {
	return daemon.RuntimeConfig{
		BusAddress:        cfg.BusAddress,
		ReconnectInterval: time.Duration(cfg.ReconnectInterval),
		Logger:            slog.Default(),
	}
}

// runWatch prints one line per change for every watched kind until SIGINT,
// SIGTERM or the optional timeout in seconds.
func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	common := addCommonFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s watch [options] [timeout-seconds]\n\n", progName)
		fs.PrintDefaults()
	}
	fs.Parse(args)

	cfg, _, err := common.resolve(fs)
	if err != nil {
		fatal(err)
	}
	cfg = cfg.WithDefaults()
	logging.Setup(cfg.LogFormat, cfg.LogLevel)
	kinds, err := cfg.ParsedKinds()
	if err != nil {
		fatal(err)
	}

	var timeout time.Duration
	if fs.NArg() > 0 {
		secs, err := strconv.ParseInt(fs.Arg(0), 0, 64)
		if err != nil {
			fatal(fmt.Errorf("invalid timeout %q: %w", fs.Arg(0), err))
		}
		timeout = time.Duration(secs) * time.Second
	}

	fmt.Println("startup")

	rt := daemon.StartRuntime(runtimeConfig(cfg))
	var printer *cli.Printer
	err = rt.Do(context.Background(), func() error {
		var err error
		printer, err = cli.OpenPrinter(rt.Registry, os.Stdout, kinds)
		return err
	})
	if err != nil {
		fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	fmt.Println("mainloop")
	<-ctx.Done()
	// Printer output comes from the loop goroutine; quit must follow it.
	rt.Do(context.Background(), func() error { //nolint:errcheck
		fmt.Println("quit")
		return nil
	})
	fmt.Println("cleanup")

	rt.Do(context.Background(), func() error { //nolint:errcheck
		printer.Close()
		return nil
	})
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rt.Stop(stopCtx)

	fmt.Println("exit")
}

// runStatus prints one snapshot, either from a local monitor that waits for
// every kind to become valid or from a running server.
func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	common := addCommonFlags(fs)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	timeout := fs.Duration("timeout", defaultStatusTimeout, "How long to wait for valid state")
	remote := addRemoteFlags(fs)
	fs.Parse(args)

	cfg, _, err := common.resolve(fs)
	if err != nil {
		fatal(err)
	}
	cfg = cfg.WithDefaults()
	logging.Setup(cfg.LogFormat, cfg.LogLevel)
	formatter := cli.NewFormatter(os.Stdout, *jsonOutput)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if remote.enabled(fs) {
		client, err := remote.client(cfg)
		if err != nil {
			fatal(err)
		}
		status, err := client.Status(ctx)
		if err != nil {
			fatal(err)
		}
		if err := formatter.FormatStatus(status); err != nil {
			fatal(err)
		}
		if !status.Valid {
			os.Exit(2)
		}
		return
	}

	kinds, err := cfg.ParsedKinds()
	if err != nil {
		fatal(err)
	}
	rt := daemon.StartRuntime(runtimeConfig(cfg))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rt.Stop(stopCtx)
	}()

	mon := monitor.New(rt.Loop, rt.Registry, kinds, slog.Default())
	if err := mon.Start(ctx); err != nil {
		fatal(err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mon.Stop(stopCtx)
	}()

	valid := true
	if err := mon.WaitValid(ctx); err != nil {
		slog.Warn("state not valid before timeout", "timeout", *timeout)
		valid = false
	}
	if err := formatter.FormatSnapshots(mon.Snapshots()); err != nil {
		fatal(err)
	}
	if !valid {
		// Deferred shutdown is skipped; the process is exiting anyway.
		os.Exit(2)
	}
}

// runStream follows the change stream of a running server.
func runStream(args []string) {
	fs := flag.NewFlagSet("stream", flag.ExitOnError)
	common := addCommonFlags(fs)
	jsonOutput := fs.Bool("json", false, "Output as JSON lines")
	remote := addRemoteFlags(fs)
	fs.Parse(args)

	cfg, _, err := common.resolve(fs)
	if err != nil {
		fatal(err)
	}
	cfg = cfg.WithDefaults()
	logging.Setup(cfg.LogFormat, cfg.LogLevel)

	client, err := remote.client(cfg)
	if err != nil {
		fatal(err)
	}
	formatter := cli.NewFormatter(os.Stdout, *jsonOutput)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = client.Watch(ctx, func(msg cli.Message) error {
		switch msg.Type {
		case api.MsgSnapshot:
			slog.Debug("stream connected", "conn", msg.Conn)
			return formatter.FormatSnapshots(msg.Entities)
		case api.MsgChanged:
			if msg.Event != nil {
				return formatter.FormatEvent(*msg.Event)
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
}

// remoteFlags select a running server for status and stream.
type remoteFlags struct {
	server   *string
	socket   *string
	stateDir *string
}

func addRemoteFlags(fs *flag.FlagSet) *remoteFlags {
	return &remoteFlags{
		server:   fs.String("server", "", "API server TCP address (token read from the state directory)"),
		socket:   fs.String("socket", "", "API server Unix socket (default: $XDG_RUNTIME_DIR/mcewatch/api.sock)"),
		stateDir: fs.String("state-dir", "", "State directory (default: $XDG_STATE_HOME/mcewatch)"),
	}
}

func (r *remoteFlags) enabled(fs *flag.FlagSet) bool {
	set := setFlags(fs)
	return set["server"] || set["socket"]
}

// client connects over TCP when --server is given, otherwise over the Unix
// socket from the flag, the config or the runtime directory.
func (r *remoteFlags) client(cfg *config.Config) (*cli.Client, error) {
	if *r.server != "" {
		stateDir := *r.stateDir
		if stateDir == "" {
			var err error
			if stateDir, err = getStateDir(); err != nil {
				return nil, err
			}
		}
		auth, err := api.LoadAuth(stateDir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%s serve is not running (no cookie file in %s)", progName, stateDir)
			}
			return nil, fmt.Errorf("load auth: %w", err)
		}
		return cli.NewClient(*r.server, auth.Token()), nil
	}
	socket := *r.socket
	if socket == "" {
		socket = cfg.Serve.Socket
	}
	if socket == "" {
		var err error
		if socket, err = defaultSocketPath(); err != nil {
			return nil, err
		}
	}
	return cli.NewUnixClient(socket), nil
}

// runServe runs the monitor and API until SIGINT or SIGTERM.
func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	common := addCommonFlags(fs)
	listenAddr := fs.String("listen", "", "HTTP API TCP listen address (empty to disable)")
	socketPath := fs.String("socket", "", "HTTP API Unix socket (default: $XDG_RUNTIME_DIR/mcewatch/api.sock)")
	stateDirFlag := fs.String("state-dir", "", "State directory (default: $XDG_STATE_HOME/mcewatch)")
	notifySystemd := fs.Bool("notify-systemd", true, "Send readiness and status to systemd")
	notifications := fs.Bool("notifications", true, "Show desktop notifications for battery and charger events")
	fs.Parse(args)

	cfg, cfgPath, err := common.resolve(fs)
	if err != nil {
		fatal(err)
	}
	set := setFlags(fs)
	if set["listen"] {
		cfg.Serve.Listen = *listenAddr
	}
	if set["socket"] {
		cfg.Serve.Socket = *socketPath
	}
	if cfg.Serve.Socket == "" && cfg.Serve.Listen == "" && !set["socket"] && !set["listen"] {
		// Without XDG_RUNTIME_DIR the TCP default applies instead.
		if path, err := defaultSocketPath(); err == nil {
			cfg.Serve.Socket = path
		}
	}
	cfg = cfg.WithDefaults()
	if !set["notify-systemd"] && cfg.Serve.NotifySystemd != nil {
		*notifySystemd = *cfg.Serve.NotifySystemd
	}
	if !set["notifications"] && cfg.Serve.Notifications != nil {
		*notifications = *cfg.Serve.Notifications
	}

	level := logging.Setup(cfg.LogFormat, cfg.LogLevel)
	kinds, err := cfg.ParsedKinds()
	if err != nil {
		fatal(err)
	}

	stateDir := *stateDirFlag
	if stateDir == "" {
		if stateDir, err = getStateDir(); err != nil {
			fatal(err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfgPath != "" {
		go func() {
			err := config.Watch(ctx, cfgPath, func(newCfg *config.Config) {
				// Only the log level is applied live; other keys need a restart.
				if set["log-level"] {
					return
				}
				lv := newCfg.WithDefaults().LogLevel
				level.Set(logging.ParseLevel(lv))
				slog.Info("log level updated", "level", lv)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("config watch stopped", "path", cfgPath, "error", err)
			}
		}()
	}

	err = daemon.Run(ctx, daemon.Config{
		RuntimeConfig: runtimeConfig(cfg),
		Kinds:         kinds,
		Listen:        cfg.Serve.Listen,
		Socket:        cfg.Serve.Socket,
		StateDir:      stateDir,
		NotifySystemd: *notifySystemd,
		Notifications: *notifications,
	})
	if err != nil {
		fatal(err)
	}
}

// runService handles the "service" subcommand group (install/uninstall/status).
func runService(args []string) {
	if len(args) == 0 {
		printServiceUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "install":
		runServiceInstall(args[1:])
	case "uninstall":
		if err := service.Uninstall(os.Stdout); err != nil {
			fatal(err)
		}
	case "status":
		service.Status()
	case "-h", "--help", "help":
		printServiceUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown service command: %s\n\n", args[0])
		printServiceUsage()
		os.Exit(1)
	}
}

func runServiceInstall(args []string) {
	fs := flag.NewFlagSet("service install", flag.ExitOnError)
	start := fs.Bool("start", false, "Start the service immediately after installing")
	configPath := fs.String("config", "", "Config file path to embed in the unit file")
	fs.Parse(args)

	if err := service.Install(service.Options{
		ConfigPath: *configPath,
		Start:      *start,
	}); err != nil {
		fatal(err)
	}
}

func printServiceUsage() {
	fmt.Fprintf(os.Stderr, `Usage: %s service <command> [options]

Commands:
  install       Install and enable the systemd user service
  uninstall     Stop, disable, and remove the systemd user service
  status        Show the service status

Install options:
  --start       Start the service immediately after installing
  --config      Config file path to embed in the unit file's ExecStart
`, progName)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	if errors.Is(err, mce.ErrUnknownKind) || errors.Is(err, config.ErrInvalid) {
		os.Exit(2)
	}
	os.Exit(1)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getStateDir() (string, error) {
	// Use XDG_STATE_HOME if set, otherwise ~/.local/state
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		stateHome = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateHome, "mcewatch"), nil
}

func defaultSocketPath() (string, error) {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, "mcewatch", "api.sock"), nil
}

// loadConfig loads a config file. An explicit path that doesn't exist is an
// error; a missing default path yields an empty config. The returned path is
// empty when no file backs the config.
func loadConfig(explicitPath string) (*config.Config, string, error) {
	if explicitPath != "" {
		if _, statErr := os.Stat(explicitPath); statErr != nil {
			return nil, "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		cfg, err := config.Load(explicitPath)
		if err != nil {
			return nil, "", fmt.Errorf("load config %s: %w", explicitPath, err)
		}
		return cfg, explicitPath, nil
	}

	defaultPath := config.DefaultPath()
	if defaultPath == "" {
		return &config.Config{}, "", nil
	}
	cfg, err := config.Load(defaultPath)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", defaultPath, err)
	}
	if _, statErr := os.Stat(defaultPath); statErr != nil {
		return cfg, "", nil
	}
	return cfg, defaultPath, nil
}

// setFlags returns the set of flag names that were explicitly provided on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	m := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { m[f.Name] = true })
	return m
}
