// mock-mce runs a minimal mode control entity for manual testing. State
// changes are read from stdin, one command per line.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/godbus/dbus/v5"

	"github.com/nikicat/mcewatch/internal/logging"
	"github.com/nikicat/mcewatch/internal/testutil"
)

const help = `Commands:
  level <0-100>        battery level
  battery <status>     unknown, empty, low, ok, full
  charger <state>      unknown, on, off
  display <state>      off, dim, on
  tklock <mode>        locked, silent-locked, locked-dim, locked-delay,
                       silent-locked-dim, unlocked, silent-unlocked
  inactive <bool>      inactivity status
  fail <method>        make a get_* method return an error
  quit
`

func main() {
	busAddr := flag.String("bus", "", "D-Bus address to register on (default: session bus)")
	level := flag.Int("level", 50, "Initial battery level")
	battery := flag.String("battery", "", "Initial battery status")
	charger := flag.String("charger", "", "Initial charger state")
	display := flag.String("display", "", "Initial display state")
	tklock := flag.String("tklock", "", "Initial lock mode")
	inactive := flag.Bool("inactive", false, "Initial inactivity status")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logging.Setup("text", *logLevel)

	var conn *dbus.Conn
	var err error
	if *busAddr == "" {
		conn, err = dbus.ConnectSessionBus()
	} else {
		conn, err = dbus.Connect(*busAddr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: connect to bus: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	mock := testutil.NewMockMCE()
	if err := mock.Register(conn); err != nil {
		fmt.Fprintf(os.Stderr, "error: register mock MCE: %v\n", err)
		os.Exit(1)
	}

	initial := []string{"level " + strconv.Itoa(*level), "inactive " + strconv.FormatBool(*inactive)}
	for cmd, v := range map[string]string{"battery": *battery, "charger": *charger, "display": *display, "tklock": *tklock} {
		if v != "" {
			initial = append(initial, cmd+" "+v)
		}
	}
	for _, line := range initial {
		if err := apply(mock, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("Mock MCE running. Type 'help' for commands, Ctrl+C to exit.")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("Shutting down...")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "quit", "exit":
				return
			case "help":
				fmt.Print(help)
				continue
			}
			if err := apply(mock, line); err != nil {
				slog.Warn("command failed", "command", line, "error", err)
			}
		}
	}
}

// apply runs one "<command> <value>" line against the mock.
func apply(mock *testutil.MockMCE, line string) error {
	cmd, arg, ok := strings.Cut(line, " ")
	if !ok {
		return fmt.Errorf("missing argument to %q", cmd)
	}
	arg = strings.TrimSpace(arg)
	slog.Debug("applying", "command", cmd, "value", arg)
	switch cmd {
	case "level":
		n, err := strconv.ParseInt(arg, 10, 32)
		if err != nil {
			return fmt.Errorf("level: %w", err)
		}
		return mock.SetBatteryLevel(int32(n))
	case "battery":
		return mock.SetBatteryStatus(arg)
	case "charger":
		return mock.SetChargerState(arg)
	case "display":
		return mock.SetDisplayStatus(arg)
	case "tklock":
		return mock.SetTklockMode(arg)
	case "inactive":
		b, err := strconv.ParseBool(arg)
		if err != nil {
			return fmt.Errorf("inactive: %w", err)
		}
		return mock.SetInactivity(b)
	case "fail":
		mock.FailMethod(arg)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
