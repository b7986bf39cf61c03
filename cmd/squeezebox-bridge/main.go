// Command squeezebox-bridge is a standalone demo harness for
// internal/bridge: it builds one PlayerContext from flags and runs it
// against a real LMS until interrupted. The real embedding point for a
// host application is the library call (bridge.New, (*PlayerContext).Run),
// not this binary.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/doismellburning/squeezebox-bridge/internal/bridge"
	"github.com/doismellburning/squeezebox-bridge/internal/config"
	"github.com/doismellburning/squeezebox-bridge/internal/events"
	"github.com/doismellburning/squeezebox-bridge/internal/logging"
)

func main() {
	var lmsAddress = pflag.String("lms-address", "", "LMS server address. Required: this harness does not run discovery.")
	var lmsPort = pflag.IntP("lms-port", "p", 3483, "LMS SlimProto port.")
	var localPort = pflag.IntP("local-port", "l", 0, "Base port for this player's ephemeral HTTP server. 0 picks a free port.")
	var macStr = pflag.StringP("mac", "m", "", "Player MAC address, as 12 hex digits (e.g. 001122334455). Random if empty.")
	var name = pflag.StringP("name", "n", "squeezebox-bridge", "Player name announced to LMS.")
	var mode = pflag.StringP("mode", "M", "thru", "Output mode: thru/pcm/flc/mp3/null.")
	var cliPort = pflag.IntP("cli-port", "c", 9090, "LMS CLI port, for name-sync and transport control.")
	var useCLI = pflag.Bool("use-cli", false, "Open the LMS CLI side-channel.")
	var logLevel = pflag.StringP("log-level", "v", "info", "Log level: debug, info, warn, error.")

	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "squeezebox-bridge - a headless SlimProto player for embedding in a renderer.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: squeezebox-bridge --lms-address=HOST [options]\n\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(1)
	}

	logging.SetLevel(*logLevel)
	log := logging.NewNamed("main")

	if *lmsAddress == "" {
		fmt.Fprintf(os.Stderr, "no --lms-address given; discovery is not implemented by this demo harness.\n")
		pflag.Usage()
		os.Exit(1)
	}

	mac, err := parseMAC(*macStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "--mac: %s\n", err)
		os.Exit(1)
	}

	params := config.Default()
	params.Mac = mac
	params.Name = *name
	params.Mode = *mode
	params.UseCLI = *useCLI

	cfg := bridge.Config{
		Params:       params,
		HTTPBasePort: *localPort,
		CLIAddr:      fmt.Sprintf("%s:%d", hostOf(*lmsAddress), *cliPort),
	}

	onEvent := func(mr any, action events.Action, arg any) {
		log.Info("event", "action", action, "arg", arg)
	}

	player := bridge.New(cfg, onEvent, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	addr := fmt.Sprintf("%s:%d", *lmsAddress, *lmsPort)
	log.Info("connecting", "addr", addr, "mac", hex.EncodeToString(mac[:]))

	if err := player.Run(ctx, addr); err != nil && ctx.Err() == nil {
		log.Error("player exited", "err", err)
		os.Exit(1)
	}
}

// hostOf strips a trailing ":port" if the caller supplied one in
// --lms-address, so --cli-port always lands on the right host.
func hostOf(addr string) string {
	if i := strings.LastIndex(addr, ":"); i != -1 {
		return addr[:i]
	}

	return addr
}

func parseMAC(s string) ([6]byte, error) {
	var mac [6]byte

	if s == "" {
		if _, err := rand.Read(mac[:]); err != nil {
			return mac, err
		}

		mac[0] |= 0x02 // locally administered, per the IEEE 802 convention

		return mac, nil
	}

	s = strings.ReplaceAll(s, ":", "")
	s = strings.ReplaceAll(s, "-", "")

	decoded, err := hex.DecodeString(s)
	if err != nil {
		return mac, fmt.Errorf("invalid mac %q: %w", s, err)
	}

	if len(decoded) != 6 {
		return mac, fmt.Errorf("mac %q must decode to 6 bytes, got %d", s, len(decoded))
	}

	copy(mac[:], decoded)

	return mac, nil
}
