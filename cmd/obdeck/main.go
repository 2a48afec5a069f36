package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/obdeck/obdeck/internal/elm"
	"github.com/obdeck/obdeck/internal/link"
	"github.com/obdeck/obdeck/internal/server"
	"github.com/obdeck/obdeck/internal/store"
	"github.com/obdeck/obdeck/internal/transport"
	"github.com/obdeck/obdeck/web"
)

var (
	configPath string
	simMode    bool
	listenAddr string
)

func main() {
	root := &cobra.Command{
		Use:   "obdeck",
		Short: "OBD-II telemetry dashboard",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the acquisition loop and dashboard server",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&configPath, "config", "/etc/obdeck/config.yaml", "Path to config file")
	serveCmd.Flags().BoolVar(&simMode, "sim", false, "Run against a simulated adapter")
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Override listen address (e.g. :8080)")

	dtcCmd := &cobra.Command{
		Use:   "dtc <response>",
		Short: "Decode a Mode-03 trouble-code response",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDTC,
	}

	root.AddCommand(serveCmd, dtcCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] obdeck starting")

	cfg := server.LoadConfig(configPath)
	if simMode {
		cfg.Adapter.Strategy = "sim"
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	st := store.New()

	lnk := link.New(linkConfig(cfg.Adapter), buildCandidates(cfg.Adapter), st)
	go lnk.Run(ctx)

	// The dashboard serves immediately; the link reports its own state
	// through the snapshot while it connects.
	srv := server.New(cfg, st, web.FS)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runDTC(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	codes := elm.DecodeDTCs(text)
	if len(codes) == 0 {
		fmt.Println("no trouble codes in response")
		return nil
	}
	var dtcs []elm.DTC
	for _, code := range codes {
		dtcs = append(dtcs, elm.Describe(code))
	}
	elm.SortBySeverity(dtcs)
	for _, d := range dtcs {
		fmt.Printf("%s  [%s]  %s\n", d.Code, severityName(d.Severity), d.Description)
	}
	return nil
}

func severityName(s int) string {
	switch s {
	case elm.SeverityCritical:
		return "critical"
	case elm.SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

func linkConfig(a server.AdapterConfig) link.Config {
	cfg := link.DefaultConfig()
	if a.PollIntervalMs > 0 {
		cfg.PollInterval = time.Duration(a.PollIntervalMs) * time.Millisecond
	}
	if a.CommandTimeoutMs > 0 {
		cfg.CommandTimeout = time.Duration(a.CommandTimeoutMs) * time.Millisecond
	}
	if a.FailureThreshold > 0 {
		cfg.FailureThreshold = a.FailureThreshold
	}
	if a.BackoffMs > 0 {
		cfg.Backoff = time.Duration(a.BackoffMs) * time.Millisecond
	}
	return cfg
}

// buildCandidates turns the adapter config into the bounded connection
// attempt list. "auto" tries the managed bridge with each PIN, then the
// raw stream; naming each candidate keeps the logs readable.
func buildCandidates(a server.AdapterConfig) []link.Candidate {
	bridgeCfg := transport.BridgeConfig{
		PortPath: a.PortPath,
		BaudRate: a.BaudRate,
		PeerAddr: a.PeerAddr,
	}
	serialCfg := transport.SerialConfig{
		PortPath: a.PortPath,
		BaudRate: a.BaudRate,
	}

	var out []link.Candidate
	addBridge := func() {
		for _, pin := range a.PINs {
			pin := pin
			out = append(out, link.Candidate{
				Name: "bridge pin " + pin,
				Dial: func() transport.Transport { return transport.NewBridge(bridgeCfg, pin) },
			})
		}
	}
	addSerial := func() {
		out = append(out, link.Candidate{
			Name: "serial " + a.PortPath + " @" + strconv.Itoa(a.BaudRate),
			Dial: func() transport.Transport { return transport.NewSerial(serialCfg) },
		})
	}

	switch a.Strategy {
	case "sim":
		sim := transport.NewSim()
		out = append(out, link.Candidate{
			Name: "sim",
			Dial: func() transport.Transport { return sim },
		})
	case "bridge":
		addBridge()
	case "serial":
		addSerial()
	default: // auto
		addBridge()
		addSerial()
	}
	return out
}
