// packetfwd is the Semtech-protocol LoRa packet forwarder.
// Main entry point for the forwarder service.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agsys/packetfwd/internal/config"
	"github.com/agsys/packetfwd/internal/dispatch"
	"github.com/agsys/packetfwd/internal/downstream"
	"github.com/agsys/packetfwd/internal/gateway"
	"github.com/agsys/packetfwd/internal/gpsref"
	"github.com/agsys/packetfwd/internal/monitor"
	"github.com/agsys/packetfwd/internal/radio"
	"github.com/agsys/packetfwd/internal/semtech"
	"github.com/agsys/packetfwd/internal/spectral"
	"github.com/agsys/packetfwd/internal/statreport"
	"github.com/agsys/packetfwd/internal/statslog"
	"github.com/agsys/packetfwd/internal/upstream"
)

var (
	configFile string
	monitorAddr string

	rootCmd = &cobra.Command{
		Use:   "packetfwd",
		Short: "Semtech-protocol LoRa packet forwarder",
		Long:  "Forwards LoRa uplinks/downlinks between a radio concentrator and a Semtech UDP protocol server.",
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the forwarder",
		RunE:  runForwarder,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("packetfwd v0.1.0")
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/packetfwd/global_conf.json", "Configuration file path")
	runCmd.Flags().StringVar(&monitorAddr, "monitor-addr", ":17400", "Address for the read-only live monitor feed")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runForwarder(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	gatewayID, err := parseGatewayID(cfg.Gateway.GatewayID)
	if err != nil {
		return fmt.Errorf("invalid gateway_ID: %w", err)
	}

	hal := radio.NewSimulator(gatewayIDUint64(gatewayID))
	if err := hal.Start(); err != nil {
		return fmt.Errorf("failed to start radio: %w", err)
	}

	gw := gateway.New(cfg, hal)

	upConn, err := dialUDP(cfg.Gateway.ServerAddress, cfg.Gateway.ServPortUp)
	if err != nil {
		return fmt.Errorf("failed to dial upstream socket: %w", err)
	}
	defer upConn.Close()

	downConn, err := dialUDP(cfg.Gateway.ServerAddress, cfg.Gateway.ServPortDown)
	if err != nil {
		return fmt.Errorf("failed to dial downstream socket: %w", err)
	}
	defer downConn.Close()

	up := &upstream.Pipeline{
		GW:        gw,
		Conn:      upConn,
		GatewayID: gatewayID,
		Policy: upstream.Policy{
			ForwardValid:    cfg.Gateway.ForwardCRCValid,
			ForwardError:    cfg.Gateway.ForwardCRCError,
			ForwardDisabled: cfg.Gateway.ForwardCRCDisabled,
		},
	}
	down := &downstream.Pipeline{GW: gw, Conn: downConn, GatewayID: gatewayID}
	jitDispatch := &dispatch.Dispatcher{GW: gw}
	mon := monitor.NewServer(gw, monitorAddr)

	db, err := statslog.Open(statsLogPath(cfg))
	if err != nil {
		log.Printf("statslog: unavailable, history will not be recorded: %v", err)
		db = nil
	} else {
		defer db.Close()
	}

	statLoop := &statreport.Loop{
		GW:       gw,
		DB:       db,
		Monitor:  mon,
		Interval: time.Duration(cfg.Gateway.StatInterval) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Println("shutdown signal received, draining activities")
		gw.RequestExit()
	}()

	run := func(name string, fn func(context.Context) error) {
		go func() {
			if err := fn(gw.ExitContext()); err != nil {
				log.Printf("%s: %v", name, err)
			}
		}()
	}

	run("upstream", func(ctx context.Context) error {
		err := up.Run(ctx)
		if err != nil {
			gw.RequestExit() // a radio receive failure is fatal
		}
		return err
	})
	run("downstream", down.Run)
	run("dispatch", jitDispatch.Run)
	run("monitor", mon.Run)
	run("stats", statLoop.Run)

	if cfg.Gateway.GPSTTYPath != "" {
		reader, validator, err := newGPSActivities(gw, hal, cfg.Gateway.GPSTTYPath)
		if err != nil {
			log.Printf("gps: disabled: %v", err)
		} else {
			run("gps-reader", reader.Run)
			run("gps-validator", validator.Run)
		}
	}

	if cfg.SX130x.SX1261.SpectralScan && len(cfg.SX130x.Radios) > 0 {
		results := make(chan spectral.Result, 16)
		loop := &spectral.Loop{
			GW:      gw,
			Results: results,
			Cfg: spectral.Config{
				FreqStart: cfg.SX130x.Radios[0].FreqHz,
				StepHz:    200_000,
				NbChan:    8,
				NbScan:    16,
				Pace:      10 * time.Second,
			},
		}
		go consumeSpectralResults(db, results)
		run("spectral", loop.Run)
	}

	log.Printf("packetfwd started, gateway_id=%s", semtech.GatewayIDString(gatewayID))
	<-gw.ExitDone()
	log.Println("shutdown complete")
	return nil
}

func consumeSpectralResults(db *statslog.DB, results <-chan spectral.Result) {
	for r := range results {
		if db == nil {
			continue
		}
		if err := db.InsertSpectralScan(r.ScanID.String(), r.RFChain, r.FreqHz); err != nil {
			log.Printf("spectral: record scan: %v", err)
		}
	}
}

func statsLogPath(cfg config.Config) string {
	return "/var/lib/packetfwd/stats.db"
}

func newGPSActivities(gw *gateway.Context, hal radio.HAL, ttyPath string) (*gpsref.Reader, *gpsref.Validator, error) {
	return nil, nil, fmt.Errorf("no NMEA/UBX decoder wired for %s", ttyPath)
}

func dialUDP(host string, port uint16) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, err
	}
	return net.DialUDP("udp", nil, addr)
}

func parseGatewayID(hexID string) ([8]byte, error) {
	var id [8]byte
	if len(hexID) != 16 {
		return id, fmt.Errorf("gateway_ID must be 16 hex characters")
	}
	for i := 0; i < 8; i++ {
		var b byte
		if _, err := fmt.Sscanf(hexID[i*2:i*2+2], "%02x", &b); err != nil {
			return id, fmt.Errorf("malformed gateway_ID: %w", err)
		}
		id[i] = b
	}
	return id, nil
}

func gatewayIDUint64(id [8]byte) uint64 {
	var v uint64
	for _, b := range id {
		v = v<<8 | uint64(b)
	}
	return v
}
