package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cgnat/internal/core"
	"cgnat/internal/metrics"
	"cgnat/internal/nat"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	metricsAddr := flag.String("metrics-addr", ":9109", "Address to serve Prometheus metrics on")
	sweepInterval := flag.Duration("sweep-interval", 10*time.Second, "Idle-flow sweep interval")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("cgnat-admin %s (commit=%s)\n", version, commit)
		os.Exit(0)
	}

	if err := run(*configPath, *metricsAddr, *sweepInterval); err != nil {
		log.Fatalf("[Core] Fatal: %v", err)
	}
}

func run(configPath, metricsAddr string, sweepInterval time.Duration) error {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	bus := core.NewEventBus()

	cfgManager := core.NewConfigManager(configPath, bus)
	if err := cfgManager.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := cfgManager.Get()

	core.Log = core.NewLogger(cfg.Log)
	core.Log.Infof("Core", "cgnat-admin %s starting, config=%s", version, configPath)

	t := nat.New(nat.Config{
		PortRangeStart: cfg.Pool.PortRangeStart,
		PortRangeEnd:   cfg.Pool.PortRangeEnd,
		MaxPublicIPs:   cfg.Pool.MaxPublicIPs,
		MaxFlows:       cfg.MaxFlows,
		TCPTimeout:     time.Duration(cfg.Timeouts.TCPSeconds) * time.Second,
		UDPTimeout:     time.Duration(cfg.Timeouts.UDPSeconds) * time.Second,
		Bus:            bus,
	})

	for _, ip := range cfg.Pool.PublicIPs {
		if err := t.AddPublicIP(ip.Address); err != nil {
			return fmt.Errorf("failed to register public ip %s: %w", ip.Address, err)
		}
	}

	bus.Subscribe(core.EventPortExhausted, func(e core.Event) {
		p := e.Payload.(core.PortExhaustedPayload)
		core.Log.Warnf("Pool", "port exhaustion: %d IPs, %d total ports in use (%d exhaustion events so far)",
			p.TotalIPs, p.TotalPorts, p.ExhaustionEvents)
	})
	bus.Subscribe(core.EventPublicIPAdded, func(e core.Event) {
		p := e.Payload.(core.PublicIPPayload)
		core.Log.Infof("Pool", "public IP registered: %s", p.IP)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runSweeper(ctx, t, sweepInterval)
	go serveMetrics(metricsAddr)

	snap := t.Stats()
	core.Log.Infof("Core", "ready: %d public IPs, %d ports each, %d max flows, metrics on %s",
		snap.PublicIPCount, snap.TotalPorts/max(snap.PublicIPCount, 1), snap.FlowCapacity, metricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	core.Log.Infof("Core", "shutting down")
	return nil
}

func runSweeper(ctx context.Context, t *nat.Translator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped := t.SweepExpired()
			if reaped > 0 {
				core.Log.Debugf("Sweeper", "reaped %d expired flows", reaped)
			}
			metrics.Collect(t)
		}
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	core.Log.Infof("Metrics", "serving on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		core.Log.Errorf("Metrics", "server stopped: %v", err)
	}
}
