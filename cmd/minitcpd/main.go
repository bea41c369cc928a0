// Command minitcpd runs a userspace TCP handshake endpoint on a TUN device.
//
// Typical setup:
//
//	minitcpd -iface mini-tcp-tun &
//	ip addr add 192.168.0.1/24 dev mini-tcp-tun
//	ip link set up dev mini-tcp-tun
//
// Any SYN routed into the interface is answered with a SYN-ACK and tracked
// through connection establishment.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/willeslau/mini-tcp/internal/config"
	"github.com/willeslau/mini-tcp/internal/tcpstack"
	"github.com/willeslau/mini-tcp/internal/tun"
)

func run() error {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")
	ifaceName := fs.String("iface", "", "TUN interface name (overrides config)")
	capturePath := fs.String("capture", "", "Write a pcap of all traffic to this file (overrides config)")
	debug := fs.Bool("debug", false, "Enable debug logging")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	if *ifaceName != "" {
		cfg.Interface = *ifaceName
	}
	if *capturePath != "" {
		cfg.CaptureFile = *capturePath
	}

	level := cfg.SlogLevel()
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	nic, err := tun.Open(cfg.Interface)
	if err != nil {
		return err
	}
	defer nic.Close()
	slog.Info("attached tun interface", "name", nic.Name())

	stack := tcpstack.New(slog.Default(), nic, tcpstack.Options{
		WindowSize: cfg.WindowSize,
		TTL:        cfg.TTL,
	})

	if cfg.CaptureFile != "" {
		f, err := os.Create(cfg.CaptureFile)
		if err != nil {
			return fmt.Errorf("create capture file: %w", err)
		}
		defer f.Close()
		if err := stack.OpenPacketCapture(f); err != nil {
			return err
		}
		slog.Info("packet capture enabled", "path", cfg.CaptureFile)
	}

	// Closing the device is the only way to unblock the dispatch loop's read.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sig
		slog.Info("shutting down", "signal", s)
		nic.Close()
	}()

	if err := stack.Run(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("minitcpd failed", "err", err)
		os.Exit(1)
	}
}
