package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"i4.energy/across/ubloxd/atclient"
	"i4.energy/across/ubloxd/cellular"
	"i4.energy/across/ubloxd/port"
)

func main() {
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the module")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Bool("echo-suppression", false, "Discard command echo instead of relying on ATE0")
	configFile := flag.String("config-file", os.Getenv("CONFIG_FILE"), "Path to a YAML configuration file")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configFile), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	clientConfig, err := atclient.NewConfigBuilder().
		WithCommandTimeout(5 * time.Second).
		WithEchoSuppression(config.EchoSuppression).
		WithDialer(port.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
		}).
		Build()
	if err != nil {
		logger.Error("Failed to create client config", "error", err)
		os.Exit(1)
	}

	client, err := atclient.Open(context.Background(), clientConfig)
	if err != nil {
		logger.Error("Failed to open AT client", "error", err)
		os.Exit(1)
	}

	device := cellular.New(client)
	if err := device.Init(context.Background()); err != nil {
		logger.Error("Failed to initialize module", "error", err)
		client.Close()
		os.Exit(1)
	}

	logger.Info("Starting u-blox bridge", "serial_port", config.SerialPort)

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger: logger.With("component", "server"),
			Device: device,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server failed", "error", err)
	}

	logger.Info("Closing module connection")
	if err := client.Close(); err != nil {
		logger.Error("Failed to close client", "error", err)
		os.Exit(1)
	}
}
