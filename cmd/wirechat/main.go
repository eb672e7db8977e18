// Command wirechat is a terminal chat client that also sends and receives
// files over the same connection.
//
// Usage:
//
//	wirechat -listen :7000
//	wirechat -dial peer.local:7000 -watch ./outbox
//	wirechat -ws-listen :8080
//	wirechat -ws ws://peer.local:8080/chat
//
// Lines typed on stdin are sent as chat messages. "/send <path>" sends a
// file and "/quit" ends the program.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opd-ai/wirechat/config"
	"github.com/opd-ai/wirechat/file"
	"github.com/opd-ai/wirechat/logging"
	"github.com/opd-ai/wirechat/metrics"
	"github.com/opd-ai/wirechat/transport"
	"github.com/opd-ai/wirechat/watcher"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errQuit) {
		fmt.Fprintln(os.Stderr, "wirechat:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a TOML config file")
		envPath    = flag.String("env", "", "path to a dotenv file (default .env if present)")
		listen     = flag.String("listen", "", "accept TCP peers on this address")
		dial       = flag.String("dial", "", "connect to a TCP peer at this address")
		wsURL      = flag.String("ws", "", "connect to a websocket peer at this URL")
		wsListen   = flag.String("ws-listen", "", "accept websocket peers on this address")
		download   = flag.String("download", "", "directory for received files")
		watch      = flag.String("watch", "", "send files dropped into this directory")
		metricsOn  = flag.String("metrics", "", "serve prometheus metrics on this address")
		logLevel   = flag.String("log-level", "", "debug, info, warn or error")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		return err
	}
	override(&cfg.Listen, *listen)
	override(&cfg.Dial, *dial)
	override(&cfg.WebSocketURL, *wsURL)
	override(&cfg.WebSocketListen, *wsListen)
	override(&cfg.DownloadDir, *download)
	override(&cfg.OutboxDir, *watch)
	override(&cfg.MetricsAddr, *metricsOn)
	override(&cfg.LogLevel, *logLevel)
	if err := cfg.Validate(); err != nil {
		return err
	}

	closer, err := logging.Configure(cfg.Logging())
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.RegisterMetrics()
	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr)
	}

	store, err := file.NewDirStore(cfg.DownloadDir)
	if err != nil {
		return fmt.Errorf("download dir: %w", err)
	}

	var outbox <-chan string
	if cfg.OutboxDir != "" {
		ob, err := watcher.NewOutbox(ctx, cfg.OutboxDir, 0)
		if err != nil {
			return err
		}
		if err := ob.Start(); err != nil {
			return fmt.Errorf("watch %s: %w", cfg.OutboxDir, err)
		}
		defer ob.Stop()
		outbox = ob.Files()
	}

	s := &supervisor{
		cfg:    cfg,
		store:  store,
		lines:  readLines(os.Stdin),
		outbox: outbox,
		out:    newPrinter(os.Stdout),
	}

	mode, _ := cfg.Mode()
	switch mode {
	case config.ModeDial:
		conn, err := transport.Dial(ctx, cfg.Dial)
		if err != nil {
			return err
		}
		return s.session(ctx, conn)
	case config.ModeWebSocketDial:
		ws, err := transport.DialWebSocket(ctx, cfg.WebSocketURL)
		if err != nil {
			return err
		}
		return s.session(ctx, ws)
	case config.ModeListen:
		return s.listenTCP(ctx)
	default:
		return s.listenWebSocket(ctx)
	}
}

func override(dst *string, flagValue string) {
	if flagValue != "" {
		*dst = flagValue
	}
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logrus.WithFields(logrus.Fields{
		"function": "serveMetrics",
		"address":  addr,
	}).Info("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithFields(logrus.Fields{
			"function": "serveMetrics",
			"error":    err.Error(),
		}).Error("Metrics server failed")
	}
}
