// Command chatwire-server runs a chatwire chat server: it binds one
// listener (plain or TLS), registers the chat application's methods on
// a Router, and dispatches every accepted session through a
// SessionManager.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/gorilla/mux"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/chatwire/chatwire/internal/app"
	"github.com/chatwire/chatwire/internal/config"
	"github.com/chatwire/chatwire/internal/events"
	"github.com/chatwire/chatwire/internal/logger"
	"github.com/chatwire/chatwire/internal/metrics"
	"github.com/chatwire/chatwire/internal/router"
	"github.com/chatwire/chatwire/internal/server"
	"github.com/chatwire/chatwire/internal/server/session"
	"github.com/chatwire/chatwire/internal/transport"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	var cli config.ServerCLI
	kctx := kong.Parse(&cli,
		kong.Name("chatwire-server"),
		kong.Description("Length-prefixed JSON-RPC chat server."))

	fileCfg, err := config.LoadServerFile(cli.Config)
	if err != nil {
		logger.Errorf("loading config file: %v", err)
		os.Exit(1)
	}
	cli.ApplyFile(fileCfg, config.ExplicitFlags(kctx))

	logger.SetLevel(logger.ParseLevel(cli.LogLevel))
	if cli.LogFile != "" {
		logger.SetOutput(&lumberjack.Logger{
			Filename:   cli.LogFile,
			MaxSize:    5,
			MaxBackups: 3,
			MaxAge:     7,
		})
	}

	mode := transport.Plain
	if cli.Secure {
		mode = transport.Secure
	}
	cfg := transport.ServerConfig{
		Port:     uint16(cli.Port),
		Mode:     mode,
		CertFile: cli.Cert,
		KeyFile:  cli.Key,
	}
	if !cfg.IsValid() {
		logger.Fatal("invalid server configuration: port=%d secure=%v cert=%q key=%q", cli.Port, cli.Secure, cli.Cert, cli.Key)
	}

	r := router.New()
	sessions := session.NewManager()
	bus := events.NewBus(1024)
	reg := metrics.NewRegistry()

	app.Register(r, sessions)

	ctrl := server.NewController(r, sessions, bus, reg)
	if err := ctrl.Start(cfg); err != nil {
		logger.Fatal("starting listener: %v", err)
	}
	logger.Success("chatwire-server v%s listening on :%d (%s)", Version, cli.Port, mode)

	var metricsSrv *http.Server
	if cli.MetricsAddr != "" {
		mr := mux.NewRouter()
		mr.Handle("/metrics", reg.Handler()).Methods("GET")
		metricsSrv = &http.Server{Addr: cli.MetricsAddr, Handler: mr}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("metrics server: %v", err)
			}
		}()
		logger.Info("serving metrics on http://%s/metrics", cli.MetricsAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	ctrl.StopAll()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(context.Background())
	}
	bus.Shutdown()
}
