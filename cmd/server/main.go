package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/andy6609/relaychat/internal/admin"
	"github.com/andy6609/relaychat/internal/chat"
	"github.com/andy6609/relaychat/internal/config"
)

func main() {
	fs := pflag.NewFlagSet("relaychat", pflag.ExitOnError)
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger(cfg)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var console chat.Console = chat.NopConsole{}
	if cfg.Echo {
		console = chat.NewWriterConsole(os.Stdout)
	}

	srv, err := chat.NewServer(chat.Options{
		Addr:           cfg.Addr,
		Capacity:       cfg.Capacity,
		MaxNameLen:     cfg.MaxNameLen,
		MaxMessageSize: cfg.MaxMessageSize,
		Version:        cfg.Version,
		WriteTimeout:   cfg.WriteTimeout,
		AcceptRate:     cfg.AcceptRate,
		AcceptBurst:    cfg.AcceptBurst,
		Console:        console,
		Logger:         logger,
		Metrics:        chat.NewMetrics(promReg),
	})
	if err != nil {
		logger.Error("failed to build server", "error", err)
		os.Exit(1)
	}
	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var adminSrv *http.Server
	if cfg.AdminAddr != "" {
		adminSrv = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           admin.NewRouter(ctx, srv, promReg, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("admin listening", "addr", cfg.AdminAddr)
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server error", "error", err)
			}
		}()
	}

	<-ctx.Done()

	if adminSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin shutdown error", "error", err)
		}
		cancel()
	}
	if err := srv.Stop(); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	level, _ := config.ParseLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
