package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fmp4hlsd/internal/api"
	"fmp4hlsd/internal/config"
	"fmp4hlsd/internal/logger"
	"fmp4hlsd/internal/metrics"
	"fmp4hlsd/internal/stream"
)

func main() {
	listenAddr := flag.String("l", ":8080", "HTTP listen address")
	logLevel := flag.String("L", "info", "Log level (error, warn, info, debug)")
	configFile := flag.String("c", "streams.json", "Path to the stream config file")
	flag.Parse()

	log := logger.NewLogger(*logLevel)
	log.Infof("Starting fMP4 to HLS segmenter daemon...")

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	log.Infof("Configuration loaded: %s, %d stream(s)", cfg.Name, len(cfg.Streams))

	metrics.Register(nil)

	streams, err := stream.NewManager(log, cfg)
	if err != nil {
		log.Errorf("Failed to build streams: %v", err)
		os.Exit(1)
	}

	apiSurface, router := api.New(streams, log)

	server := &http.Server{
		Addr:    *listenAddr,
		Handler: router,
	}

	go func() {
		log.Infof("Server starting on %s", *listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Could not listen on %s: %v", *listenAddr, err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Infof("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	apiSurface.Close()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
		os.Exit(1)
	}

	log.Infof("Server exited gracefully")
}
