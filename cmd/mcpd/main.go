// Copyright (c) 2024-present OpenAssist Contributors. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openassist/openassist-mcp/api"
	"github.com/openassist/openassist-mcp/config"
	"github.com/openassist/openassist-mcp/mcp"
	"github.com/openassist/openassist-mcp/metrics"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if level, parseErr := logrus.ParseLevel(cfg.LogLevel); parseErr == nil {
		log.SetLevel(level)
	}

	container := &config.Container{}
	container.Update(cfg)

	metricsService := metrics.NewMetrics()
	manager := mcp.NewClientManager(container.MCP(), log, metricsService)
	defer manager.Close()

	server := &http.Server{
		Addr:    cfg.BindAddress,
		Handler: api.New(manager, log, metricsService).Router(),
	}

	go func() {
		log.WithField("address", cfg.BindAddress).Info("starting MCP manager")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("http server shutdown failed")
	}
}
