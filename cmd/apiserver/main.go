// File: backend/cmd/apiserver/main.go
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/resetflow/backend/internal/api"
	"github.com/resetflow/backend/internal/config"
	"github.com/resetflow/backend/internal/engine"
	"github.com/resetflow/backend/internal/memorystore"
	"github.com/resetflow/backend/internal/provider"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("INFO: Starting ResetFlow API Server...")

	configPath := flag.String("config", "config.json", "Path to the main JSON configuration file")
	flag.Parse()

	envOverrides, err := config.LoadEnvOverrides()
	if err != nil {
		log.Printf("WARN: Failed to parse environment overrides: %v", err)
	}
	effectiveConfigPath := *configPath
	if envOverrides.ConfigPath != "" {
		effectiveConfigPath = envOverrides.ConfigPath
		log.Printf("INFO: Config path overridden by RESETFLOW_CONFIG: %s", effectiveConfigPath)
	}

	cfg, loadErr := config.Load(effectiveConfigPath)
	if loadErr != nil {
		log.Printf("WARN: Issue loading configuration from '%s': %v. Proceeding with defaults where needed.", effectiveConfigPath, loadErr)
	}
	cfg.ApplyEnv(envOverrides)

	if cfg.Server.APIKey == config.DefaultSystemAPIKeyPlaceholder || cfg.Server.APIKey == "" {
		log.Println("WARN: Server API key is not set or is using the default placeholder.")
		log.Println("WARN: Set a strong key in config.json or via RESETFLOW_API_KEY before exposing this server.")
	}
	if cfg.Provider.APIKey == "" {
		log.Println("WARN: Provider API key is not set. Dispatch calls will be rejected by the provider.")
		log.Println("WARN: Set provider.apiKey in config.json or via RESETFLOW_PROVIDER_API_KEY.")
	}

	providerCfg := provider.Config{
		BaseURL:        cfg.Provider.BaseURL,
		APIKey:         cfg.Provider.APIKey,
		RequestTimeout: cfg.Provider.RequestTimeout,
	}
	sender := provider.NewClient(providerCfg)
	lightningSender, err := provider.NewLightningClient(providerCfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize lightning dispatch client: %v", err)
	}
	probe, err := provider.NewProbe(cfg.Provider.BaseURL, cfg.Provider.ProbeTimeout)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize connectivity probe for '%s': %v", cfg.Provider.BaseURL, err)
	}

	store := memorystore.NewInMemoryCampaignStore()

	engineCfg := engine.Config{
		DispatchInterval:      cfg.Engine.DispatchInterval,
		BatchPause:            cfg.Engine.BatchPause,
		GlobalRatePerSecond:   cfg.Engine.GlobalRatePerSecond,
		Rotation:              engine.RotationPolicy(cfg.Engine.Rotation),
		FailureProbeThreshold: cfg.Engine.FailureProbeThreshold,
		Lightning: engine.LightningConfig{
			SubBatchSize: cfg.Lightning.SubBatchSize,
			CallTimeout:  cfg.Lightning.CallTimeout,
			MaxInFlight:  cfg.Lightning.MaxInFlight,
		},
	}
	eng := engine.New(store, sender, lightningSender, probe, engineCfg)

	router := api.NewRouter(cfg, store, eng, sender)

	listenAddr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      router,
		WriteTimeout: 30 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("INFO: Server listening on %s", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("FATAL: Could not listen on %s: %v", listenAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("INFO: Received signal %v. Shutting down...", sig)

	eng.Shutdown(10 * time.Second)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: Server shutdown failed: %v", err)
	}
	log.Println("INFO: Server stopped.")
}
