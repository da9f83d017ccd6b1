package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"veoGenerator/internal/api"
	"veoGenerator/internal/config"
	"veoGenerator/internal/core"
	"veoGenerator/internal/database"
	"veoGenerator/internal/generator"
	"veoGenerator/internal/history"
	"veoGenerator/internal/i18n"
	"veoGenerator/internal/media"
	"veoGenerator/internal/models"
	"veoGenerator/internal/state"
	"veoGenerator/internal/web"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Load AI Models
	if err := core.LoadRegistry(cfg.ModelsFile); err != nil {
		log.Fatalf("Critical Error: %v", err)
	}
	fmt.Println("AI Models loaded")

	// 3. Init Database
	kv, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer kv.Close()

	// 4. Init Media Store & Localization
	mediaStore, err := media.NewStore(cfg.MediaDir)
	if err != nil {
		log.Fatalf("Failed to initialize media store: %v", err)
	}
	loc := i18n.NewLocalizer(cfg.DefaultLang)

	// 5. Restore State
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hist := history.NewStore(kv, loc.Get(cfg.DefaultLang, "gen_interrupted"))
	appState := state.New(hist, mediaStore)
	if err := appState.Load(ctx, cfg.SeedAPIKeys); err != nil {
		log.Fatalf("Failed to restore state: %v", err)
	}

	// 6. Init Generator
	driver := generator.NewDriver(appState, api.NewVeoClient(), mediaStore, loc, generator.Options{
		PollInterval: cfg.PollInterval,
		RetryDelay:   cfg.RetryDelay,
	})

	// 7. Start Web Server
	srv := web.NewServer(appState, driver, mediaStore, loc)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("System initialized. Listening on http://localhost:%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	srv.Close()
	driver.Stop()
	log.Println("Stopped")
}

func openStore(cfg *models.Config) (database.KV, error) {
	if cfg.StoreDriver == config.DriverRedis {
		log.Printf("[Store] Using redis at %s", cfg.RedisAddr)
		db, err := database.NewRedisDB(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	log.Printf("[Store] Using sqlite at %s", cfg.DBPath)
	db, err := database.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return db, nil
}
