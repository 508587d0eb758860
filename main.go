package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/clipfocus/continuity/internal/api"
	"github.com/clipfocus/continuity/internal/config"
	"github.com/clipfocus/continuity/internal/db"
	"github.com/clipfocus/continuity/internal/timeutil"
	"github.com/clipfocus/continuity/internal/track"
	"github.com/clipfocus/continuity/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	dbFile      = flag.String("db", "continuity.db", "Path to the SQLite event log (empty disables recording)")
	configPath  = flag.String("config", "", "Path to a tuning config JSON file (built-in defaults if empty)")
	devMode     = flag.Bool("dev", false, "Run in dev mode (migrations read from local files)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// loadTuning resolves the tuning configuration: the file at path when
// given, built-in defaults otherwise.
func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	db.DevMode = *devMode

	// Dispatch the migrate subcommand before starting any services
	if flag.Arg(0) == "migrate" {
		db.RunMigrateCommand(flag.Args()[1:], *dbFile)
		return
	}

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}

	tuning, err := loadTuning(*configPath)
	if err != nil {
		log.Fatalf("Failed to load tuning config: %v", err)
	}
	if *configPath != "" {
		log.Printf("Loaded tuning config from %s", *configPath)
	}

	store := track.NewSessionStore(tuning.TrackerConfig(), timeutil.RealClock{})

	// Open the event log and bring its schema up to date. An empty path
	// runs the tracker without persistence.
	var database *db.DB
	if *dbFile != "" {
		database, err = db.OpenDB(*dbFile)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()

		migFS, err := db.MigrationsFS()
		if err != nil {
			log.Fatalf("Failed to load migrations: %v", err)
		}
		if err := database.MigrateUp(migFS); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
	} else {
		log.Print("Event recording disabled (no database path)")
	}

	// Create a wait group for the HTTP server and janitor routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Janitor routine: evict sessions idle past the TTL. A session_ttl of
	// "0s" in the tuning config disables eviction entirely.
	if ttl := tuning.GetSessionTTL(); ttl > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			var onEvict func(videoID string)
			if database != nil {
				onEvict = func(videoID string) {
					if err := database.RecordSessionEvent(videoID, "evict"); err != nil {
						log.Printf("failed to record eviction of %s: %v", videoID, err)
					}
				}
			}

			store.RunJanitor(ctx, tuning.GetJanitorInterval(), ttl, onEvict)
			log.Print("janitor routine terminated")
		}()
	} else {
		log.Print("Session eviction disabled (session_ttl 0)")
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(store, database).ServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		if database != nil {
			database.AttachAdminRoutes(mux)
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a shorter timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
