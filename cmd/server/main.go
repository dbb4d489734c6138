/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the loyalty points engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Seed program settings from YAML (first boot only)
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port      HTTP server port (default: 8080)
  -db        SQLite database path (default: loyalty.db)
             Use ":memory:" for an in-memory database
  -settings  Optional YAML file seeding the program settings. Applied
             only when the database has no stored settings yet; after
             first boot the admin API owns them.

SETTINGS FILE FORMAT:
  conversion_rate: "0.5"
  registration_bonus: 100
  purchase_enabled: true
  category_restricted: false
  allowed_category_ids: ["books", "games"]

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/loyalty.db"

  # Seed settings on first boot
  ./server -db="./data/loyalty.db" -settings="./settings.yaml"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/loyalty-engine/api"
	"github.com/warp/loyalty-engine/points"
	"github.com/warp/loyalty-engine/store/sqlite"
)

// settingsFile is the YAML shape of the -settings seed file.
type settingsFile struct {
	ConversionRate     string   `yaml:"conversion_rate"`
	RegistrationBonus  int64    `yaml:"registration_bonus"`
	PurchaseEnabled    bool     `yaml:"purchase_enabled"`
	CategoryRestricted bool     `yaml:"category_restricted"`
	AllowedCategories  []string `yaml:"allowed_category_ids"`
}

// seedSettings writes the YAML settings into the store, but only when no
// settings were ever stored. The admin API owns them afterwards.
func seedSettings(ctx context.Context, store *sqlite.Store, path string) error {
	stored, err := store.HasStoredConfig(ctx)
	if err != nil {
		return err
	}
	if stored {
		log.Printf("settings already stored, ignoring seed file %s", path)
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var sf settingsFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	rate, err := decimal.NewFromString(sf.ConversionRate)
	if err != nil {
		return fmt.Errorf("conversion_rate in %s: %w", path, err)
	}

	cfg := points.Config{
		ConversionRate:     rate,
		RegistrationBonus:  sf.RegistrationBonus,
		PurchaseEnabled:    sf.PurchaseEnabled,
		CategoryRestricted: sf.CategoryRestricted,
		AllowedCategories:  sf.AllowedCategories,
	}.Normalize()

	if err := store.SaveConfig(ctx, cfg); err != nil {
		return err
	}
	log.Printf("seeded settings from %s (rate=%s bonus=%d)", path, cfg.ConversionRate, cfg.RegistrationBonus)
	return nil
}

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "loyalty.db", "SQLite database path")
	settingsPath := flag.String("settings", "", "YAML settings seed file (first boot only)")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Seed settings from YAML on first boot
	if *settingsPath != "" {
		if err := seedSettings(context.Background(), store, *settingsPath); err != nil {
			log.Fatalf("Failed to seed settings: %v", err)
		}
	}

	// Initialize handler and router
	handler := api.NewHandler(store)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
