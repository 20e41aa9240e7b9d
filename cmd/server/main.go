/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the operating-cost settlement engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Load the billing profile (file or built-in standard preset)
  4. Create API handler with dependencies
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (default: 8080)
  -db       SQLite database path (default: settlement.db)
            Use ":memory:" for in-memory database
  -profile  Billing profile JSON file (default: built-in standard
            profile with a 10% prepayment buffer)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/settlement.db"

  # Run with a custom billing profile
  ./server -profile="./profiles/building-7.json"

  # Run on different port
  ./server -port=3000

ENVIRONMENT:
  No environment variables currently. All config via flags.
  Future: DATABASE_URL, PORT, LOG_LEVEL

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - factory/profile.go: Billing profile parsing
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

	"github.com/hauskit/settlement-engine/api"
	"github.com/hauskit/settlement-engine/factory"
	"github.com/hauskit/settlement-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "settlement.db", "SQLite database path")
	profilePath := flag.String("profile", "", "Billing profile JSON file (empty = standard preset)")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Load billing profile
	var profile *factory.Profile
	if *profilePath != "" {
		data, err := os.ReadFile(*profilePath)
		if err != nil {
			log.Fatalf("Failed to read profile %s: %v", *profilePath, err)
		}
		profile, err = factory.NewProfileFactory().ParseProfile(string(data))
		if err != nil {
			log.Fatalf("Failed to parse profile %s: %v", *profilePath, err)
		}
		log.Printf("Loaded billing profile %q", profile.Name)
	}

	// Initialize handler and router
	handler := api.NewHandler(store, profile)
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
