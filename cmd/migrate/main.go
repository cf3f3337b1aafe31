package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"maps"
	"os"
	"slices"
	"time"

	"duet-chat/config"
	"duet-chat/internal/repository"
	"duet-chat/internal/services"
	"duet-chat/pkg/database"

	"github.com/dgraph-io/badger/v4"
)

const usage = `
Duet Chat - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up          Apply pending SQL migrations (postgres)
  status      Show connection status and applied migrations (postgres)
  seed-dev    Create development users and print session tokens

Flags:
  -migrations string   Path to migrations directory (default "migrations")
  -token-ttl duration  Lifetime of printed development tokens (default 24h)

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go status
  STORE_DRIVER=badger go run cmd/migrate/main.go seed-dev
`

func main() {
	migrationsDir := flag.String("migrations", "migrations", "Path to migrations directory")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of printed development tokens")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	cfg := config.LoadConfig()

	switch command := flag.Arg(0); command {
	case "up":
		db := mustConnect(ctx, cfg)
		defer db.Close()
		runMigrationsUp(ctx, db, *migrationsDir)
	case "status":
		db := mustConnect(ctx, cfg)
		defer db.Close()
		showStatus(ctx, db)
	case "seed-dev":
		runSeedDevelopment(ctx, cfg, *tokenTTL)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func mustConnect(ctx context.Context, cfg *config.Config) *sql.DB {
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	return db
}

func runMigrationsUp(ctx context.Context, db *sql.DB, migrationsDir string) {
	log.Println("🚀 Running migrations UP...")

	ran, err := database.ApplyMigrations(ctx, db, migrationsDir)
	for _, name := range ran {
		log.Printf("   applied %s", name)
	}
	if err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	if len(ran) == 0 {
		log.Println("✅ Nothing to apply, schema is up to date")
		return
	}
	log.Printf("✅ Applied %d migration(s)", len(ran))
}

func showStatus(ctx context.Context, db *sql.DB) {
	log.Println("🔍 Checking database status...")

	if err := database.HealthCheck(ctx, db); err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	log.Println("✅ Database connection: OK")

	applied, err := database.AppliedMigrations(ctx, db)
	if err != nil {
		log.Printf("⚠️  No migrations recorded yet: %v", err)
		return
	}
	for _, name := range slices.Sorted(maps.Keys(applied)) {
		log.Printf("✅ Migration %s applied", name)
	}
}

func runSeedDevelopment(ctx context.Context, cfg *config.Config, ttl time.Duration) {
	log.Println("🌱 Seeding development users...")

	var saver database.UserSaver
	switch cfg.StoreDriver {
	case config.StoreDriverBadger:
		bdb, err := badger.Open(badger.DefaultOptions(cfg.BadgerPath).WithLoggingLevel(badger.WARNING))
		if err != nil {
			log.Fatalf("❌ Failed to open badger store: %v", err)
		}
		defer bdb.Close()
		saver = repository.NewBadgerUserRepository(bdb)
	default:
		db := mustConnect(ctx, cfg)
		defer db.Close()
		saver = repository.NewUserRepository(db)
	}

	users, err := database.SeedDevelopment(ctx, saver, nil)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	auth := services.NewJWTAuthenticator(cfg.JWTSecret)
	log.Println("📊 Development sessions:")
	for _, u := range users {
		token, err := auth.Issue(u.ID, ttl)
		if err != nil {
			log.Fatalf("❌ Failed to issue token for %s: %v", u.Email, err)
		}
		log.Printf("   - %-24s %s", u.Email, token)
	}
	log.Println("✅ Development seeding completed!")
}
