package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"pulse-chat/config"
	"pulse-chat/internal/repository"
	"pulse-chat/pkg/database"
)

const usage = `
Pulse Chat - Database CLI Tool

Usage:
  migrate [flags] [command]

Commands:
  up          Apply all pending migrations
  down        Roll back the most recent migration
  status      Show applied and pending migrations
  seed-dev    Seed with development users and a welcome conversation
  reset       Roll back every migration and re-apply them (DANGEROUS)
  truncate    Truncate all tables (DANGEROUS)

Flags:
  -seed-pass string   Password for seeded users (default "Test@123!")
  -seed-users int     Number of users to seed (default 4)
  -no-messages        Seed users only

Examples:
  go run ./cmd/migrate up
  go run ./cmd/migrate status
  go run ./cmd/migrate -seed-users 6 seed-dev
  go run ./cmd/migrate reset
`

func main() {
	defaults := database.DefaultSeedConfig()
	seedPass := flag.String("seed-pass", defaults.Password, "Password for seeded users")
	seedUsers := flag.Int("seed-users", defaults.UserCount, "Number of users to seed")
	noMessages := flag.Bool("no-messages", false, "Seed users only")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg := config.LoadConfig()
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer db.Close()

	switch command {
	case "up":
		runMigrationsUp(ctx, db)
	case "down":
		runMigrationsDown(ctx, db)
	case "status":
		showStatus(ctx, db)
	case "seed-dev":
		seedCfg := &database.SeedConfig{
			Password:      *seedPass,
			UserCount:     *seedUsers,
			SeedMessages:  !*noMessages,
			WelcomeAuthor: defaults.WelcomeAuthor,
		}
		runSeedDevelopment(ctx, db, seedCfg)
	case "reset":
		runReset(ctx, db)
	case "truncate":
		runTruncate(ctx, db)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp(ctx context.Context, db *sql.DB) {
	log.Println("Running migrations UP...")

	if err := database.MigrateUp(ctx, db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migrations completed successfully")
}

func runMigrationsDown(ctx context.Context, db *sql.DB) {
	log.Println("Rolling back the latest migration...")

	if err := database.MigrateDown(ctx, db); err != nil {
		log.Fatalf("Rollback failed: %v", err)
	}

	log.Println("Rollback completed successfully")
}

func showStatus(ctx context.Context, db *sql.DB) {
	if err := database.HealthCheck(ctx, db); err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Database connection: OK")

	if err := database.MigrationStatus(ctx, db); err != nil {
		log.Fatalf("Could not read migration status: %v", err)
	}
}

func runSeedDevelopment(ctx context.Context, db *sql.DB, cfg *database.SeedConfig) {
	log.Println("Seeding database (development mode)...")

	result, err := database.Seed(ctx, repository.NewUserRepository(db), repository.NewMessageRepository(db), cfg)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("Seed summary:")
	for _, u := range result.Users {
		log.Printf("   - %-10s %s", u.Username, u.Email)
	}
	log.Printf("   - Messages: %d", len(result.Messages))
	log.Println("Development seeding completed")
}

func runReset(ctx context.Context, db *sql.DB) {
	log.Println("WARNING: This will drop every table and re-run migrations!")

	if err := database.MigrateReset(ctx, db); err != nil {
		log.Fatalf("Reset failed: %v", err)
	}

	log.Println("Re-applying migrations...")
	if err := database.MigrateUp(ctx, db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Database reset completed")
}

func runTruncate(ctx context.Context, db *sql.DB) {
	log.Println("WARNING: This will TRUNCATE all tables!")

	if err := database.Truncate(ctx, db); err != nil {
		log.Fatalf("Truncate failed: %v", err)
	}

	log.Println("All tables truncated")
}
