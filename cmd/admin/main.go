package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"codenetic/internal/domain/linkedaccount"
	"codenetic/internal/infrastructure/crypto"
	"codenetic/internal/infrastructure/postgres"
	"codenetic/internal/infrastructure/sqlite"
	"codenetic/internal/shared/auth"
	"codenetic/internal/shared/config"
	"codenetic/internal/shared/logger"
)

const usage = `Codenetic Admin CLI - Management commands for the Codenetic API

Usage:
  admin <command> [options]

Commands:
  migrate     Apply pending Postgres migrations
  accounts    List connected Instagram accounts for one or more users
  token       Issue a session token for a user (local testing)

Examples:
  # Apply migrations using DB_* settings
  admin migrate

  # List accounts for a user
  admin accounts --user-id=7b0c6a3e-8a51-4c2f-9d55-0f1b2b6a1f10

  # List accounts for several users
  admin accounts --user-id=user-a,user-b

  # Issue a token valid for two hours
  admin token --user-id=user-a --ttl=2h
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	_ = godotenv.Load()

	command := os.Args[1]

	switch command {
	case "migrate":
		runMigrate(os.Args[2:])
	case "accounts":
		runAccounts(os.Args[2:])
	case "token":
		runToken(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage + "\n")
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage + "\n")
		os.Exit(1)
	}
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Println("Usage: admin migrate")
		fmt.Println("\nApplies embedded migrations to the database described by DB_* variables.")
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, log := mustLoad()
	defer log.Sync()

	if cfg.Database.Driver != "postgres" {
		log.Info("SQLite applies its schema on open, nothing to migrate", zap.String("driver", cfg.Database.Driver))
		return
	}

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.Migrate(db, log); err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}
}

func runAccounts(args []string) {
	fs := flag.NewFlagSet("accounts", flag.ExitOnError)

	userIDStr := fs.String("user-id", "", "User ID(s) to list (comma-separated for multiple)")
	timeoutStr := fs.String("timeout", "30s", "Timeout for the operation (e.g., 10s, 1m)")

	fs.Usage = func() {
		fmt.Println("Usage: admin accounts [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Println("  admin accounts --user-id=user-a")
		fmt.Println("  admin accounts --user-id=user-a,user-b --timeout=1m")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	userIDs := splitIDs(*userIDStr)
	if len(userIDs) == 0 {
		fmt.Println("Error: must specify --user-id")
		fs.Usage()
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		fmt.Printf("Invalid timeout format: %v\n", err)
		os.Exit(1)
	}

	cfg, log := mustLoad()
	defer log.Sync()

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		log.Fatal("Failed to create encryptor", zap.Error(err))
	}

	repo, closeDB, err := openRepository(cfg.Database, encryptor)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer closeDB()

	service := linkedaccount.NewService(repo)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, userID := range userIDs {
		accounts, err := service.ListConnected(ctx, userID)
		if err != nil {
			log.Error("Failed to list accounts", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		printAccounts(userID, accounts)
	}
}

func printAccounts(userID string, accounts []*linkedaccount.LinkedAccount) {
	fmt.Printf("\n=== User %s ===\n", userID)
	if len(accounts) == 0 {
		fmt.Println("  No connected accounts")
		return
	}
	for _, a := range accounts {
		fmt.Printf("  @%-24s ig=%s page=%s connected=%s\n",
			a.Username, a.ExternalID, a.PageID, a.ConnectedAt.Format(time.RFC3339))
	}
}

func runToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)

	userID := fs.String("user-id", "", "User ID to put in the token subject")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")

	fs.Usage = func() {
		fmt.Println("Usage: admin token [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if strings.TrimSpace(*userID) == "" {
		fmt.Println("Error: must specify --user-id")
		fs.Usage()
		os.Exit(1)
	}

	cfg, log := mustLoad()
	defer log.Sync()

	token, err := auth.NewSessionVerifier(cfg.Session.JWTSecret).Issue(*userID, *ttl)
	if err != nil {
		log.Fatal("Failed to issue token", zap.Error(err))
	}
	fmt.Println(token)
}

func mustLoad() (*config.Config, *zap.Logger) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Environment)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, log
}

func openRepository(cfg config.DatabaseConfig, encryptor *crypto.Encryptor) (linkedaccount.Repository, func(), error) {
	if cfg.Driver == "sqlite" {
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewLinkedAccountRepository(db, encryptor), func() { db.Close() }, nil
	}

	db, err := postgres.New(cfg.ConnectionString())
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewLinkedAccountRepository(db, encryptor), func() { db.Close() }, nil
}

// splitIDs parses a comma-separated list, dropping blanks.
func splitIDs(s string) []string {
	var ids []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}
