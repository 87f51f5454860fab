package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/router-for-me/CreditRouter/internal/app"
	"github.com/router-for-me/CreditRouter/internal/security"
	log "github.com/sirupsen/logrus"
)

func main() {
	var (
		configPath  = flag.String("config", "config.yaml", "path to the configuration file")
		migrateOnly = flag.Bool("migrate", false, "run database migrations and exit")
		genAdminKey = flag.Bool("gen-admin-key", false, "generate an admin API key and its bcrypt hash, then exit")
	)
	flag.Parse()

	if *genAdminKey {
		key, errKey := security.GenerateAPIKey()
		if errKey != nil {
			log.Fatalf("generate admin key: %v", errKey)
		}
		hash, errHash := security.HashPassword(key)
		if errHash != nil {
			log.Fatalf("hash admin key: %v", errHash)
		}
		fmt.Printf("admin key:  %s\n", key)
		fmt.Printf("key hash:   %s\n", hash)
		fmt.Println("store the hash under admin.api-key-hash in the config file; the key itself is not recoverable")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *migrateOnly {
		if errMigrate := app.Migrate(ctx, *configPath); errMigrate != nil {
			log.Fatalf("migrate: %v", errMigrate)
		}
		log.Info("migrations applied")
		return
	}

	if errRun := app.RunServer(ctx, *configPath); errRun != nil {
		log.Errorf("server: %v", errRun)
		os.Exit(1)
	}
}
