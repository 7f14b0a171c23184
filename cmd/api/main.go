package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"estateflow/account"
	"estateflow/agent"
	"estateflow/auth"
	"estateflow/db"
	"estateflow/office"
	"estateflow/property"
	"estateflow/search"
)

func main() {
	// Best effort: a missing .env simply means the environment is already set.
	_ = godotenv.Load()

	ctx := context.Background()

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	accountRepo := account.NewRepository(pool)
	agentRepo := agent.NewRepository(pool)
	officeRepo := office.NewRepository(pool)
	propertyRepo := property.NewRepository(pool)
	searchRepo := search.NewRepository(pool)

	searchService := search.NewService(pool, searchRepo)
	accountService := account.NewService(accountRepo, searchService)
	authService := auth.NewService(accountRepo, jwtSecret)
	agentService := agent.NewService(pool, agentRepo, accountRepo)
	officeService := office.NewService(pool, officeRepo)
	propertyService := property.NewService(propertyRepo, agentRepo)

	// The HTTP layer mounts these services; routing lives outside the core.
	services := []any{
		authService,
		accountService,
		agentService,
		officeService,
		propertyService,
		searchService,
	}
	log.Printf("estateflow core ready: %d services wired", len(services))
}
