// Command create_user inserts a user whose email address is already
// confirmed, for local environments without a mail server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/mentorclub/auth-service/domain/entity"
	"github.com/mentorclub/auth-service/domain/valueobject"
	"github.com/mentorclub/auth-service/infrastructure/config"
	"github.com/mentorclub/auth-service/infrastructure/persistence/postgres"
	"github.com/mentorclub/auth-service/infrastructure/service/password"
)

func main() {
	username := flag.String("username", "admin", "username")
	email := flag.String("email", "admin@localhost.dev", "email address")
	name := flag.String("name", "Administrator", "display name")
	userPassword := flag.String("password", "", "password, at least 8 characters")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	if _, err := valueobject.NewCredentials(*username, *userPassword); err != nil {
		log.Fatalf("Invalid credentials: %v", err)
	}
	if err := valueobject.ValidateEmail(*email); err != nil {
		log.Fatalf("Invalid email: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	userRepo := postgres.NewUserRepository(db)

	hash, err := password.NewBcryptPasswordService(cfg.BcryptCost).HashPassword(*userPassword)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	user := entity.NewUser(uuid.NewString(), *username, *email, *name, hash, "")
	user.ConfirmEmail()

	if err := userRepo.Save(ctx, user); err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	log.Printf("User %s created with id %s", user.Username, user.ID)
}
