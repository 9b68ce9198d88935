package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/courseloop/assessment-backend/internal/config"
	"github.com/courseloop/assessment-backend/internal/database"
	"github.com/courseloop/assessment-backend/internal/logger"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	fmt.Println("=== Seeding Students ===")

	// Shared default password for seeded accounts.
	hash, err := bcrypt.GenerateFromPassword([]byte("learnfast"), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	names := []string{
		"Ada Lovelace", "Alan Turing", "Grace Hopper", "Edsger Dijkstra", "Barbara Liskov",
		"Donald Knuth", "Margaret Hamilton", "Tony Hoare", "Frances Allen", "John Backus",
		"Radia Perlman", "Ken Thompson", "Adele Goldberg", "Dennis Ritchie", "Shafi Goldwasser",
		"Niklaus Wirth", "Lynn Conway", "Leslie Lamport", "Karen Jones", "Rob Pike",
	}
	paths := []string{"backend", "frontend", "data", "mobile"}

	successCount := 0
	for i, name := range names {
		email := fmt.Sprintf("student%d@courseloop.dev", i+1)
		path := paths[i%len(paths)]

		_, err := pool.Exec(ctx,
			`INSERT INTO students (name, email, learning_path, password_hash)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (email) DO NOTHING`,
			name, email, path, string(hash),
		)
		if err != nil {
			fmt.Printf("Error creating student %s (%s): %v\n", name, email, err)
			continue
		}
		successCount++
	}

	fmt.Printf("\nSeed completed! Successfully added %d/%d students.\n", successCount, len(names))
}
