package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/wordsaver/internal/api"
	"github.com/example/wordsaver/internal/bot"
	"github.com/example/wordsaver/internal/store"
)

const defaultBaseURL = "https://wordsaveriii-e42ab50fe156.herokuapp.com"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on the environment")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open("data")
	if err != nil {
		log.Fatalf("Failed to open local store: %v", err)
	}
	defer db.Close()

	baseURL := os.Getenv("WORDSAVER_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	gateway := api.New(baseURL)

	b, err := bot.New(
		gateway,
		store.NewCredentialRepository(db),
		store.NewSessionRepository(db),
		store.NewReminderRepository(db),
	)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	done := make(chan struct{})

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := b.Stop(shutdownCtx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
		close(done)
	}()

	log.Println("Bot started. Press Ctrl+C to stop.")
	go func() {
		if err := b.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("Bot error: %v", err)
		}
	}()

	<-done
	log.Println("Bot stopped successfully")
}
