package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/huddleup/authsync/internal/config"
	"github.com/huddleup/authsync/internal/infrastructure/dynamo"
	"github.com/huddleup/authsync/internal/infrastructure/google"
	jwtinfra "github.com/huddleup/authsync/internal/infrastructure/jwt"
	s3infra "github.com/huddleup/authsync/internal/infrastructure/s3"
	"github.com/huddleup/authsync/internal/infrastructure/smtp"
	"github.com/huddleup/authsync/internal/infrastructure/sns"
	transporthttp "github.com/huddleup/authsync/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("JWT provider: %v", err)
	}

	// S3 store for avatars.
	s3Client := s3infra.NewClient(cfg)
	s3Store := s3infra.NewStore(s3Client, cfg.S3BucketName)

	// SMTP mailer.
	mailer := smtp.NewMailer(cfg)

	// SNS SMS sender is optional; phone confirmation degrades without it.
	var smsSender sns.SMSSender
	if sender, err := sns.NewSender(cfg); err == nil {
		smsSender = sender
	} else {
		log.Printf("WARN: SNS sender not available: %v", err)
	}

	// Google sign-in only works with a configured client ID.
	var googleVerifier *google.Verifier
	if cfg.GoogleClientID != "" {
		googleVerifier = google.NewVerifier(cfg.GoogleClientID)
	}

	deps := &transporthttp.Deps{
		UserRepo:         dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users),
		SessionRepo:      dynamo.NewSessionRepo(dynamoClient, cfg.DynamoTables.Sessions),
		DeviceRepo:       dynamo.NewDeviceRepo(dynamoClient, cfg.DynamoTables.Devices),
		ProfileRepo:      dynamo.NewProfileRepo(dynamoClient, cfg.DynamoTables.Profiles),
		VerificationRepo: dynamo.NewVerificationRepo(dynamoClient, cfg.DynamoTables.UserVerifications),
		S3Store:          s3Store,
		Mailer:           mailer,
		SMSSender:        smsSender,
		JWTProvider:      jwtProvider,
		GoogleVerifier:   googleVerifier,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
