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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/inboxagent/inboxagent/internal/adapter/gmail"
	"github.com/inboxagent/inboxagent/internal/adapter/groq"
	"github.com/inboxagent/inboxagent/internal/auth"
	"github.com/inboxagent/inboxagent/internal/config"
	"github.com/inboxagent/inboxagent/internal/service"
	"github.com/inboxagent/inboxagent/internal/store"
	handler "github.com/inboxagent/inboxagent/internal/transport/http"
	"github.com/inboxagent/inboxagent/policy"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting inboxagent...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Groq model: %s", cfg.GroqModel)
	log.Printf("Groq configured: %t", cfg.GroqAPIKey != "")

	// Credential session for the Gmail OAuth flow
	session := auth.NewSession(oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.OAuthRedirectURL,
		Scopes:       []string{gmailapi.GmailModifyScope},
		Endpoint:     google.Endpoint,
	}, cfg.TokenFile)

	// Adapters
	gateway := gmail.NewGateway(session, int64(cfg.MaxUnread))
	generator := groq.NewClient(cfg.GroqBaseURL, cfg.GroqAPIKey, cfg.GroqModel, cfg.GenTimeout)

	// Send policy engine
	ctx := context.Background()
	sendPolicy, err := policy.NewEngine(ctx, policy.DefaultSendPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Draft store and service
	drafts := store.New()
	svc := service.New(drafts, gateway, generator, session, sendPolicy)

	// HTTP server
	h := handler.NewHandler(svc, cfg.FrontendURL, generator.Configured())

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h.RegisterRoutes(e)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("inboxagent API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down inboxagent...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("inboxagent stopped")
}
