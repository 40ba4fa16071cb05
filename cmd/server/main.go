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

	"storefront-service/config"
	"storefront-service/internal/api"
	"storefront-service/internal/kv"
	"storefront-service/internal/service"
	"storefront-service/internal/session"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service")

	tp, err := util.InitTracer("storefront-service", config.JaegerEndpoint())
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	store, err := kv.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer store.Close()
	log.Println("Key-value store connected")

	devMode := cfg.Server.Env != "production"
	sessions := session.NewManager(store, cfg.Admin.Password,
		time.Duration(cfg.Admin.SessionTTL)*time.Hour, devMode)

	payments := service.NewStripeClient(cfg.Stripe.SecretKey)
	if payments == nil {
		log.Println("Stripe key not configured, payment verification disabled")
	}
	email := service.NewResendClient(cfg.Email.APIKey, cfg.Email.From, cfg.Email.BaseURL)
	if email == nil {
		log.Println("Email API key not configured, recovery emails disabled")
	}
	provider := service.NewUmamiClient(cfg.Analytics.BaseURL, cfg.Analytics.WebsiteID, cfg.Analytics.APIToken)
	if provider == nil {
		log.Println("Analytics provider not configured, using self-reported counters")
	}

	orderService := service.NewOrderService(store, verifierOrNil(payments))
	chatService := service.NewChatService(store)
	abandonedService := service.NewAbandonedService(store, senderOrNil(email))
	analyticsService := service.NewAnalyticsService(store, orderService, providerOrNil(provider))
	contentService := service.NewContentService(store)
	cleanupService := service.NewCleanupService(store,
		cfg.Cleanup.BatchPageSize, cfg.Cleanup.ResetMaxPages, cfg.Cleanup.ResetMaxMillis)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(sessions, orderService, chatService,
		abandonedService, analyticsService, contentService, cleanupService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// A nil *StripeClient stored in a non-nil interface would defeat the
// service-layer nil checks, hence these helpers.
func verifierOrNil(c *service.StripeClient) service.PaymentVerifier {
	if c == nil {
		return nil
	}
	return c
}

func senderOrNil(c *service.ResendClient) service.EmailSender {
	if c == nil {
		return nil
	}
	return c
}

func providerOrNil(c *service.UmamiClient) service.StatsProvider {
	if c == nil {
		return nil
	}
	return c
}
