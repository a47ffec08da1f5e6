package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gigbounty-backend/container"
	"gigbounty-backend/core/escrow"
	"gigbounty-backend/middleware"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded configuration from .env")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize dependency container
	c, err := container.NewContainer(ctx)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer c.Close()

	// Sweep overdue OPEN tasks back to their creators.
	escrow.StartExpirySync(ctx, c.Controller, expiryInterval())

	// Set up middleware chain
	mux := http.NewServeMux()

	// Apply middleware to all routes
	handler := middleware.Recovery(
		middleware.Logging(
			middleware.Metrics(
				middleware.CORS(
					middleware.Timeout(30 * time.Second)(
						setupRoutes(mux, c),
					),
				),
			),
		),
	)

	port := os.Getenv("GIGBOUNTY_PORT")
	if port == "" {
		port = "3001"
	}

	log.Printf("Server starting on :%s", port)
	log.Printf("GigBounty API endpoints at: http://localhost:%s/api/", port)
	log.Printf("Metrics at: http://localhost:%s/metrics", port)

	log.Fatal(http.ListenAndServe(":"+port, handler))
}

func setupRoutes(mux *http.ServeMux, c *container.Container) http.Handler {
	// Health endpoints
	mux.HandleFunc("/api/health", c.HealthHandler.HandleHealth)

	// Task lifecycle endpoints
	mux.HandleFunc("/api/tasks", c.TaskHandler.HandleTasks)
	mux.HandleFunc("/api/tasks/", c.TaskHandler.HandleTasks)

	// Escrow wallet endpoints
	mux.HandleFunc("/api/escrow/info", c.EscrowHandler.HandleEscrowInfo)
	mux.HandleFunc("/api/qrcode", c.QRCodeHandler.HandleGenerateQRCode)

	// Wallet role endpoints
	mux.HandleFunc("/api/wallet/role", c.WalletHandler.HandleWalletRole)
	mux.HandleFunc("/api/wallet/role/", c.WalletHandler.HandleWalletRole)

	// Wallet verification endpoints
	mux.HandleFunc("/api/auth/challenge", c.AuthHandler.HandleChallenge)
	mux.HandleFunc("/api/auth/verify", c.AuthHandler.HandleVerify)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func expiryInterval() time.Duration {
	if v := os.Getenv("GIGBOUNTY_EXPIRY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		log.Printf("invalid GIGBOUNTY_EXPIRY_INTERVAL %q, using default", v)
	}
	return time.Minute
}
