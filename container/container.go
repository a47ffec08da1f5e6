package container

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gigbounty-backend/core/escrow"
	"gigbounty-backend/handlers"
	"gigbounty-backend/ledger"
	"gigbounty-backend/services"
	auth "gigbounty-backend/storage/auth"
	store "gigbounty-backend/storage/escrow"
)

// Container holds all application dependencies
type Container struct {
	// Stores
	Store      store.Store
	Challenges *auth.ChallengeStore
	Sessions   *auth.SessionStore

	// Core
	Gateway    ledger.Gateway
	Controller *escrow.Controller

	// Services
	QRCodeService *services.QRCodeService
	HealthService *services.HealthService

	// Handlers
	HealthHandler *handlers.HealthHandler
	TaskHandler   *handlers.TaskHandler
	EscrowHandler *handlers.EscrowHandler
	WalletHandler *handlers.WalletHandler
	AuthHandler   *handlers.AuthHandler
	QRCodeHandler *handlers.QRCodeHandler
}

// NewContainer wires stores, the ledger gateway, the lifecycle
// controller, and handlers from environment configuration.
func NewContainer(ctx context.Context) (*Container, error) {
	st, err := newStore(ctx)
	if err != nil {
		return nil, err
	}

	gateway := newGateway()
	permissive := envBool("GIGBOUNTY_PERMISSIVE_AUTH")
	production := os.Getenv("GIGBOUNTY_ENV") == "production"
	if production && permissive {
		return nil, fmt.Errorf("permissive auth cannot be enabled in production")
	}

	guard := escrow.NewDepositGuard(gateway, st, permissive)
	settlement := escrow.NewSettlementEngine(gateway, os.Getenv("GIGBOUNTY_FEE_WALLET"))

	var scorer escrow.ProofScorer
	if gs := services.NewGeminiScorer(); gs != nil {
		scorer = gs
		log.Println("proof scoring: gemini")
	} else {
		scorer = services.NewStaticScorer()
		log.Println("proof scoring: static (no API key configured)")
	}

	controller := escrow.NewController(st, guard, settlement, scorer, envBool("GIGBOUNTY_AUTO_VERIFY"))

	challenges := auth.NewChallengeStore(5 * time.Minute)
	sessions := auth.NewSessionStore(24 * time.Hour)

	var authenticator handlers.Authenticator
	if permissive {
		authenticator = handlers.PermissiveAuthenticator{}
		log.Println("wallet auth: permissive (development only)")
	} else {
		authenticator = handlers.NewStrictAuthenticator(sessions)
	}

	qrService := services.NewQRCodeService()
	healthService := services.NewHealthService()

	return &Container{
		Store:      st,
		Challenges: challenges,
		Sessions:   sessions,
		Gateway:    gateway,
		Controller: controller,

		QRCodeService: qrService,
		HealthService: healthService,

		HealthHandler: handlers.NewHealthHandler(healthService),
		TaskHandler:   handlers.NewTaskHandler(controller, authenticator),
		EscrowHandler: handlers.NewEscrowHandler(gateway),
		WalletHandler: handlers.NewWalletHandler(st, authenticator),
		AuthHandler:   handlers.NewAuthHandler(challenges, sessions),
		QRCodeHandler: handlers.NewQRCodeHandler(qrService),
	}, nil
}

// Close releases held resources.
func (c *Container) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
}

func newStore(ctx context.Context) (store.Store, error) {
	dsn := os.Getenv("GIGBOUNTY_PG_DSN")
	if dsn == "" {
		log.Println("store: memory (GIGBOUNTY_PG_DSN not set)")
		return store.NewMemoryStore(), nil
	}
	pg, err := store.NewPGStore(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("init postgres store: %w", err)
	}
	log.Println("store: postgres")
	return pg, nil
}

func newGateway() ledger.Gateway {
	if envBool("GIGBOUNTY_SIM_LEDGER") {
		address := os.Getenv("GIGBOUNTY_ESCROW_ADDRESS")
		if address == "" {
			address = "SIMESCROWWALLETADDRESS"
		}
		balance, _ := strconv.ParseFloat(os.Getenv("GIGBOUNTY_SIM_BALANCE"), 64)
		log.Println("ledger: simulated")
		return ledger.NewSimGateway(address, balance)
	}
	return ledger.NewNodeGateway()
}

func envBool(key string) bool {
	v := os.Getenv(key)
	return v == "1" || v == "true" || v == "yes"
}
