package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"sambaza/config"
	"sambaza/database"
	"sambaza/dispatch"
	"sambaza/jobs"
	"sambaza/ledger"
	"sambaza/providers"
	"sambaza/records"
	"sambaza/routes"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded, using process environment")
	}

	cfg := config.Load()
	database.Connect()

	floatLedger := ledger.New(database.DB)
	store := records.New(database.DB)

	pinless := providers.NewPinlessClient(cfg.Pinless)
	providers.Register(pinless.Name(), pinless)
	atalking := providers.NewAfricasTalkingClient(cfg.AfricasTalking)
	providers.Register(atalking.Name(), atalking)

	gateway := providers.NewGateway(cfg.Providers)
	orchestrator := dispatch.New(floatLedger, store, gateway, cfg.Pools)

	app := fiber.New()
	routes.Setup(app, routes.Deps{
		MinAmount:    cfg.MinAmount,
		Orchestrator: orchestrator,
		Store:        store,
		Ledger:       floatLedger,
	})

	stopWatcher := jobs.StartFloatWatcher(floatLedger, store, cfg.FloatAlertThreshold, cfg.FloatWatchInterval)

	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	log.Println("Server running at", addr)

	go func() {
		if err := app.Listen(addr); err != nil {
			log.Panicf("Failed to start server: %v", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Println("Gracefully shutting down...")
	stopWatcher()
	if err := app.Shutdown(); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited cleanly")
}
