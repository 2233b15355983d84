package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	adminctl "sambaza/controllers/admin"
	"sambaza/controllers/callback/mpesa"
	"sambaza/dispatch"
	"sambaza/ledger"
	"sambaza/records"
)

type Deps struct {
	MinAmount    decimal.Decimal
	Orchestrator *dispatch.Orchestrator
	Store        *records.Store
	Ledger       *ledger.Ledger
}

func Setup(app *fiber.App, deps Deps) {
	// C2B webhooks
	app.Post("/mpesa/validation", mpesa.ValidationHandler(deps.MinAmount))
	app.Post("/mpesa/confirmation", mpesa.ConfirmationHandler(deps.Orchestrator))

	// dashboard reads
	adminroutes := app.Group("/admin")
	adminroutes.Get("/transactions/:id", adminctl.TransactionLookup(deps.Store))
	adminroutes.Get("/float", adminctl.FloatBalances(deps.Ledger))
	adminroutes.Get("/float/:pool", adminctl.PoolBalance(deps.Ledger))
}
