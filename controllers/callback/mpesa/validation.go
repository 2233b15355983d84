package mpesa

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"sambaza/helpers"
	"sambaza/models"
)

// ValidationHandler is the pre-confirmation gate: stateless, nothing is
// recorded here. The only business rule is the configured minimum amount.
func ValidationHandler(minAmount decimal.Decimal) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.MpesaValidationRequest
		if err := c.BodyParser(&req); err != nil {
			return helpers.MpesaReject(c, "Invalid request body")
		}

		amount, err := req.TransAmount.Decimal()
		if err != nil {
			return helpers.MpesaReject(c, "Unreadable transaction amount")
		}
		if amount.LessThan(minAmount) {
			return helpers.MpesaReject(c, "Amount below accepted minimum")
		}
		return helpers.MpesaAccept(c, "Validation passed")
	}
}
