package mpesa

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"sambaza/dispatch"
	"sambaza/helpers"
	"sambaza/models"
)

// ConfirmationProcessor is what the handler needs from the orchestrator.
type ConfirmationProcessor interface {
	HandleConfirmation(req models.MpesaConfirmationRequest, raw []byte) (dispatch.Ack, error)
}

// ConfirmationHandler receives the money-moved callback. Whatever happens to
// fulfilment downstream, the gateway gets ResultCode 0 once the payment row
// exists; only a failure to record it at all answers non-200.
func ConfirmationHandler(processor ConfirmationProcessor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Fiber reuses the body buffer after the handler returns; the raw
		// payload outlives this request as the stored audit copy.
		raw := make([]byte, len(c.Body()))
		copy(raw, c.Body())

		var req models.MpesaConfirmationRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return helpers.MpesaReject(c, "Invalid request body")
		}
		if strings.TrimSpace(req.TransID) == "" {
			return helpers.MpesaReject(c, "TransID is required")
		}

		ack, err := processor.HandleConfirmation(req, raw)
		if err != nil {
			log.Printf("[mpesa] confirmation %s could not be recorded: %v", req.TransID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"ResultCode": 1,
				"ResultDesc": "Unable to record transaction",
			})
		}
		return c.Status(fiber.StatusOK).JSON(ack)
	}
}
