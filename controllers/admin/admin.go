package admin

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"sambaza/helpers"
	"sambaza/ledger"
	"sambaza/records"
)

// TransactionLookup answers the dashboard's "what happened to this payment"
// query by external transaction id.
func TransactionLookup(store *records.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		transID := c.Params("id")

		payment, err := store.PaymentByTransactionID(transID)
		if err != nil {
			if errors.Is(err, records.ErrNotFound) {
				return helpers.JSONError(c, fiber.StatusNotFound, "TRANSACTION_NOT_FOUND")
			}
			return helpers.JSONError(c, fiber.StatusInternalServerError, "LOOKUP_FAILED")
		}

		// A payment that never passed the float debit has no sale; that is a
		// normal answer, not an error.
		data := fiber.Map{"payment": payment}
		if sale, err := store.SaleByTransactionID(transID); err == nil {
			data["sale"] = sale
		}
		return helpers.JSONSuccess(c, "Transaction found", data)
	}
}

// FloatBalances lists every pool's current balance for display. Reads are
// not serialized with the debit path.
func FloatBalances(l *ledger.Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		pools, err := l.Pools()
		if err != nil {
			return helpers.JSONError(c, fiber.StatusInternalServerError, "FLOAT_QUERY_FAILED")
		}
		return helpers.JSONSuccess(c, "Float balances", fiber.Map{"pools": pools})
	}
}

// PoolBalance reads one pool by id.
func PoolBalance(l *ledger.Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		poolID := c.Params("pool")

		balance, err := l.Balance(poolID)
		if err != nil {
			if errors.Is(err, ledger.ErrPoolNotFound) {
				return helpers.JSONError(c, fiber.StatusNotFound, "POOL_NOT_FOUND")
			}
			return helpers.JSONError(c, fiber.StatusInternalServerError, "FLOAT_QUERY_FAILED")
		}
		return helpers.JSONSuccess(c, "Float balance", fiber.Map{
			"pool_id": poolID,
			"balance": balance,
		})
	}
}
