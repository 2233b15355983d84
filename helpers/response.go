package helpers

import "github.com/gofiber/fiber/v2"

// The C2B gateway reads ResultCode out of a 200 body; HTTP status stays 200
// on both branches.

func MpesaAccept(c *fiber.Ctx, desc string) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ResultCode": 0,
		"ResultDesc": desc,
	})
}

func MpesaReject(c *fiber.Ctx, desc string) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ResultCode": 1,
		"ResultDesc": desc,
	})
}

func JSONSuccess(c *fiber.Ctx, message string, data any) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func JSONError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
		"data":    nil,
	})
}
