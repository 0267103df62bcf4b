package proxy

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// upstreamProblem is a problem document that also carries the raw upstream
// body.
type upstreamProblem struct {
	*problems.DefaultProblem

	Details string `json:"details,omitempty"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func unauthorized(c fiber.Ctx) error {
	problem := problems.NewStatusProblem(fiber.StatusUnauthorized).
		WithInstance(c.Path()).
		WithType("unauthorized").
		WithDetail("missing or invalid bearer token")

	return c.Status(fiber.StatusUnauthorized).JSON(problem)
}

// upstreamError mirrors a non-2xx status returned by the automation server.
func upstreamError(c fiber.Ctx, status int, body []byte) error {
	problem := upstreamProblem{
		DefaultProblem: problems.NewStatusProblem(status).
			WithInstance(c.Path()).
			WithType("upstream_error").
			WithDetail("n8n API error: " + strconv.Itoa(status)),
		Details: string(body),
	}

	return c.Status(status).JSON(problem)
}

func badGateway(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusBadGateway).
		WithInstance(c.Path()).
		WithType("bad_gateway").
		WithDetail(err.Error())

	return c.Status(fiber.StatusBadGateway).JSON(problem)
}
