package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/persistence"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func conflict(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

// handleEngineError maps the engine's error taxonomy to problem responses.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case models.IsValidation(err):
		return badRequest(c, err.Error())

	case models.IsForbidden(err):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType("forbidden").
			WithDetail(err.Error())

		return c.Status(fiber.StatusForbidden).JSON(problem)

	case models.IsNotFound(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("not_found").
			WithDetail(err.Error())

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case models.IsInvalidTransition(err):
		return conflict(c, "invalid_transition", err.Error())

	case models.IsStationNotApplicable(err):
		return conflict(c, "station_not_applicable", err.Error())

	case models.IsNoOpenWork(err):
		return conflict(c, "no_open_work", err.Error())

	case models.IsConflict(err):
		return conflict(c, "occupancy_conflict", err.Error())

	case persistence.IsStaleWorkOrder(err):
		return conflict(c, "stale_write", "work order was modified concurrently, retry the request")

	default:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
