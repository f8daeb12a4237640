// Package web provides HTTP handlers and REST API endpoints for shop-floor routing.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/jigged/shopfloor/pkg/engine"
	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/persistence"
)

// AppConfig returns the fiber settings the handlers rely on. Route params and
// bodies outlive the request in the engine and the occupancy registry, so they
// must not alias fiber's reused request buffers.
func AppConfig() fiber.Config {
	return fiber.Config{
		Immutable: true,
	}
}

type APIHandlers struct {
	engine    *engine.Engine
	validator *validator.Validate
}

func NewAPIHandlers(engine *engine.Engine, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		engine:    engine,
		validator: validator,
	}
}

// Register mounts every shop-floor route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	s := router.Group("/stations")
	s.Post("/", h.RegisterStation)
	s.Get("/", h.GetStations)
	s.Get("/:stationId/scan", h.ScanWorkOrder)
	s.Get("/:stationId/queue", h.GetStationQueue)
	s.Post("/:stationId/occupy", h.Occupy)
	s.Post("/:stationId/takeover", h.Takeover)
	s.Delete("/:stationId/occupancy", h.Release)

	router.Get("/occupancies", h.GetOccupancies)

	o := router.Group("/operators")
	o.Get("/:operatorId/session", h.GetActiveSession)
	o.Get("/:operatorId/sessions", h.GetOperatorSessions)

	t := router.Group("/templates")
	t.Post("/", h.RegisterTemplate)
	t.Get("/", h.GetTemplates)
	t.Get("/:id", h.GetTemplate)

	w := router.Group("/work-orders")
	w.Post("/", h.SubmitWorkOrder)
	w.Get("/", h.GetWorkOrders)
	w.Get("/:id", h.GetWorkOrder)
	w.Post("/:id/approve", h.Approve)
	w.Post("/:id/reject", h.Reject)
	w.Post("/:id/start", h.StartWork)
	w.Post("/:id/stop", h.StopWork)
	w.Post("/:id/complete", h.CompleteStep)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Shopfloor API is healthy"
	httpStatus := http.StatusOK
	engineCheck := "ok"

	err := h.engine.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		message = "Shopfloor API is unhealthy"
		httpStatus = http.StatusInternalServerError
		engineCheck = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"engine": engineCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) RegisterStation(c fiber.Ctx) error {
	var req RegisterStationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	station, err := h.engine.RegisterStation(c.Context(), &models.StationDefinition{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(station)
}

func (h *APIHandlers) GetStations(c fiber.Ctx) error {
	stations, err := h.engine.Stations(c.Context())
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(stations)
}

func (h *APIHandlers) ScanWorkOrder(c fiber.Ctx) error {
	identifier := c.Query("q")
	if identifier == "" {
		return badRequest(c, "Query parameter q (work order id or number) is required")
	}

	order, err := h.engine.ScanWorkOrder(c.Context(), identifier, c.Params("stationId"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(order)
}

func (h *APIHandlers) GetStationQueue(c fiber.Ctx) error {
	queue, err := h.engine.StationQueue(c.Context(), c.Params("stationId"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(queue)
}

func (h *APIHandlers) Occupy(c fiber.Ctx) error {
	var req OperatorRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	occupancy, err := h.engine.Occupy(c.Context(), c.Params("stationId"), req.OperatorID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(occupancy)
}

func (h *APIHandlers) Takeover(c fiber.Ctx) error {
	var req OperatorRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	occupancy, err := h.engine.Takeover(c.Context(), c.Params("stationId"), req.OperatorID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(occupancy)
}

func (h *APIHandlers) Release(c fiber.Ctx) error {
	err := h.engine.Release(c.Context(), c.Params("stationId"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetOccupancies(c fiber.Ctx) error {
	occupancies, err := h.engine.Occupancies(c.Context())
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(occupancies)
}

// RegisterTemplate accepts a raw template document; it is checked against
// the template schema before the graph is validated.
func (h *APIHandlers) RegisterTemplate(c fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return badRequest(c, "Template document is required")
	}

	template, err := h.engine.RegisterTemplateDocument(c.Context(), body)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(template)
}

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	templates, err := h.engine.Templates(c.Context())
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(templates)
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	template, err := h.engine.Template(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) SubmitWorkOrder(c fiber.Ctx) error {
	var req SubmitWorkOrderRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	order, err := h.engine.SubmitWorkOrder(c.Context(), engine.SubmitWorkOrderRequest{
		OrderNumber:    req.OrderNumber,
		TemplateID:     req.TemplateID,
		CustomerID:     req.CustomerID,
		SalesPersonID:  req.SalesPersonID,
		EstimatedPrice: req.EstimatedPrice,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *APIHandlers) GetWorkOrders(c fiber.Ctx) error {
	filter := persistence.WorkOrderFilter{
		TemplateID:          c.Query("template_id"),
		OrderNumberContains: c.Query("q"),
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.WorkOrderStatus(statusStr)
		filter.Status = &status
	}

	orders, err := h.engine.ListWorkOrders(c.Context(), filter)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(WorkOrderListResponse{
		WorkOrders: orders,
		TotalCount: len(orders),
	})
}

func (h *APIHandlers) GetWorkOrder(c fiber.Ctx) error {
	order, err := h.engine.WorkOrder(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(order)
}

func (h *APIHandlers) Approve(c fiber.Ctx) error {
	var req ApproveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	order, err := h.engine.Approve(c.Context(), c.Params("id"), req.ActorID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(order)
}

func (h *APIHandlers) Reject(c fiber.Ctx) error {
	var req RejectRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	order, err := h.engine.Reject(c.Context(), c.Params("id"), req.ActorID, req.Reason)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(order)
}

func (h *APIHandlers) StartWork(c fiber.Ctx) error {
	var req StartWorkRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	order, err := h.engine.StartWork(c.Context(), c.Params("id"), req.StationID, req.OperatorID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(order)
}

func (h *APIHandlers) CompleteStep(c fiber.Ctx) error {
	var req CompleteStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	order, err := h.engine.CompleteStep(c.Context(), c.Params("id"), req.StationID, engine.CompleteStepRequest{
		OperatorID:        req.OperatorID,
		Materials:         req.Materials,
		Notes:             req.Notes,
		QuantityCompleted: req.QuantityCompleted,
		QuantityScrapped:  req.QuantityScrapped,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(order)
}

// StopWork ends the operator's session on the step and frees the station.
// The step stays open.
func (h *APIHandlers) StopWork(c fiber.Ctx) error {
	var req StopWorkRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	session, err := h.engine.StopWork(c.Context(), c.Params("id"), req.StationID, req.OperatorID, req.Notes)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(session)
}

// GetActiveSession answers null when the operator is idle.
func (h *APIHandlers) GetActiveSession(c fiber.Ctx) error {
	session, err := h.engine.ActiveSession(c.Context(), c.Params("operatorId"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(session)
}

func (h *APIHandlers) GetOperatorSessions(c fiber.Ctx) error {
	sessions, err := h.engine.OperatorSessions(c.Context(), c.Params("operatorId"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(sessions)
}
