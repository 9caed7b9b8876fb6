package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satriahrh/flightvoice/adapters/flightdb"
	"github.com/satriahrh/flightvoice/internal/websocket"
	"github.com/satriahrh/flightvoice/usecase"
)

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *websocket.Hub, flights *usecase.FlightService, gatherer prometheus.Gatherer, logger *zap.Logger) {
	h := &handlers{hub: hub, flights: flights, logger: logger}

	e.GET("/health", h.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := e.Group("/api")
	v1.GET("/tables", h.tables)
	v1.POST("/query", h.query)
	v1.GET("/flight/:flightNumber", h.flightByNumber)
	v1.GET("/flights/route", h.flightsByRoute)

	// Voice pipeline
	e.GET("/ws", hub.HandleWebSocket)
}

type handlers struct {
	hub     *websocket.Hub
	flights *usecase.FlightService
	logger  *zap.Logger
}

func (h *handlers) health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now().UTC(),
		Connections: h.hub.ActiveClients(),
	})
}

func (h *handlers) tables(c echo.Context) error {
	tables, err := h.flights.Tables(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to fetch tables", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "tables_failed",
			Message: "Failed to fetch tables",
		})
	}
	return c.JSON(http.StatusOK, TablesResponse{Tables: tables})
}

func (h *handlers) query(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	rows, err := h.flights.RunQuery(c.Request().Context(), req.SQL)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, QueryResponse{Result: rows})
	case errors.Is(err, usecase.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "SQL query required",
		})
	case errors.Is(err, flightdb.ErrNotReadOnly):
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "query_rejected",
			Message: err.Error(),
		})
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "query_failed",
			Message: err.Error(),
		})
	}
}

func (h *handlers) flightByNumber(c echo.Context) error {
	flights, err := h.flights.FlightByNumber(c.Request().Context(), c.Param("flightNumber"))
	if err != nil {
		return h.lookupError(c, "Flight lookup failed", err)
	}
	return c.JSON(http.StatusOK, FlightsResponse{Result: flights})
}

func (h *handlers) flightsByRoute(c echo.Context) error {
	flights, err := h.flights.FlightsByRoute(c.Request().Context(), c.QueryParam("origin"), c.QueryParam("destination"))
	if err != nil {
		return h.lookupError(c, "Flight search failed", err)
	}
	return c.JSON(http.StatusOK, FlightsResponse{Result: flights})
}

func (h *handlers) lookupError(c echo.Context, message string, err error) error {
	if errors.Is(err, usecase.ErrInvalidInput) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: err.Error(),
		})
	}
	h.logger.Error(message, zap.Error(err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "lookup_failed",
		Message: message,
	})
}
