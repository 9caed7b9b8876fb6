package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/flightvoice/domain/entities"
	"github.com/satriahrh/flightvoice/domain/repositories"
)

// ErrInvalidInput marks requests rejected before reaching the database.
var ErrInvalidInput = errors.New("invalid input")

// FlightService handles direct flight lookups outside the voice pipeline
type FlightService struct {
	flights repositories.FlightRepository
	logger  *zap.Logger
}

// NewFlightService creates a new flight service
func NewFlightService(flights repositories.FlightRepository, logger *zap.Logger) *FlightService {
	return &FlightService{flights: flights, logger: logger}
}

// Tables lists the tables available for querying
func (s *FlightService) Tables(ctx context.Context) ([]string, error) {
	return s.flights.TableNames(ctx)
}

// RunQuery executes an ad-hoc read-only query
func (s *FlightService) RunQuery(ctx context.Context, sql string) ([]entities.Row, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, fmt.Errorf("%w: sql query required", ErrInvalidInput)
	}

	rows, err := s.flights.Query(ctx, sql)
	if err != nil {
		s.logger.Warn("Ad-hoc query failed", zap.String("sql", sql), zap.Error(err))
		return nil, err
	}
	return rows, nil
}

// FlightByNumber looks up flights by (partial) flight number
func (s *FlightService) FlightByNumber(ctx context.Context, flightNumber string) ([]entities.Flight, error) {
	flightNumber = strings.TrimSpace(flightNumber)
	if flightNumber == "" {
		return nil, fmt.Errorf("%w: flight number required", ErrInvalidInput)
	}
	return s.flights.FlightByNumber(ctx, strings.ToUpper(flightNumber))
}

// FlightsByRoute searches flights between origin and destination. At least
// one side must be given.
func (s *FlightService) FlightsByRoute(ctx context.Context, origin, destination string) ([]entities.Flight, error) {
	origin = strings.TrimSpace(origin)
	destination = strings.TrimSpace(destination)
	if origin == "" && destination == "" {
		return nil, fmt.Errorf("%w: origin or destination required", ErrInvalidInput)
	}
	return s.flights.FlightsByRoute(ctx, origin, destination)
}
