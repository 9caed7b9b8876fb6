package repositories

import (
	"context"

	"github.com/satriahrh/flightvoice/domain/entities"
)

// FlightRepository gives read-only access to the flight database
type FlightRepository interface {
	// Query runs a single read-only statement and returns every row
	Query(ctx context.Context, sql string) ([]entities.Row, error)
	// TableNames lists the user tables in the database
	TableNames(ctx context.Context) ([]string, error)
	// FlightByNumber returns flights whose number contains flightNumber
	FlightByNumber(ctx context.Context, flightNumber string) ([]entities.Flight, error)
	// FlightsByRoute returns flights between two airports, matched by city,
	// airport code or airport name
	FlightsByRoute(ctx context.Context, origin, destination string) ([]entities.Flight, error)
	Close() error
}
