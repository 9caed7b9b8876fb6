package flightdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/flightvoice/domain/entities"
	"github.com/satriahrh/flightvoice/domain/repositories"
)

// ErrNotReadOnly is returned for statements other than a single SELECT or WITH.
var ErrNotReadOnly = errors.New("only single read-only SELECT statements are allowed")

const defaultQueryTimeout = 10 * time.Second

const flightColumns = `
	f.flight_number,
	f.flight_status,
	f.scheduled_departure,
	f.actual_departure,
	f.scheduled_arrival,
	f.actual_arrival,
	f.aircraft_type,
	f.passenger_count,
	f.captain_name,
	f.cabin_lead_name,
	origin.airport_name AS origin_name,
	origin.city_name AS origin_city,
	dest.airport_name AS destination_name,
	dest.city_name AS destination_city,
	g.gate_number,
	g.terminal
FROM flights f
LEFT JOIN airports origin ON f.origin_airport_code = origin.airport_code
LEFT JOIN airports dest ON f.destination_airport_code = dest.airport_code
LEFT JOIN gates g ON f.gate_id = g.gate_id`

// FlightRepository implements repositories.FlightRepository over database/sql
type FlightRepository struct {
	db           *sql.DB
	driver       string
	queryTimeout time.Duration
	logger       *zap.Logger
}

var _ repositories.FlightRepository = (*FlightRepository)(nil)

// NewFlightRepository creates a repository on an open database
func NewFlightRepository(db *sql.DB, config Config, logger *zap.Logger) *FlightRepository {
	timeout := config.QueryTimeout
	if timeout == 0 {
		timeout = defaultQueryTimeout
		logger.Info("Using default query timeout", zap.Duration("queryTimeout", timeout))
	}
	return &FlightRepository{
		db:           db,
		driver:       config.Driver,
		queryTimeout: timeout,
		logger:       logger,
	}
}

// Query implements repositories.FlightRepository. The statement runs inside
// a read-only transaction.
func (r *FlightRepository) Query(ctx context.Context, query string) ([]entities.Row, error) {
	query, err := checkReadOnly(query)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Query executed", zap.String("sql", query), zap.Int("rows", len(result)))
	return result, nil
}

// TableNames implements repositories.FlightRepository
func (r *FlightRepository) TableNames(ctx context.Context) ([]string, error) {
	query := `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	if r.driver == DriverPostgres {
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`
	}

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// FlightByNumber implements repositories.FlightRepository
func (r *FlightRepository) FlightByNumber(ctx context.Context, flightNumber string) ([]entities.Flight, error) {
	query := fmt.Sprintf("SELECT %s\nWHERE f.flight_number %s %s", flightColumns, r.like(), r.placeholder(1))
	return r.queryFlights(ctx, query, "%"+flightNumber+"%")
}

// FlightsByRoute implements repositories.FlightRepository. Empty origin or
// destination leaves that side unfiltered.
func (r *FlightRepository) FlightsByRoute(ctx context.Context, origin, destination string) ([]entities.Flight, error) {
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString("SELECT ")
	b.WriteString(flightColumns)
	b.WriteString("\nWHERE 1=1")

	for _, side := range []struct {
		alias, value string
	}{{"origin", origin}, {"dest", destination}} {
		if side.value == "" {
			continue
		}
		pattern := "%" + side.value + "%"
		fmt.Fprintf(&b, " AND (%[1]s.city_name %[2]s %[3]s OR %[1]s.airport_code %[2]s %[4]s OR %[1]s.airport_name %[2]s %[5]s)",
			side.alias, r.like(),
			r.placeholder(len(args)+1), r.placeholder(len(args)+2), r.placeholder(len(args)+3))
		args = append(args, pattern, pattern, pattern)
	}
	b.WriteString(" ORDER BY f.scheduled_departure")

	return r.queryFlights(ctx, b.String(), args...)
}

// Close closes the underlying database
func (r *FlightRepository) Close() error {
	if err := r.db.Close(); err != nil {
		r.logger.Error("Failed to close flight database", zap.Error(err))
		return err
	}
	r.logger.Info("Closed flight database")
	return nil
}

func (r *FlightRepository) queryFlights(ctx context.Context, query string, args ...any) ([]entities.Flight, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flights: %w", err)
	}
	defer rows.Close()

	flights := []entities.Flight{}
	for rows.Next() {
		var (
			f                        entities.Flight
			number, status, aircraft sql.NullString
			schedDep, schedArr       sql.NullString
			actualDep, actualArr     sql.NullString
			captain, cabin           sql.NullString
			originName, originCity   sql.NullString
			destName, destCity       sql.NullString
			gate, terminal           sql.NullString
			passengers               sql.NullInt64
		)
		if err := rows.Scan(
			&number, &status, &schedDep, &actualDep, &schedArr, &actualArr,
			&aircraft, &passengers, &captain, &cabin,
			&originName, &originCity, &destName, &destCity,
			&gate, &terminal,
		); err != nil {
			return nil, fmt.Errorf("failed to scan flight: %w", err)
		}

		f.FlightNumber = number.String
		f.FlightStatus = status.String
		f.ScheduledDeparture = schedDep.String
		f.ActualDeparture = nullableString(actualDep)
		f.ScheduledArrival = schedArr.String
		f.ActualArrival = nullableString(actualArr)
		f.AircraftType = aircraft.String
		if passengers.Valid {
			f.PassengerCount = &passengers.Int64
		}
		f.CaptainName = nullableString(captain)
		f.CabinLeadName = nullableString(cabin)
		f.OriginName = originName.String
		f.OriginCity = originCity.String
		f.DestinationName = destName.String
		f.DestinationCity = destCity.String
		f.GateNumber = nullableString(gate)
		f.Terminal = nullableString(terminal)

		flights = append(flights, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read flights: %w", err)
	}
	return flights, nil
}

func (r *FlightRepository) placeholder(n int) string {
	if r.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// like returns a case-insensitive LIKE for the active dialect.
func (r *FlightRepository) like() string {
	if r.driver == DriverPostgres {
		return "ILIKE"
	}
	return "LIKE"
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// scanRows reads every row into a column-keyed map. Text columns returned
// as bytes are converted to strings so rows encode cleanly as JSON.
func scanRows(rows *sql.Rows) ([]entities.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := []entities.Row{}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(entities.Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return result, nil
}

// checkReadOnly accepts a single SELECT or WITH statement and returns it
// without leading comments or a trailing semicolon.
func checkReadOnly(query string) (string, error) {
	q := strings.TrimSpace(query)
	for {
		switch {
		case strings.HasPrefix(q, "--"):
			end := strings.IndexByte(q, '\n')
			if end < 0 {
				return "", ErrNotReadOnly
			}
			q = strings.TrimSpace(q[end+1:])
			continue
		case strings.HasPrefix(q, "/*"):
			end := strings.Index(q, "*/")
			if end < 0 {
				return "", ErrNotReadOnly
			}
			q = strings.TrimSpace(q[end+2:])
			continue
		}
		break
	}

	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	if q == "" || strings.Contains(q, ";") {
		return "", ErrNotReadOnly
	}

	keyword := q
	if i := strings.IndexFunc(q, func(r rune) bool { return r == ' ' || r == '\n' || r == '\t' || r == '(' }); i >= 0 {
		keyword = q[:i]
	}
	switch strings.ToUpper(keyword) {
	case "SELECT", "WITH":
		return q, nil
	}
	return "", ErrNotReadOnly
}
