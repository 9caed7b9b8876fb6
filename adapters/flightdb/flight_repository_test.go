package flightdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

const testSchema = `
CREATE TABLE airports (airport_code TEXT PRIMARY KEY, airport_name TEXT, city_name TEXT);
CREATE TABLE gates (gate_id INTEGER PRIMARY KEY, gate_number TEXT, terminal TEXT);
CREATE TABLE flights (
	flight_id INTEGER PRIMARY KEY,
	flight_number TEXT,
	flight_status TEXT,
	scheduled_departure TEXT,
	actual_departure TEXT,
	scheduled_arrival TEXT,
	actual_arrival TEXT,
	aircraft_type TEXT,
	passenger_count INTEGER,
	captain_name TEXT,
	cabin_lead_name TEXT,
	origin_airport_code TEXT,
	destination_airport_code TEXT,
	gate_id INTEGER
);
INSERT INTO airports VALUES
	('ORD', 'O''Hare International', 'Chicago'),
	('SFO', 'San Francisco International', 'San Francisco'),
	('EWR', 'Newark Liberty International', 'Newark');
INSERT INTO gates VALUES (1, 'C6', 'Terminal 1'), (2, 'B12', 'Terminal 3');
INSERT INTO flights VALUES
	(1, 'UA1214', 'On Time', '2024-05-01 09:00', NULL, '2024-05-01 11:30', NULL, 'Boeing 737', 150, 'Jane Doe', 'Sam Roe', 'ORD', 'SFO', 1),
	(2, 'UA0088', 'Delayed', '2024-05-01 07:00', '2024-05-01 07:45', '2024-05-01 10:00', NULL, 'Airbus A320', NULL, NULL, NULL, 'ORD', 'SFO', NULL),
	(3, 'UA2001', 'Boarding', '2024-05-01 08:00', NULL, '2024-05-01 10:15', NULL, 'Boeing 777', 280, NULL, NULL, 'EWR', 'ORD', 2);
`

func newTestRepository(t *testing.T) *FlightRepository {
	t.Helper()
	logger := zaptest.NewLogger(t)
	config := Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "missing.db")}

	db, err := Open(context.Background(), config, logger)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("Failed to seed schema: %v", err)
	}

	repo := NewFlightRepository(db, config, logger)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"sqlite without dsn", Config{Driver: DriverSQLite}, false},
		{"postgres", Config{Driver: DriverPostgres, DSN: "postgres://localhost/flights"}, false},
		{"postgres without dsn", Config{Driver: DriverPostgres}, true},
		{"unknown driver", Config{Driver: "oracle"}, true},
		{"negative pool", Config{Driver: DriverSQLite, MaxOpenConns: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFlightRepository_TableNames(t *testing.T) {
	repo := newTestRepository(t)

	tables, err := repo.TableNames(context.Background())
	if err != nil {
		t.Fatalf("TableNames failed: %v", err)
	}

	want := []string{"airports", "flights", "gates"}
	if len(tables) != len(want) {
		t.Fatalf("Expected tables %v, got %v", want, tables)
	}
	for i := range want {
		if tables[i] != want[i] {
			t.Errorf("Expected table %s at %d, got %s", want[i], i, tables[i])
		}
	}
}

func TestFlightRepository_FlightByNumber(t *testing.T) {
	repo := newTestRepository(t)

	flights, err := repo.FlightByNumber(context.Background(), "1214")
	if err != nil {
		t.Fatalf("FlightByNumber failed: %v", err)
	}
	if len(flights) != 1 {
		t.Fatalf("Expected 1 flight, got %d", len(flights))
	}

	f := flights[0]
	if f.FlightNumber != "UA1214" {
		t.Errorf("Expected UA1214, got %s", f.FlightNumber)
	}
	if f.OriginCity != "Chicago" || f.DestinationCity != "San Francisco" {
		t.Errorf("Unexpected route %s -> %s", f.OriginCity, f.DestinationCity)
	}
	if f.GateNumber == nil || *f.GateNumber != "C6" {
		t.Errorf("Expected gate C6, got %v", f.GateNumber)
	}
	if f.ActualDeparture != nil {
		t.Errorf("Expected no actual departure, got %v", *f.ActualDeparture)
	}
	if f.PassengerCount == nil || *f.PassengerCount != 150 {
		t.Errorf("Expected 150 passengers, got %v", f.PassengerCount)
	}
}

func TestFlightRepository_FlightByNumberNoMatch(t *testing.T) {
	repo := newTestRepository(t)

	flights, err := repo.FlightByNumber(context.Background(), "DL999")
	if err != nil {
		t.Fatalf("FlightByNumber failed: %v", err)
	}
	if flights == nil || len(flights) != 0 {
		t.Errorf("Expected empty non-nil result, got %#v", flights)
	}
}

func TestFlightRepository_FlightsByRoute(t *testing.T) {
	repo := newTestRepository(t)

	tests := []struct {
		name        string
		origin      string
		destination string
		want        []string
	}{
		{"by city", "Chicago", "San Francisco", []string{"UA0088", "UA1214"}},
		{"by code", "EWR", "ORD", []string{"UA2001"}},
		{"by airport name", "Newark Liberty", "", []string{"UA2001"}},
		{"origin only ordered", "ORD", "", []string{"UA0088", "UA1214"}},
		{"no filters", "", "", []string{"UA0088", "UA2001", "UA1214"}},
		{"no match", "Tokyo", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flights, err := repo.FlightsByRoute(context.Background(), tt.origin, tt.destination)
			if err != nil {
				t.Fatalf("FlightsByRoute failed: %v", err)
			}
			if len(flights) != len(tt.want) {
				t.Fatalf("Expected %d flights, got %d", len(tt.want), len(flights))
			}
			for i, number := range tt.want {
				if flights[i].FlightNumber != number {
					t.Errorf("Expected %s at %d, got %s", number, i, flights[i].FlightNumber)
				}
			}
		})
	}
}

func TestFlightRepository_Query(t *testing.T) {
	repo := newTestRepository(t)

	rows, err := repo.Query(context.Background(),
		"SELECT flight_number, passenger_count FROM flights WHERE gate_id = 1;")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	if rows[0]["flight_number"] != "UA1214" {
		t.Errorf("Expected UA1214, got %v", rows[0]["flight_number"])
	}
	if rows[0]["passenger_count"] != int64(150) {
		t.Errorf("Expected 150 passengers, got %#v", rows[0]["passenger_count"])
	}
}

func TestFlightRepository_QueryEmpty(t *testing.T) {
	repo := newTestRepository(t)

	rows, err := repo.Query(context.Background(), "SELECT * FROM flights WHERE flight_number = 'none'")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("Expected empty non-nil rows, got %#v", rows)
	}
}

func TestFlightRepository_QueryRejectsWrites(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.Query(context.Background(), "DELETE FROM flights")
	if !errors.Is(err, ErrNotReadOnly) {
		t.Fatalf("Expected ErrNotReadOnly, got %v", err)
	}

	flights, err := repo.FlightsByRoute(context.Background(), "", "")
	if err != nil {
		t.Fatalf("FlightsByRoute failed: %v", err)
	}
	if len(flights) != 3 {
		t.Errorf("Expected flights untouched, got %d", len(flights))
	}
}

func TestFlightRepository_QueryInvalidSQL(t *testing.T) {
	repo := newTestRepository(t)

	if _, err := repo.Query(context.Background(), "SELECT * FROM no_such_table"); err == nil {
		t.Error("Expected error for unknown table")
	}
}

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
		ok    bool
	}{
		{"select", "SELECT 1", "SELECT 1", true},
		{"lowercase", "select * from flights", "select * from flights", true},
		{"trailing semicolon", "SELECT 1;  ", "SELECT 1", true},
		{"cte", "WITH x AS (SELECT 1) SELECT * FROM x", "WITH x AS (SELECT 1) SELECT * FROM x", true},
		{"leading comments", "-- flights\n/* gate */ SELECT 1", "SELECT 1", true},
		{"paren after keyword", "SELECT(1)", "SELECT(1)", true},
		{"insert", "INSERT INTO flights VALUES (1)", "", false},
		{"update", "  update flights set flight_status = 'x'", "", false},
		{"multiple statements", "SELECT 1; DROP TABLE flights", "", false},
		{"pragma", "PRAGMA table_info(flights)", "", false},
		{"empty", "   ", "", false},
		{"only comment", "-- nothing", "", false},
		{"unterminated comment", "/* SELECT 1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := checkReadOnly(tt.query)
			if tt.ok {
				if err != nil {
					t.Fatalf("checkReadOnly(%q) unexpected error: %v", tt.query, err)
				}
				if got != tt.want {
					t.Errorf("checkReadOnly(%q) = %q, want %q", tt.query, got, tt.want)
				}
				return
			}
			if !errors.Is(err, ErrNotReadOnly) {
				t.Errorf("checkReadOnly(%q) error = %v, want ErrNotReadOnly", tt.query, err)
			}
		})
	}
}
