package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/flightvoice/adapters/flightdb"
	"github.com/satriahrh/flightvoice/internal/metrics"
	"github.com/satriahrh/flightvoice/internal/websocket"
	"github.com/satriahrh/flightvoice/usecase"
)

const testSchema = `
CREATE TABLE airports (airport_code TEXT PRIMARY KEY, airport_name TEXT, city_name TEXT);
CREATE TABLE gates (gate_id INTEGER PRIMARY KEY, gate_number TEXT, terminal TEXT);
CREATE TABLE flights (
	flight_id INTEGER PRIMARY KEY, flight_number TEXT, flight_status TEXT,
	scheduled_departure TEXT, actual_departure TEXT, scheduled_arrival TEXT, actual_arrival TEXT,
	aircraft_type TEXT, passenger_count INTEGER, captain_name TEXT, cabin_lead_name TEXT,
	origin_airport_code TEXT, destination_airport_code TEXT, gate_id INTEGER
);
INSERT INTO airports VALUES ('ORD', 'O''Hare International', 'Chicago'), ('SFO', 'San Francisco International', 'San Francisco');
INSERT INTO gates VALUES (1, 'C6', 'Terminal 1');
INSERT INTO flights VALUES
	(1, 'UA1214', 'On Time', '2024-05-01 09:00', NULL, '2024-05-01 11:30', NULL, 'Boeing 737', 150, NULL, NULL, 'ORD', 'SFO', 1);
`

func setupTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	logger := zaptest.NewLogger(t)
	config := flightdb.Config{Driver: flightdb.DriverSQLite, DSN: filepath.Join(t.TempDir(), "missing.db")}

	db, err := flightdb.Open(context.Background(), config, logger)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("Failed to seed schema: %v", err)
	}
	repo := flightdb.NewFlightRepository(db, config, logger)
	t.Cleanup(func() { repo.Close() })

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	hub := websocket.NewHub(nil, websocket.HubConfig{}, m, logger)

	e := echo.New()
	InitRoutes(e, hub, usecase.NewFlightService(repo, logger), registry, logger)
	return e
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("Invalid JSON response %s: %v", rec.Body.String(), err)
	}
	return rec.Code, payload
}

func TestHealth(t *testing.T) {
	e := setupTestServer(t)

	code, body := do(t, e, http.MethodGet, "/health", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}
	if _, ok := body["timestamp"].(string); !ok {
		t.Errorf("Expected timestamp, got %v", body["timestamp"])
	}
}

func TestTables(t *testing.T) {
	e := setupTestServer(t)

	code, body := do(t, e, http.MethodGet, "/api/tables", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	tables, _ := body["tables"].([]any)
	if len(tables) != 3 || tables[1] != "flights" {
		t.Errorf("Unexpected tables %v", body["tables"])
	}
}

func TestQuery(t *testing.T) {
	e := setupTestServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"select", `{"sql":"SELECT flight_number FROM flights"}`, http.StatusOK, ""},
		{"missing sql", `{}`, http.StatusBadRequest, "missing_fields"},
		{"write rejected", `{"sql":"DELETE FROM flights"}`, http.StatusBadRequest, "query_rejected"},
		{"bad sql", `{"sql":"SELECT * FROM nowhere"}`, http.StatusInternalServerError, "query_failed"},
		{"bad json", `{"sql":`, http.StatusBadRequest, "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, e, http.MethodPost, "/api/query", tt.body)
			if code != tt.wantCode {
				t.Fatalf("Expected %d, got %d: %v", tt.wantCode, code, body)
			}
			if tt.wantErr != "" {
				if body["error"] != tt.wantErr {
					t.Errorf("Expected error %s, got %v", tt.wantErr, body["error"])
				}
				return
			}
			result, _ := body["result"].([]any)
			if len(result) != 1 {
				t.Errorf("Expected one row, got %v", body["result"])
			}
		})
	}
}

func TestFlightLookups(t *testing.T) {
	e := setupTestServer(t)

	code, body := do(t, e, http.MethodGet, "/api/flight/ua1214", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	result, _ := body["result"].([]any)
	if len(result) != 1 {
		t.Fatalf("Expected one flight, got %v", body["result"])
	}
	flight := result[0].(map[string]any)
	if flight["gate_number"] != "C6" || flight["origin_city"] != "Chicago" {
		t.Errorf("Unexpected flight %v", flight)
	}

	code, body = do(t, e, http.MethodGet, "/api/flights/route?origin=Chicago&destination=SFO", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if result, _ := body["result"].([]any); len(result) != 1 {
		t.Errorf("Expected one flight on route, got %v", body["result"])
	}

	code, body = do(t, e, http.MethodGet, "/api/flights/route", "")
	if code != http.StatusBadRequest || body["error"] != "missing_fields" {
		t.Errorf("Expected 400 missing_fields, got %d %v", code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "flightvoice_active_connections") {
		t.Error("Expected flightvoice metrics in exposition")
	}
}
