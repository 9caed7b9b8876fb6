package entities

import (
	"errors"
	"strings"
)

// Known intents produced by the intent extractor.
const (
	IntentFlightStatus  = "flight_status"
	IntentGateInfo      = "gate_info"
	IntentDepartureTime = "departure_time"
	IntentArrivalTime   = "arrival_time"
	IntentDelayStatus   = "delay_status"
	IntentFlightSearch  = "flight_search"
	IntentUnknown       = "unknown"
)

// Intent is the structured interpretation of a user's request.
type Intent struct {
	Intent     string         `json:"intent"`
	Entities   map[string]any `json:"entities"`
	Confidence float64        `json:"confidence"`
	SQL        string         `json:"sql,omitempty"`
}

// HasQuery reports whether the intent carries a query worth running.
func (i Intent) HasQuery() bool {
	return strings.TrimSpace(i.SQL) != ""
}

// Validate checks the fields an extractor must always fill in.
func (i Intent) Validate() error {
	if i.Intent == "" {
		return errors.New("intent is required")
	}
	if i.Confidence < 0 || i.Confidence > 1 {
		return errors.New("confidence must be between 0 and 1")
	}
	return nil
}

// Row is one result row keyed by column name.
type Row map[string]any

// Flight is the joined view returned by flight number and route lookups.
type Flight struct {
	FlightNumber       string  `json:"flight_number"`
	FlightStatus       string  `json:"flight_status"`
	ScheduledDeparture string  `json:"scheduled_departure"`
	ActualDeparture    *string `json:"actual_departure"`
	ScheduledArrival   string  `json:"scheduled_arrival"`
	ActualArrival      *string `json:"actual_arrival"`
	AircraftType       string  `json:"aircraft_type"`
	PassengerCount     *int64  `json:"passenger_count,omitempty"`
	CaptainName        *string `json:"captain_name,omitempty"`
	CabinLeadName      *string `json:"cabin_lead_name,omitempty"`
	OriginName         string  `json:"origin_name"`
	OriginCity         string  `json:"origin_city"`
	DestinationName    string  `json:"destination_name"`
	DestinationCity    string  `json:"destination_city"`
	GateNumber         *string `json:"gate_number"`
	Terminal           *string `json:"terminal"`
}

// Utterance carries one recording through the pipeline. It is never stored.
type Utterance struct {
	Audio         []byte
	Transcription string
	Intent        Intent
	Rows          []Row
	Response      string
}
