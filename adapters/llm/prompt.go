package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/satriahrh/flightvoice/domain/entities"
)

const intentSystemPrompt = `You are a flight operations assistant that converts natural language queries into structured data for database queries.

Given a user's question about United Airlines flights, extract:
1. The intent (one of flight_status, gate_info, departure_time, arrival_time, delay_status, flight_search)
2. Relevant entities (e.g., flight_number, origin, destination, date)
3. A confidence score (0-1)
4. A single read-only SQL SELECT statement that answers the question, or an empty string when no lookup is needed

The database has the following tables:
- flights: flight_number, flight_status, scheduled_departure, actual_departure, scheduled_arrival, actual_arrival, aircraft_type, passenger_count, captain_name, cabin_lead_name, origin_airport_code, destination_airport_code, gate_id
- airports: airport_code, airport_name, city_name
- gates: gate_id, gate_number, terminal

Respond in JSON format:
{
  "intent": "intent_name",
  "entities": { "key": "value" },
  "confidence": 0.95,
  "sql": "SELECT ... FROM ..."
}`

const responseSystemPrompt = `You are a helpful flight operations assistant.
Given the database query results and the user's original question, provide a clear, concise, and natural response.
Be specific with flight numbers, times, gates, and other details.
If no results were found, politely inform the user.
Your answer is read aloud, so use short complete sentences and no markdown.`

// Sampling parameters shared by every provider.
const (
	IntentTemperature   = 0.3
	ResponseTemperature = 0.7
	ResponseMaxTokens   = 200
)

// buildResponsePrompt renders the user turn for response generation.
func buildResponsePrompt(rows []entities.Row, text string, intent entities.Intent) (string, error) {
	entitiesJSON, err := json.Marshal(intent.Entities)
	if err != nil {
		return "", fmt.Errorf("failed to encode entities: %w", err)
	}
	if rows == nil {
		rows = []entities.Row{}
	}
	rowsJSON, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("failed to encode query results: %w", err)
	}

	return fmt.Sprintf(`User asked: %q
Intent detected: %s
Entities: %s
Query results: %s

Please provide a natural, helpful response.`, text, intent.Intent, entitiesJSON, rowsJSON), nil
}

// parseIntent decodes a model reply into an Intent. Replies wrapped in a
// markdown code fence are accepted.
func parseIntent(raw string) (entities.Intent, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	}
	if raw == "" {
		return entities.Intent{}, fmt.Errorf("empty intent reply")
	}

	var intent entities.Intent
	if err := json.Unmarshal([]byte(raw), &intent); err != nil {
		return entities.Intent{}, fmt.Errorf("failed to decode intent: %w", err)
	}
	intent.SQL = strings.TrimSpace(intent.SQL)
	if intent.Entities == nil {
		intent.Entities = map[string]any{}
	}
	if err := intent.Validate(); err != nil {
		return entities.Intent{}, err
	}
	return intent, nil
}
