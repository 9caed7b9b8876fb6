package llm

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/satriahrh/flightvoice/domain/entities"
	"github.com/satriahrh/flightvoice/domain/repositories"
)

var flightNumberPattern = regexp.MustCompile(`(?i)\b([A-Z]{2}\s?\d{2,4})\b`)

// MockLLM is a placeholder implementation for intent extraction and
// response generation. It recognizes flight numbers and streams a canned
// answer word by word.
type MockLLM struct{}

var (
	_ repositories.IntentExtractor   = (*MockLLM)(nil)
	_ repositories.ResponseGenerator = (*MockLLM)(nil)
)

// NewMockLLM creates a new mock LLM
func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

// ExtractIntent implements repositories.IntentExtractor
func (m *MockLLM) ExtractIntent(ctx context.Context, text string) (entities.Intent, error) {
	if err := requireText(text); err != nil {
		return entities.Intent{}, err
	}

	match := flightNumberPattern.FindStringSubmatch(text)
	if match == nil {
		return entities.Intent{
			Intent:     entities.IntentFlightSearch,
			Entities:   map[string]any{},
			Confidence: 0.4,
		}, nil
	}

	number := strings.ToUpper(strings.ReplaceAll(match[1], " ", ""))
	intent := entities.IntentFlightStatus
	if strings.Contains(strings.ToLower(text), "gate") {
		intent = entities.IntentGateInfo
	}
	return entities.Intent{
		Intent:     intent,
		Entities:   map[string]any{"flight_number": number},
		Confidence: 0.9,
		SQL:        fmt.Sprintf("SELECT flight_number, flight_status, scheduled_departure, gate_id FROM flights WHERE flight_number = '%s'", number),
	}, nil
}

// GenerateResponseStream implements repositories.ResponseGenerator
func (m *MockLLM) GenerateResponseStream(ctx context.Context, rows []entities.Row, text string, intent entities.Intent) (repositories.TextStream, error) {
	var answer string
	switch {
	case len(rows) == 0:
		answer = "I'm sorry, I couldn't find any flights matching your request."
	case len(rows) == 1:
		answer = fmt.Sprintf("I found one flight, %v. Its status is %v.", rows[0]["flight_number"], rows[0]["flight_status"])
	default:
		answer = fmt.Sprintf("I found %d flights matching your request.", len(rows))
	}
	return newWordStream(answer), nil
}

// wordStream yields text one word at a time, keeping the separating space.
type wordStream struct {
	words []string
}

func newWordStream(text string) *wordStream {
	return &wordStream{words: strings.SplitAfter(text, " ")}
}

func (w *wordStream) Next() (string, error) {
	if len(w.words) == 0 {
		return "", io.EOF
	}
	word := w.words[0]
	w.words = w.words[1:]
	return word, nil
}

func (w *wordStream) Close() error {
	w.words = nil
	return nil
}
