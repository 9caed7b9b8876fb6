package repositories

import (
	"context"

	"github.com/satriahrh/flightvoice/domain/entities"
)

// IntentExtractor interprets a transcription as a structured intent,
// optionally carrying a read-only SQL query.
type IntentExtractor interface {
	ExtractIntent(ctx context.Context, text string) (entities.Intent, error)
}

// ResponseGenerator produces the spoken answer as an incremental text stream.
type ResponseGenerator interface {
	GenerateResponseStream(ctx context.Context, rows []entities.Row, text string, intent entities.Intent) (TextStream, error)
}

// TextStream yields text increments in order. Next returns io.EOF once the
// stream is exhausted. Close releases the underlying connection and is safe
// to call more than once.
type TextStream interface {
	Next() (string, error)
	Close() error
}
