package repositories

import "context"

// TextToSpeech turns one speakable unit of text into a playable audio
// fragment. Every fragment must be independently decodable by the client.
type TextToSpeech interface {
	SynthesizeSpeech(ctx context.Context, text string) ([]byte, error)
}
