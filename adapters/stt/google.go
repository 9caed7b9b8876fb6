package stt

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/satriahrh/flightvoice/domain/repositories"
)

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	client *speech.Client
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText creates a client using application default credentials
func NewGoogleSpeechToText(ctx context.Context, logger *zap.Logger) (*GoogleSpeechToText, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &GoogleSpeechToText{client: client, logger: logger}, nil
}

// TranscribeAudio converts one complete recording to text with a single
// synchronous recognize call. Final alternatives are joined in order.
func (g *GoogleSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", fmt.Errorf("no audio data received")
	}

	encoding, err := getAudioEncoding(config.Encoding)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   encoding,
			SampleRateHertz:            int32(config.SampleRate),
			LanguageCode:               languageCode(config.Language),
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audioData},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to recognize speech: %w", err)
	}

	transcript := joinTranscripts(resp.GetResults())
	g.logger.Debug("Google transcription finished",
		zap.Int("audioSize", len(audioData)),
		zap.Int("results", len(resp.GetResults())))
	return transcript, nil
}

// Close releases the gRPC connection
func (g *GoogleSpeechToText) Close() error {
	return g.client.Close()
}

func joinTranscripts(results []*speechpb.SpeechRecognitionResult) string {
	parts := make([]string, 0, len(results))
	for _, result := range results {
		if len(result.GetAlternatives()) == 0 {
			continue
		}
		if t := strings.TrimSpace(result.GetAlternatives()[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// languageCode expands bare language tags to the regional code the API expects.
func languageCode(language string) string {
	switch language {
	case "", "en":
		return "en-US"
	}
	return language
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
