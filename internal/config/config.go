package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider names accepted by ProvidersConfig.
const (
	ProviderOpenAI     = "openai"
	ProviderGoogle     = "google"
	ProviderGemini     = "gemini"
	ProviderElevenLabs = "elevenlabs"
	ProviderMock       = "mock"
)

// Config represents the complete service configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Audio      AudioConfig      `yaml:"audio"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig contains HTTP and WebSocket server settings
type ServerConfig struct {
	Port                   int           `yaml:"port"`
	MaxMessageBytes        int64         `yaml:"max_message_bytes"`
	MaxAudioBytes          int           `yaml:"max_audio_bytes"`
	MaxConcurrentPipelines int           `yaml:"max_concurrent_pipelines"` // 0 = unlimited
	MaxRecordingDuration   time.Duration `yaml:"max_recording_duration"`
	PipelineTimeout        time.Duration `yaml:"pipeline_timeout"`
	ShutdownTimeout        time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins         []string      `yaml:"allowed_origins"` // empty = any origin
}

// ProvidersConfig selects the implementation behind each pipeline stage
type ProvidersConfig struct {
	SpeechToText string `yaml:"stt"`
	LLM          string `yaml:"llm"`
	TextToSpeech string `yaml:"tts"`
}

// AudioConfig describes the audio recorded by clients
type AudioConfig struct {
	Language   string `yaml:"language"`
	Encoding   string `yaml:"encoding"`
	SampleRate int    `yaml:"sample_rate"`
}

// OpenAIConfig contains OpenAI API settings
type OpenAIConfig struct {
	APIKey              string  `yaml:"api_key"`
	BaseURL             string  `yaml:"base_url"`
	TranscriptionModel  string  `yaml:"transcription_model"`
	ChatModel           string  `yaml:"chat_model"`
	SpeechModel         string  `yaml:"speech_model"`
	Voice               string  `yaml:"voice"`
	IntentTemperature   float64 `yaml:"intent_temperature"`
	ResponseTemperature float64 `yaml:"response_temperature"`
	MaxResponseTokens   int64   `yaml:"max_response_tokens"`
}

// GeminiConfig contains Google Gemini settings
type GeminiConfig struct {
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	MaxOutputTokens int32  `yaml:"max_output_tokens"`
}

// ElevenLabsConfig contains ElevenLabs settings
type ElevenLabsConfig struct {
	APIKey       string `yaml:"api_key"`
	APIBaseURL   string `yaml:"api_base_url"`
	VoiceID      string `yaml:"voice_id"`
	ModelID      string `yaml:"model_id"`
	OutputFormat string `yaml:"output_format"`
}

// DatabaseConfig selects the flight database
type DatabaseConfig struct {
	Driver       string        `yaml:"driver"`
	DSN          string        `yaml:"dsn"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json or console
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:                 8080,
			MaxMessageBytes:      1 << 20,
			MaxAudioBytes:        10 << 20,
			MaxRecordingDuration: 2 * time.Minute,
			PipelineTimeout:      2 * time.Minute,
			ShutdownTimeout:      10 * time.Second,
		},
		Providers: ProvidersConfig{
			SpeechToText: ProviderOpenAI,
			LLM:          ProviderOpenAI,
			TextToSpeech: ProviderOpenAI,
		},
		Audio: AudioConfig{
			Language:   "en",
			Encoding:   "WEBM_OPUS",
			SampleRate: 48000,
		},
		OpenAI: OpenAIConfig{
			TranscriptionModel:  "whisper-1",
			ChatModel:           "gpt-4o-mini",
			SpeechModel:         "tts-1",
			Voice:               "nova",
			IntentTemperature:   0.3,
			ResponseTemperature: 0.7,
			MaxResponseTokens:   200,
		},
		Gemini: GeminiConfig{
			Model:           "gemini-2.0-flash",
			MaxOutputTokens: 200,
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "united_airlines_normalized (Gauntlet).db",
			MaxOpenConns: 4,
			QueryTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  64,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment, in increasing precedence. A .env file in the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	collect(envInt("PORT", &c.Server.Port))
	collect(envInt64("MAX_MESSAGE_BYTES", &c.Server.MaxMessageBytes))
	collect(envInt("MAX_AUDIO_BYTES", &c.Server.MaxAudioBytes))
	collect(envInt("MAX_CONCURRENT_PIPELINES", &c.Server.MaxConcurrentPipelines))
	collect(envDuration("MAX_RECORDING_DURATION", &c.Server.MaxRecordingDuration))
	collect(envDuration("PIPELINE_TIMEOUT", &c.Server.PipelineTimeout))
	collect(envDuration("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout))
	envList("ALLOWED_ORIGINS", &c.Server.AllowedOrigins)

	envString("STT_PROVIDER", &c.Providers.SpeechToText)
	envString("LLM_PROVIDER", &c.Providers.LLM)
	envString("TTS_PROVIDER", &c.Providers.TextToSpeech)

	envString("AUDIO_LANGUAGE", &c.Audio.Language)
	envString("AUDIO_ENCODING", &c.Audio.Encoding)
	collect(envInt("AUDIO_SAMPLE_RATE", &c.Audio.SampleRate))

	envString("OPENAI_API_KEY", &c.OpenAI.APIKey)
	envString("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	envString("OPENAI_TRANSCRIPTION_MODEL", &c.OpenAI.TranscriptionModel)
	envString("OPENAI_CHAT_MODEL", &c.OpenAI.ChatModel)
	envString("OPENAI_SPEECH_MODEL", &c.OpenAI.SpeechModel)
	envString("OPENAI_VOICE", &c.OpenAI.Voice)

	envString("GEMINI_API_KEY", &c.Gemini.APIKey)
	envString("GEMINI_MODEL", &c.Gemini.Model)

	envString("ELEVEN_LABS_API_KEY", &c.ElevenLabs.APIKey)
	envString("ELEVEN_LABS_API_BASE_URL", &c.ElevenLabs.APIBaseURL)
	envString("ELEVEN_LABS_VOICE_ID", &c.ElevenLabs.VoiceID)
	envString("ELEVEN_LABS_MODEL_ID", &c.ElevenLabs.ModelID)
	envString("ELEVEN_LABS_OUTPUT_FORMAT", &c.ElevenLabs.OutputFormat)

	envString("DATABASE_DRIVER", &c.Database.Driver)
	envString("DATABASE_DSN", &c.Database.DSN)
	collect(envInt("DATABASE_MAX_OPEN_CONNS", &c.Database.MaxOpenConns))
	collect(envDuration("DATABASE_QUERY_TIMEOUT", &c.Database.QueryTimeout))

	envString("LOG_LEVEL", &c.Logging.Level)
	envString("LOG_FORMAT", &c.Logging.Format)
	envString("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Providers.Validate(); err != nil {
		return fmt.Errorf("providers config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if c.Providers.uses(ProviderOpenAI) && c.OpenAI.APIKey == "" {
		return errors.New("openai config: OPENAI_API_KEY is required for the openai provider")
	}
	if c.Providers.uses(ProviderGemini) && c.Gemini.APIKey == "" {
		return errors.New("gemini config: GEMINI_API_KEY is required for the gemini provider")
	}
	if c.Providers.uses(ProviderElevenLabs) && c.ElevenLabs.APIKey == "" {
		return errors.New("elevenlabs config: ELEVEN_LABS_API_KEY is required for the elevenlabs provider")
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.MaxMessageBytes < 1024 {
		return fmt.Errorf("max_message_bytes must be at least 1024, got %d", s.MaxMessageBytes)
	}
	if s.MaxAudioBytes < 0 {
		return fmt.Errorf("max_audio_bytes must not be negative, got %d", s.MaxAudioBytes)
	}
	if s.MaxConcurrentPipelines < 0 {
		return fmt.Errorf("max_concurrent_pipelines must not be negative, got %d", s.MaxConcurrentPipelines)
	}
	if s.PipelineTimeout <= 0 {
		return fmt.Errorf("pipeline_timeout must be positive, got %s", s.PipelineTimeout)
	}
	return nil
}

// Validate validates provider selection
func (p *ProvidersConfig) Validate() error {
	if !oneOf(p.SpeechToText, ProviderOpenAI, ProviderGoogle, ProviderMock) {
		return fmt.Errorf("stt must be one of openai, google, mock, got %q", p.SpeechToText)
	}
	if !oneOf(p.LLM, ProviderOpenAI, ProviderGemini, ProviderMock) {
		return fmt.Errorf("llm must be one of openai, gemini, mock, got %q", p.LLM)
	}
	if !oneOf(p.TextToSpeech, ProviderOpenAI, ProviderElevenLabs, ProviderMock) {
		return fmt.Errorf("tts must be one of openai, elevenlabs, mock, got %q", p.TextToSpeech)
	}
	return nil
}

func (p *ProvidersConfig) uses(provider string) bool {
	return p.SpeechToText == provider || p.LLM == provider || p.TextToSpeech == provider
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.Language == "" {
		return errors.New("language cannot be empty")
	}
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000, got %d", a.SampleRate)
	}
	return nil
}

// Validate validates database configuration
func (d *DatabaseConfig) Validate() error {
	if !oneOf(d.Driver, "sqlite", "pgx") {
		return fmt.Errorf("driver must be sqlite or pgx, got %q", d.Driver)
	}
	if d.Driver == "pgx" && d.DSN == "" {
		return errors.New("dsn is required for pgx")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	if !oneOf(l.Level, "debug", "info", "warn", "error") {
		return fmt.Errorf("level must be one of debug, info, warn, error, got %q", l.Level)
	}
	if !oneOf(l.Format, "json", "console") {
		return fmt.Errorf("format must be json or console, got %q", l.Format)
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envList(key string, dst *[]string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func envInt64(key string, dst *int64) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", key, v)
	}
	*dst = d
	return nil
}
