// Package config handles loading and validating the voicegate configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for the voicegate daemon.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Session       SessionConfig       `mapstructure:"session"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Reply         ReplyConfig         `mapstructure:"reply"`
	Synthesis     SynthesisConfig     `mapstructure:"synthesis"`
	OpenAI        OpenAIConfig        `mapstructure:"openai"`
	Local         LocalConfig         `mapstructure:"local"`
	Piper         PiperConfig         `mapstructure:"piper"`
	Audio         AudioConfig         `mapstructure:"audio"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	GRPCPort        int           `mapstructure:"grpc_port"` // 0 disables the gRPC health service
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SessionConfig holds per-connection settings.
type SessionConfig struct {
	ContextTurns      int           `mapstructure:"context_turns"` // rolling context cap, in turns
	GreetingText      string        `mapstructure:"greeting_text"` // empty disables the greeting
	GreetingDelay     time.Duration `mapstructure:"greeting_delay"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	OutboundQueueSize int           `mapstructure:"outbound_queue_size"`
}

// PipelineConfig holds the fixed texts and voice used by the utterance pipeline.
type PipelineConfig struct {
	Persona      string        `mapstructure:"persona"`
	ApologyText  string        `mapstructure:"apology_text"`
	FailureText  string        `mapstructure:"failure_text"`
	Voice        string        `mapstructure:"voice"`
	Format       string        `mapstructure:"format"`
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
}

// TranscriptionConfig selects the speech-to-text backend.
type TranscriptionConfig struct {
	Backend string `mapstructure:"backend"` // "openai", "local" or "mock"
}

// ReplyConfig selects the language model backend.
type ReplyConfig struct {
	Backend string `mapstructure:"backend"` // "openai", "local" or "mock"
}

// SynthesisConfig selects the text-to-speech backend.
type SynthesisConfig struct {
	Backend  string   `mapstructure:"backend"`  // "openai", "piper" or "mock"
	Fallback []string `mapstructure:"fallback"` // backends tried in order when Backend fails
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	APIKey             string `mapstructure:"api_key"`
	BaseURL            string `mapstructure:"base_url"`
	TranscriptionModel string `mapstructure:"transcription_model"`
	CompletionModel    string `mapstructure:"completion_model"`
	SpeechModel        string `mapstructure:"speech_model"`
	MaxTokens          int    `mapstructure:"max_tokens"`
}

// LocalConfig holds self-hosted model settings.
type LocalConfig struct {
	WhisperEndpoint string `mapstructure:"whisper_endpoint"`
	WhisperType     string `mapstructure:"whisper_type"` // "openai" (default) or "asr" (ahmetoner/whisper-asr-webservice)
	LLMEndpoint     string `mapstructure:"llm_endpoint"`
	LLMModel        string `mapstructure:"llm_model"` // Ollama model name (e.g., "llama3.2:1b")
	Language        string `mapstructure:"language"`  // ISO-639-1 default language (e.g., "en", "fr")
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
//
// For a single Piper instance set Endpoint. Endpoints maps voice names to
// dedicated Wyoming TCP endpoints and takes precedence when it has an entry
// for the requested voice.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`  // Default Wyoming TCP endpoint (host:port)
	Endpoints map[string]string `mapstructure:"endpoints"` // voice name -> Wyoming TCP endpoint
	Voices    map[string]string `mapstructure:"voices"`    // voice alias (e.g. "nova") -> Piper voice model name
}

// AudioConfig holds decoding settings.
type AudioConfig struct {
	FFmpegPath string `mapstructure:"ffmpeg_path"` // binary for webm/ogg/flac; empty disables them
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// DefaultPersona is the system instruction used when none is configured.
const DefaultPersona = `You are a helpful PayPay assistant named ALICE. Respond conversationally and briefly.
You can access the API to get details like rewards, offers, limits, transactions, etc. for the paypal issued debit card.

Example 1:
User: What is my reward points?
ALICE: You have 1000 reward points.

Example 2:
User: What is my spending limit for debit card?
ALICE: Your spending purchase limit for PayPal issued debit card is $1000, please let me know if you want to increase the limit for today. Also, you can ask for cash withdrawal limit.

Example 3:
User: What is my transaction history for debit card?
ALICE: Your transaction history for PayPal issued debit card is as follows: You paid 100$ to John Doe and you paid 200$ to Jane Doe today. Let me know if you want to know more about the transaction for specific date.
Note: add some random transaction when asked for by the user.

Example 4:
User: What is my cash withdrawal limit for debit card?
ALICE: Your cash withdrawal limit for PayPal issued debit card is $1000, please let me know if you want to increase the limit for today.
`

// Load reads the configuration from a .env file, the config file, environment
// variables and defaults. If configFile is non-empty it is used directly;
// otherwise the standard search order applies: ./voicegate.yaml,
// ./configs/voicegate.yaml, /etc/voicegate/voicegate.yaml.
//
// A nil v gets a fresh viper instance; callers that bind CLI flags pass their own.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("voicegate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/voicegate")
	}

	// Environment variables: VOICEGATE_SERVER_PORT, VOICEGATE_OPENAI_API_KEY, etc.
	v.SetEnvPrefix("VOICEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only covers keys viper already knows; these have no default.
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${OPENAI_API_KEY}").
	cfg.OpenAI.APIKey = resolveEnvRef(cfg.OpenAI.APIKey)
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envOnlyKeys = []string{
	"openai.api_key",
	"openai.base_url",
	"synthesis.fallback",
	"piper.endpoints",
	"piper.voices",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.grpc_port", 0)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("session.context_turns", 8)
	v.SetDefault("session.greeting_text", "Hi! I am Alice, A paypal assistant. how can I help you")
	v.SetDefault("session.greeting_delay", 500*time.Millisecond)
	v.SetDefault("session.max_message_bytes", 16<<20)
	v.SetDefault("session.ping_interval", 20*time.Second)
	v.SetDefault("session.write_timeout", 10*time.Second)
	v.SetDefault("session.read_timeout", 60*time.Second)
	v.SetDefault("session.outbound_queue_size", 64)
	v.SetDefault("pipeline.persona", DefaultPersona)
	v.SetDefault("pipeline.apology_text", "I'm sorry, I couldn't understand what you said. Could you please try again?")
	v.SetDefault("pipeline.failure_text", "Sorry, something went wrong on my side. Please try again in a moment.")
	v.SetDefault("pipeline.voice", "nova")
	v.SetDefault("pipeline.format", "wav")
	v.SetDefault("pipeline.stage_timeout", 30*time.Second)
	v.SetDefault("transcription.backend", "openai")
	v.SetDefault("reply.backend", "openai")
	v.SetDefault("synthesis.backend", "openai")
	v.SetDefault("openai.transcription_model", "whisper-1")
	v.SetDefault("openai.completion_model", "gpt-3.5-turbo")
	v.SetDefault("openai.speech_model", "tts-1")
	v.SetDefault("openai.max_tokens", 150)
	v.SetDefault("local.whisper_endpoint", "http://localhost:8080/v1/audio/transcriptions")
	v.SetDefault("local.whisper_type", "openai")
	v.SetDefault("local.llm_endpoint", "http://localhost:11434/api/generate")
	v.SetDefault("local.llm_model", "llama3")
	v.SetDefault("local.language", "")
	v.SetDefault("piper.endpoint", "localhost:10200")
	v.SetDefault("audio.ffmpeg_path", "ffmpeg")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate reports configuration values the gateway cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("server.grpc_port %d out of range", c.Server.GRPCPort))
	}
	if c.Server.GRPCPort != 0 && c.Server.GRPCPort == c.Server.Port {
		errs = append(errs, errors.New("server.grpc_port must differ from server.port"))
	}
	if c.Session.ContextTurns < 0 {
		errs = append(errs, errors.New("session.context_turns must be >= 0"))
	}
	if c.Pipeline.ApologyText == "" || c.Pipeline.FailureText == "" {
		errs = append(errs, errors.New("pipeline.apology_text and pipeline.failure_text are required"))
	}
	if c.Pipeline.StageTimeout < 0 {
		errs = append(errs, errors.New("pipeline.stage_timeout must be >= 0"))
	}

	if !oneOf(c.Transcription.Backend, "openai", "local", "mock") {
		errs = append(errs, fmt.Errorf("unknown transcription backend %q", c.Transcription.Backend))
	}
	if !oneOf(c.Reply.Backend, "openai", "local", "mock") {
		errs = append(errs, fmt.Errorf("unknown reply backend %q", c.Reply.Backend))
	}
	usesOpenAI := c.Transcription.Backend == "openai" || c.Reply.Backend == "openai"
	for _, b := range append([]string{c.Synthesis.Backend}, c.Synthesis.Fallback...) {
		if !oneOf(b, "openai", "piper", "mock") {
			errs = append(errs, fmt.Errorf("unknown synthesis backend %q", b))
		}
		usesOpenAI = usesOpenAI || b == "openai"
	}
	if usesOpenAI && c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("openai.api_key is required by the selected backends"))
	}
	return errors.Join(errs...)
}

func oneOf(val string, options ...string) bool {
	for _, o := range options {
		if val == o {
			return true
		}
	}
	return false
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
