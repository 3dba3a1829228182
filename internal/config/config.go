package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Auth     AuthConfig
	Database DatabaseConfig
	Session  SessionConfig
	Pipeline PipelineConfig
	Ai       AIConfig
	Keys     APIKeys
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type AuthConfig struct {
	JwtSecret string
}

type DatabaseConfig struct {
	// Connection is the optional Postgres DSN for the turn archive.
	// Archiving is disabled when empty.
	Connection string
}

type SessionConfig struct {
	// Store selects the context store backend: "redis" or "memory"
	Store      string
	TTLSeconds int
}

type PipelineConfig struct {
	SttTimeout        time.Duration
	GenerationTimeout time.Duration
	TtsTimeout        time.Duration

	MaxWindowTurns  int
	MaxWindowTokens int

	// Transcripts below Accept are rejected as STT_FAILED.
	// Transcripts below Warn are delivered but flagged low-confidence.
	SttConfidenceAccept float64
	SttConfidenceWarn   float64

	LatencyEstimateMs int
}

type AIConfig struct {
	LLMProvider   string // "gemini" or "ollama"
	LLMModel      string
	OllamaBaseURL string
	SttModel      string
	TtsModel      string
	TtsVoice      string
}

type APIKeys struct {
	GoogleGemini string
	TurnTopic    string // Finalized-turn topic for the archive consumer
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Auth: AuthConfig{
			JwtSecret: getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Session: SessionConfig{
			Store:      getEnv("SESSION_STORE", "redis"),
			TTLSeconds: getEnvAsInt("SESSION_TTL_SECONDS", 3600),
		},
		Pipeline: PipelineConfig{
			SttTimeout:          getEnvAsDuration("STT_TIMEOUT", 5*time.Second),
			GenerationTimeout:   getEnvAsDuration("GENERATION_TIMEOUT", 15*time.Second),
			TtsTimeout:          getEnvAsDuration("TTS_TIMEOUT", 8*time.Second),
			MaxWindowTurns:      getEnvAsInt("CONTEXT_WINDOW_TURNS", 10),
			MaxWindowTokens:     getEnvAsInt("CONTEXT_WINDOW_TOKENS", 4096),
			SttConfidenceAccept: getEnvAsFloat("STT_CONFIDENCE_ACCEPT", 0.3),
			SttConfidenceWarn:   getEnvAsFloat("STT_CONFIDENCE_WARN", 0.6),
			LatencyEstimateMs:   getEnvAsInt("LATENCY_ESTIMATE_MS", 250),
		},
		Ai: AIConfig{
			LLMProvider:   getEnv("LLM_PROVIDER", "gemini"),
			LLMModel:      getEnv("LLM_MODEL", "gemini-1.5-flash"),
			OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			SttModel:      getEnv("STT_MODEL", "gemini-1.5-flash"),
			TtsModel:      getEnv("TTS_MODEL", "gemini-2.5-flash-preview-tts"),
			TtsVoice:      getEnv("TTS_VOICE", "Kore"),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			TurnTopic:    getEnv("TURN_FINALIZED_TOPIC_NAME", "TURN_FINALIZED"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
