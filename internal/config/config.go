package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress    string
	ICEServersJSON string
	LogLevel       string
	Development    bool

	DatabaseDriver string
	DatabaseURL    string
	MongoURI       string
	MongoDatabase  string
	RedisAddr      string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string

	InviteSecret string
	InviteIssuer string

	AssemblyAIKey string

	LLMProvider string
	LLMModel    string
	CerebrasKey string
	GeminiKey   string

	ElevenLabsKey     string
	ElevenLabsVoiceID string
	DeepgramKey       string
	DeepgramModel     string

	MinQuestions          int
	QuestionLimit         int
	RequireFullscreen     bool
	TerminateOnHidden     bool
	PersistPauseSnapshots bool

	SweepSchedule string
	SweepMaxAge   time.Duration
}

// Load reads environment variables, with .env support, and returns Config
// with sane defaults.
func Load(log *zap.Logger) Config {
	if log == nil {
		log = zap.NewNop()
	}
	if err := godotenv.Load(); err != nil {
		log.Debug("config: no .env file loaded", zap.Error(err))
	}

	cfg := Config{
		HTTPAddress:    getEnv("HTTP_ADDRESS", ":8080"),
		ICEServersJSON: getEnv("ICE_SERVERS_JSON", `[{"urls":["stun:stun.l.google.com:19302"]}]`),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Development:    getEnvBool("DEVELOPMENT", false),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "postgres"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		MongoURI:       os.Getenv("MONGO_URI"),
		MongoDatabase:  getEnv("MONGO_DATABASE", "interviewer"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),

		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:         getEnv("SUPABASE_BUCKET", "interview-reports"),

		InviteSecret: os.Getenv("INVITE_JWT_SECRET"),
		InviteIssuer: getEnv("INVITE_JWT_ISSUER", "ai-interviewer"),

		AssemblyAIKey: os.Getenv("ASSEMBLYAI_API_KEY"),

		LLMProvider: strings.ToLower(getEnv("LLM_PROVIDER", "cerebras")),
		LLMModel:    os.Getenv("LLM_MODEL"),
		CerebrasKey: os.Getenv("CEREBRAS_API_KEY"),
		GeminiKey:   os.Getenv("GEMINI_API_KEY"),

		ElevenLabsKey:     os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),
		DeepgramKey:       os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramModel:     getEnv("DEEPGRAM_MODEL", "aura-2-thalia-en"),

		MinQuestions:          getEnvInt("MIN_QUESTIONS", 8),
		QuestionLimit:         getEnvInt("QUESTION_LIMIT", 0),
		RequireFullscreen:     getEnvBool("REQUIRE_FULLSCREEN", false),
		TerminateOnHidden:     getEnvBool("TERMINATE_ON_HIDDEN", false),
		PersistPauseSnapshots: getEnvBool("PERSIST_PAUSE_SNAPSHOTS", true),

		SweepSchedule: getEnv("SWEEP_SCHEDULE", "@every 5m"),
		SweepMaxAge:   getEnvDuration("SWEEP_MAX_AGE", 3*time.Hour),
	}

	if cfg.AssemblyAIKey == "" {
		log.Warn("config: ASSEMBLYAI_API_KEY not set - voice answers disabled, text mode only")
	}
	if cfg.CerebrasKey == "" && cfg.GeminiKey == "" {
		log.Warn("config: no LLM key set - question service will fail")
	}
	if cfg.ElevenLabsKey == "" && cfg.DeepgramKey == "" {
		log.Warn("config: no TTS key set - prompts use the browser voice")
	}
	if cfg.InviteSecret == "" {
		log.Warn("config: INVITE_JWT_SECRET not set - invited sessions cannot be opened")
	}
	log.Info("config loaded", zap.String("http_address", cfg.HTTPAddress), zap.String("llm_provider", cfg.LLMProvider))
	return cfg
}

// LLMKey returns the API key of the configured question provider.
func (c Config) LLMKey() string {
	if c.LLMProvider == "gemini" {
		return c.GeminiKey
	}
	return c.CerebrasKey
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
